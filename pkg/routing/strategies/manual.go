package strategies

import (
	"slices"

	"weaver-hq/loom/pkg/domain"
)

// Manual pins a request to an explicitly chosen channel, either the
// tenant's preferred channel or one named by the caller.
//
// With fallback allowed the pinned channel leads and the ordered list
// follows it as failover. Without fallback the pinned channel is the only
// candidate.
type Manual struct {
	// AllowFallback keeps the rest of the list behind the pinned channel.
	AllowFallback bool
}

// Pin applies the preference to an ordered candidate list.
//
// Algorithm:
//  1. No preference: the list is returned unchanged.
//  2. The preferred channel is in the list: it moves to the head, or
//     becomes the whole list without fallback.
//  3. The preferred channel is missing: the list is returned unchanged
//     with fallback, and nil without it.
//
// The second result reports whether the preferred channel was found.
func (m Manual) Pin(list []domain.Candidate, channelID string) ([]domain.Candidate, bool) {
	if channelID == "" {
		return list, false
	}

	i := slices.IndexFunc(list, func(c domain.Candidate) bool { return c.ChannelID() == channelID })
	if i < 0 {
		if m.AllowFallback {
			return list, false
		}
		return nil, false
	}

	if !m.AllowFallback {
		return list[i : i+1], true
	}
	head := list[i]
	copy(list[1:i+1], list[:i])
	list[0] = head
	return list, true
}
