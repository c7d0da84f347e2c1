package health

import (
	"fmt"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	// Closed channels are eligible for routing.
	Closed State = iota

	// Open channels are excluded until the cooldown elapses.
	Open

	// HalfOpen channels admit exactly one trial request at a time.
	HalfOpen
)

// String returns the state name as shown in admin output and metrics.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = Closed
	case "open":
		*s = Open
	case "half_open":
		*s = HalfOpen
	default:
		return fmt.Errorf("unknown breaker state %q", text)
	}
	return nil
}

// Default breaker parameters.
const (
	DefaultFailureThreshold = 5
	DefaultFailureWindow    = 60 * time.Second
	DefaultBaseCooldown     = 30 * time.Second
	DefaultMaxCooldown      = 5 * time.Minute
)

// Config holds the circuit breaker parameters shared by every channel.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// closed breaker.
	FailureThreshold int

	// FailureWindow bounds how far apart consecutive failures may be. A
	// failure arriving after the window has passed since the first failure
	// of the current run starts a new run. Zero disables the window.
	FailureWindow time.Duration

	// BaseCooldown is the first cooldown after a breaker opens.
	BaseCooldown time.Duration

	// MaxCooldown caps the cooldown doubling on repeated trial failures.
	MaxCooldown time.Duration

	// OnTransition, if set, is called after every state change. It runs
	// outside the breaker lock.
	OnTransition func(channelID string, from, to State)
}

// DefaultConfig returns the default breaker parameters.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		FailureWindow:    DefaultFailureWindow,
		BaseCooldown:     DefaultBaseCooldown,
		MaxCooldown:      DefaultMaxCooldown,
	}
}

func (c *Config) applyDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.FailureWindow < 0 {
		c.FailureWindow = 0
	}
	if c.BaseCooldown <= 0 {
		c.BaseCooldown = DefaultBaseCooldown
	}
	if c.MaxCooldown < c.BaseCooldown {
		c.MaxCooldown = c.BaseCooldown
	}
}

// ChannelHealth is a read-only view of one channel's breaker.
type ChannelHealth struct {
	ChannelID           string        `json:"channel_id"`
	State               State         `json:"state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	Cooldown            time.Duration `json:"cooldown"`
	LastTransition      time.Time     `json:"last_transition"`
	TrialInFlight       bool          `json:"trial_in_flight"`
	Trips               int           `json:"trips"`
	LastSuccess         time.Time     `json:"last_success,omitempty"`
	LastFailure         time.Time     `json:"last_failure,omitempty"`
	LastError           string        `json:"last_error,omitempty"`

	// Eligible reports whether the selector would admit the channel right
	// now.
	Eligible bool `json:"eligible"`

	// RetryAt is when an open breaker becomes eligible for a trial.
	RetryAt time.Time `json:"retry_at,omitempty"`
}
