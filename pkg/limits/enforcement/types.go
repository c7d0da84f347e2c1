package enforcement

import (
	"fmt"

	"weaver-hq/loom/pkg/domain"
)

// Action is what to do when a limit is exceeded.
type Action string

const (
	// ActionBlock rejects the request.
	ActionBlock Action = "block"

	// ActionAlert reports the breach but allows the request.
	ActionAlert Action = "alert"
)

// ParseAction parses an action name; empty selects ActionBlock.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case "", ActionBlock:
		return ActionBlock, nil
	case ActionAlert:
		return ActionAlert, nil
	}
	return "", fmt.Errorf("unknown enforcement action %q (want block or alert)", s)
}

// Result is the outcome of enforcing a decision.
type Result struct {
	// Decision is what the caller should act on.
	Decision domain.Decision

	// Action is the action that was applied.
	Action Action

	// Breached is set when the original decision was a denial, even if the
	// action let the request through.
	Breached bool

	// AlertMessage describes a breach that was allowed through.
	AlertMessage string
}
