package enforcement

import (
	"fmt"

	"weaver-hq/loom/pkg/domain"
)

// Enforcer applies an Action to limit decisions.
type Enforcer struct {
	action Action
}

// NewEnforcer creates an enforcer; an empty action means ActionBlock.
func NewEnforcer(action Action) *Enforcer {
	if action == "" {
		action = ActionBlock
	}
	return &Enforcer{action: action}
}

// Action returns the configured action.
func (e *Enforcer) Action() Action {
	return e.action
}

// Enforce applies the configured action to d for tenantID. Allowed
// decisions pass through unchanged.
func (e *Enforcer) Enforce(tenantID string, d domain.Decision) Result {
	if d.Allowed {
		return Result{Decision: d, Action: e.action}
	}

	switch e.action {
	case ActionAlert:
		return Result{
			Decision:     domain.Allow(),
			Action:       ActionAlert,
			Breached:     true,
			AlertMessage: fmt.Sprintf("tenant %s: %s (%s)", tenantID, d.Reason, d.Message),
		}
	default:
		return Result{Decision: d, Action: ActionBlock, Breached: true}
	}
}
