package channels

import (
	"errors"
	"fmt"
	"strings"

	"weaver-hq/loom/pkg/domain"
)

// ErrInvalidChannels is matched by every validation failure of a channel
// set.
var ErrInvalidChannels = errors.New("invalid channel configuration")

// File is the layout of a channels file.
type File struct {
	Tenants []TenantChannels `yaml:"tenants"`
}

// TenantChannels is one tenant's entry in a channels file.
type TenantChannels struct {
	ID string `yaml:"id"`

	// Strategy overrides the gateway's default routing strategy.
	Strategy string `yaml:"strategy,omitempty"`

	Channels []domain.Channel `yaml:"channels"`
}

// FieldError describes one invalid field.
type FieldError struct {
	Tenant  string
	Channel string
	Field   string
	Message string
}

// Error implements the error interface.
func (e FieldError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tenant %q", e.Tenant)
	if e.Channel != "" {
		fmt.Fprintf(&b, " channel %q", e.Channel)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// ValidationError collects every problem found in a channel set.
type ValidationError struct {
	Errors []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return "invalid channel configuration: " + e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = "  - " + fe.Error()
	}
	return fmt.Sprintf("invalid channel configuration (%d errors):\n%s", len(e.Errors), strings.Join(parts, "\n"))
}

// Is matches ErrInvalidChannels.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidChannels
}

func (e *ValidationError) add(tenant, channel, field, msg string) {
	e.Errors = append(e.Errors, FieldError{Tenant: tenant, Channel: channel, Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
