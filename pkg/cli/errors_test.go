package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	tests := []struct {
		err  *ConfigError
		want string
	}{
		{NewConfigError("server.listen_address", "missing required field"), "config error in server.listen_address: missing required field"},
		{NewConfigError("", "file not found"), "config error: file not found"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestCommandError(t *testing.T) {
	underlying := errors.New("underlying error")
	err := NewCommandError("run", underlying)

	if got := err.Error(); got != "command run failed: underlying error" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, underlying) {
		t.Error("errors.Is() should see through CommandError")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", errors.New("boom"), ExitError},
		{"config", NewConfigError("", "bad"), ExitConfig},
		{"wrapped config", fmt.Errorf("validate: %w", NewConfigError("x", "bad")), ExitConfig},
		{"unhealthy", &UnhealthyError{Failed: 1, Total: 3}, ExitUnhealthy},
		{"command wrapping unhealthy", NewCommandError("probe", &UnhealthyError{Failed: 2, Total: 2}), ExitUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestUnhealthyError(t *testing.T) {
	err := &UnhealthyError{Failed: 2, Total: 5}
	if got := err.Error(); got != "2 of 5 channels failed their probe" {
		t.Errorf("Error() = %q", got)
	}
}
