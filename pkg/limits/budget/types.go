package budget

import "time"

// Window durations.
const (
	HourlyWindow  = time.Hour
	DailyWindow   = 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour
)

// Config holds spend limits in USD. Zero disables a window.
type Config struct {
	Hourly  float64 `yaml:"hourly" json:"hourly,omitempty"`
	Daily   float64 `yaml:"daily" json:"daily,omitempty"`
	Monthly float64 `yaml:"monthly" json:"monthly,omitempty"`

	// AlertThreshold is the fraction (0.0-1.0) of a limit at which Check
	// flags AlertTriggered.
	AlertThreshold float64 `yaml:"alert_threshold" json:"alert_threshold,omitempty"`
}

// Enabled reports whether any window is limited.
func (c Config) Enabled() bool {
	return c.Hourly > 0 || c.Daily > 0 || c.Monthly > 0
}

// Status is the state of one budget window.
type Status struct {
	// Allowed is false once spend meets or exceeds the limit.
	Allowed bool `json:"allowed"`

	// Reason explains a denial.
	Reason string `json:"reason,omitempty"`

	// Name is "hourly", "daily" or "monthly". Empty when no window is
	// configured.
	Name string `json:"window,omitempty"`

	Limit      float64 `json:"limit"`
	Used       float64 `json:"used"`
	Remaining  float64 `json:"remaining"`
	Percentage float64 `json:"percentage"`

	// Reset is when the oldest spend in the window ages out.
	Reset time.Time `json:"reset"`

	Window         time.Duration `json:"-"`
	AlertTriggered bool          `json:"alert_triggered,omitempty"`
}
