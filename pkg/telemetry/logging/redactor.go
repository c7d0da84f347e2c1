package logging

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Pattern is a custom redaction rule applied to string values.
type Pattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// Built-in pattern names.
const (
	PatternAPIKey      = "api_key"
	PatternBearerToken = "bearer_token"
	PatternGoogleKey   = "google_key"
)

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Redactor masks credentials in log attributes.
type Redactor struct {
	patterns []redactPattern
}

var defaultPatterns = []Pattern{
	// OpenAI and Anthropic style secret keys.
	{Name: PatternAPIKey, Pattern: `sk-[A-Za-z0-9_\-]{4,}`, Replacement: "sk-***"},
	{Name: PatternBearerToken, Pattern: `Bearer\s+[A-Za-z0-9\-._~+/]+=*`, Replacement: "Bearer ***"},
	// Gemini keys travel in the query string.
	{Name: PatternGoogleKey, Pattern: `([?&]key=)[^&\s"]+`, Replacement: "${1}***"},
}

// sensitiveKeys are attribute key fragments whose values are always masked.
var sensitiveKeys = []string{
	"api_key", "apikey", "api-key",
	"authorization", "bearer",
	"access_token", "refresh_token", "secret", "password", "private_key",
}

// NewRedactor creates a redactor with the built-in patterns plus custom.
func NewRedactor(custom []Pattern) (*Redactor, error) {
	r := &Redactor{}
	for _, p := range append(append([]Pattern{}, defaultPatterns...), custom...) {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p.Name, err)
		}
		r.patterns = append(r.patterns, redactPattern{name: p.Name, regex: re, replacement: p.Replacement})
	}
	return r, nil
}

// RedactString applies every pattern to s.
func (r *Redactor) RedactString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range r.patterns {
		s = p.regex.ReplaceAllString(s, p.replacement)
	}
	return s
}

// RedactAttr masks a single attribute. It is suitable as
// slog.HandlerOptions.ReplaceAttr.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskSecret(a.Value.String()))
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// MaskSecret keeps at most a four character prefix of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***"
}
