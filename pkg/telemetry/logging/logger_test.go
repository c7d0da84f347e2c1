package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func newBufferedLogger(t *testing.T, cfg Config) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	cfg.Writer = buf
	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return logger, buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("log line is not JSON: %v: %s", err, buf.String())
	}
	return m
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json", config: Config{Level: "info", Format: "json"}},
		{name: "text", config: Config{Level: "debug", Format: "text"}},
		{name: "console", config: Config{Level: "WARN", Format: "console"}},
		{name: "defaults", config: Config{}},
		{name: "invalid level", config: Config{Level: "loud"}, wantErr: true},
		{name: "invalid format", config: Config{Format: "xml"}, wantErr: true},
		{name: "invalid pattern", config: Config{RedactSecrets: true, RedactPatterns: []Pattern{{Name: "bad", Pattern: "("}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_Level(t *testing.T) {
	logger, buf := newBufferedLogger(t, Config{Level: "warn"})

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %s", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn not logged: %s", buf.String())
	}
}

func TestLogger_ContextFields(t *testing.T) {
	logger, buf := newBufferedLogger(t, Config{})

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithTenant(ctx, "acme")
	ctx = WithChannel(ctx, "ch-1")
	logger.InfoContext(ctx, "routed")

	m := decode(t, buf)
	for k, want := range map[string]string{"request_id": "req-123", "tenant": "acme", "channel": "ch-1"} {
		if m[k] != want {
			t.Errorf("%s = %v, want %q", k, m[k], want)
		}
	}
	if _, ok := m["model"]; ok {
		t.Error("unset context field should be omitted")
	}
}

func TestLogger_TraceFields(t *testing.T) {
	logger, buf := newBufferedLogger(t, Config{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "traced")
	m := decode(t, buf)
	if m["trace_id"] != traceID.String() || m["span_id"] != spanID.String() {
		t.Errorf("trace fields = %v / %v", m["trace_id"], m["span_id"])
	}
}

func TestLogger_Redaction(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  any
		want   string
		redact bool
	}{
		{name: "api key by name", key: "api_key", value: "sk-proj-abcdefghijkl", want: "sk-p***", redact: true},
		{name: "short secret", key: "client_secret", value: "abc", want: "***", redact: true},
		{name: "key in message", key: "detail", value: "upstream rejected sk-abcdef123456", want: "upstream rejected sk-***", redact: true},
		{name: "bearer header", key: "header", value: "Bearer abc.def.ghi", want: "Bearer ***", redact: true},
		{name: "gemini query key", key: "url", value: "https://x/v1beta/models?key=AIzaSecret&alt=sse", want: "https://x/v1beta/models?key=***&alt=sse", redact: true},
		{name: "error value", key: "error", value: errors.New("401 for sk-abcdef123456"), want: "401 for sk-***", redact: true},
		{name: "token counts untouched", key: "prompt_tokens", value: "12", want: "12", redact: true},
		{name: "disabled", key: "api_key", value: "sk-proj-abcdefghijkl", want: "sk-proj-abcdefghijkl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferedLogger(t, Config{RedactSecrets: tt.redact})
			logger.Info("msg", tt.key, tt.value)
			m := decode(t, buf)
			if m[tt.key] != tt.want {
				t.Errorf("%s = %v, want %q", tt.key, m[tt.key], tt.want)
			}
		})
	}
}

func TestLogger_CustomPattern(t *testing.T) {
	logger, buf := newBufferedLogger(t, Config{
		RedactSecrets:  true,
		RedactPatterns: []Pattern{{Name: "internal", Pattern: `acct-\d+`, Replacement: "acct-***"}},
	})
	logger.Info("msg", "detail", "billing acct-991 exceeded")
	if m := decode(t, buf); m["detail"] != "billing acct-*** exceeded" {
		t.Errorf("detail = %v", m["detail"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
}

func TestContextGetters(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetTenant(ctx) != "" || GetChannel(ctx) != "" || GetModel(ctx) != "" {
		t.Error("empty context should yield empty fields")
	}
	ctx = WithModel(WithChannel(WithTenant(WithRequestID(ctx, "r"), "t"), "c"), "m")
	if GetRequestID(ctx) != "r" || GetTenant(ctx) != "t" || GetChannel(ctx) != "c" || GetModel(ctx) != "m" {
		t.Error("getters should return stored fields")
	}
}

func BenchmarkLogger_Disabled(b *testing.B) {
	logger, _ := New(Config{Level: "error", Writer: &bytes.Buffer{}, RedactSecrets: true})
	ctx := WithRequestID(context.Background(), "req-1")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		logger.DebugContext(ctx, "skipped", "channel", "ch-1")
	}
}
