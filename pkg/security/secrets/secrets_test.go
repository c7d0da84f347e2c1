package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSecret(t *testing.T, dir, name, value string, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), perm); err != nil {
		t.Fatal(err)
	}
	// WriteFile honours umask, so set the mode explicitly.
	if err := os.Chmod(filepath.Join(dir, name), perm); err != nil {
		t.Fatal(err)
	}
}

func TestEnvProvider(t *testing.T) {
	t.Setenv("LOOM_SECRET_OPENAI_PROD", "sk-env")
	p := NewEnvProvider("LOOM_SECRET_")
	ctx := context.Background()

	v, err := p.Get(ctx, "openai-prod")
	if err != nil || v != "sk-env" {
		t.Fatalf("Get() = %q, %v", v, err)
	}
	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	names, _ := p.Names(ctx)
	found := false
	for _, n := range names {
		if n == "openai-prod" {
			found = true
		}
	}
	if !found {
		t.Errorf("Names() = %v, want openai-prod", names)
	}
}

func TestDirProvider(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "anthropic", "sk-ant\n", 0o600)
	writeSecret(t, dir, "open", "sk-open", 0o644)

	p, err := NewDirProvider(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	ctx := context.Background()

	tests := []struct {
		name    string
		secret  string
		want    string
		wantErr bool
	}{
		{"trims whitespace", "anthropic", "sk-ant", false},
		{"insecure permissions", "open", "", true},
		{"missing", "nope", "", true},
		{"traversal", "../etc/passwd", "", true},
		{"hidden", ".env", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Get(ctx, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Get(%q) error = %v, wantErr %v", tt.secret, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

func TestDirProvider_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "file", "x", 0o600)
	if _, err := NewDirProvider(filepath.Join(dir, "file"), false); err == nil {
		t.Error("NewDirProvider() accepted a file")
	}
}

func TestDirProvider_RefreshRereads(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "key", "v1", 0o600)
	p, err := NewDirProvider(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if v, _ := p.Get(ctx, "key"); v != "v1" {
		t.Fatalf("Get() = %q", v)
	}
	writeSecret(t, dir, "key", "v2", 0o600)
	if v, _ := p.Get(ctx, "key"); v != "v1" {
		t.Errorf("Get() before refresh = %q, want cached v1", v)
	}
	_ = p.Refresh(ctx)
	if v, _ := p.Get(ctx, "key"); v != "v2" {
		t.Errorf("Get() after refresh = %q, want v2", v)
	}
}

func TestCache(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCache(CacheConfig{TTL: time.Minute, MaxSize: 2})
	c.now = func() time.Time { return now }

	c.Set("a", "1")
	now = now.Add(time.Second)
	c.Set("b", "2")
	c.Set("c", "3")

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("c"); ok {
		t.Error("expired entry returned")
	}
}

func TestCache_Disabled(t *testing.T) {
	c := NewCache(CacheConfig{})
	c.Set("a", "1")
	if _, ok := c.Get("a"); ok {
		t.Error("zero TTL cache stored a value")
	}
}

type countingProvider struct {
	values map[string]string
	calls  int
	err    error
}

func (p *countingProvider) Get(_ context.Context, name string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	v, ok := p.values[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (p *countingProvider) Names(context.Context) ([]string, error) {
	var out []string
	for k := range p.values {
		out = append(out, k)
	}
	return out, nil
}

func (p *countingProvider) Name() string { return "counting" }

func TestManager_OrderAndCache(t *testing.T) {
	first := &countingProvider{values: map[string]string{"a": "from-first"}}
	second := &countingProvider{values: map[string]string{"a": "from-second", "b": "only-second"}}
	m := NewManager([]Provider{first, second}, CacheConfig{TTL: time.Minute})
	ctx := context.Background()

	if v, _ := m.Get(ctx, "a"); v != "from-first" {
		t.Errorf("Get(a) = %q", v)
	}
	if v, _ := m.Get(ctx, "b"); v != "only-second" {
		t.Errorf("Get(b) = %q", v)
	}
	calls := first.calls
	_, _ = m.Get(ctx, "a")
	if first.calls != calls {
		t.Error("cached secret fetched again")
	}

	if _, err := m.Get(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(zzz) error = %v", err)
	}
	if got := m.Names(ctx); strings.Join(got, ",") != "a,b" {
		t.Errorf("Names() = %v", got)
	}
}

func TestManager_ProviderFailure(t *testing.T) {
	broken := &countingProvider{err: errors.New("backend down")}
	m := NewManager([]Provider{broken}, CacheConfig{})

	_, err := m.Get(context.Background(), "a")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want backend failure", err)
	}
	if !strings.Contains(err.Error(), "backend down") {
		t.Errorf("error %q does not carry the cause", err)
	}
}

func TestManager_ResolveReferences(t *testing.T) {
	p := &countingProvider{values: map[string]string{"openai": "sk-1", "org": "acme"}}
	m := NewManager([]Provider{p}, CacheConfig{})
	ctx := context.Background()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"${secret:openai}", "sk-1", false},
		{"Bearer ${secret:openai}/${secret: org }", "Bearer sk-1/acme", false},
		{"plain-key", "plain-key", false},
		{"${secret:missing}", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := m.ResolveReferences(ctx, tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveReferences() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveReferences() = %q, want %q", got, tt.want)
			}
		})
	}

	if !HasReference("x${secret:y}") || HasReference("${HOME}") {
		t.Error("HasReference mismatch")
	}
}

func TestShorten(t *testing.T) {
	if shorten("abc") != "***" || shorten("openai-prod") != "op...od" {
		t.Errorf("shorten() = %q / %q", shorten("abc"), shorten("openai-prod"))
	}
}
