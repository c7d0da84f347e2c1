package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"weaver-hq/loom/pkg/attemptlog/query"
)

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile, envFiles, verbose = "config.yaml", nil, false
	channelsFlags.file, channelsFlags.tenant, channelsFlags.output = "", "", "table"
	channelsFlags.timeout = 0
	validateFlags.strict = false
	attemptsFlags.params = query.Params{Order: "desc"}
	attemptsFlags.format, attemptsFlags.out, attemptsFlags.all = "json", "", false
	usageFlags.tenant, usageFlags.start, usageFlags.end = "", "", ""
	usageFlags.byDay, usageFlags.output = false, "table"

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

const configTemplate = `
channels:
  file: %s
attempt_log:
  backend: memory
limits:
  ledger:
    backend: memory
health:
  probe:
    timeout: 2s
tenants:
  - id: acme
    api_keys: [sk-acme]
    allowed_models: [gpt-4o]
`

const channelsTemplate = `
tenants:
  - id: acme
    channels:
      - id: primary
        type: openai
        base_url: %s
        priority: 10
        models: [gpt-4o, gpt-4o-mini]
      - id: spare
        type: openai
        base_url: %s
        status: inactive
        models: ["*"]
  - id: orphan
    channels:
      - id: orphan-1
        type: anthropic
        models: [claude-3-5-sonnet]
`

// writeFixtures writes a config and channels file pointing at baseURL and
// returns the config path.
func writeFixtures(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()

	channelsPath := filepath.Join(dir, "channels.yaml")
	if err := os.WriteFile(channelsPath, []byte(fmt.Sprintf(channelsTemplate, baseURL, baseURL)), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf(configTemplate, channelsPath)), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestVersionCommand(t *testing.T) {
	orig := Version
	Version = "9.9.9-test"
	defer func() { Version = orig }()

	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !bytes.Contains([]byte(out), []byte("Loom 9.9.9-test")) {
		t.Errorf("output = %q", out)
	}
}

func TestBuildInfo(t *testing.T) {
	info := buildInfo()
	if info.Version != Version || info.Commit != GitCommit || info.BuildTime != BuildDate {
		t.Errorf("buildInfo() = %+v", info)
	}
}

func TestProbeTimeoutFlag(t *testing.T) {
	if f := channelsProbeCmd.Flags().Lookup("timeout"); f == nil || f.DefValue != time.Duration(0).String() {
		t.Errorf("timeout flag = %+v", f)
	}
}
