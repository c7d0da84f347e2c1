package main

import (
	"encoding/json"
	"strings"
	"testing"

	testhelpers "weaver-hq/loom/internal/providers"
	"weaver-hq/loom/pkg/cli"
)

func TestChannelsList(t *testing.T) {
	cfgPath := writeFixtures(t, "http://127.0.0.1:1/v1")

	out, err := execute(t, "channels", "list", "--config", cfgPath)
	if err != nil {
		t.Fatalf("channels list error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("want header and 3 rows, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[0], "TENANT") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "primary") || !strings.Contains(lines[1], "gpt-4o,gpt-4o-mini") {
		t.Errorf("row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "inactive") || !strings.Contains(lines[2], "*") {
		t.Errorf("row = %q", lines[2])
	}
}

func TestChannelsList_JSONForTenant(t *testing.T) {
	cfgPath := writeFixtures(t, "http://127.0.0.1:1/v1")

	out, err := execute(t, "channels", "list", "--config", cfgPath, "--tenant", "orphan", "-o", "json")
	if err != nil {
		t.Fatalf("channels list error = %v", err)
	}

	var rows []ChannelRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].ID != "orphan-1" || rows[0].Type != "anthropic" {
		t.Errorf("rows = %+v", rows)
	}
	if strings.Contains(out, "api_key") {
		t.Error("API keys must not be printed")
	}
}

func TestChannelsList_UnknownTenant(t *testing.T) {
	cfgPath := writeFixtures(t, "http://127.0.0.1:1/v1")

	if _, err := execute(t, "channels", "list", "--config", cfgPath, "--tenant", "ghost"); err == nil {
		t.Fatal("want error for unknown tenant")
	}
}

func TestChannelsProbe(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()
	mock.SetResponse("/v1/models", testhelpers.MockResponse{Body: map[string]any{"object": "list", "data": []any{}}})

	cfgPath := writeFixtures(t, mock.URL()+"/v1")

	out, err := execute(t, "channels", "probe", "--config", cfgPath, "--tenant", "acme", "-o", "json")
	if err != nil {
		t.Fatalf("channels probe error = %v\n%s", err, out)
	}

	var report ProbeReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	// The inactive spare channel is not probed.
	if report.Healthy != 1 || report.Failed != 0 || len(report.Results) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Results[0].ChannelID != "primary" {
		t.Errorf("probed %q", report.Results[0].ChannelID)
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("upstream requests = %d, want 1", mock.GetRequestCount())
	}
}

func TestChannelsProbe_Failure(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()
	mock.SetResponse("/v1/models", testhelpers.MockServerError())

	cfgPath := writeFixtures(t, mock.URL()+"/v1")

	out, err := execute(t, "channels", "probe", "--config", cfgPath, "--tenant", "acme")
	if cli.ExitCode(err) != cli.ExitUnhealthy {
		t.Fatalf("error = %v, want unhealthy", err)
	}
	if !strings.Contains(out, "FAIL") {
		t.Errorf("table missing FAIL row:\n%s", out)
	}
}

func TestProbeReport_Table(t *testing.T) {
	table := ProbeReport{}.Table()
	if len(table.Headers) != 5 || len(table.Rows) != 0 {
		t.Errorf("table = %+v", table)
	}
}
