package providers

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSSEReader(t *testing.T) {
	input := strings.Join([]string{
		": keep-alive comment",
		"",
		"data: first",
		"",
		"event: message_start",
		"data: {\"type\":\"message_start\"}",
		"",
		"data: line one",
		"data: line two",
		"id: 7",
		"",
		"data:no-space",
		"",
	}, "\n")

	r := NewSSEReader(io.NopCloser(strings.NewReader(input)))
	defer r.Close()

	want := []SSEEvent{
		{Data: "first"},
		{Event: "message_start", Data: `{"type":"message_start"}`},
		{Data: "line one\nline two"},
		{Data: "no-space"},
	}
	for i, w := range want {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("event %d: Next() error = %v", i, err)
		}
		if got != w {
			t.Errorf("event %d = %+v, want %+v", i, got, w)
		}
	}

	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want io.EOF", err)
	}
}

func TestSSEReader_TrailingEventWithoutBlankLine(t *testing.T) {
	r := NewSSEReader(io.NopCloser(strings.NewReader("data: tail")))
	ev, err := r.Next()
	if err != nil || ev.Data != "tail" {
		t.Fatalf("Next() = %+v, %v", ev, err)
	}
}

func TestSSEReader_Closed(t *testing.T) {
	r := NewSSEReader(io.NopCloser(strings.NewReader("data: x\n\n")))
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after Close = %v, want io.EOF", err)
	}
}
