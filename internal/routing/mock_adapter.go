// Package routing provides test doubles for the routing and dispatch
// packages.
package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

// Script describes how the MockAdapter answers calls for one channel.
type Script struct {
	// Err is returned from Complete and Stream before anything is sent.
	Err error

	// Response is returned from Complete. A default response is built when
	// nil.
	Response *domain.Response

	// Chunks are emitted by Stream in order. A chunk with Err set ends the
	// stream.
	Chunks []domain.Chunk

	// Delay is waited before answering, honoring the context.
	Delay time.Duration

	// ChunkDelay is waited before each streamed chunk.
	ChunkDelay time.Duration

	// ProbeErr is returned from Probe.
	ProbeErr error
}

// Call records one invocation of the MockAdapter.
type Call struct {
	Method    string
	ChannelID string
	Target    string
}

// MockAdapter is a scripted providers.Adapter keyed by channel ID. It also
// implements the dispatcher's adapter source and the health prober.
type MockAdapter struct {
	mu      sync.Mutex
	scripts map[string]Script
	calls   []Call
}

// NewMockAdapter creates a mock adapter with no scripts. Unscripted
// channels answer successfully with "mock response".
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{scripts: make(map[string]Script)}
}

// Set installs the script for a channel.
func (m *MockAdapter) Set(channelID string, s Script) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[channelID] = s
}

// Calls returns a copy of the recorded calls.
func (m *MockAdapter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many Complete and Stream calls went to channelID.
func (m *MockAdapter) CallCount(channelID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.ChannelID == channelID && c.Method != "probe" {
			n++
		}
	}
	return n
}

// For returns the adapter itself for every channel.
func (m *MockAdapter) For(*domain.Channel) (providers.Adapter, error) {
	return m, nil
}

// Type implements providers.Adapter.
func (m *MockAdapter) Type() domain.ProviderType {
	return domain.ProviderCustom
}

// Complete implements providers.Adapter.
func (m *MockAdapter) Complete(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (*domain.Response, error) {
	s := m.record("complete", ch.ID, mapping.Target)
	if err := wait(ctx, s.Delay); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Response != nil {
		resp := *s.Response
		return &resp, nil
	}
	return &domain.Response{
		ID:           "mock-" + ch.ID,
		Model:        mapping.Target,
		Content:      "mock response",
		FinishReason: providers.FinishReasonStop,
		Usage:        domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

// Stream implements providers.Adapter.
func (m *MockAdapter) Stream(ctx context.Context, ch *domain.Channel, mapping domain.ModelMapping, req *domain.ChatRequest) (<-chan domain.Chunk, error) {
	s := m.record("stream", ch.ID, mapping.Target)
	if err := wait(ctx, s.Delay); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}

	chunks := s.Chunks
	if chunks == nil {
		chunks = []domain.Chunk{
			{Delta: "mock "},
			{Delta: "response", FinishReason: providers.FinishReasonStop},
		}
	}

	out := make(chan domain.Chunk, providers.StreamBuffer)
	go func() {
		defer close(out)
		for _, c := range chunks {
			if wait(ctx, s.ChunkDelay) != nil {
				return
			}
			if c.Model == "" {
				c.Model = mapping.Target
			}
			if !providers.Send(ctx, out, c) || c.Err != nil {
				return
			}
		}
	}()
	return out, nil
}

// Probe implements providers.Adapter.
func (m *MockAdapter) Probe(ctx context.Context, ch *domain.Channel) error {
	s := m.record("probe", ch.ID, "")
	return s.ProbeErr
}

func (m *MockAdapter) record(method, channelID, target string) Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, ChannelID: channelID, Target: target})
	return m.scripts[channelID]
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TestChannels builds n active channels named ch-1..ch-n serving model.
func TestChannels(n int, model string) []domain.Channel {
	out := make([]domain.Channel, n)
	for i := range out {
		out[i] = domain.Channel{
			ID:       fmt.Sprintf("ch-%d", i+1),
			Name:     fmt.Sprintf("channel %d", i+1),
			Type:     domain.ProviderCustom,
			BaseURL:  "http://mock.invalid",
			APIKey:   "test-key",
			Weight:   domain.DefaultWeight,
			Priority: i,
			Status:   domain.StatusActive,
			Models:   []string{model},
		}
	}
	return out
}

// Candidates pairs every channel with the identity mapping for model.
func Candidates(channels []domain.Channel, model string) []domain.Candidate {
	out := make([]domain.Candidate, len(channels))
	for i := range channels {
		out[i] = domain.Candidate{
			Channel: &channels[i],
			Mapping: domain.ModelMapping{Model: model, Target: model},
		}
	}
	return out
}
