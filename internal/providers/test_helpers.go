package providers

import (
	"strings"
	"testing"
	"time"

	"weaver-hq/loom/pkg/domain"
)

// TestChannel returns an active channel of the given type pointing at
// baseURL and serving every model.
func TestChannel(id string, kind domain.ProviderType, baseURL string) *domain.Channel {
	return &domain.Channel{
		ID:       id,
		Name:     id,
		Type:     kind,
		BaseURL:  baseURL,
		APIKey:   "test-key",
		Weight:   domain.DefaultWeight,
		Priority: 0,
		Status:   domain.StatusActive,
		Models:   []string{domain.Wildcard},
	}
}

// TestMapping returns a mapping from model to target.
func TestMapping(model, target string) domain.ModelMapping {
	return domain.ModelMapping{Model: model, Target: target}
}

// TestMessage creates a test message.
func TestMessage(role, content string) domain.Message {
	return domain.Message{
		Role:    role,
		Content: content,
	}
}

// TestChatRequest creates a test chat request.
func TestChatRequest(model string, messages ...domain.Message) *domain.ChatRequest {
	temp := 0.7
	if len(messages) == 0 {
		messages = []domain.Message{TestMessage("user", "Hello")}
	}
	return &domain.ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: &temp,
		MaxTokens:   100,
	}
}

// CollectChunks drains a stream channel. It returns the chunks received
// before the first error chunk, and that error.
func CollectChunks(t *testing.T, chunks <-chan domain.Chunk) ([]domain.Chunk, error) {
	t.Helper()

	var collected []domain.Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return collected, nil
			}
			if chunk.Err != nil {
				// Drain so the producer can exit.
				for range chunks {
				}
				return collected, chunk.Err
			}
			collected = append(collected, chunk)
		case <-timeout:
			t.Fatal("stream did not finish within 5s")
			return collected, nil
		}
	}
}

// ConcatenateChunks concatenates the delta content from all chunks.
func ConcatenateChunks(chunks []domain.Chunk) string {
	var b strings.Builder
	for _, chunk := range chunks {
		b.WriteString(chunk.Delta)
	}
	return b.String()
}

// FinalUsage returns the last usage report in chunks, if any.
func FinalUsage(chunks []domain.Chunk) *domain.Usage {
	for i := len(chunks) - 1; i >= 0; i-- {
		if chunks[i].Usage != nil {
			return chunks[i].Usage
		}
	}
	return nil
}

// WaitForCondition waits for a condition to become true within a timeout.
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}

		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", timeout, message)
		}

		<-ticker.C
	}
}
