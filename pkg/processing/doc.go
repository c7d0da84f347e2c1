// Package processing performs the token and cost accounting around a
// routed request.
//
// # Architecture
//
// The processing package is organized into specialized sub-packages:
//
//   - tokens: character-based token estimation for prompts and streamed deltas
//   - costs: per-channel pricing with a mapping → channel → provider fallback
//
// Processor ties them together. The gateway calls PrepareRequest before
// selection so that cost ordering and budget checks see a prompt
// estimate; the dispatcher calls CountTokens on every streamed delta and
// Settle or Cost once an attempt completes.
//
// # Basic Usage
//
//	p := processing.NewProcessor(nil, nil)
//	p.PrepareRequest(rc)
//	s := p.Settle(rc, ch, mapping, resp)
//	log.Info("settled", "tokens", s.PromptTokens+s.CompletionTokens, "cost", s.Cost)
package processing
