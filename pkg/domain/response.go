package domain

// Usage is token usage as reported by an upstream.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a complete, non-streamed completion.
type Response struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
	Created      int64  `json:"created"`
}

// Chunk is one increment of a streamed completion.
type Chunk struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Delta        string `json:"delta"`
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage is set on the chunk that carries the upstream's final usage
	// report, if the upstream sends one.
	Usage *Usage `json:"usage,omitempty"`

	// Tokens is the number of completion tokens this chunk accounts for.
	// The dispatcher fills it in before the chunk is relayed; the sum over
	// a relayed stream equals the completion tokens of the final outcome.
	Tokens int `json:"-"`

	// Err is set on a terminal error chunk.
	Err error `json:"-"`

	Created int64 `json:"created"`
}

// Candidate is a channel paired with the provider-side model it would be
// called with. Candidates are produced per request and never persisted.
type Candidate struct {
	// Channel points into the request's snapshot and must not be mutated.
	Channel *Channel

	// Mapping is the resolved model mapping.
	Mapping ModelMapping

	// Score is the strategy's ordering key, lower is better. It is zero for
	// strategies that do not score.
	Score float64
}

// ChannelID is a convenience accessor.
func (c Candidate) ChannelID() string {
	return c.Channel.ID
}
