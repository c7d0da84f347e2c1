package gemini

import (
	"errors"
	"strings"

	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/providers"
)

// Gemini API request/response types

// GenerateRequest represents a generateContent request.
type GenerateRequest struct {
	Contents          []Content         `json:"contents"`
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// Part is one piece of content. Only text parts are produced and consumed.
type Part struct {
	Text string `json:"text"`
}

// GenerationConfig carries the sampling parameters.
type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// GenerateResponse represents a generateContent response and each event of
// a streamGenerateContent stream.
type GenerateResponse struct {
	Candidates    []Candidate    `json:"candidates"`
	UsageMetadata *UsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
}

// Candidate is one generated candidate.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// UsageMetadata represents token usage in Gemini format.
type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Transformation functions

// transformRequest transforms a gateway request to Gemini format. Mapping
// overrides named temperature, top_p, top_k and max_tokens are applied to
// the generation config.
func transformRequest(req *domain.ChatRequest, mapping domain.ModelMapping) (*GenerateRequest, error) {
	out := &GenerateRequest{
		Contents: make([]Content, 0, len(req.Messages)),
	}

	var system []Part
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system", "developer":
			system = append(system, Part{Text: msg.Content})
		case "assistant":
			out.Contents = append(out.Contents, Content{Role: "model", Parts: []Part{{Text: msg.Content}}})
		default:
			out.Contents = append(out.Contents, Content{Role: "user", Parts: []Part{{Text: msg.Content}}})
		}
	}
	if len(out.Contents) == 0 {
		return nil, &providers.ValidationError{
			Field:   "messages",
			Message: "at least one non-system message is required",
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &Content{Parts: system}
	}

	cfg := &GenerationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxTokens,
		StopSequences:   req.Stop,
	}
	for k, v := range mapping.Override {
		switch k {
		case "temperature":
			if f, ok := toFloat(v); ok {
				cfg.Temperature = &f
			}
		case "top_p":
			if f, ok := toFloat(v); ok {
				cfg.TopP = &f
			}
		case "top_k":
			if f, ok := toFloat(v); ok {
				topK := int(f)
				cfg.TopK = &topK
			}
		case "max_tokens":
			if f, ok := toFloat(v); ok {
				cfg.MaxOutputTokens = int(f)
			}
		}
	}
	if cfg.Temperature != nil || cfg.TopP != nil || cfg.TopK != nil ||
		cfg.MaxOutputTokens > 0 || len(cfg.StopSequences) > 0 {
		out.GenerationConfig = cfg
	}

	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// text concatenates the text parts of the first candidate.
func (r *GenerateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func (r *GenerateResponse) finishReason() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	return normalizeFinishReason(r.Candidates[0].FinishReason)
}

func (r *GenerateResponse) usage() *domain.Usage {
	if r.UsageMetadata == nil {
		return nil
	}
	u := &domain.Usage{
		PromptTokens:     r.UsageMetadata.PromptTokenCount,
		CompletionTokens: r.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      r.UsageMetadata.TotalTokenCount,
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

// transformResponse transforms a Gemini response to the gateway format.
func transformResponse(resp *GenerateResponse, model string) (*domain.Response, error) {
	if len(resp.Candidates) == 0 {
		return nil, errors.New("no candidates in response")
	}

	out := &domain.Response{
		ID:           resp.ResponseID,
		Model:        resp.ModelVersion,
		Content:      resp.text(),
		FinishReason: resp.finishReason(),
	}
	if out.Model == "" {
		out.Model = model
	}
	if u := resp.usage(); u != nil {
		out.Usage = *u
	}
	return out, nil
}

// normalizeFinishReason normalizes Gemini finish reasons.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "":
		return ""
	case "STOP":
		return providers.FinishReasonStop
	case "MAX_TOKENS":
		return providers.FinishReasonLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return providers.FinishReasonContentFilter
	default:
		return strings.ToLower(reason)
	}
}
