package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"weaver-hq/loom/pkg/domain"
)

// Span attribute keys. Routing attributes use the loom.* namespace and
// model attributes the llm.* namespace.
const (
	AttrRequestID   = attribute.Key("loom.request_id")
	AttrTenant      = attribute.Key("loom.tenant")
	AttrStream      = attribute.Key("loom.stream")
	AttrChannel     = attribute.Key("loom.channel")
	AttrAttempt     = attribute.Key("loom.attempt")
	AttrAttempts    = attribute.Key("loom.attempts")
	AttrStrategy    = attribute.Key("loom.strategy")
	AttrCandidates  = attribute.Key("loom.candidates")
	AttrAffinityHit = attribute.Key("loom.affinity_hit")
	AttrDenied      = attribute.Key("loom.denied")
	AttrOutcome     = attribute.Key("loom.outcome")
	AttrCost        = attribute.Key("loom.cost")

	AttrModel            = attribute.Key("llm.model")
	AttrMappedModel      = attribute.Key("llm.mapped_model")
	AttrProvider         = attribute.Key("llm.provider")
	AttrPromptEstimate   = attribute.Key("llm.prompt_tokens.estimate")
	AttrPromptTokens     = attribute.Key("llm.prompt_tokens")
	AttrCompletionTokens = attribute.Key("llm.completion_tokens")
)

// RequestAttributes returns the attributes identifying a routed request.
func RequestAttributes(rc *domain.RequestContext) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRequestID.String(rc.RequestID),
		AttrTenant.String(rc.TenantID),
		AttrModel.String(rc.Model),
		AttrStream.Bool(rc.Stream),
	}
}

// CandidateAttributes returns the attributes of one attempt on cand.
func CandidateAttributes(cand domain.Candidate, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrChannel.String(cand.ChannelID()),
		AttrProvider.String(string(cand.Channel.Type)),
		AttrMappedModel.String(cand.Mapping.Target),
		AttrAttempt.Int(attempt),
	}
}

// SetUsage records token counts and cost of a finished attempt.
func SetUsage(span trace.Span, o domain.Outcome) {
	span.SetAttributes(
		AttrPromptTokens.Int(o.PromptTokens),
		AttrCompletionTokens.Int(o.CompletionTokens),
		AttrCost.Float64(o.Cost),
		AttrOutcome.String(string(o.Kind)),
	)
}
