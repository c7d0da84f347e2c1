package handlers

import (
	"context"

	"weaver-hq/loom/pkg/dispatch"
	"weaver-hq/loom/pkg/domain"
	"weaver-hq/loom/pkg/routing"
	"weaver-hq/loom/pkg/routing/aggregate"
	"weaver-hq/loom/pkg/routing/health"
)

// Router routes requests. *gateway.Gateway implements it.
type Router interface {
	Route(ctx context.Context, rc *domain.RequestContext) (*dispatch.Result, error)
	Models(ctx context.Context, rc *domain.RequestContext) ([]string, error)
}

// Inspector exposes routing state to the admin endpoints.
// *gateway.Gateway implements it.
type Inspector interface {
	ChannelHealth() []health.ChannelHealth
	ChannelStats() []aggregate.Stats
	RoutingStats() *routing.RoutingStats
	ProbeNow(ctx context.Context) []health.ProbeResult
}
