// Package gateway is the entry point of the routing core.
//
// Route runs one request through the whole pipeline:
//
//  1. estimate prompt tokens
//  2. reserve budget and rate capacity with the budget gate
//  3. take a snapshot of the tenant's channels
//  4. order candidates with the selector
//  5. dispatch with failover
//
// The budget gate is committed exactly once per request. The dispatcher
// commits for every request it sees; Route commits itself only when the
// request fails between a successful reservation and dispatch.
//
// The gateway also owns the background probe loop and exposes read-only
// views of channel health and rolling statistics for the admin API.
//
//	gw, err := gateway.New(gateway.Config{}, gateway.Deps{
//	    Registry: registry,
//	    Adapters: adapters,
//	    Health:   health.NewMonitor(health.DefaultConfig()),
//	    Budget:   limitsManager,
//	    Prober:   adapters,
//	})
//	gw.Start(ctx)
//	defer gw.Close()
//
//	res, err := gw.Route(ctx, rc)
package gateway
