// Loom is a multi-tenant LLM gateway.
//
// It accepts OpenAI-compatible chat completion requests, picks an upstream
// channel per request with a tenant's routing strategy, fails over between
// channels, trips circuit breakers on unhealthy ones and enforces per-tenant
// rate limits and spend budgets.
//
// Usage:
//
//	# Start the gateway
//	loom run --config config.yaml
//
//	# Check the configuration and channels file
//	loom validate
//
//	# Show the configured channels
//	loom channels list --tenant acme
//
//	# Probe every channel once
//	loom channels probe --output json
//
//	# Show version information
//	loom version
package main

import "os"

func main() {
	os.Exit(Execute())
}
