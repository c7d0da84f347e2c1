// Package channels materializes tenant channel sets for the gateway.
//
// Two registries implement domain.ChannelRegistry:
//
//   - StaticRegistry holds tenants in memory and is populated in code.
//   - FileRegistry loads a YAML channels file and, when watched, reloads it
//     on change through a debounced fsnotify watcher.
//
// Both hand out deep-copied snapshots so that a reload never affects a
// request that is already routing. Both also implement
// health.ChannelSource for the probe loop.
//
// Channels file format:
//
//	tenants:
//	  - id: acme
//	    strategy: lowest_cost
//	    channels:
//	      - id: openai-primary
//	        type: openai
//	        api_key: sk-...
//	        priority: 10
//	        models: [gpt-4o, gpt-4o-mini]
//	      - id: azure-eu
//	        type: azure
//	        base_url: https://acme.openai.azure.com
//	        api_key: ...
//	        mappings:
//	          - model: gpt-4o
//	            target: gpt4o-eu-deployment
//
// Loading normalizes a missing weight to domain.DefaultWeight, a missing
// status to active and a missing type to the type inferred from the
// channel name.
package channels
