// Package openai implements the adapter for OpenAI's chat completions API
// and the servers that imitate it.
//
// One Adapter type serves four provider types:
//
//   - openai: {base}/chat/completions with a Bearer key. The base URL
//     defaults to https://api.openai.com/v1.
//   - azure: {base}/openai/deployments/{target}/chat/completions with the
//     api-key header. The mapped model name is the deployment name and
//     config.api_version selects the API version.
//   - local: self-hosted OpenAI-compatible servers (Ollama, vLLM, LM
//     Studio). The key is optional.
//   - custom: any other OpenAI-compatible endpoint. config.probe_path
//     overrides the probe path.
//
// # Basic Usage
//
//	client := providers.NewHTTPClient(providers.ClientConfig{})
//	adapter, err := openai.New(client, domain.ProviderOpenAI)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := adapter.Complete(ctx, ch, mapping, req)
//
// # Streaming
//
// Stream returns once the upstream accepted the request and then relays
// chunks from a background goroutine. The leading role-only delta is not
// relayed, so the first chunk a caller sees carries content. OpenAI
// channels request stream_options.include_usage so that the final chunk
// reports usage.
//
// # Probing
//
// Probe lists models (GET /models, or /openai/models for Azure), which is
// cheap on every compatible server and validates the credentials.
package openai
