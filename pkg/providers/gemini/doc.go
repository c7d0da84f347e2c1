// Package gemini implements the adapter for Google's Gemini API.
//
// Requests go to {base}/v1beta/models/{target}:generateContent, or to
// :streamGenerateContent?alt=sse when streaming. The channel API key is
// sent in the key query parameter. System and developer messages become
// the systemInstruction and assistant turns use the "model" role.
//
// Channel config keys:
//
//	api_version   path version segment (default v1beta)
//
// Probes list models with pageSize=1.
package gemini
