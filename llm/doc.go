// Package llm provides the model capability consumed by the agent loop:
// a provider-agnostic client for chat completions with native tool-call
// support, a typed error taxonomy, and bounded retry with exponential
// backoff.
//
// The agent loop depends only on the Complete call shape; which provider
// backs it is a configuration detail. The included GollmAdapter routes
// requests through gollm, so any provider gollm supports (OpenAI,
// Anthropic, Ollama, ...) works without further code.
//
// # Quick Start
//
//	adapter, err := llm.NewGollmAdapter("anthropic", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := llm.NewClient(llm.WithProvider("anthropic", adapter))
//
//	resp, err := client.Complete(ctx, llm.Request{
//	    Model:    "claude-sonnet-4-5",
//	    Messages: []llm.Message{llm.UserMessage("hello")},
//	})
package llm
