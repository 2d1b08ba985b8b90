// Package unifiedllm provides a single chat-completion client over several
// LLM vendors, with automatic fallback when a provider fails.
//
// # Architecture
//
// The package is organised in four layers:
//
//   - Adapters: OpenAIAdapter (OpenAI and local OpenAI-compatible servers),
//     AnthropicAdapter, and GollmAdapter for the remaining vendors
//   - Normalisation: every vendor reply becomes the same Response shape
//   - Router: tries adapters in priority order and remembers which one served
//   - Client: builds the router from a Config and exposes the call surface
//
// # Quick Start
//
//	client, err := unifiedllm.NewFromEnv(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	resp, err := client.Chat.Completions.Create(ctx, unifiedllm.Request{
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	fmt.Println(resp.Text(), client.GetActiveModel())
//
// The priority list defaults to the local server followed by gpt-4o-mini.
// Set UNIFAI_PRIORITY or Config.Priority to change it. Providers without an
// API key are skipped at construction.
//
// # Structured Output
//
// Parse requests a JSON reply that conforms to a schema and fills
// Response.Parsed when the reply validates:
//
//	resp, err := client.Beta.Chat.Completions.Parse(ctx, unifiedllm.Request{
//	    Messages:       msgs,
//	    ResponseFormat: unifiedllm.JSONSchemaFormat("person", schema),
//	})
//
// ParseInto derives the schema from a Go type and decodes the result.
//
// # Errors
//
// Adapters return vendor errors unmodified. When every provider fails the
// router returns *AllProvidersFailedError carrying each attempt's error;
// ClassifyError maps any of them to an ErrorKind.
package unifiedllm
