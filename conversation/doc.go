// Package conversation keeps multi-turn chat sessions on top of the unified
// client.
//
// A Session stores the history of turns, sends it with every request, sums
// token usage across replies, and records which provider and model served
// each reply. When tools with handlers are registered the session answers
// the model's tool calls itself and asks again until the model replies
// without calling a tool.
//
//	client, _ := unifiedllm.NewFromEnv(ctx)
//	session := conversation.NewSession(client.Chat.Completions, &conversation.Config{
//	    SystemPrompt: "You are a helpful assistant.",
//	})
//	defer session.Close()
//
//	resp, err := session.Submit(ctx, "What is the capital of France?")
//
// Events are delivered on a buffered channel from Events; when the buffer is
// full new events are dropped.
package conversation
