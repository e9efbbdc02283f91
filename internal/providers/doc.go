// Package providers implements the Reviewer interface for the LLM services an
// analysis source can be backed by.
//
// Anthropic has its own client. OpenAI, Gemini, Ollama and LM Studio share
// the chat-completions client, differing only in endpoint and key variable.
//
// All clients share a retry helper with exponential back-off on rate limits
// and 5xx responses. Authentication failures are never retried and can be
// detected through any wrapping with [IsAuthError].
//
// Use [New] to obtain a Reviewer by provider name.
package providers
