// Package llm invokes chat models across providers behind one interface.
//
// A Resolver turns (user, provider, model) into a credentialed Model
// using the keyvault's resolution chain. Each Model streams a single
// assistant step; the conversation layer owns the multi-step tool loop.
//
// OpenAI, xAI, OpenRouter and Ollama share the OpenAI-compatible wire
// format; Anthropic and Google use their own SDKs. Transient failures
// are retried twice with linear backoff.
package llm
