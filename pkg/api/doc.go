// Package api defines the client-facing wire types of the bridge.
//
// The types mirror the OpenAI Chat Completions format that clients such as
// SillyTavern speak: the inbound [ChatRequest], the non-streaming
// [ChatCompletion] envelope, the streaming [ChatCompletionChunk], and the
// model listing. The package performs no I/O.
//
// Core types:
//   - [ChatMessage]: one role/content pair, role coerced by [NormalizeRole]
//   - [ChatRequest]: client request for a chat completion
//   - [ChatCompletion]: complete (non-streaming) response
//   - [ChatCompletionChunk]: one streamed delta
//   - [APIError]: typed error carried through handlers
package api
