// Package upstream talks to the chat-completion API the bridge forwards to.
//
// It owns the upstream wire types, the request translation from the client
// format ([Translate]), and the single outbound call ([Client.Do]) with its
// typed failures: [*StatusError] for non-2xx answers, whose status and body
// are relayed to the client unchanged, and [*UnreachableError] for
// transport failures. Nothing in this package retries.
package upstream
