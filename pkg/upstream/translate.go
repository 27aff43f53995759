package upstream

import (
	"github.com/rhuss/copilot-bridge/pkg/api"
	"github.com/rhuss/copilot-bridge/pkg/config"
)

// Translate converts a client ChatRequest into the upstream request body.
//
// Roles other than system and assistant become user. Temperature and
// max_tokens fall back to the configured defaults when absent or zero: an
// explicit temperature of 0 is indistinguishable from an omitted one. The
// upstream model always replaces whatever model the client named.
func Translate(req *api.ChatRequest, defaults config.Defaults, model string) ChatCompletionRequest {
	out := ChatCompletionRequest{
		Messages:    make([]ChatMessage, 0, len(req.Messages)),
		Temperature: defaults.Temperature,
		MaxTokens:   defaults.MaxTokens,
		Stream:      req.Stream,
		Model:       model,
	}

	for _, m := range req.Messages {
		out.Messages = append(out.Messages, ChatMessage{
			Role:    api.NormalizeRole(string(m.Role)),
			Content: string(m.Content),
		})
	}

	if req.Temperature != nil && *req.Temperature != 0 {
		out.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil && *req.MaxTokens != 0 {
		out.MaxTokens = *req.MaxTokens
	}

	return out
}
