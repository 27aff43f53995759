package relay

import (
	"fmt"
	"io"
	"time"

	"github.com/rhuss/copilot-bridge/pkg/api"
	"github.com/rhuss/copilot-bridge/pkg/upstream"
)

// Complete decodes a buffered upstream response and builds the client
// completion. Missing content becomes "", a missing finish reason becomes
// "stop" and missing usage becomes zeros. Only invalid JSON is an error.
func Complete(body io.Reader, model string) (*api.ChatCompletion, error) {
	resp, err := upstream.DecodeResponse(body)
	if err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}

	finishReason := resp.FinishReason()
	if finishReason == "" {
		finishReason = api.FinishReasonStop
	}

	var usage api.Usage
	if resp.Usage != nil {
		usage = api.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return &api.ChatCompletion{
		ID:      api.NewCompletionID(),
		Object:  api.ObjectChatCompletion,
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.ChatCompletionChoice{
			{
				Index: 0,
				Message: api.CompletionMessage{
					Role:    api.RoleAssistant,
					Content: resp.Content(),
				},
				FinishReason: finishReason,
			},
		},
		Usage: usage,
	}, nil
}
