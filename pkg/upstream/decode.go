package upstream

import (
	"encoding/json"
	"io"
)

// DecodeChunk decodes the payload of one stream event. Only invalid JSON is
// an error: any valid document decodes, and fields of an unexpected type
// read as absent, so a keep-alive such as "ping" yields an empty chunk.
func DecodeChunk(data []byte) (*ChatCompletionChunk, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	obj, _ := raw.(map[string]any)
	chunk := &ChatCompletionChunk{
		ID:    stringField(obj, "id"),
		Model: stringField(obj, "model"),
		Usage: usageField(obj),
	}

	if choice, ok := firstChoice(obj); ok {
		c := ChatChunkChoice{}
		if delta, ok := choice["delta"].(map[string]any); ok {
			c.Delta = &ChatChunkDelta{
				Role:    stringField(delta, "role"),
				Content: delta["content"],
			}
		}
		if reason, ok := choice["finish_reason"].(string); ok {
			c.FinishReason = &reason
		}
		chunk.Choices = []ChatChunkChoice{c}
	}
	return chunk, nil
}

// DecodeResponse decodes a buffered upstream response with the same
// tolerance as DecodeChunk.
func DecodeResponse(r io.Reader) (*ChatCompletionResponse, error) {
	var raw any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}

	obj, _ := raw.(map[string]any)
	resp := &ChatCompletionResponse{
		ID:    stringField(obj, "id"),
		Model: stringField(obj, "model"),
		Usage: usageField(obj),
	}

	if choice, ok := firstChoice(obj); ok {
		c := ChatChoice{FinishReason: stringField(choice, "finish_reason")}
		if msg, ok := choice["message"].(map[string]any); ok {
			c.Message = &ChatResponseMessage{
				Role:    stringField(msg, "role"),
				Content: msg["content"],
			}
		}
		resp.Choices = []ChatChoice{c}
	}
	return resp, nil
}

func firstChoice(obj map[string]any) (map[string]any, bool) {
	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil, false
	}
	choice, ok := choices[0].(map[string]any)
	return choice, ok
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func intField(obj map[string]any, key string) int {
	n, _ := obj[key].(float64)
	return int(n)
}

func usageField(obj map[string]any) *ChatUsage {
	u, ok := obj["usage"].(map[string]any)
	if !ok {
		return nil
	}
	return &ChatUsage{
		PromptTokens:     intField(u, "prompt_tokens"),
		CompletionTokens: intField(u, "completion_tokens"),
		TotalTokens:      intField(u, "total_tokens"),
	}
}
