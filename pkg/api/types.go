package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Message roles understood by the upstream API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Object type tags.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectModel               = "model"
	ObjectList                = "list"
)

// FinishReasonStop is substituted when the upstream omits a finish reason
// in a complete response.
const FinishReasonStop = "stop"

// NormalizeRole maps any role other than system or assistant to user.
func NormalizeRole(role string) string {
	switch role {
	case RoleSystem:
		return RoleSystem
	case RoleAssistant:
		return RoleAssistant
	default:
		return RoleUser
	}
}

// Role is a message role as sent by the client. A value that is not a
// JSON string decodes as "" and so normalizes to user.
type Role string

// UnmarshalJSON implements json.Unmarshaler.
func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*r = ""
		return nil
	}
	*r = Role(s)
	return nil
}

// Content is message text. It accepts a JSON string, null, or an array of
// text parts; any other shape decodes as empty text.
type Content string

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*c = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Content(s)
	case '[':
		var parts []contentPart
		if err := json.Unmarshal(data, &parts); err != nil {
			*c = ""
			return nil
		}
		var sb strings.Builder
		for _, p := range parts {
			if p.Type == "" || p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		*c = Content(sb.String())
	default:
		*c = ""
	}
	return nil
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ChatMessage is one entry of the conversation sent by the client.
type ChatMessage struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// ChatRequest is the body of POST /v1/chat/completions.
//
// Model is accepted for compatibility but never selects the upstream model.
type ChatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. Temperature and max_tokens
// accept a number or a numeric string; any other value counts as absent.
// A fractional max_tokens is truncated. A model or stream flag of the
// wrong type is ignored.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type plain ChatRequest
	aux := struct {
		*plain
		Model       json.RawMessage `json:"model"`
		Temperature json.RawMessage `json:"temperature"`
		MaxTokens   json.RawMessage `json:"max_tokens"`
		Stream      json.RawMessage `json:"stream"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.Model, r.Temperature, r.MaxTokens, r.Stream = "", nil, nil, false
	_ = json.Unmarshal(aux.Model, &r.Model)
	_ = json.Unmarshal(aux.Stream, &r.Stream)
	if f, ok := looseNumber(aux.Temperature); ok {
		r.Temperature = &f
	}
	if f, ok := looseNumber(aux.MaxTokens); ok && math.Abs(f) <= math.MaxInt32 {
		n := int(f)
		r.MaxTokens = &n
	}
	return nil
}

func looseNumber(raw json.RawMessage) (float64, bool) {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return 0, false
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Usage holds token counters. All fields are zero when the upstream does
// not report usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletion is the non-streaming response envelope.
type ChatCompletion struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// ChatCompletionChoice is the single choice of a ChatCompletion.
type ChatCompletionChoice struct {
	Index        int               `json:"index"`
	Message      CompletionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// CompletionMessage is the assistant message of a ChatCompletion.
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionChunk is one frame of a streamed response.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice carries the delta of a chunk. FinishReason serializes as
// null until the upstream reports one.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta is the incremental content fragment.
type ChunkDelta struct {
	Content string `json:"content"`
}

// Model describes one entry of GET /v1/models.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the body of GET /v1/models.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}
