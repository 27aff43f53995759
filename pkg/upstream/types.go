package upstream

// Upstream request/response types. The upstream speaks the Chat Completions
// format; only the fields the bridge reads or writes are modelled.

// ChatCompletionRequest is the body POSTed to the upstream.
type ChatCompletionRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
	Model       string        `json:"model"`
}

// ChatMessage is a message in the upstream format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the non-streaming upstream response. Content
// is decoded as any so that null or unexpected shapes never fail decoding.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage"`
}

// ChatChoice represents one completion choice.
type ChatChoice struct {
	Index        int                  `json:"index"`
	Message      *ChatResponseMessage `json:"message"`
	FinishReason string               `json:"finish_reason"`
}

// ChatResponseMessage is the assistant message of a choice.
type ChatResponseMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ChatUsage holds token usage reported by the upstream.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is one data frame of a streaming response.
type ChatCompletionChunk struct {
	ID      string            `json:"id"`
	Model   string            `json:"model"`
	Choices []ChatChunkChoice `json:"choices"`
	Usage   *ChatUsage        `json:"usage"`
}

// ChatChunkChoice represents a streaming choice delta.
type ChatChunkChoice struct {
	Index        int             `json:"index"`
	Delta        *ChatChunkDelta `json:"delta"`
	FinishReason *string         `json:"finish_reason"`
}

// ChatChunkDelta holds incremental content in a streaming chunk.
type ChatChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content any    `json:"content"`
}

// ExtractContentString returns content when it is a JSON string and ""
// for null or any other shape.
func ExtractContentString(content any) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}

// Content returns the first choice's message content, or "" when any level
// of choices[0].message.content is missing.
func (r *ChatCompletionResponse) Content() string {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil {
		return ""
	}
	return ExtractContentString(r.Choices[0].Message.Content)
}

// FinishReason returns the first choice's finish reason, or "" when absent.
func (r *ChatCompletionResponse) FinishReason() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].FinishReason
}

// DeltaContent returns choices[0].delta.content, or "" when absent.
func (c *ChatCompletionChunk) DeltaContent() string {
	if len(c.Choices) == 0 || c.Choices[0].Delta == nil {
		return ""
	}
	return ExtractContentString(c.Choices[0].Delta.Content)
}

// FinishReason returns choices[0].finish_reason, or nil when absent or empty.
func (c *ChatCompletionChunk) FinishReason() *string {
	if len(c.Choices) == 0 || c.Choices[0].FinishReason == nil || *c.Choices[0].FinishReason == "" {
		return nil
	}
	reason := *c.Choices[0].FinishReason
	return &reason
}
