package ir

import (
	"fmt"

	"github.com/nghyane/msgproxy/internal/json"
	"github.com/tidwall/gjson"
)

// ChatCompletionRequest is the backend request shape.
type ChatCompletionRequest struct {
	Model         string          `json:"model"`
	Messages      []ChatMessage   `json:"messages"`
	MaxTokens     *int            `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	Stop          []string        `json:"stop,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StreamOptions *StreamOptions  `json:"stream_options,omitempty"`
	User          string          `json:"user,omitempty"`
	Tools         []ChatTool      `json:"tools,omitempty"`
	ToolChoice    *ChatToolChoice `json:"tool_choice,omitempty"`
}

type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// ChatMessage is one backend conversation message.
type ChatMessage struct {
	Role       Role           `json:"role"`
	Content    *ChatContent   `json:"content"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// ChatContent is either a string or a list of parts. A nil *ChatContent encodes as null.
type ChatContent struct {
	Text  string
	Parts []ChatContentPart
}

func TextContent(text string) *ChatContent {
	return &ChatContent{Text: text}
}

func PartsContent(parts []ChatContentPart) *ChatContent {
	return &ChatContent{Parts: parts}
}

func (c ChatContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

func (c *ChatContent) UnmarshalJSON(data []byte) error {
	parsed := gjson.ParseBytes(data)
	switch {
	case parsed.Type == gjson.String:
		c.Text = parsed.String()
		return nil
	case parsed.IsArray():
		return json.Unmarshal(data, &c.Parts)
	case parsed.Type == gjson.Null:
		return nil
	}
	return fmt.Errorf("chat content: expected string or array, got %s", parsed.Type)
}

type ChatContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type ChatTool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ChatToolChoice encodes as a bare mode string or as a named function selector.
type ChatToolChoice struct {
	Mode     string
	Function string
}

func (c ChatToolChoice) MarshalJSON() ([]byte, error) {
	if c.Function != "" {
		type name struct {
			Name string `json:"name"`
		}
		return json.Marshal(struct {
			Type     string `json:"type"`
			Function name   `json:"function"`
		}{"function", name{c.Function}})
	}
	return json.Marshal(c.Mode)
}

type ChatToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletionResponse is a complete backend response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *ChatUsage   `json:"usage,omitempty"`
}

type ChatChoice struct {
	Index        int                 `json:"index"`
	Message      ChatResponseMessage `json:"message"`
	FinishReason FinishReason        `json:"finish_reason"`
}

type ChatResponseMessage struct {
	Role             Role           `json:"role"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	ToolCalls        []ChatToolCall `json:"tool_calls,omitempty"`
}

type ChatUsage struct {
	PromptTokens        int                  `json:"prompt_tokens"`
	CompletionTokens    int                  `json:"completion_tokens"`
	TotalTokens         int                  `json:"total_tokens"`
	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// CachedTokens returns the cached prompt token count, if reported.
func (u *ChatUsage) CachedTokens() int {
	if u == nil || u.PromptTokensDetails == nil {
		return 0
	}
	return u.PromptTokensDetails.CachedTokens
}

// ChatCompletionChunk is one incremental backend stream payload.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *ChatUsage    `json:"usage,omitempty"`
}

type ChunkChoice struct {
	Index        int          `json:"index"`
	Delta        ChunkDelta   `json:"delta"`
	FinishReason FinishReason `json:"finish_reason"`
}

type ChunkDelta struct {
	Role             Role            `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
}

// ToolCallDelta is one fragment of a streamed tool call, keyed by its slot Index.
type ToolCallDelta struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function FunctionCallDelta `json:"function"`
}

type FunctionCallDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ModelList is the backend's /models response.
type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

type ModelEntry struct {
	ID                 string   `json:"id"`
	Object             string   `json:"object,omitempty"`
	OwnedBy            string   `json:"owned_by,omitempty"`
	Name               string   `json:"name,omitempty"`
	SupportedEndpoints []string `json:"supported_endpoints,omitempty"`
}
