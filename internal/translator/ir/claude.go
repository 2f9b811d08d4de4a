package ir

import (
	"fmt"
	"strings"

	"github.com/nghyane/msgproxy/internal/json"
	"github.com/tidwall/gjson"
)

// MessagesRequest is an inbound message-protocol request.
type MessagesRequest struct {
	Model         string           `json:"model"`
	Messages      []MessageParam   `json:"messages"`
	System        *SystemPrompt    `json:"system,omitempty"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	Metadata      *RequestMetadata `json:"metadata,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
	Stream        bool             `json:"stream,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	TopK          *int             `json:"top_k,omitempty"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	ToolChoice    *ToolChoice      `json:"tool_choice,omitempty"`
	Thinking      *ThinkingConfig  `json:"thinking,omitempty"`
}

type RequestMetadata struct {
	UserID string `json:"user_id,omitempty"`
}

type ThinkingConfig struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// ToolDefinition is a client-declared tool. Server tools carry a non-custom Type.
type ToolDefinition struct {
	Type        string         `json:"type,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// IsCustom reports whether the backend can execute this tool.
func (t ToolDefinition) IsCustom() bool {
	return t.Type == "" || t.Type == ClaudeToolTypeCustom
}

type ToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse *bool  `json:"disable_parallel_tool_use,omitempty"`
}

// SystemPrompt accepts either a string or an array of text blocks.
type SystemPrompt struct {
	Blocks []TextBlock
}

// Text joins the prompt's text blocks.
func (s *SystemPrompt) Text() string {
	if s == nil {
		return ""
	}
	parts := make([]string, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	parsed := gjson.ParseBytes(data)
	switch {
	case parsed.Type == gjson.String:
		s.Blocks = []TextBlock{NewTextBlock(parsed.String())}
		return nil
	case parsed.IsArray():
		var blocks []TextBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return fmt.Errorf("system: %w", err)
		}
		s.Blocks = blocks
		return nil
	case parsed.Type == gjson.Null:
		s.Blocks = nil
		return nil
	}
	return fmt.Errorf("system: expected string or array, got %s", parsed.Type)
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Blocks)
}

// MessageParam is one conversation turn.
type MessageParam struct {
	Role    Role           `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is either plain text or an ordered list of content blocks.
type MessageContent struct {
	Text   string
	Blocks []ContentBlock
}

// IsText reports whether the content was sent as a plain string.
func (c MessageContent) IsText() bool {
	return c.Blocks == nil
}

// PlainText flattens text blocks into a single string.
func (c MessageContent) PlainText() string {
	if c.IsText() {
		return c.Text
	}
	var b strings.Builder
	for _, block := range c.Blocks {
		if t, ok := block.(*TextBlock); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	parsed := gjson.ParseBytes(data)
	switch {
	case parsed.Type == gjson.String:
		c.Text = parsed.String()
		c.Blocks = nil
		return nil
	case parsed.Type == gjson.Null:
		c.Text = ""
		c.Blocks = nil
		return nil
	case parsed.IsArray():
		blocks := make([]ContentBlock, 0, len(parsed.Array()))
		for _, raw := range parsed.Array() {
			block, err := DecodeContentBlock([]byte(raw.Raw))
			if err != nil {
				return err
			}
			if block != nil {
				blocks = append(blocks, block)
			}
		}
		c.Blocks = blocks
		return nil
	}
	return fmt.Errorf("content: expected string or array, got %s", parsed.Type)
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsText() {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Blocks)
}

// ContentBlock is one typed unit of message content. The set of implementations is closed.
type ContentBlock interface {
	BlockType() string
	isContentBlock()
}

type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

type ImageBlock struct {
	Type   string      `json:"type"`
	Source ImageSource `json:"source"`
}

type ThinkingBlock struct {
	Type      string `json:"type"`
	Thinking  string `json:"thinking"`
	Signature string `json:"signature,omitempty"`
}

type ToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

type ToolResultBlock struct {
	Type      string         `json:"type"`
	ToolUseID string         `json:"tool_use_id"`
	Content   MessageContent `json:"content"`
	IsError   bool           `json:"is_error,omitempty"`
}

func (*TextBlock) BlockType() string       { return ClaudeBlockText }
func (*ImageBlock) BlockType() string      { return ClaudeBlockImage }
func (*ThinkingBlock) BlockType() string   { return ClaudeBlockThinking }
func (*ToolUseBlock) BlockType() string    { return ClaudeBlockToolUse }
func (*ToolResultBlock) BlockType() string { return ClaudeBlockToolResult }

func (*TextBlock) isContentBlock()       {}
func (*ImageBlock) isContentBlock()      {}
func (*ThinkingBlock) isContentBlock()   {}
func (*ToolUseBlock) isContentBlock()    {}
func (*ToolResultBlock) isContentBlock() {}

// MarshalJSON never emits a null input.
func (b ToolUseBlock) MarshalJSON() ([]byte, error) {
	type alias ToolUseBlock
	if b.Input == nil {
		b.Input = map[string]any{}
	}
	return json.Marshal(alias(b))
}

func NewTextBlock(text string) TextBlock {
	return TextBlock{Type: ClaudeBlockText, Text: text}
}

func NewThinkingBlock(thinking string) *ThinkingBlock {
	return &ThinkingBlock{Type: ClaudeBlockThinking, Thinking: thinking}
}

func NewToolUseBlock(id, name string, input map[string]any) *ToolUseBlock {
	if input == nil {
		input = map[string]any{}
	}
	return &ToolUseBlock{Type: ClaudeBlockToolUse, ID: id, Name: name, Input: input}
}

// DecodeContentBlock decodes one block by its "type" tag.
// Unknown block kinds return (nil, nil) and are dropped by the caller.
func DecodeContentBlock(data []byte) (ContentBlock, error) {
	kind := gjson.GetBytes(data, "type").String()
	var block ContentBlock
	switch kind {
	case ClaudeBlockText:
		block = &TextBlock{}
	case ClaudeBlockImage:
		block = &ImageBlock{}
	case ClaudeBlockThinking:
		block = &ThinkingBlock{}
	case ClaudeBlockToolUse:
		block = &ToolUseBlock{}
	case ClaudeBlockToolResult:
		block = &ToolResultBlock{}
	default:
		return nil, nil
	}
	if err := json.Unmarshal(data, block); err != nil {
		return nil, fmt.Errorf("content block %q: %w", kind, err)
	}
	return block, nil
}

// MessagesResponse is a complete message-protocol response.
type MessagesResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         Role           `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   StopReason     `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// NewMessagesResponse returns an empty assistant message envelope.
func NewMessagesResponse(id, model string) *MessagesResponse {
	return &MessagesResponse{
		ID:      id,
		Type:    "message",
		Role:    RoleAssistant,
		Content: []ContentBlock{},
		Model:   model,
	}
}

// CountTokensResponse answers /v1/messages/count_tokens.
type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}
