package translator

import (
	"github.com/google/uuid"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

// TranslateResponse converts a complete backend response into a message-protocol response.
// The emitted model is always requestedModel, whatever label the backend reports.
func TranslateResponse(resp *ir.ChatCompletionResponse, requestedModel string) *ir.MessagesResponse {
	out := ir.NewMessagesResponse(messageID(resp.ID), requestedModel)

	var reasoning, text string
	var toolCalls []ir.ChatToolCall
	for i := range resp.Choices {
		choice := &resp.Choices[i]
		reasoning += choice.Message.ReasoningContent
		text += choice.Message.Content
		toolCalls = append(toolCalls, choice.Message.ToolCalls...)
		if out.StopReason == "" {
			out.StopReason = MapStopReason(choice.FinishReason)
		}
	}

	if reasoning != "" {
		out.Content = append(out.Content, ir.NewThinkingBlock(reasoning))
	}
	if text != "" {
		out.Content = append(out.Content, &ir.TextBlock{Type: ir.ClaudeBlockText, Text: text})
	}
	for _, tc := range toolCalls {
		out.Content = append(out.Content, ir.NewToolUseBlock(tc.ID, tc.Function.Name, ParseToolArguments(tc.Function.Arguments)))
	}

	out.Usage = translateUsage(resp.Usage)
	return out
}

func translateUsage(u *ir.ChatUsage) ir.Usage {
	if u == nil {
		return ir.Usage{}
	}
	return ir.Usage{
		InputTokens:          u.PromptTokens,
		OutputTokens:         u.CompletionTokens,
		CacheReadInputTokens: u.CachedTokens(),
	}
}

// messageID reuses the backend id when present, otherwise mints a msg_ id.
func messageID(backendID string) string {
	if backendID != "" {
		return backendID
	}
	return NewMessageID()
}

// NewMessageID returns a fresh message-protocol message id.
func NewMessageID() string {
	return ir.MessageIDPrefix + uuid.NewString()
}
