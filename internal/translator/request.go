package translator

import (
	"strings"

	"github.com/nghyane/msgproxy/internal/json"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

// TranslateRequest converts a message-protocol request into the backend chat-completion shape.
// model is the already-resolved backend model identifier.
func TranslateRequest(req *ir.MessagesRequest, model string) *ir.ChatCompletionRequest {
	out := &ir.ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.StopSequences,
		Stream:      req.Stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = ir.Ptr(req.MaxTokens)
	}
	if req.Stream {
		out.StreamOptions = &ir.StreamOptions{IncludeUsage: true}
	}
	if req.Metadata != nil && req.Metadata.UserID != "" {
		out.User = req.Metadata.UserID
	}

	out.Messages = translateMessages(req)
	out.Tools, out.ToolChoice = translateTools(req.Tools, req.ToolChoice)
	return out
}

func translateMessages(req *ir.MessagesRequest) []ir.ChatMessage {
	messages := make([]ir.ChatMessage, 0, len(req.Messages)+1)
	if system := req.System.Text(); system != "" {
		messages = append(messages, ir.ChatMessage{Role: ir.RoleSystem, Content: ir.TextContent(system)})
	}

	// Tool call ids actually forwarded; results referencing anything else would dangle.
	toolIDs := make(map[string]struct{})

	for i := range req.Messages {
		msg := &req.Messages[i]
		switch msg.Role {
		case ir.RoleAssistant:
			if m, ok := translateAssistantMessage(msg, toolIDs); ok {
				messages = append(messages, m)
			}
		case ir.RoleSystem:
			if text := msg.Content.PlainText(); text != "" {
				messages = append(messages, ir.ChatMessage{Role: ir.RoleSystem, Content: ir.TextContent(text)})
			}
		default:
			messages = append(messages, translateUserMessage(msg, toolIDs)...)
		}
	}
	return messages
}

// translateUserMessage emits tool results first, since they must directly follow
// the assistant turn that issued the calls, then the remaining user content.
func translateUserMessage(msg *ir.MessageParam, toolIDs map[string]struct{}) []ir.ChatMessage {
	if msg.Content.IsText() {
		return []ir.ChatMessage{{Role: ir.RoleUser, Content: ir.TextContent(msg.Content.Text)}}
	}

	var out []ir.ChatMessage
	var parts []ir.ChatContentPart
	hasImage := false

	for _, block := range msg.Content.Blocks {
		switch b := block.(type) {
		case *ir.ToolResultBlock:
			if _, ok := toolIDs[b.ToolUseID]; !ok {
				log.Debugf("translator: dropping tool_result for unknown tool_use id %q", b.ToolUseID)
				continue
			}
			out = append(out, ir.ChatMessage{
				Role:       ir.RoleTool,
				ToolCallID: b.ToolUseID,
				Content:    ir.TextContent(b.Content.PlainText()),
			})
		case *ir.TextBlock:
			parts = append(parts, ir.ChatContentPart{Type: "text", Text: b.Text})
		case *ir.ImageBlock:
			if url := imageURL(b.Source); url != "" {
				hasImage = true
				parts = append(parts, ir.ChatContentPart{Type: "image_url", ImageURL: &ir.ImageURL{URL: url}})
			}
		case *ir.ThinkingBlock, *ir.ToolUseBlock:
			log.Debugf("translator: ignoring %s block in user message", block.BlockType())
		default:
			assertf(false, "unhandled content block %T", block)
		}
	}

	if len(parts) == 0 {
		return out
	}
	if hasImage {
		return append(out, ir.ChatMessage{Role: ir.RoleUser, Content: ir.PartsContent(parts)})
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		texts = append(texts, p.Text)
	}
	return append(out, ir.ChatMessage{Role: ir.RoleUser, Content: ir.TextContent(strings.Join(texts, "\n\n"))})
}

func translateAssistantMessage(msg *ir.MessageParam, toolIDs map[string]struct{}) (ir.ChatMessage, bool) {
	out := ir.ChatMessage{Role: ir.RoleAssistant}
	if msg.Content.IsText() {
		out.Content = ir.TextContent(msg.Content.Text)
		return out, true
	}

	var texts []string
	for _, block := range msg.Content.Blocks {
		switch b := block.(type) {
		case *ir.TextBlock:
			if b.Text != "" {
				texts = append(texts, b.Text)
			}
		case *ir.ThinkingBlock:
			if b.Thinking != "" {
				texts = append(texts, b.Thinking)
			}
		case *ir.ToolUseBlock:
			if b.ID == "" || b.Name == "" {
				log.Warnf("translator: dropping tool_use block with missing id or name (id=%q name=%q)", b.ID, b.Name)
				continue
			}
			toolIDs[b.ID] = struct{}{}
			out.ToolCalls = append(out.ToolCalls, ir.ChatToolCall{
				ID:       b.ID,
				Type:     "function",
				Function: ir.FunctionCall{Name: b.Name, Arguments: encodeToolInput(b.Input)},
			})
		case *ir.ImageBlock, *ir.ToolResultBlock:
			log.Debugf("translator: ignoring %s block in assistant message", block.BlockType())
		default:
			assertf(false, "unhandled content block %T", block)
		}
	}

	if len(texts) > 0 {
		out.Content = ir.TextContent(strings.Join(texts, "\n\n"))
	}
	if out.Content == nil && len(out.ToolCalls) == 0 {
		return out, false
	}
	return out, true
}

func encodeToolInput(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	data, err := json.Marshal(input)
	if err != nil {
		log.Warnf("translator: failed to encode tool input: %v", err)
		return "{}"
	}
	return string(data)
}

func imageURL(src ir.ImageSource) string {
	switch src.Type {
	case "base64":
		if src.Data == "" {
			return ""
		}
		return "data:" + src.MediaType + ";base64," + src.Data
	case "url":
		return src.URL
	}
	return ""
}

// translateTools filters tools the backend cannot run and maps the tool choice.
// Degenerate forms (empty tool list, choice naming a removed tool) are cleared.
func translateTools(tools []ir.ToolDefinition, choice *ir.ToolChoice) ([]ir.ChatTool, *ir.ChatToolChoice) {
	if len(tools) == 0 {
		return nil, nil
	}

	kept := make([]ir.ChatTool, 0, len(tools))
	names := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if !t.IsCustom() || t.Name == "" {
			log.Debugf("translator: filtering unsupported tool %q (type %q)", t.Name, t.Type)
			continue
		}
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		kept = append(kept, ir.ChatTool{
			Type:     "function",
			Function: ir.FunctionDefinition{Name: t.Name, Description: t.Description, Parameters: params},
		})
		names[t.Name] = struct{}{}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	return kept, translateToolChoice(choice, names)
}

func translateToolChoice(choice *ir.ToolChoice, available map[string]struct{}) *ir.ChatToolChoice {
	if choice == nil {
		return nil
	}
	switch choice.Type {
	case ir.ClaudeToolChoiceAuto:
		return &ir.ChatToolChoice{Mode: ir.OpenAIToolChoiceAuto}
	case ir.ClaudeToolChoiceAny:
		return &ir.ChatToolChoice{Mode: ir.OpenAIToolChoiceRequired}
	case ir.ClaudeToolChoiceNone:
		return &ir.ChatToolChoice{Mode: ir.OpenAIToolChoiceNone}
	case ir.ClaudeToolChoiceTool:
		if _, ok := available[choice.Name]; ok {
			return &ir.ChatToolChoice{Function: choice.Name}
		}
		log.Debugf("translator: tool_choice names filtered tool %q, resetting to auto", choice.Name)
		return &ir.ChatToolChoice{Mode: ir.OpenAIToolChoiceAuto}
	}
	return nil
}
