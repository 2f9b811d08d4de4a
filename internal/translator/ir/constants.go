package ir

// Message protocol SSE event names.
const (
	ClaudeSSEMessageStart      = "message_start"
	ClaudeSSEContentBlockStart = "content_block_start"
	ClaudeSSEContentBlockDelta = "content_block_delta"
	ClaudeSSEContentBlockStop  = "content_block_stop"
	ClaudeSSEMessageDelta      = "message_delta"
	ClaudeSSEMessageStop       = "message_stop"
	ClaudeSSEError             = "error"
)

// Message protocol content block and delta types.
const (
	ClaudeBlockText       = "text"
	ClaudeBlockImage      = "image"
	ClaudeBlockThinking   = "thinking"
	ClaudeBlockToolUse    = "tool_use"
	ClaudeBlockToolResult = "tool_result"

	ClaudeDeltaText      = "text_delta"
	ClaudeDeltaInputJSON = "input_json_delta"
	ClaudeDeltaThinking  = "thinking_delta"
)

// Message protocol error types.
const (
	ClaudeErrInvalidRequest = "invalid_request_error"
	ClaudeErrRateLimit      = "rate_limit_error"
	ClaudeErrAPI            = "api_error"
	ClaudeErrOverloaded     = "overloaded_error"
	ClaudeErrNotFound       = "not_found_error"
	ClaudeErrAuthentication = "authentication_error"
)

// Tool choice modes on both sides.
const (
	ClaudeToolChoiceAuto = "auto"
	ClaudeToolChoiceAny  = "any"
	ClaudeToolChoiceTool = "tool"
	ClaudeToolChoiceNone = "none"

	OpenAIToolChoiceAuto     = "auto"
	OpenAIToolChoiceRequired = "required"
	OpenAIToolChoiceNone     = "none"
)

// ClaudeToolTypeCustom is the only client tool type the backend can execute.
const ClaudeToolTypeCustom = "custom"

const (
	MessageIDPrefix   = "msg_"
	ToolUseIDPrefix   = "toolu_"
	DoneSentinel      = "[DONE]"
	ChatCompletionObj = "chat.completion"
)
