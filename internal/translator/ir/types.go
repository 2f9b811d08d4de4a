package ir

import "github.com/nghyane/msgproxy/internal/json"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// FinishReason is the backend's terminal reason. The zero value means no reason yet.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// StopReason is the message protocol's terminal reason. The zero value encodes as JSON null.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonStopSeq   StopReason = "stop_sequence"
)

func (r StopReason) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

func (r *StopReason) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = StopReason(s)
	return nil
}

// Usage is the message protocol's token accounting.
type Usage struct {
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens,omitempty"`
}

// ErrorDetail is the body of a message-protocol error envelope or stream error event.
type ErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is the message-protocol error envelope.
type ErrorResponse struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(errType, message string) ErrorResponse {
	return ErrorResponse{Type: "error", Error: ErrorDetail{Type: errType, Message: message}}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
