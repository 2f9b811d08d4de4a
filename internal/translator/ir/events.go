package ir

// StreamEvent is one named message-protocol stream event. The set of implementations is closed.
type StreamEvent interface {
	EventName() string
	isStreamEvent()
}

type MessageStartEvent struct {
	Type    string            `json:"type"`
	Message *MessagesResponse `json:"message"`
}

type ContentBlockStartEvent struct {
	Type         string       `json:"type"`
	Index        int          `json:"index"`
	ContentBlock ContentBlock `json:"content_block"`
}

type ContentBlockDeltaEvent struct {
	Type  string     `json:"type"`
	Index int        `json:"index"`
	Delta BlockDelta `json:"delta"`
}

type ContentBlockStopEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type MessageDelta struct {
	StopReason   StopReason `json:"stop_reason"`
	StopSequence *string    `json:"stop_sequence"`
}

type MessageDeltaEvent struct {
	Type  string       `json:"type"`
	Delta MessageDelta `json:"delta"`
	Usage Usage        `json:"usage"`
}

type MessageStopEvent struct {
	Type string `json:"type"`
}

type ErrorEvent struct {
	Type  string      `json:"type"`
	Error ErrorDetail `json:"error"`
}

func (*MessageStartEvent) EventName() string      { return ClaudeSSEMessageStart }
func (*ContentBlockStartEvent) EventName() string { return ClaudeSSEContentBlockStart }
func (*ContentBlockDeltaEvent) EventName() string { return ClaudeSSEContentBlockDelta }
func (*ContentBlockStopEvent) EventName() string  { return ClaudeSSEContentBlockStop }
func (*MessageDeltaEvent) EventName() string      { return ClaudeSSEMessageDelta }
func (*MessageStopEvent) EventName() string       { return ClaudeSSEMessageStop }
func (*ErrorEvent) EventName() string             { return ClaudeSSEError }

func (*MessageStartEvent) isStreamEvent()      {}
func (*ContentBlockStartEvent) isStreamEvent() {}
func (*ContentBlockDeltaEvent) isStreamEvent() {}
func (*ContentBlockStopEvent) isStreamEvent()  {}
func (*MessageDeltaEvent) isStreamEvent()      {}
func (*MessageStopEvent) isStreamEvent()       {}
func (*ErrorEvent) isStreamEvent()             {}

// BlockDelta is the payload of a content_block_delta event.
type BlockDelta interface {
	DeltaType() string
	isBlockDelta()
}

type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type InputJSONDelta struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

type ThinkingDelta struct {
	Type     string `json:"type"`
	Thinking string `json:"thinking"`
}

func (*TextDelta) DeltaType() string      { return ClaudeDeltaText }
func (*InputJSONDelta) DeltaType() string { return ClaudeDeltaInputJSON }
func (*ThinkingDelta) DeltaType() string  { return ClaudeDeltaThinking }

func (*TextDelta) isBlockDelta()      {}
func (*InputJSONDelta) isBlockDelta() {}
func (*ThinkingDelta) isBlockDelta()  {}

func NewMessageStart(msg *MessagesResponse) *MessageStartEvent {
	return &MessageStartEvent{Type: ClaudeSSEMessageStart, Message: msg}
}

func NewContentBlockStart(index int, block ContentBlock) *ContentBlockStartEvent {
	return &ContentBlockStartEvent{Type: ClaudeSSEContentBlockStart, Index: index, ContentBlock: block}
}

func NewTextDelta(index int, text string) *ContentBlockDeltaEvent {
	return &ContentBlockDeltaEvent{
		Type:  ClaudeSSEContentBlockDelta,
		Index: index,
		Delta: &TextDelta{Type: ClaudeDeltaText, Text: text},
	}
}

func NewInputJSONDelta(index int, partial string) *ContentBlockDeltaEvent {
	return &ContentBlockDeltaEvent{
		Type:  ClaudeSSEContentBlockDelta,
		Index: index,
		Delta: &InputJSONDelta{Type: ClaudeDeltaInputJSON, PartialJSON: partial},
	}
}

func NewThinkingDelta(index int, thinking string) *ContentBlockDeltaEvent {
	return &ContentBlockDeltaEvent{
		Type:  ClaudeSSEContentBlockDelta,
		Index: index,
		Delta: &ThinkingDelta{Type: ClaudeDeltaThinking, Thinking: thinking},
	}
}

func NewContentBlockStop(index int) *ContentBlockStopEvent {
	return &ContentBlockStopEvent{Type: ClaudeSSEContentBlockStop, Index: index}
}

func NewMessageDelta(reason StopReason, usage Usage) *MessageDeltaEvent {
	return &MessageDeltaEvent{
		Type:  ClaudeSSEMessageDelta,
		Delta: MessageDelta{StopReason: reason},
		Usage: usage,
	}
}

func NewMessageStop() *MessageStopEvent {
	return &MessageStopEvent{Type: ClaudeSSEMessageStop}
}

func NewErrorEvent(errType, message string) *ErrorEvent {
	return &ErrorEvent{Type: ClaudeSSEError, Error: ErrorDetail{Type: errType, Message: message}}
}
