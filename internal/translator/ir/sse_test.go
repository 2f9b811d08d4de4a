package ir

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func splitFrame(t *testing.T, frame []byte) (string, gjson.Result) {
	t.Helper()
	s := string(frame)
	if !strings.HasSuffix(s, "\n\n") {
		t.Fatalf("frame must end with a blank line, got %q", s)
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected event + data lines, got %d: %q", len(lines), s)
	}
	if !strings.HasPrefix(lines[0], "event: ") || !strings.HasPrefix(lines[1], "data: ") {
		t.Fatalf("malformed frame %q", s)
	}
	data := strings.TrimPrefix(lines[1], "data: ")
	if !gjson.Valid(data) {
		t.Fatalf("data is not valid JSON: %s", data)
	}
	return strings.TrimPrefix(lines[0], "event: "), gjson.Parse(data)
}

func TestBuildSSEEvent(t *testing.T) {
	got := string(BuildSSEEvent("message_stop", []byte(`{"type":"message_stop"}`)))
	want := "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"
	if got != want {
		t.Errorf("BuildSSEEvent = %q, want %q", got, want)
	}
}

func TestBuildSSEEvent_NoSharedBuffer(t *testing.T) {
	a := BuildSSEEvent("a", []byte(`{"n":1}`))
	b := BuildSSEEvent("b", []byte(`{"n":2}`))
	if strings.Contains(string(a), `"n":2`) {
		t.Errorf("first frame was overwritten by pooled buffer reuse: %q", a)
	}
	if string(b) != "event: b\ndata: {\"n\":2}\n\n" {
		t.Errorf("unexpected second frame %q", b)
	}
}

func TestEncodeSSE(t *testing.T) {
	msg := NewMessagesResponse("msg_1", "claude-sonnet-4-5-20250929")
	msg.Usage = Usage{InputTokens: 12}

	tests := []struct {
		name   string
		event  StreamEvent
		check  func(t *testing.T, data gjson.Result)
		wantEv string
	}{
		{
			name:   "message_start",
			event:  NewMessageStart(msg),
			wantEv: "message_start",
			check: func(t *testing.T, data gjson.Result) {
				if data.Get("message.model").String() != "claude-sonnet-4-5-20250929" {
					t.Errorf("model = %s", data.Get("message.model"))
				}
				if data.Get("message.role").String() != "assistant" {
					t.Errorf("role = %s", data.Get("message.role"))
				}
				if data.Get("message.stop_reason").Type != gjson.Null {
					t.Errorf("stop_reason should be null, got %s", data.Get("message.stop_reason").Raw)
				}
				if !data.Get("message.content").IsArray() || len(data.Get("message.content").Array()) != 0 {
					t.Errorf("content should be an empty array, got %s", data.Get("message.content").Raw)
				}
				if data.Get("message.usage.input_tokens").Int() != 12 || data.Get("message.usage.output_tokens").Int() != 0 {
					t.Errorf("usage = %s", data.Get("message.usage").Raw)
				}
			},
		},
		{
			name:   "text block start",
			event:  NewContentBlockStart(0, &TextBlock{Type: ClaudeBlockText}),
			wantEv: "content_block_start",
			check: func(t *testing.T, data gjson.Result) {
				if data.Get("content_block.type").String() != "text" {
					t.Errorf("block type = %s", data.Get("content_block.type"))
				}
				if !data.Get("content_block.text").Exists() {
					t.Error("text field must be present even when empty")
				}
			},
		},
		{
			name:   "tool_use block start has object input",
			event:  NewContentBlockStart(2, NewToolUseBlock("toolu_1", "get_weather", nil)),
			wantEv: "content_block_start",
			check: func(t *testing.T, data gjson.Result) {
				if data.Get("index").Int() != 2 {
					t.Errorf("index = %d", data.Get("index").Int())
				}
				if data.Get("content_block.id").String() != "toolu_1" || data.Get("content_block.name").String() != "get_weather" {
					t.Errorf("block = %s", data.Get("content_block").Raw)
				}
				if !data.Get("content_block.input").IsObject() {
					t.Errorf("input should be {}, got %s", data.Get("content_block.input").Raw)
				}
			},
		},
		{
			name:   "input_json_delta",
			event:  NewInputJSONDelta(1, `{"loc`),
			wantEv: "content_block_delta",
			check: func(t *testing.T, data gjson.Result) {
				if data.Get("delta.type").String() != "input_json_delta" {
					t.Errorf("delta type = %s", data.Get("delta.type"))
				}
				if data.Get("delta.partial_json").String() != `{"loc` {
					t.Errorf("partial_json = %s", data.Get("delta.partial_json"))
				}
			},
		},
		{
			name:   "thinking_delta",
			event:  NewThinkingDelta(0, "hmm"),
			wantEv: "content_block_delta",
			check: func(t *testing.T, data gjson.Result) {
				if data.Get("delta.type").String() != "thinking_delta" || data.Get("delta.thinking").String() != "hmm" {
					t.Errorf("delta = %s", data.Get("delta").Raw)
				}
			},
		},
		{
			name:   "message_delta",
			event:  NewMessageDelta(StopReasonToolUse, Usage{InputTokens: 3, OutputTokens: 7}),
			wantEv: "message_delta",
			check: func(t *testing.T, data gjson.Result) {
				if data.Get("delta.stop_reason").String() != "tool_use" {
					t.Errorf("stop_reason = %s", data.Get("delta.stop_reason"))
				}
				if data.Get("delta.stop_sequence").Type != gjson.Null {
					t.Errorf("stop_sequence should be null")
				}
				if data.Get("usage.output_tokens").Int() != 7 {
					t.Errorf("usage = %s", data.Get("usage").Raw)
				}
			},
		},
		{
			name:   "error",
			event:  NewErrorEvent(ClaudeErrAPI, "upstream closed"),
			wantEv: "error",
			check: func(t *testing.T, data gjson.Result) {
				if data.Get("error.type").String() != "api_error" || data.Get("error.message").String() != "upstream closed" {
					t.Errorf("error = %s", data.Get("error").Raw)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeSSE(tt.event)
			if err != nil {
				t.Fatalf("EncodeSSE: %v", err)
			}
			ev, data := splitFrame(t, frame)
			if ev != tt.wantEv {
				t.Errorf("event = %q, want %q", ev, tt.wantEv)
			}
			if data.Get("type").String() != tt.wantEv {
				t.Errorf("type = %q, want %q", data.Get("type").String(), tt.wantEv)
			}
			tt.check(t, data)
		})
	}
}
