package tokens

import (
	"testing"

	"github.com/nghyane/msgproxy/internal/json"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

func parse(t *testing.T, raw string) *ir.MessagesRequest {
	t.Helper()
	var req ir.MessagesRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &req
}

func TestCountText(t *testing.T) {
	if CountText("") != 0 {
		t.Error("empty text should count zero")
	}
	short := CountText("hello")
	long := CountText("hello there, this sentence is noticeably longer than one word")
	if short <= 0 || long <= short {
		t.Errorf("short=%d long=%d", short, long)
	}
}

func TestCountRequest(t *testing.T) {
	base := parse(t, `{"model":"m","messages":[{"role":"user","content":"What is the weather?"}]}`)
	withSystem := parse(t, `{"model":"m","system":"You are terse.","messages":[{"role":"user","content":"What is the weather?"}]}`)
	withTools := parse(t, `{"model":"m","messages":[{"role":"user","content":"What is the weather?"}],
		"tools":[{"name":"get_weather","description":"Look up weather","input_schema":{"type":"object","properties":{"city":{"type":"string"}}}}]}`)
	withBlocks := parse(t, `{"model":"m","messages":[
		{"role":"user","content":"What is the weather?"},
		{"role":"assistant","content":[{"type":"tool_use","id":"t1","name":"get_weather","input":{"city":"Paris"}}]},
		{"role":"user","content":[{"type":"tool_result","tool_use_id":"t1","content":"sunny"}]}]}`)

	b := CountRequest(base)
	tests := []struct {
		name string
		got  int
	}{
		{"system", CountRequest(withSystem)},
		{"tools", CountRequest(withTools)},
		{"tool blocks", CountRequest(withBlocks)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got <= b {
				t.Errorf("count = %d, want more than base %d", tt.got, b)
			}
		})
	}

	if CountRequest(nil) != 0 {
		t.Error("nil request should count zero")
	}
}

func TestCountRequest_Image(t *testing.T) {
	req := parse(t, `{"model":"m","messages":[{"role":"user","content":[{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAAA"}}]}]}`)
	if got := CountRequest(req); got < imageTokens {
		t.Errorf("count = %d, want at least %d", got, imageTokens)
	}
}
