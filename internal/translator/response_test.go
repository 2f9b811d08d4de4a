package translator

import (
	"strings"
	"testing"

	"github.com/nghyane/msgproxy/internal/json"
	"github.com/nghyane/msgproxy/internal/translator/ir"
	"github.com/tidwall/gjson"
)

func translateResponseJSON(t *testing.T, body, requested string) gjson.Result {
	t.Helper()
	var resp ir.ChatCompletionResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	out, err := json.Marshal(TranslateResponse(&resp, requested))
	if err != nil {
		t.Fatalf("encode translated response: %v", err)
	}
	return gjson.ParseBytes(out)
}

func TestTranslateResponse_Text(t *testing.T) {
	got := translateResponseJSON(t, `{
		"id": "chatcmpl-1",
		"model": "GPT-4o (display)",
		"choices": [{"index":0,"message":{"role":"assistant","content":"Hi!"},"finish_reason":"stop"}],
		"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
	}`, "gpt-4o")

	if got.Get("model").String() != "gpt-4o" {
		t.Errorf("model = %s, want the requested string", got.Get("model"))
	}
	if got.Get("type").String() != "message" || got.Get("role").String() != "assistant" {
		t.Errorf("envelope = %s", got.Raw)
	}
	content := got.Get("content").Array()
	if len(content) != 1 || content[0].Get("type").String() != "text" || content[0].Get("text").String() != "Hi!" {
		t.Fatalf("content = %s", got.Get("content").Raw)
	}
	if got.Get("stop_reason").String() != "end_turn" {
		t.Errorf("stop_reason = %s", got.Get("stop_reason"))
	}
	if got.Get("stop_sequence").Type != gjson.Null {
		t.Errorf("stop_sequence = %s", got.Get("stop_sequence").Raw)
	}
	if got.Get("usage.input_tokens").Int() != 9 || got.Get("usage.output_tokens").Int() != 3 {
		t.Errorf("usage = %s", got.Get("usage").Raw)
	}
	if got.Get("usage.cache_read_input_tokens").Exists() {
		t.Errorf("cache tokens should be omitted when zero")
	}
}

func TestTranslateResponse_ToolCalls(t *testing.T) {
	got := translateResponseJSON(t, `{
		"id": "chatcmpl-2",
		"choices": [{"index":0,"message":{"role":"assistant","content":"","tool_calls":[
			{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"location\":\"Oslo\"}"}},
			{"id":"call_2","type":"function","function":{"name":"ping","arguments":""}},
			{"id":"call_3","type":"function","function":{"name":"read","arguments":"{\"path\":\"C:\\Temp\\x.txt\"}"}},
			{"id":"call_4","type":"function","function":{"name":"bad","arguments":"{not json"}}
		]},"finish_reason":"tool_calls"}],
		"usage": {"prompt_tokens": 20, "completion_tokens": 5, "prompt_tokens_details": {"cached_tokens": 16}}
	}`, "claude-sonnet-4-5")

	content := got.Get("content").Array()
	if len(content) != 4 {
		t.Fatalf("content = %s", got.Get("content").Raw)
	}
	for i, wantID := range []string{"call_1", "call_2", "call_3", "call_4"} {
		if content[i].Get("type").String() != "tool_use" || content[i].Get("id").String() != wantID {
			t.Errorf("block %d = %s", i, content[i].Raw)
		}
		if !content[i].Get("input").IsObject() {
			t.Errorf("block %d input must be an object, got %s", i, content[i].Get("input").Raw)
		}
	}
	if content[0].Get("input.location").String() != "Oslo" {
		t.Errorf("input = %s", content[0].Get("input").Raw)
	}
	if content[1].Get("input").Raw != "{}" {
		t.Errorf("empty arguments should give {}, got %s", content[1].Get("input").Raw)
	}
	if content[2].Get("input.path").String() != `C:\Temp\x.txt` {
		t.Errorf("repaired path = %s", content[2].Get("input.path"))
	}
	if content[3].Get("input").Raw != "{}" {
		t.Errorf("unrepairable arguments should give {}, got %s", content[3].Get("input").Raw)
	}
	if got.Get("stop_reason").String() != "tool_use" {
		t.Errorf("stop_reason = %s", got.Get("stop_reason"))
	}
	if got.Get("usage.cache_read_input_tokens").Int() != 16 {
		t.Errorf("usage = %s", got.Get("usage").Raw)
	}
}

func TestTranslateResponse_ReasoningFirst(t *testing.T) {
	got := translateResponseJSON(t, `{
		"choices": [{"message":{"role":"assistant","content":"42","reasoning_content":"think"},"finish_reason":"length"}]
	}`, "m")

	content := got.Get("content").Array()
	if len(content) != 2 {
		t.Fatalf("content = %s", got.Get("content").Raw)
	}
	if content[0].Get("type").String() != "thinking" || content[0].Get("thinking").String() != "think" {
		t.Errorf("block 0 = %s", content[0].Raw)
	}
	if content[1].Get("type").String() != "text" {
		t.Errorf("block 1 = %s", content[1].Raw)
	}
	if got.Get("stop_reason").String() != "max_tokens" {
		t.Errorf("stop_reason = %s", got.Get("stop_reason"))
	}
	if !strings.HasPrefix(got.Get("id").String(), "msg_") {
		t.Errorf("missing backend id should mint a msg_ id, got %s", got.Get("id"))
	}
	if got.Get("usage.input_tokens").Int() != 0 {
		t.Errorf("usage = %s", got.Get("usage").Raw)
	}
}

func TestTranslateResponse_NoChoices(t *testing.T) {
	got := translateResponseJSON(t, `{"id":"x","choices":[]}`, "m")
	if !got.Get("content").IsArray() || len(got.Get("content").Array()) != 0 {
		t.Errorf("content = %s", got.Get("content").Raw)
	}
	if got.Get("stop_reason").Type != gjson.Null {
		t.Errorf("stop_reason = %s", got.Get("stop_reason").Raw)
	}
}
