package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/json"
	"github.com/nghyane/msgproxy/internal/registry"
	"github.com/nghyane/msgproxy/internal/runtime/executor"
	"github.com/nghyane/msgproxy/internal/translator/ir"
	"github.com/nghyane/msgproxy/internal/usage"
	"github.com/tidwall/gjson"
)

type fakeBackend struct {
	lastBody []byte
	resp     string
	stream   string
	err      error
}

func (f *fakeBackend) Complete(_ context.Context, body []byte) (*ir.ChatCompletionResponse, error) {
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	var out ir.ChatCompletionResponse
	if err := json.Unmarshal([]byte(f.resp), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (f *fakeBackend) CompleteRaw(_ context.Context, body []byte) ([]byte, error) {
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.resp), nil
}

func (f *fakeBackend) Stream(_ context.Context, body []byte) (io.ReadCloser, error) {
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.stream)), nil
}

func newTestHandler(t *testing.T, backend *fakeBackend) (*gin.Engine, *usage.Recorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := usage.NewRecorder(nil)
	h := New(Options{
		Backend:          backend,
		Registry:         registry.NewModelRegistry([]registry.Model{{ID: "claude-sonnet-4.5"}, {ID: "gpt-4o", OwnedBy: "openai"}}),
		Resolver:         registry.NewResolver(registry.ResolverOptions{}),
		Usage:            rec,
		DefaultMaxTokens: 1024,
	})
	r := gin.New()
	h.Register(r)
	return r, rec
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

const completion = `{"id":"chatcmpl-1","model":"claude-sonnet-4.5","choices":[{"index":0,"message":{"role":"assistant","content":"Hello!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`

func TestMessages_NonStream(t *testing.T) {
	backend := &fakeBackend{resp: completion}
	r, rec := newTestHandler(t, backend)

	w := post(r, "/v1/messages", `{"model":"claude-sonnet-4-5-20250929","system":"be brief","messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	sent := gjson.ParseBytes(backend.lastBody)
	if sent.Get("model").String() != "claude-sonnet-4.5" {
		t.Errorf("backend model = %s", sent.Get("model"))
	}
	if sent.Get("max_tokens").Int() != 1024 {
		t.Errorf("default max_tokens not applied: %s", sent.Get("max_tokens"))
	}
	if sent.Get("messages.0.role").String() != "system" {
		t.Errorf("messages = %s", sent.Get("messages"))
	}

	out := gjson.Parse(w.Body.String())
	checks := map[string]string{
		"type":           "message",
		"model":          "claude-sonnet-4-5-20250929",
		"content.0.type": "text",
		"content.0.text": "Hello!",
		"stop_reason":    "end_turn",
	}
	for path, want := range checks {
		if got := out.Get(path).String(); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	if snap := rec.Counters(); snap.TotalRequests != 1 || snap.InputTokens != 12 || snap.OutputTokens != 3 {
		t.Errorf("usage = %+v", snap)
	}
}

func TestMessages_Validation(t *testing.T) {
	r, _ := newTestHandler(t, &fakeBackend{})
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"no model", `{"messages":[{"role":"user","content":"hi"}]}`},
		{"no messages", `{"model":"gpt-4o","messages":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(r, "/v1/messages", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			if got := gjson.Get(w.Body.String(), "error.type").String(); got != "invalid_request_error" {
				t.Errorf("error.type = %q", got)
			}
		})
	}
}

func TestMessages_UpstreamErrorPassesStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		wantType string
	}{
		{"rate limited", &executor.StatusError{Code: 429, Body: []byte(`{"error":{"message":"slow down"}}`)}, 429, "rate_limit_error"},
		{"unauthorized", &executor.StatusError{Code: 401, Body: []byte(`{"message":"bad key"}`)}, 401, "authentication_error"},
		{"transport", errors.New("dial tcp: refused"), http.StatusBadGateway, "api_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec := newTestHandler(t, &fakeBackend{err: tt.err})
			w := post(r, "/v1/messages", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if got := gjson.Get(w.Body.String(), "error.type").String(); got != tt.wantType {
				t.Errorf("error.type = %q, want %q", got, tt.wantType)
			}
			if rec.Counters().FailureCount != 1 {
				t.Error("failure not recorded")
			}
		})
	}
}

func TestMessages_Stream(t *testing.T) {
	upstream := strings.Join([]string{
		`data: {"id":"c1","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`data: {"choices":[{"index":0,"delta":{"content":"Hi"}}]}`,
		`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":1}}`,
		`data: [DONE]`,
	}, "\n\n") + "\n\n"
	backend := &fakeBackend{stream: upstream}
	r, rec := newTestHandler(t, backend)

	w := post(r, "/v1/messages", `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if !gjson.GetBytes(backend.lastBody, "stream_options.include_usage").Bool() {
		t.Error("stream_options.include_usage not requested")
	}

	var names []string
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
	}
	want := "message_start,content_block_start,content_block_delta,content_block_stop,message_delta,message_stop"
	if strings.Join(names, ",") != want {
		t.Errorf("events = %v", names)
	}
	if snap := rec.Counters(); snap.InputTokens != 7 || snap.OutputTokens != 1 || snap.FailureCount != 0 {
		t.Errorf("usage = %+v", snap)
	}
}

func TestCountTokens(t *testing.T) {
	r, _ := newTestHandler(t, &fakeBackend{})
	w := post(r, "/v1/messages/count_tokens", `{"model":"gpt-4o","messages":[{"role":"user","content":"how many tokens is this?"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if n := gjson.Get(w.Body.String(), "input_tokens").Int(); n <= 0 {
		t.Errorf("input_tokens = %d", n)
	}
}

func TestChatCompletions_Passthrough(t *testing.T) {
	backend := &fakeBackend{resp: completion}
	r, rec := newTestHandler(t, backend)

	for _, path := range []string{"/v1/chat/completions", "/chat/completions"} {
		t.Run(path, func(t *testing.T) {
			w := post(r, path, `{"model":"claude-sonnet-latest","messages":[{"role":"user","content":"hi"}],"seed":42}`)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if w.Body.String() != completion {
				t.Errorf("body altered: %s", w.Body.String())
			}
			sent := gjson.ParseBytes(backend.lastBody)
			if sent.Get("model").String() != "claude-sonnet-4.5" || sent.Get("seed").Int() != 42 {
				t.Errorf("forwarded body = %s", backend.lastBody)
			}
		})
	}
	if rec.Counters().InputTokens != 24 {
		t.Errorf("usage = %+v", rec.Counters())
	}
}

func TestChatCompletions_UpstreamErrorVerbatim(t *testing.T) {
	body := `{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`
	r, _ := newTestHandler(t, &fakeBackend{err: &executor.StatusError{Code: 429, Body: []byte(body), ContentType: "application/json"}})

	w := post(r, "/v1/chat/completions", `{"model":"gpt-4o","messages":[]}`)
	if w.Code != 429 || w.Body.String() != body {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestChatCompletions_Stream(t *testing.T) {
	upstream := "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: {\"choices\":[],\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2}}\n\ndata: [DONE]\n\n"
	r, rec := newTestHandler(t, &fakeBackend{stream: upstream})

	w := post(r, "/v1/chat/completions", `{"model":"gpt-4o","stream":true,"messages":[]}`)
	if w.Body.String() != upstream {
		t.Errorf("stream altered:\n%q\nwant\n%q", w.Body.String(), upstream)
	}
	if snap := rec.Counters(); snap.InputTokens != 5 || snap.OutputTokens != 2 {
		t.Errorf("usage = %+v", snap)
	}
}

func TestModels(t *testing.T) {
	r, _ := newTestHandler(t, &fakeBackend{})

	for _, path := range []string{"/v1/models", "/models"} {
		w := get(r, path)
		list := gjson.Parse(w.Body.String())
		if list.Get("object").String() != "list" || list.Get("data.#").Int() != 2 {
			t.Errorf("%s = %s", path, w.Body.String())
		}
		if list.Get("data.1.owned_by").String() != "openai" || list.Get("data.0.owned_by").String() != defaultOwner {
			t.Errorf("%s owners = %s", path, list.Get("data.#.owned_by"))
		}
	}

	w := get(r, "/v1/models/claude-sonnet-4-5")
	if w.Code != http.StatusOK || gjson.Get(w.Body.String(), "id").String() != "claude-sonnet-4.5" {
		t.Errorf("get model = %d %s", w.Code, w.Body.String())
	}
	if w := get(r, "/v1/models/unknown-model"); w.Code != http.StatusNotFound {
		t.Errorf("unknown model status = %d", w.Code)
	}
}
