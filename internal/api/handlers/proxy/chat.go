package proxy

import (
	"bufio"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/runtime/executor/stream"
	"github.com/nghyane/msgproxy/internal/sseutil"
	"github.com/nghyane/msgproxy/internal/usage"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ChatCompletions relays chat-completion requests to the backend unchanged except for the
// resolved model name. Responses and upstream errors pass through verbatim.
func (h *Handler) ChatCompletions(c *gin.Context) {
	start := time.Now()
	body, err := c.GetRawData()
	if err != nil {
		badChatRequest(c, "failed to read request body")
		return
	}
	if !gjson.ValidBytes(body) {
		badChatRequest(c, "request body is not valid JSON")
		return
	}
	requested := gjson.GetBytes(body, "model").String()
	if requested == "" {
		badChatRequest(c, "model: field required")
		return
	}
	resolved := h.resolve(requested)
	if resolved != requested {
		if body, err = sjson.SetBytes(body, "model", resolved); err != nil {
			badChatRequest(c, err.Error())
			return
		}
	}

	rec := usage.Record{Model: resolved, RequestedModel: requested}
	if gjson.GetBytes(body, "stream").Bool() {
		rec.Stream = true
		h.streamChat(c, body, rec, start)
		return
	}

	raw, err := h.backend.CompleteRaw(c.Request.Context(), body)
	if err != nil {
		rec.Status = abortChat(c, err)
		rec.Failed = true
		h.record(c, rec, start)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)

	rec.Status = http.StatusOK
	u := gjson.GetBytes(raw, "usage")
	rec.InputTokens = u.Get("prompt_tokens").Int()
	rec.OutputTokens = u.Get("completion_tokens").Int()
	rec.CachedTokens = u.Get("prompt_tokens_details.cached_tokens").Int()
	h.record(c, rec, start)
}

var newline = []byte("\n")

// streamChat copies the backend SSE stream line by line, flushing at each event boundary.
func (h *Handler) streamChat(c *gin.Context, body []byte, rec usage.Record, start time.Time) {
	ctx := c.Request.Context()
	upstream, err := h.backend.Stream(ctx, body)
	if err != nil {
		rec.Status = abortChat(c, err)
		rec.Failed = true
		h.record(c, rec, start)
		return
	}
	defer upstream.Close()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, stream.DefaultScannerBufferSize), stream.DefaultMaxLineSize)

	var writeErr error
	for scanner.Scan() {
		line := scanner.Bytes()
		if payload := sseutil.JSONPayload(line); payload != nil {
			if in, out, ok := sseutil.ExtractUsageTokens(payload); ok {
				rec.InputTokens, rec.OutputTokens = in, out
				rec.CachedTokens = gjson.GetBytes(payload, "usage.prompt_tokens_details.cached_tokens").Int()
			}
		}
		if _, writeErr = c.Writer.Write(line); writeErr == nil {
			_, writeErr = c.Writer.Write(newline)
		}
		if writeErr != nil {
			break
		}
		if len(line) == 0 {
			c.Writer.Flush()
		}
	}
	c.Writer.Flush()

	readErr := scanner.Err()
	if readErr != nil && !errors.Is(readErr, ctx.Err()) {
		log.Warnf("chat completion stream from backend failed: %v", readErr)
	}
	rec.Status = http.StatusOK
	rec.Failed = writeErr != nil || readErr != nil
	h.record(c, rec, start)
}
