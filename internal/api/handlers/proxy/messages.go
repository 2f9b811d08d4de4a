package proxy

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nghyane/msgproxy/internal/json"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/runtime/executor/stream"
	"github.com/nghyane/msgproxy/internal/tokens"
	"github.com/nghyane/msgproxy/internal/translator"
	"github.com/nghyane/msgproxy/internal/translator/ir"
	"github.com/nghyane/msgproxy/internal/usage"
)

func parseMessagesRequest(c *gin.Context) (*ir.MessagesRequest, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		badMessagesRequest(c, "failed to read request body")
		return nil, false
	}
	var req ir.MessagesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		badMessagesRequest(c, "invalid request body: "+err.Error())
		return nil, false
	}
	if req.Model == "" {
		badMessagesRequest(c, "model: field required")
		return nil, false
	}
	if len(req.Messages) == 0 {
		badMessagesRequest(c, "messages: at least one message is required")
		return nil, false
	}
	return &req, true
}

// Messages handles POST /v1/messages.
func (h *Handler) Messages(c *gin.Context) {
	start := time.Now()
	req, ok := parseMessagesRequest(c)
	if !ok {
		return
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = int(h.defaultMaxTokens.Load())
	}
	estimate := tokens.CountRequest(req)
	resolved := h.resolve(req.Model)

	body, err := json.Marshal(translator.TranslateRequest(req, resolved))
	if err != nil {
		abortMessages(c, err)
		return
	}
	rec := usage.Record{Model: resolved, RequestedModel: req.Model, Stream: req.Stream}

	if req.Stream {
		h.streamMessages(c, req, body, estimate, rec, start)
		return
	}

	resp, err := h.backend.Complete(c.Request.Context(), body)
	if err != nil {
		rec.Status = abortMessages(c, err)
		rec.Failed = true
		rec.InputTokens = int64(estimate)
		h.record(c, rec, start)
		return
	}
	out := translator.TranslateResponse(resp, req.Model)
	c.JSON(http.StatusOK, out)

	rec.Status = http.StatusOK
	rec.InputTokens = int64(out.Usage.InputTokens)
	rec.OutputTokens = int64(out.Usage.OutputTokens)
	rec.CachedTokens = int64(out.Usage.CacheReadInputTokens)
	h.record(c, rec, start)
}

func (h *Handler) streamMessages(c *gin.Context, req *ir.MessagesRequest, body []byte, estimate int, rec usage.Record, start time.Time) {
	ctx := c.Request.Context()
	upstream, err := h.backend.Stream(ctx, body)
	if err != nil {
		rec.Status = abortMessages(c, err)
		rec.Failed = true
		rec.InputTokens = int64(estimate)
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

	sink := stream.NewSSESink(c.Writer, c.Writer.Flush)
	res, err := stream.Run(ctx, upstream, translator.NewStreamTranslator(req.Model, estimate), sink)
	switch {
	case err != nil && !errors.Is(err, ctx.Err()):
		log.Warnf("messages stream to client ended: %v", err)
	case res.Err != nil:
		log.Warnf("messages stream from backend failed after %v: %v", res.Elapsed.Round(time.Millisecond), res.Err)
	}

	rec.Status = http.StatusOK
	rec.Failed = err != nil || res.Err != nil
	rec.InputTokens = int64(res.Usage.InputTokens)
	rec.OutputTokens = int64(res.Usage.OutputTokens)
	rec.CachedTokens = int64(res.Usage.CacheReadInputTokens)
	h.record(c, rec, start)
}

// CountTokens handles POST /v1/messages/count_tokens.
func (h *Handler) CountTokens(c *gin.Context) {
	req, ok := parseMessagesRequest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ir.CountTokensResponse{InputTokens: tokens.CountRequest(req)})
}
