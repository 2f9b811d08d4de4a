// Package tokens estimates prompt sizes for message-protocol requests.
package tokens

import (
	"sync"

	"github.com/nghyane/msgproxy/internal/json"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/translator/ir"
	"github.com/tiktoken-go/tokenizer"
)

// Per-item overheads approximate the role and framing tokens the backend adds.
const (
	messageOverhead = 3
	toolOverhead    = 8
	replyPriming    = 3
	// imageTokens is a flat estimate; image dimensions are not decoded.
	imageTokens = 1024
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.O200kBase)
		if codecErr != nil {
			log.Warnf("tokenizer unavailable, falling back to byte estimate: %v", codecErr)
		}
	})
	return codec, codecErr
}

// CountText returns the token count of s.
func CountText(s string) int {
	if s == "" {
		return 0
	}
	c, err := getCodec()
	if err != nil {
		return (len(s) + 3) / 4
	}
	ids, _, err := c.Encode(s)
	if err != nil {
		return (len(s) + 3) / 4
	}
	return len(ids)
}

// CountRequest estimates input tokens for req: system prompt, every message block and tool
// declarations.
func CountRequest(req *ir.MessagesRequest) int {
	if req == nil {
		return 0
	}
	total := replyPriming
	if text := req.System.Text(); text != "" {
		total += messageOverhead + CountText(text)
	}
	for _, msg := range req.Messages {
		total += messageOverhead + countContent(msg.Content)
	}
	for _, tool := range req.Tools {
		total += toolOverhead + CountText(tool.Name) + CountText(tool.Description)
		if len(tool.InputSchema) > 0 {
			if schema, err := json.Marshal(tool.InputSchema); err == nil {
				total += CountText(string(schema))
			}
		}
	}
	return total
}

func countContent(c ir.MessageContent) int {
	if c.IsText() {
		return CountText(c.Text)
	}
	n := 0
	for _, block := range c.Blocks {
		switch b := block.(type) {
		case *ir.TextBlock:
			n += CountText(b.Text)
		case *ir.ThinkingBlock:
			n += CountText(b.Thinking)
		case *ir.ImageBlock:
			n += imageTokens
		case *ir.ToolUseBlock:
			n += CountText(b.Name)
			if args, err := json.Marshal(b.Input); err == nil {
				n += CountText(string(args))
			}
		case *ir.ToolResultBlock:
			n += countContent(b.Content)
		}
	}
	return n
}
