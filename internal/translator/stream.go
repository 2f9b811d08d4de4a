package translator

import (
	"bytes"

	"github.com/nghyane/msgproxy/internal/json"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/metrics"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

// BlockKind is the kind of the currently open content block.
type BlockKind int

const (
	BlockNone BlockKind = iota
	BlockText
	BlockThinking
	BlockToolUse
)

func (k BlockKind) String() string {
	switch k {
	case BlockText:
		return ir.ClaudeBlockText
	case BlockThinking:
		return ir.ClaudeBlockThinking
	case BlockToolUse:
		return ir.ClaudeBlockToolUse
	}
	return "none"
}

// toolSlot accumulates one backend tool call, keyed by the backend's slot index.
// Fragments that arrive before both id and name are known wait in pending.
type toolSlot struct {
	id         string
	name       string
	opened     bool
	queued     bool
	blockIndex int
	pending    []string
	args       []byte
}

// StreamState is the mutable state of one streaming connection.
// It is owned by a single StreamTranslator and never shared or reused.
type StreamState struct {
	MessageStartSent bool
	BlockIndex       int
	OpenKind         BlockKind
	Usage            ir.Usage
	Done             bool
	StopReason       ir.StopReason

	openSlot int
	slots    map[int]*toolSlot
	// queue holds identified slots waiting for the open tool block to complete.
	queue []int
	// stopHeld is set once the finish chunk is translated but message_delta
	// still waits for the trailing usage chunk.
	stopHeld bool
}

func newStreamState() *StreamState {
	return &StreamState{openSlot: -1, slots: make(map[int]*toolSlot)}
}

// ToolArguments returns the arguments accumulated so far for a backend slot.
func (s *StreamState) ToolArguments(slot int) (string, bool) {
	ts, ok := s.slots[slot]
	if !ok {
		return "", false
	}
	return string(ts.args), true
}

// StreamTranslator turns backend chunks into message-protocol events.
// Translate must be called sequentially, in chunk arrival order.
type StreamTranslator struct {
	model          string
	messageID      string
	estimatedInput int
	state          *StreamState
}

// NewStreamTranslator creates a translator bound to one connection.
// model is the client-requested model string echoed in message_start.
// estimatedInput is used for message_start when the backend reports no prompt usage.
func NewStreamTranslator(model string, estimatedInput int) *StreamTranslator {
	return &StreamTranslator{
		model:          model,
		messageID:      NewMessageID(),
		estimatedInput: estimatedInput,
		state:          newStreamState(),
	}
}

// State exposes the connection state for inspection.
func (t *StreamTranslator) State() *StreamState {
	return t.state
}

// Done reports whether message_stop has been emitted.
func (t *StreamTranslator) Done() bool {
	return t.state.Done
}

// Translate consumes one raw SSE data payload. The [DONE] sentinel and malformed
// payloads produce no events; malformed payloads never abort the stream.
func (t *StreamTranslator) Translate(payload []byte) []ir.StreamEvent {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil
	}
	if bytes.Equal(payload, []byte(ir.DoneSentinel)) {
		if t.state.stopHeld {
			return t.terminate(nil)
		}
		return nil
	}

	var chunk ir.ChatCompletionChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		metrics.MalformedChunksTotal.Inc()
		log.Debugf("translator: skipping malformed stream chunk: %v", err)
		return nil
	}
	return t.TranslateChunk(&chunk)
}

// TranslateChunk consumes one decoded backend chunk.
func (t *StreamTranslator) TranslateChunk(chunk *ir.ChatCompletionChunk) []ir.StreamEvent {
	s := t.state
	if chunk.Usage != nil {
		s.Usage = translateUsage(chunk.Usage)
	}
	if s.Done {
		return nil
	}
	if s.stopHeld {
		if chunk.Usage != nil {
			return t.terminate(nil)
		}
		return nil
	}
	if len(chunk.Choices) == 0 {
		return nil
	}

	var events []ir.StreamEvent
	if !s.MessageStartSent {
		events = append(events, t.messageStart(chunk))
		s.MessageStartSent = true
	}

	for i := range chunk.Choices {
		choice := &chunk.Choices[i]
		delta := &choice.Delta

		if delta.ReasoningContent != "" {
			events = t.ensureBlock(events, BlockThinking)
			events = append(events, ir.NewThinkingDelta(s.BlockIndex, delta.ReasoningContent))
		}
		if delta.Content != "" {
			events = t.ensureBlock(events, BlockText)
			events = append(events, ir.NewTextDelta(s.BlockIndex, delta.Content))
		}
		for j := range delta.ToolCalls {
			events = t.toolCallDelta(events, &delta.ToolCalls[j])
		}
		if choice.FinishReason != "" {
			events = t.finish(events, MapStopReason(choice.FinishReason))
			if chunk.Usage == nil {
				// usage usually follows in its own chunk with no choices
				s.stopHeld = true
				return events
			}
			return t.terminate(events)
		}
	}
	return events
}

// Finalize ends the stream when the upstream body is exhausted. A held stop is released
// with whatever usage was seen; a stream that never finished is closed as end_turn.
// It returns nothing if the stream already ended or never started.
func (t *StreamTranslator) Finalize() []ir.StreamEvent {
	s := t.state
	if s.Done || !s.MessageStartSent {
		return nil
	}
	if s.stopHeld {
		return t.terminate(nil)
	}
	log.Warnf("translator: upstream ended without finish reason, closing stream")
	return t.terminate(t.finish(nil, ir.StopReasonEndTurn))
}

func (t *StreamTranslator) messageStart(chunk *ir.ChatCompletionChunk) ir.StreamEvent {
	usage := ir.Usage{InputTokens: t.estimatedInput}
	if chunk.Usage != nil && chunk.Usage.PromptTokens > 0 {
		usage.InputTokens = chunk.Usage.PromptTokens
		usage.CacheReadInputTokens = chunk.Usage.CachedTokens()
	}
	msg := ir.NewMessagesResponse(t.messageID, t.model)
	msg.Usage = usage
	return ir.NewMessageStart(msg)
}

// ensureBlock makes a text or thinking block of kind the open block,
// closing any block of a different kind first.
func (t *StreamTranslator) ensureBlock(events []ir.StreamEvent, kind BlockKind) []ir.StreamEvent {
	s := t.state
	if s.OpenKind == kind {
		return events
	}
	events = t.drainQueue(events)
	if s.OpenKind != BlockNone {
		events = t.closeBlock(events)
	}

	var block ir.ContentBlock
	switch kind {
	case BlockText:
		block = &ir.TextBlock{Type: ir.ClaudeBlockText}
	case BlockThinking:
		block = ir.NewThinkingBlock("")
	default:
		assertf(false, "ensureBlock called with %s", kind)
	}
	s.OpenKind = kind
	return append(events, ir.NewContentBlockStart(s.BlockIndex, block))
}

func (t *StreamTranslator) closeBlock(events []ir.StreamEvent) []ir.StreamEvent {
	s := t.state
	assertf(s.OpenKind != BlockNone, "close with no open block at index %d", s.BlockIndex)
	events = append(events, ir.NewContentBlockStop(s.BlockIndex))
	s.BlockIndex++
	s.OpenKind = BlockNone
	s.openSlot = -1
	return events
}

func (t *StreamTranslator) toolCallDelta(events []ir.StreamEvent, d *ir.ToolCallDelta) []ir.StreamEvent {
	s := t.state
	slot, ok := s.slots[d.Index]
	if !ok {
		slot = &toolSlot{}
		s.slots[d.Index] = slot
	}
	args := d.Function.Arguments

	if slot.opened {
		if args == "" {
			return events
		}
		slot.args = append(slot.args, args...)
		if s.openSlot != d.Index {
			metrics.LateToolFragmentsTotal.Inc()
			log.Warnf("translator: dropping %d bytes of arguments for tool slot %d, its block %d already closed",
				len(args), d.Index, slot.blockIndex)
			return events
		}
		events = append(events, ir.NewInputJSONDelta(slot.blockIndex, args))
		if len(s.queue) > 0 && json.Valid(slot.args) {
			events = t.drainQueue(events)
		}
		return events
	}

	if d.ID != "" {
		slot.id = d.ID
	}
	if d.Function.Name != "" {
		slot.name = d.Function.Name
	}
	if args != "" {
		slot.pending = append(slot.pending, args)
	}
	if slot.id == "" || slot.name == "" || slot.queued {
		return events
	}

	// A tool block whose arguments are not yet a complete JSON value may still receive
	// fragments; the new slot waits its turn instead of closing it.
	if s.OpenKind == BlockToolUse && !json.Valid(s.slots[s.openSlot].args) {
		slot.queued = true
		s.queue = append(s.queue, d.Index)
		return events
	}
	return t.openToolSlot(events, d.Index)
}

// openToolSlot closes the open block and makes slot idx the open tool block,
// flushing its pending fragments in arrival order.
func (t *StreamTranslator) openToolSlot(events []ir.StreamEvent, idx int) []ir.StreamEvent {
	s := t.state
	slot := s.slots[idx]
	if s.OpenKind != BlockNone {
		events = t.closeBlock(events)
	}
	slot.opened = true
	slot.queued = false
	slot.blockIndex = s.BlockIndex
	s.OpenKind = BlockToolUse
	s.openSlot = idx
	events = append(events, ir.NewContentBlockStart(slot.blockIndex, ir.NewToolUseBlock(slot.id, slot.name, nil)))

	for _, fragment := range slot.pending {
		slot.args = append(slot.args, fragment...)
		events = append(events, ir.NewInputJSONDelta(slot.blockIndex, fragment))
	}
	slot.pending = nil
	return events
}

// drainQueue opens every queued tool slot in turn. The last one is left open.
func (t *StreamTranslator) drainQueue(events []ir.StreamEvent) []ir.StreamEvent {
	s := t.state
	for len(s.queue) > 0 {
		idx := s.queue[0]
		s.queue = s.queue[1:]
		events = t.openToolSlot(events, idx)
	}
	return events
}

// finish closes all content and records the stop reason. terminate emits the closing events.
func (t *StreamTranslator) finish(events []ir.StreamEvent, reason ir.StopReason) []ir.StreamEvent {
	s := t.state
	events = t.drainQueue(events)
	if s.OpenKind != BlockNone {
		events = t.closeBlock(events)
	}
	for idx, slot := range s.slots {
		if !slot.opened && len(slot.pending) > 0 {
			log.Warnf("translator: dropping %d argument fragments for tool slot %d without id/name", len(slot.pending), idx)
		}
	}
	s.StopReason = reason
	return events
}

func (t *StreamTranslator) terminate(events []ir.StreamEvent) []ir.StreamEvent {
	s := t.state
	usage := s.Usage
	if usage.InputTokens == 0 {
		usage.InputTokens = t.estimatedInput
	}
	s.stopHeld = false
	s.Done = true
	return append(events, ir.NewMessageDelta(s.StopReason, usage), ir.NewMessageStop())
}
