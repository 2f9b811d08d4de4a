package translator

import (
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/translator/ir"
)

// MapStopReason maps a backend finish reason to the message protocol's stop reason.
// An empty finish reason means the stream is still open and maps to an empty stop reason.
func MapStopReason(reason ir.FinishReason) ir.StopReason {
	switch reason {
	case "":
		return ""
	case ir.FinishReasonStop, ir.FinishReasonContentFilter:
		return ir.StopReasonEndTurn
	case ir.FinishReasonLength:
		return ir.StopReasonMaxTokens
	case ir.FinishReasonToolCalls:
		return ir.StopReasonToolUse
	default:
		log.Debugf("translator: unknown finish reason %q, mapping to end_turn", reason)
		return ir.StopReasonEndTurn
	}
}
