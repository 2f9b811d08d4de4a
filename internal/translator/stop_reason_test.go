package translator

import (
	"testing"

	"github.com/nghyane/msgproxy/internal/translator/ir"
)

func TestMapStopReason(t *testing.T) {
	tests := []struct {
		in   ir.FinishReason
		want ir.StopReason
	}{
		{ir.FinishReasonStop, ir.StopReasonEndTurn},
		{ir.FinishReasonLength, ir.StopReasonMaxTokens},
		{ir.FinishReasonToolCalls, ir.StopReasonToolUse},
		{ir.FinishReasonContentFilter, ir.StopReasonEndTurn},
		{"", ""},
		{"function_call", ir.StopReasonEndTurn},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := MapStopReason(tt.in); got != tt.want {
				t.Errorf("MapStopReason(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
