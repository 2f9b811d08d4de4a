package translator

import (
	"strings"

	"github.com/nghyane/msgproxy/internal/json"
	log "github.com/nghyane/msgproxy/internal/logging"
	"github.com/nghyane/msgproxy/internal/metrics"
)

// ParseToolArguments decodes a tool call's argument string into an input mapping.
// Empty input yields an empty mapping. Unescaped backslashes are repaired once;
// anything still unparseable (or not a JSON object) yields an empty mapping.
func ParseToolArguments(args string) map[string]any {
	if strings.TrimSpace(args) == "" {
		return map[string]any{}
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(args), &input); err == nil && input != nil {
		return input
	}

	repaired := RepairBackslashes(args)
	input = nil
	if err := json.Unmarshal([]byte(repaired), &input); err == nil && input != nil {
		metrics.ToolArgumentRepairsTotal.WithLabelValues("repaired").Inc()
		log.Debugf("translator: repaired unescaped backslashes in tool arguments")
		return input
	}

	metrics.ToolArgumentRepairsTotal.WithLabelValues("dropped").Inc()
	log.Warnf("translator: dropping unparseable tool arguments (%d bytes)", len(args))
	return map[string]any{}
}

// RepairBackslashes escapes every backslash that does not start a valid JSON escape sequence.
func RepairBackslashes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if n := validEscapeLen(s, i); n > 0 {
			b.WriteString(s[i : i+n])
			i += n - 1
			continue
		}
		b.WriteString(`\\`)
	}
	return b.String()
}

// validEscapeLen returns the length of the escape sequence starting at s[i], or 0.
func validEscapeLen(s string, i int) int {
	if i+1 >= len(s) {
		return 0
	}
	switch s[i+1] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return 2
	case 'u':
		if i+6 > len(s) {
			return 0
		}
		for j := i + 2; j < i+6; j++ {
			if !isHex(s[j]) {
				return 0
			}
		}
		return 6
	}
	return 0
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
