package ir

import (
	"sync"

	"github.com/nghyane/msgproxy/internal/json"
)

// sseBufPool provides reusable buffers for SSE framing.
var sseBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 512)
		return &b
	},
}

// BuildSSEEvent frames a JSON payload as "event: <name>\ndata: <json>\n\n".
func BuildSSEEvent(eventType string, data []byte) []byte {
	size := 7 + len(eventType) + 7 + len(data) + 2
	bufPtr := sseBufPool.Get().(*[]byte)
	buf := (*bufPtr)[:0]
	if cap(buf) < size {
		buf = make([]byte, 0, size)
	}
	buf = append(buf, "event: "...)
	buf = append(buf, eventType...)
	buf = append(buf, "\ndata: "...)
	buf = append(buf, data...)
	buf = append(buf, "\n\n"...)

	out := make([]byte, len(buf))
	copy(out, buf)

	*bufPtr = buf[:0]
	sseBufPool.Put(bufPtr)
	return out
}

// EncodeSSE serializes one stream event into a self-contained SSE frame.
func EncodeSSE(event StreamEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return BuildSSEEvent(event.EventName(), data), nil
}
