package executor

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

const acceptEncoding = "gzip, deflate, br, zstd"

// decodedBody wraps a decoder so Close releases both the decoder and the raw body.
type decodedBody struct {
	io.Reader
	closeDecoder func()
	raw          io.Closer
}

func (d *decodedBody) Close() error {
	if d.closeDecoder != nil {
		d.closeDecoder()
	}
	return d.raw.Close()
}

// decodeBody replaces resp.Body with a decoded reader according to Content-Encoding.
// Unknown encodings are left untouched.
func decodeBody(resp *http.Response) error {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if encoding == "" || encoding == "identity" {
		return nil
	}

	raw := resp.Body
	var body io.ReadCloser
	switch encoding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return fmt.Errorf("gzip body: %w", err)
		}
		body = &decodedBody{Reader: zr, closeDecoder: func() { _ = zr.Close() }, raw: raw}
	case "deflate":
		fr := flate.NewReader(raw)
		body = &decodedBody{Reader: fr, closeDecoder: func() { _ = fr.Close() }, raw: raw}
	case "br":
		body = &decodedBody{Reader: brotli.NewReader(raw), raw: raw}
	case "zstd":
		zr, err := zstd.NewReader(raw, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return fmt.Errorf("zstd body: %w", err)
		}
		body = &decodedBody{Reader: zr, closeDecoder: zr.Close, raw: raw}
	default:
		return nil
	}

	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}
