// Package json is a drop-in replacement for encoding/json backed by sonic.
// Hot paths (SSE encoding, chunk decoding) import this package instead of the standard library.
package json

import (
	stdjson "encoding/json"
	"io"

	"github.com/bytedance/sonic"
)

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

// Number represents a JSON number literal.
type Number = stdjson.Number

// Marshaler is implemented by types that can marshal themselves into valid JSON.
type Marshaler = stdjson.Marshaler

// Unmarshaler is implemented by types that can unmarshal a JSON description of themselves.
type Unmarshaler = stdjson.Unmarshaler

var api = sonic.ConfigStd

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent is like Marshal but applies Indent to format the output.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal parses the JSON-encoded data and stores the result in v.
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return api.Valid(data)
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}

// NewDecoder returns a new decoder that reads from r.
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}
