// Package payload adapts raw inbound wire bytes into the event value passed
// to a handler. It performs wire-format decoding only: any decodable JSON
// value passes through untouched, whatever its shape, because the handler
// contract constrains arity, not payload shape. Shape checks belong to the
// handler itself.
package payload

import (
	"bytes"

	"github.com/tidwall/gjson"

	"github.com/fnhost/fnhost/fault"
)

// Decode turns wire bytes into the in-process event value: objects become
// map[string]any, arrays []any, plus strings, float64 numbers, booleans, and
// nil. An empty body decodes as a null event. Malformed bytes fail with
// MalformedPayloadError before any handler is invoked.
func Decode(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fault.New(fault.KindMalformedPayload, "payload is not decodable JSON")
	}
	return gjson.ParseBytes(raw).Value(), nil
}
