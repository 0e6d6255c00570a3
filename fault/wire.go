package fault

import "github.com/tidwall/sjson"

// Wire renders the structured error object delivered to callers in place of
// a result value.
func (e *Error) Wire() []byte {
	b := []byte(`{}`)
	b, _ = sjson.SetBytes(b, "kind", string(e.Kind))
	b, _ = sjson.SetBytes(b, "message", e.Message)
	return b
}

// WireError renders any error as a wire object. Unclassified errors are
// reported as handler execution failures rather than leaking internals.
func WireError(err error) []byte {
	if fe, ok := As(err); ok {
		return fe.Wire()
	}
	return Wrap(KindHandlerExecution, err).Wire()
}
