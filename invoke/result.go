package invoke

import "github.com/fnhost/fnhost/fault"

// Result is the outcome of one invocation: a wire-safe success payload or a
// classified error, never both. Owned by the caller; transient.
type Result struct {
	// ID is the host-assigned invocation id.
	ID string
	// Function is the invoked function's name.
	Function string
	// Payload is the serialized success value. Nil when Err is set.
	Payload []byte
	// Err is the classified failure, if any.
	Err *fault.Error
}

func (r *Result) OK() bool { return r.Err == nil }

// Wire returns the bytes delivered to the caller: the success payload or the
// structured error object.
func (r *Result) Wire() []byte {
	if r.Err != nil {
		return r.Err.Wire()
	}
	return r.Payload
}
