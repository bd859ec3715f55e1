package identity

import "errors"

// Terminal resolution errors. Callers that need to distinguish failure
// classes test with errors.Is; context deadline and cancellation errors
// wrap through Resolve unchanged.
var (
	// ErrCreateRejected means the create endpoint refused the request or
	// was unreachable. The resolution aborts without entering the fetch
	// loop.
	ErrCreateRejected = errors.New("identity create rejected")
	// ErrExhausted means every fetch attempt after creation came back
	// without an assigned identity.
	ErrExhausted = errors.New("identity fetch attempts exhausted")
)
