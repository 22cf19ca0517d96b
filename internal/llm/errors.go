package llm

import "fmt"

// UpstreamError is returned once the retry budget is spent. Kind is either
// model.ErrUpstreamUnavailable or model.ErrResponseParse and is the only
// error it unwraps to; Err is the last attempt's cause, kept for logs.
type UpstreamError struct {
	Kind     error
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Kind
}
