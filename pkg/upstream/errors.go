package upstream

import (
	"fmt"
	"io"
)

// maxErrorBody bounds how much of an upstream error body is relayed.
const maxErrorBody = 1 << 20

// StatusError is returned when the upstream answers with a non-2xx status.
// The body is kept as opaque text and relayed with the same status code.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

// UnreachableError is returned when the upstream cannot be reached at all
// (DNS, connection refused, TLS, reset before a response).
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return e.Err.Error()
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// newStatusError reads the error body as text. A failed read keeps
// whatever was received.
func newStatusError(statusCode int, body io.Reader) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return &StatusError{
		StatusCode: statusCode,
		Body:       string(data),
	}
}
