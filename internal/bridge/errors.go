// ABOUTME: Error types shared by the outbound bridge clients
// ABOUTME: StatusError carries the upstream HTTP status and response body

package bridge

import "fmt"

// StatusError is returned when a bridge upstream answers with a non-2xx
// status. Body is truncated to keep log lines bounded.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

const maxErrorBody = 2048

func newStatusError(status int, body []byte) *StatusError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Status: status, Body: string(body)}
}
