// Package ledger is an HTTP client for a ledger node's app interface. It
// checks node health and dispatches zome calls with msgpack payloads.
package ledger

import (
	"errors"
	"fmt"
)

// Error is an application-level rejection from the node, carrying the HTTP
// status code and the node's error code and message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Error codes the node reports for zome calls.
const (
	CodeCellMissing   = "CELL_MISSING"
	CodeZomeNotFound  = "ZOME_NOT_FOUND"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeDeserialize   = "DESERIALIZE"
	CodeRibosomeError = "RIBOSOME_ERROR"
)

// IsRejected reports whether err is an application-level error from the node,
// as opposed to a transport failure.
func IsRejected(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// IsCellMissing reports whether the node has no cell for the requested DNA and agent.
func IsCellMissing(err error) bool {
	return hasCode(err, CodeCellMissing)
}

// IsZomeNotFound reports whether the DNA has no zome or function by the requested name.
func IsZomeNotFound(err error) bool {
	return hasCode(err, CodeZomeNotFound)
}

// IsUnauthorized reports whether the call was refused for missing capability.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == 401 || e.StatusCode == 403 || e.Code == CodeUnauthorized
	}
	return false
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
