package submit

import (
	"errors"
	"fmt"
)

// Kind names the step of a submission that failed.
type Kind string

const (
	KindBundleRead       Kind = "bundle read"
	KindBundleConversion Kind = "bundle conversion"
	KindEncode           Kind = "encode"
	KindTransport        Kind = "rpc transport"
	KindRejected         Kind = "rpc rejected"
	KindDecode           Kind = "decode"
)

// Error is a failed submission. It never ends the process; the interaction
// loop renders it into the status pane.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a submission error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
