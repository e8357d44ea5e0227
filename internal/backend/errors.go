package backend

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/DaanHessen/storyloom/internal/engine"
)

// Error is a failed exchange with the content backend.
type Error struct {
	Kind engine.Failure
	// Status is the HTTP status code, zero when no response arrived.
	Status int
	// Rejected is set when a well-formed reply carried a non-success status.
	Rejected bool
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	switch {
	case e.Rejected:
		return fmt.Sprintf("backend rejected request: %s", e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("backend %s error: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("backend %s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind returns the failure class of err, FailureOther for foreign errors.
func Kind(err error) engine.Failure {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return engine.FailureOther
}

// Rejection returns the backend's message when err is a non-success reply.
func Rejection(err error) (string, bool) {
	var be *Error
	if errors.As(err, &be) && be.Rejected {
		return be.Msg, true
	}
	return "", false
}

// Detail is the message carried by a backend error, or err's text.
func Detail(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func transportError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: engine.FailureTimeout, Msg: "request timed out", Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Kind: engine.FailureTimeout, Msg: "request timed out", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: engine.FailureOther, Msg: "request canceled", Err: err}
	}
	return &Error{Kind: engine.FailureNetwork, Msg: "connection failed", Err: err}
}
