// Package deliver implements the notification channels the dispatch gate
// sends through. A channel reports one Outcome per attempt; it never retries
// internally, leaving retry policy to the pipeline.
package deliver

import (
	"errors"
	"time"

	"newsgate/internal/event"
)

// Error wraps a delivery failure with its retry class. Transient failures
// (timeouts, network, 5xx, flood control) are retried; permanent ones
// (payload rejected, 4xx) are dropped so a poison item can't loop forever.
type Error struct {
	msg       string
	cause     error
	permanent bool
}

func (e *Error) Error() string   { return e.msg }
func (e *Error) Unwrap() error   { return e.cause }
func (e *Error) Permanent() bool { return e.permanent }

// Transient wraps err as a retryable delivery failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{msg: "transient delivery failure: " + err.Error(), cause: err}
}

// Permanent wraps err as a non-retryable delivery failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &Error{msg: "permanent delivery failure: " + err.Error(), cause: err, permanent: true}
}

// IsPermanent reports whether err is a non-retryable delivery failure.
func IsPermanent(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.permanent
}

func failure(itemID string, err error) event.Outcome {
	return event.Outcome{ItemID: itemID, Delivered: false, AttemptedAt: time.Now(), Err: err}
}

func success(itemID string) event.Outcome {
	return event.Outcome{ItemID: itemID, Delivered: true, AttemptedAt: time.Now()}
}
