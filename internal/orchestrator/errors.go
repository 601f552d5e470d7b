package orchestrator

import "genbridge/pkg/types"

// jobActiveError signals that a job is already in flight; the caller must
// queue or cancel first.
type jobActiveError struct{}

func (jobActiveError) Error() string { return "a job is already active" }

// IsJobActive reports whether err means submission was refused because a job
// is in flight.
func IsJobActive(err error) bool {
	_, ok := err.(jobActiveError)
	return ok
}

// interruptedError marks a clean stop: user cancellation or a backend
// interrupt. Not reported as a failure, and the queue still advances.
type interruptedError struct{}

func (interruptedError) Error() string { return "job interrupted" }

// IsInterrupted reports whether err is a clean cancellation stop.
func IsInterrupted(err error) bool {
	_, ok := err.(interruptedError)
	return ok
}

// jobFailedError carries a backend-reported job failure, optionally with a
// payment-required hint.
type jobFailedError struct {
	msg     string
	payment *types.PaymentRequired
}

func (e jobFailedError) Error() string { return e.msg }

// IsJobFailed reports whether err is a backend job failure (including the
// empty-result case).
func IsJobFailed(err error) bool {
	_, ok := err.(jobFailedError)
	return ok
}

// PaymentInfo extracts the payment-required record from a job failure, or
// nil when the error carries none.
func PaymentInfo(err error) *types.PaymentRequired {
	if e, ok := err.(jobFailedError); ok {
		return e.payment
	}
	return nil
}
