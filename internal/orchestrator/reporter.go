package orchestrator

import "genbridge/pkg/types"

// Reporter receives user-facing progress and error surfaces from the job
// state machine. Implementations belong to the presentation layer (panel,
// CLI); the orchestrator never blocks on Progress but may block on
// ConfirmPayment and Notify, which are user dialogs by design.
type Reporter interface {
	// Progress reports the job's fraction in [0,1] with a display label.
	Progress(jobID string, progress float64, label string)
	// ConfirmPayment offers to open the billing page for a payment-required
	// failure. Returns true when the user accepted.
	ConfirmPayment(p types.PaymentRequired) bool
	// Notify surfaces a job error as a blocking user notification.
	Notify(err error)
}

// NopReporter discards everything; useful as a default and in tests.
type NopReporter struct{}

func (NopReporter) Progress(string, float64, string)          {}
func (NopReporter) ConfirmPayment(types.PaymentRequired) bool { return false }
func (NopReporter) Notify(error)                              {}
