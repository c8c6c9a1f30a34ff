package domain

import "context"

type Service interface {
	// Checkout runs the full purchase pipeline: compliance decision, payment
	// capture, order persistence, and durable enqueue of the downstream side
	// effects. Payment is captured before any order row exists, so a capture
	// failure leaves no trace beyond the audit log.
	Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error)
}
