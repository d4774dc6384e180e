package bookingcore

import "fmt"

// InvalidSignatureError is a security rejection of an inbound webhook. It is
// never retried; the HTTP layer maps it to 401.
type InvalidSignatureError struct {
	Reason string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid webhook signature: %s", e.Reason)
}

// MalformedPayloadError reports a webhook body that passed signature
// verification but can never be processed: unparseable JSON or a missing
// event id. Redelivery cannot succeed; the HTTP layer maps it to 400.
type MalformedPayloadError struct {
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed webhook payload: %s", e.Reason)
}

// InvalidTransitionError reports a webhook event that would regress or
// otherwise break the booking lifecycle graph. The event is recorded as
// processed-with-error and no state change is applied.
type InvalidTransitionError struct {
	BookingID string
	From      string
	To        string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s for booking %s", e.From, e.To, e.BookingID)
}

// UnknownOrderError marks an event that references no locally tracked order.
// Non-fatal: the event is accepted but not actionable, since it may precede
// the local write.
type UnknownOrderError struct {
	ProviderOrderID string
}

func (e *UnknownOrderError) Error() string {
	return fmt.Sprintf("no booking found for provider order %s", e.ProviderOrderID)
}

// OrderStateUnknownError escalates an order-creation attempt that exhausted
// retries: an order may have been created upstream despite the local failure,
// so the booking must not be silently abandoned. Reconciliation (or the
// provider's webhook, once it arrives) is the source of truth.
type OrderStateUnknownError struct {
	BookingID      string
	IdempotencyKey string
	Err            error
}

func (e *OrderStateUnknownError) Error() string {
	return fmt.Sprintf("order creation outcome unknown for booking %s (idempotency key %s): %v", e.BookingID, e.IdempotencyKey, e.Err)
}

func (e *OrderStateUnknownError) Unwrap() error {
	return e.Err
}
