// Package repository defines the MySQL persistence layer and the sentinel
// errors shared across repositories. The sentinels let higher layers
// distinguish failure scenarios with errors.Is: handlers translate them
// into HTTP statuses, and the webhook processor treats ErrAlreadyFinalized
// as idempotent success. Not-found conditions are reported as
// sql.ErrNoRows unless a more specific sentinel exists.
package repository

import "errors"

// ErrEventNotFound is returned when the referenced event does not exist
// in the local read model.
var ErrEventNotFound = errors.New("event not found")

// ErrCapacityExceeded is returned when a reserve attempt would push the
// sum of active holds and confirmed attendee seats past the event
// capacity. It is a definitive business rejection, never retried.
var ErrCapacityExceeded = errors.New("event capacity exceeded")

// ErrAlreadyFinalized is returned when a finalizing transition finds that
// another order for the same (user, event) pair already carries the final
// flag. Internal callers treat this as success; direct API callers see a
// conflict.
var ErrAlreadyFinalized = errors.New("another order is already final for this user and event")

// ErrReservationConsumed is returned when a reservation has already been
// consumed by fulfillment. Re-consumption fails loudly rather than
// double-fulfilling.
var ErrReservationConsumed = errors.New("reservation already consumed")

// ErrExpired is returned when a reservation or order is past its expiry
// timestamp. Expired resources behave like missing ones for all practical
// purposes (lazy expiry).
var ErrExpired = errors.New("resource expired")

// ErrInvalidTransition is returned when a write would violate the order
// state machine, e.g. refunding an order that was never paid.
var ErrInvalidTransition = errors.New("invalid order state transition")

// ErrDuplicateWebhookEvent is returned when inserting a webhook event
// whose (provider, dedup_key) already exists. The unique index raising
// this is the actual idempotency guarantee under concurrent deliveries.
var ErrDuplicateWebhookEvent = errors.New("webhook event already recorded")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")
