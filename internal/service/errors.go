// Package service implements the business operations of the payment and
// capacity engine: reserving seats, creating and transitioning payment
// orders, fulfilling successful payments and applying provider webhooks.
// Services consume narrow store interfaces implemented by the repository
// layer; everything transactional lives behind those interfaces so the
// services stay testable with in-memory fakes.
package service

import "errors"

// ErrAmountMismatch is returned when a submitted amount does not equal
// the fee policy's computation for the same inputs. It signals tampering
// or stale client-side pricing and is rejected synchronously, never
// retried.
var ErrAmountMismatch = errors.New("amount does not match computed price")

// ErrSeatsMismatch is returned when an order's seat count differs from
// the seats held by its reservation.
var ErrSeatsMismatch = errors.New("seats do not match reservation")

// ErrReservationRequired is returned when checkout for a paid event
// arrives without a reservation key.
var ErrReservationRequired = errors.New("reservation required for paid event")

// ErrSignatureInvalid is returned for webhook deliveries whose HMAC does
// not verify. Always fatal for that request; logged as a security event.
var ErrSignatureInvalid = errors.New("webhook signature invalid")
