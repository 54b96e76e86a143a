package model

import "time"

// TransactionType classifies ledger entries under a payment order.
type TransactionType string

const (
	TransactionTypePayment    TransactionType = "PAYMENT"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeChargeback TransactionType = "CHARGEBACK"
)

// PaymentTransaction is an append-only ledger entry under a PaymentOrder.
// Rows are never mutated after creation; together they provide the full
// history that a single status field cannot.
type PaymentTransaction struct {
	ID          uint64          // payment_transactions.id
	OrderID     string          // payment_transactions.order_id
	Type        TransactionType // payment_transactions.type
	AmountCents int64           // payment_transactions.amount_cents
	Currency    string          // payment_transactions.currency
	ProviderRef string          // payment_transactions.provider_ref
	RawResponse string          // payment_transactions.raw_response
	CreatedAt   time.Time       // payment_transactions.created_at
}
