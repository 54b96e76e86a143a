package service

import (
	"github.com/gatherly/event-payments/internal/utils"
)

// FulfillmentCoordinator prepares the artifacts that turn a reservation
// into confirmed attendance. The expensive work (secret generation,
// bcrypt hashing) runs before the finalization transaction so no row
// locks are held during it. The atomic apply (consume the reservation,
// insert the attendance record, bump the going counter) happens inside
// the order store's FinalizePaid and rolls back as one unit with the
// payment itself.
type FulfillmentCoordinator struct {
	bcryptCost int
}

// NewFulfillmentCoordinator constructs a coordinator with the given
// bcrypt cost for ticket secrets.
func NewFulfillmentCoordinator(bcryptCost int) *FulfillmentCoordinator {
	return &FulfillmentCoordinator{bcryptCost: bcryptCost}
}

// PrepareTicket generates a fresh ticket secret and its storage hash.
// The raw secret is surfaced exactly once, in the attendance fact; only
// the hash is persisted.
func (f *FulfillmentCoordinator) PrepareTicket() (rawSecret, hash string, err error) {
	rawSecret, err = utils.RandomHex(32)
	if err != nil {
		return "", "", err
	}
	hash, err = utils.HashTicketSecret(rawSecret, f.bcryptCost)
	if err != nil {
		return "", "", err
	}
	return rawSecret, hash, nil
}

// VerifyTicket checks a presented secret against the stored hash, e.g.
// at event check-in.
func (f *FulfillmentCoordinator) VerifyTicket(hash, rawSecret string) bool {
	return utils.VerifyTicketSecret(hash, rawSecret)
}
