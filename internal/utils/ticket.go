package utils

import "golang.org/x/crypto/bcrypt"

// HashTicketSecret returns the bcrypt hash of a raw ticket secret. Only
// the hash is stored; the raw secret is handed to the buyer exactly once.
func HashTicketSecret(raw string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyTicketSecret safely compares a stored hash against a presented
// secret, e.g. at event check-in.
func VerifyTicketSecret(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
