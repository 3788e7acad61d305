package domain

import "time"

// MasterSecret is a user's master-password record (stored in master_secrets).
// PasswordSalt is used only for the verify hash and KeyDerivationSalt only for the encryption key;
// both are fixed when the record is created.
type MasterSecret struct {
	UserID            string
	PasswordHash      []byte
	PasswordSalt      []byte
	KeyDerivationSalt []byte
	Iterations        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
