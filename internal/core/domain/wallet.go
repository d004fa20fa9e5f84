package domain

import (
	"time"

	"github.com/google/uuid"
)

// WalletRecord holds a user's custodial wallet: the public address plus
// the private key material encrypted at rest. EncryptedKey, Salt and IV
// are opaque byte sequences and must be all present or all absent.
type WalletRecord struct {
	UserID       uuid.UUID `json:"user_id"`
	Address      string    `json:"address"` // base58, derived from the key
	EncryptedKey []byte    `json:"-"`
	Salt         []byte    `json:"-"`
	IV           []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasCustody returns true if the record carries a complete encrypted
// key blob. A record with only an address is a watch-only wallet and
// cannot sign settlements.
func (w *WalletRecord) HasCustody() bool {
	return len(w.EncryptedKey) > 0 && len(w.Salt) > 0 && len(w.IV) > 0
}
