package ports

import (
	"context"
	"time"

	"energy-trading-backend/internal/core/domain"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// KeyCustody handles encryption and decryption of custodial signing keys.
// Encrypt generates a fresh salt and IV for every call; both must be stored
// alongside the ciphertext and presented again to Decrypt.
type KeyCustody interface {
	Encrypt(plaintext []byte) (ciphertext, salt, iv []byte, err error)
	Decrypt(ciphertext, salt, iv []byte) ([]byte, error)
}

// LedgerClient submits energy-token transfers to the blockchain and reads
// account state. SubmitTransfer creates the destination token account if it
// does not exist yet, with the signer paying rent.
type LedgerClient interface {
	SubmitTransfer(ctx context.Context, signer solana.PrivateKey, fromOwner, toOwner solana.PublicKey, amountBaseUnits uint64) (string, error)
	GetTokenBalance(ctx context.Context, owner solana.PublicKey) (decimal.Decimal, error)
	GetNativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error)
}

// Notifier pushes events to connected websocket clients.
type Notifier interface {
	SendToUser(userID uuid.UUID, event domain.Event)
	Broadcast(event domain.Event)
}

// SettlementLock guards a settlement against concurrent execution across
// processes. Acquire returns false if another holder is active.
type SettlementLock interface {
	Acquire(ctx context.Context, settlementID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, settlementID uuid.UUID) error
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(userID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID uuid.UUID
}

// --- Service Ports (Business Logic) ---

// SettlementService defines the settlement execution business logic.
type SettlementService interface {
	// Execute runs a single pending settlement through transfer and
	// completion, returning the settlement in its final state.
	Execute(ctx context.Context, settlementID uuid.UUID) (*domain.Settlement, error)
	// ExecutePending drains up to limit pending settlements oldest-first.
	// Per-settlement failures are recorded, not returned.
	ExecutePending(ctx context.Context, limit int) (int, error)
}

// WalletService defines custodial wallet business logic.
type WalletService interface {
	// Provision generates a fresh keypair for the user and stores it under
	// custody encryption. Fails if the user already has a wallet.
	Provision(ctx context.Context, userID uuid.UUID) (*domain.WalletRecord, error)
	TokenBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	NativeBalance(ctx context.Context, userID uuid.UUID) (uint64, error)
}
