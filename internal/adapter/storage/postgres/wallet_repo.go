package postgres

import (
	"context"
	"errors"
	"fmt"

	"energy-trading-backend/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a new custodial wallet record.
func (r *WalletRepo) Create(ctx context.Context, w *domain.WalletRecord) error {
	query := `INSERT INTO wallets (user_id, address, encrypted_key, salt, iv, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		w.UserID, w.Address, w.EncryptedKey, w.Salt, w.IV, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet record by owner. Returns nil when the user
// has no wallet.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.WalletRecord, error) {
	query := `SELECT user_id, address, encrypted_key, salt, iv, created_at
		FROM wallets WHERE user_id = $1`

	w := &domain.WalletRecord{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.Address, &w.EncryptedKey, &w.Salt, &w.IV, &w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by user id: %w", err)
	}
	return w, nil
}
