package ports

import (
	"context"

	"energy-trading-backend/internal/core/domain"

	"github.com/google/uuid"
)

// SettlementRepository defines persistence operations for settlements.
type SettlementRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error)
	// ListPending returns pending settlements oldest-first, capped at limit.
	ListPending(ctx context.Context, limit int) ([]domain.Settlement, error)
	// MarkCompleted transitions a pending settlement to completed with the
	// ledger transaction signature. Returns apperror SET_002 if the row is
	// no longer pending.
	MarkCompleted(ctx context.Context, id uuid.UUID, txSignature string) error
	// MarkFailed transitions a pending settlement to failed with a reason.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// WalletRepository defines persistence operations for custodial wallet records.
type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.WalletRecord) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.WalletRecord, error)
}
