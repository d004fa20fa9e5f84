package postgres

import (
	"context"
	"errors"
	"fmt"

	"energy-trading-backend/internal/core/domain"
	"energy-trading-backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SettlementRepo implements ports.SettlementRepository.
type SettlementRepo struct {
	pool Pool
}

// NewSettlementRepo creates a new SettlementRepo.
func NewSettlementRepo(pool Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

// GetByID fetches a settlement by its UUID.
func (r *SettlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error) {
	query := `SELECT id, seller_id, buyer_id, energy_amount, status, transaction_hash, failure_reason, created_at, processed_at
		FROM settlements WHERE id = $1`

	s := &domain.Settlement{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.SellerID, &s.BuyerID, &s.EnergyAmount, &s.Status,
		&s.TransactionHash, &s.FailureReason, &s.CreatedAt, &s.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get settlement by id: %w", err)
	}
	return s, nil
}

// ListPending returns pending settlements oldest-first, capped at limit.
func (r *SettlementRepo) ListPending(ctx context.Context, limit int) ([]domain.Settlement, error) {
	query := `SELECT id, seller_id, buyer_id, energy_amount, status, transaction_hash, failure_reason, created_at, processed_at
		FROM settlements WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending settlements: %w", err)
	}
	defer rows.Close()

	var settlements []domain.Settlement
	for rows.Next() {
		var s domain.Settlement
		if err := rows.Scan(
			&s.ID, &s.SellerID, &s.BuyerID, &s.EnergyAmount, &s.Status,
			&s.TransactionHash, &s.FailureReason, &s.CreatedAt, &s.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan pending settlement: %w", err)
		}
		settlements = append(settlements, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending settlements: %w", err)
	}
	return settlements, nil
}

// MarkCompleted transitions a pending settlement to completed. The status
// guard in the WHERE clause makes the write a no-op if another path already
// moved the row out of pending.
func (r *SettlementRepo) MarkCompleted(ctx context.Context, id uuid.UUID, txSignature string) error {
	query := `UPDATE settlements
		SET status = 'completed', transaction_hash = $2, processed_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.pool.Exec(ctx, query, id, txSignature)
	if err != nil {
		return fmt.Errorf("mark settlement completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrInvalidState("not pending")
	}
	return nil
}

// MarkFailed transitions a pending settlement to failed with a reason.
func (r *SettlementRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `UPDATE settlements
		SET status = 'failed', failure_reason = $2, processed_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	tag, err := r.pool.Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("mark settlement failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.ErrInvalidState("not pending")
	}
	return nil
}
