package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"energy-trading-backend/internal/core/domain"
	"energy-trading-backend/pkg/apperror"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- In-Memory Settlement Repo ---

type inMemorySettlementRepo struct {
	mu          sync.RWMutex
	settlements map[uuid.UUID]*domain.Settlement
}

func newInMemorySettlementRepo() *inMemorySettlementRepo {
	return &inMemorySettlementRepo{settlements: make(map[uuid.UUID]*domain.Settlement)}
}

func (r *inMemorySettlementRepo) put(s *domain.Settlement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.settlements[s.ID] = &cp
}

func (r *inMemorySettlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settlements[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *inMemorySettlementRepo) ListPending(ctx context.Context, limit int) ([]domain.Settlement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var pending []domain.Settlement
	for _, s := range r.settlements {
		if s.Status == domain.SettlementStatusPending {
			pending = append(pending, *s)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *inMemorySettlementRepo) MarkCompleted(ctx context.Context, id uuid.UUID, txSignature string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settlements[id]
	if !ok || s.Status != domain.SettlementStatusPending {
		return apperror.ErrInvalidState("not pending")
	}
	now := time.Now().UTC()
	s.Status = domain.SettlementStatusCompleted
	s.TransactionHash = &txSignature
	s.ProcessedAt = &now
	return nil
}

func (r *inMemorySettlementRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settlements[id]
	if !ok || s.Status != domain.SettlementStatusPending {
		return apperror.ErrInvalidState("not pending")
	}
	now := time.Now().UTC()
	s.Status = domain.SettlementStatusFailed
	s.FailureReason = &reason
	s.ProcessedAt = &now
	return nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.WalletRecord
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.WalletRecord)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, w *domain.WalletRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.wallets[w.UserID]; exists {
		return fmt.Errorf("wallet already exists for user %s", w.UserID)
	}
	cp := *w
	r.wallets[w.UserID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.WalletRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

// --- In-Memory Settlement Lock ---

type inMemorySettlementLock struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

func newInMemorySettlementLock() *inMemorySettlementLock {
	return &inMemorySettlementLock{held: make(map[uuid.UUID]bool)}
}

func (l *inMemorySettlementLock) Acquire(ctx context.Context, settlementID uuid.UUID, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[settlementID] {
		return false, nil
	}
	l.held[settlementID] = true
	return true, nil
}

func (l *inMemorySettlementLock) Release(ctx context.Context, settlementID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, settlementID)
	return nil
}

// --- Fake Ledger Client ---

// fakeLedger records submitted transfers instead of talking to a chain.
// A non-nil submitErr makes every submission fail; a non-zero delay holds
// the submission open so concurrency tests can overlap executions.
type fakeLedger struct {
	mu        sync.Mutex
	submitErr error
	delay     time.Duration
	transfers []fakeTransfer
}

type fakeTransfer struct {
	from   solana.PublicKey
	to     solana.PublicKey
	amount uint64
}

func (f *fakeLedger) SubmitTransfer(ctx context.Context, signer solana.PrivateKey, fromOwner, toOwner solana.PublicKey, amountBaseUnits uint64) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.transfers = append(f.transfers, fakeTransfer{from: fromOwner, to: toOwner, amount: amountBaseUnits})
	return fmt.Sprintf("fake-signature-%d", len(f.transfers)), nil
}

func (f *fakeLedger) GetTokenBalance(ctx context.Context, owner solana.PublicKey) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeLedger) GetNativeBalance(ctx context.Context, owner solana.PublicKey) (uint64, error) {
	return 0, nil
}

func (f *fakeLedger) submissions() []fakeTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeTransfer, len(f.transfers))
	copy(out, f.transfers)
	return out
}
