package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"energy-trading-backend/internal/core/domain"
	"energy-trading-backend/internal/core/ports"
	"energy-trading-backend/pkg/apperror"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	settlementLockTTL = 2 * time.Minute

	// completionWriteAttempts bounds retries of the terminal status write.
	// The on-chain transfer itself is never resubmitted.
	completionWriteAttempts = 3

	// executePendingMaxBatch caps how many settlements one drain can process.
	executePendingMaxBatch = 100
)

// SettlementServiceImpl implements ports.SettlementService.
type SettlementServiceImpl struct {
	settlementRepo ports.SettlementRepository
	walletRepo     ports.WalletRepository
	custody        ports.KeyCustody
	ledger         ports.LedgerClient
	lock           ports.SettlementLock
	notifier       ports.Notifier
	log            zerolog.Logger
}

// NewSettlementService creates a new SettlementServiceImpl.
func NewSettlementService(
	settlementRepo ports.SettlementRepository,
	walletRepo ports.WalletRepository,
	custody ports.KeyCustody,
	ledger ports.LedgerClient,
	lock ports.SettlementLock,
	notifier ports.Notifier,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		settlementRepo: settlementRepo,
		walletRepo:     walletRepo,
		custody:        custody,
		ledger:         ledger,
		lock:           lock,
		notifier:       notifier,
		log:            log,
	}
}

// Execute runs one pending settlement end to end: custody decryption, on-chain
// transfer, terminal status write, then notification fan-out. A seller without
// a custodial wallet leaves the settlement pending so an operator can
// provision one and retry; broken key material (wrong secret, corrupted or
// mismatched keys) and rejected ledger submissions mark it failed.
func (s *SettlementServiceImpl) Execute(ctx context.Context, settlementID uuid.UUID) (*domain.Settlement, error) {
	acquired, err := s.lock.Acquire(ctx, settlementID, settlementLockTTL)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("acquire settlement lock: %w", err))
	}
	if !acquired {
		return nil, apperror.ErrInvalidState("executing")
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), settlementID); err != nil {
			s.log.Warn().Err(err).Str("settlement_id", settlementID.String()).Msg("failed to release settlement lock")
		}
	}()

	settlement, err := s.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load settlement: %w", err))
	}
	if settlement == nil {
		return nil, apperror.ErrSettlementNotFound()
	}
	if settlement.Status != domain.SettlementStatusPending {
		return nil, apperror.ErrInvalidState(string(settlement.Status))
	}

	signer, sellerAddr, err := s.loadSellerSigner(ctx, settlement.SellerID)
	if err != nil {
		if isCustodyDataFailure(err) {
			s.failSettlement(ctx, settlement, err)
		}
		return nil, err
	}
	defer Zeroize(signer)

	buyerWallet, err := s.walletRepo.GetByUserID(ctx, settlement.BuyerID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("load buyer wallet: %w", err))
	}
	if buyerWallet == nil {
		return nil, apperror.ErrWalletNotFound()
	}
	buyerAddr, err := solana.PublicKeyFromBase58(buyerWallet.Address)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("parse buyer address: %w", err))
	}

	amount, err := settlement.BaseUnits()
	if err != nil {
		s.failSettlement(ctx, settlement, err)
		return nil, apperror.InternalError(fmt.Errorf("settlement amount: %w", err))
	}

	sig, err := s.ledger.SubmitTransfer(ctx, signer, sellerAddr, buyerAddr, amount)
	if err != nil {
		s.failSettlement(ctx, settlement, err)
		return nil, apperror.ErrLedger(err)
	}

	// The transfer is on chain now. The status write must not be lost, so it
	// is retried, but the transfer is never resubmitted.
	if err := s.withRetry(ctx, func() error {
		return s.settlementRepo.MarkCompleted(ctx, settlementID, sig)
	}); err != nil {
		s.log.Error().Err(err).
			Str("settlement_id", settlementID.String()).
			Str("tx_signature", sig).
			Msg("transfer confirmed but completion write failed, manual reconciliation required")
		return nil, apperror.ErrDatabaseError(fmt.Errorf("mark completed: %w", err))
	}

	settlement, err = s.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("reload settlement: %w", err))
	}

	s.notifyParties(settlement)

	s.log.Info().
		Str("settlement_id", settlementID.String()).
		Str("tx_signature", sig).
		Uint64("amount_base_units", amount).
		Msg("settlement executed")

	return settlement, nil
}

// ExecutePending drains up to limit pending settlements oldest-first. Each
// settlement fails or succeeds independently; errors are logged and counted
// against nothing. Returns the number of settlements that reached completion.
func (s *SettlementServiceImpl) ExecutePending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 || limit > executePendingMaxBatch {
		limit = executePendingMaxBatch
	}

	pending, err := s.settlementRepo.ListPending(ctx, limit)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("list pending: %w", err))
	}

	completed := 0
	for i := range pending {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		result, err := s.Execute(ctx, pending[i].ID)
		if err != nil {
			s.log.Warn().Err(err).
				Str("settlement_id", pending[i].ID.String()).
				Msg("batch settlement execution failed")
			continue
		}
		if result.Status == domain.SettlementStatusCompleted {
			completed++
		}
	}

	s.log.Info().
		Int("scanned", len(pending)).
		Int("completed", completed).
		Msg("pending settlements drained")

	return completed, nil
}

// loadSellerSigner loads the seller's custodial key and decodes it into a
// signing key, verifying it against the stored wallet address.
func (s *SettlementServiceImpl) loadSellerSigner(ctx context.Context, sellerID uuid.UUID) (solana.PrivateKey, solana.PublicKey, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, sellerID)
	if err != nil {
		return nil, solana.PublicKey{}, apperror.ErrDatabaseError(fmt.Errorf("load seller wallet: %w", err))
	}
	if wallet == nil || !wallet.HasCustody() {
		return nil, solana.PublicKey{}, apperror.ErrMissingCustody()
	}

	material, err := s.custody.Decrypt(wallet.EncryptedKey, wallet.Salt, wallet.IV)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	defer Zeroize(material)

	signer, err := DecodeSigningKey(material)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}

	derived := signer.PublicKey()
	if derived.String() != wallet.Address {
		Zeroize(signer)
		return nil, solana.PublicKey{}, apperror.ErrCustodyIntegrityViolation(wallet.Address, derived.String())
	}

	return signer, derived, nil
}

// failSettlement records a terminal failure. Best-effort with retries; a
// settlement stuck pending after a failed write is re-failed on next attempt.
// No event is pushed: clients see a completion or nothing.
func (s *SettlementServiceImpl) failSettlement(ctx context.Context, settlement *domain.Settlement, cause error) {
	reason := cause.Error()
	if len(reason) > 500 {
		reason = reason[:500]
	}

	if err := s.withRetry(ctx, func() error {
		return s.settlementRepo.MarkFailed(ctx, settlement.ID, reason)
	}); err != nil {
		s.log.Error().Err(err).
			Str("settlement_id", settlement.ID.String()).
			Msg("failed to record settlement failure")
	}
}

// isCustodyDataFailure reports whether the error means the seller's stored
// key material is unusable (wrong secret, corrupted bytes, address mismatch).
// These are terminal: retrying cannot succeed until the data itself changes.
// A missing wallet (CUS_001) is not included; that is a setup gap the
// operator can still repair.
func isCustodyDataFailure(err error) bool {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case apperror.CodeAuthenticationFailure, apperror.CodeInvalidKeyMaterial, apperror.CodeIntegrityViolation:
		return true
	}
	return false
}

// notifyParties pushes a settlement_complete event to both sides of the trade.
// Delivery is best-effort: disconnected users simply miss the push.
func (s *SettlementServiceImpl) notifyParties(settlement *domain.Settlement) {
	event := domain.NewSettlementComplete(settlement)
	s.notifier.SendToUser(settlement.SellerID, event)
	s.notifier.SendToUser(settlement.BuyerID, event)
}

func (s *SettlementServiceImpl) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= completionWriteAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	return err
}
