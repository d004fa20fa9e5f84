package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"

	"energy-trading-backend/internal/core/domain"
	"energy-trading-backend/internal/core/ports/mocks"
	"energy-trading-backend/pkg/apperror"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type settlementTestDeps struct {
	svc            *SettlementServiceImpl
	settlementRepo *mocks.MockSettlementRepository
	walletRepo     *mocks.MockWalletRepository
	custody        *mocks.MockKeyCustody
	ledger         *mocks.MockLedgerClient
	lock           *mocks.MockSettlementLock
	notifier       *mocks.MockNotifier
	ctrl           *gomock.Controller
}

func setupSettlementService(t *testing.T) *settlementTestDeps {
	ctrl := gomock.NewController(t)
	d := &settlementTestDeps{
		settlementRepo: mocks.NewMockSettlementRepository(ctrl),
		walletRepo:     mocks.NewMockWalletRepository(ctrl),
		custody:        mocks.NewMockKeyCustody(ctrl),
		ledger:         mocks.NewMockLedgerClient(ctrl),
		lock:           mocks.NewMockSettlementLock(ctrl),
		notifier:       mocks.NewMockNotifier(ctrl),
		ctrl:           ctrl,
	}
	d.svc = NewSettlementService(
		d.settlementRepo, d.walletRepo, d.custody, d.ledger,
		d.lock, d.notifier, zerolog.Nop(),
	)
	return d
}

// testSeller builds a custodial wallet whose address matches the seed-derived
// public key, plus the raw seed to return from the mocked Decrypt.
func testSeller(t *testing.T, userID uuid.UUID) (*domain.WalletRecord, []byte, solana.PublicKey) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)

	full := ed25519.NewKeyFromSeed(seed)
	pub := solana.PublicKeyFromBytes(full[32:])

	wallet := &domain.WalletRecord{
		UserID:       userID,
		Address:      pub.String(),
		EncryptedKey: []byte("ciphertext"),
		Salt:         []byte("salt"),
		IV:           []byte("iv"),
	}
	return wallet, seed, pub
}

func pendingSettlement(sellerID, buyerID uuid.UUID, amount string) *domain.Settlement {
	energy, _ := decimal.NewFromString(amount)
	return &domain.Settlement{
		ID:           uuid.New(),
		SellerID:     sellerID,
		BuyerID:      buyerID,
		EnergyAmount: energy,
		Status:       domain.SettlementStatusPending,
	}
}

func TestSettlementService_Execute_Success(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerID, buyerID := uuid.New(), uuid.New()
	settlement := pendingSettlement(sellerID, buyerID, "2.5")

	sellerWallet, seed, sellerPub := testSeller(t, sellerID)
	buyerAccount := solana.NewWallet()
	buyerWallet := &domain.WalletRecord{UserID: buyerID, Address: buyerAccount.PublicKey().String()}

	sig := "5sigTransferConfirmed"
	completed := *settlement
	completed.Status = domain.SettlementStatusCompleted
	completed.TransactionHash = &sig

	d.lock.EXPECT().Acquire(ctx, settlement.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(settlement, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, sellerID).Return(sellerWallet, nil)
	d.custody.EXPECT().Decrypt(sellerWallet.EncryptedKey, sellerWallet.Salt, sellerWallet.IV).Return(seed, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, buyerID).Return(buyerWallet, nil)
	d.ledger.EXPECT().
		SubmitTransfer(ctx, gomock.Any(), sellerPub, buyerAccount.PublicKey(), uint64(2_500_000_000)).
		Return(sig, nil)
	d.settlementRepo.EXPECT().MarkCompleted(ctx, settlement.ID, sig).Return(nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(&completed, nil)
	d.notifier.EXPECT().SendToUser(sellerID, gomock.Any())
	d.notifier.EXPECT().SendToUser(buyerID, gomock.Any())
	d.lock.EXPECT().Release(gomock.Any(), settlement.ID).Return(nil)

	result, err := d.svc.Execute(ctx, settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusCompleted, result.Status)
	require.NotNil(t, result.TransactionHash)
	assert.Equal(t, sig, *result.TransactionHash)
}

func TestSettlementService_Execute_NotFound(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()

	d.lock.EXPECT().Acquire(ctx, id, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)
	d.lock.EXPECT().Release(gomock.Any(), id).Return(nil)

	_, err := d.svc.Execute(ctx, id)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SET_001", appErr.Code)
}

func TestSettlementService_Execute_AlreadyTerminal(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	settlement := pendingSettlement(uuid.New(), uuid.New(), "1")
	settlement.Status = domain.SettlementStatusCompleted

	d.lock.EXPECT().Acquire(ctx, settlement.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(settlement, nil)
	d.lock.EXPECT().Release(gomock.Any(), settlement.ID).Return(nil)

	_, err := d.svc.Execute(ctx, settlement.ID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SET_002", appErr.Code)
}

func TestSettlementService_Execute_LockHeldElsewhere(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()

	d.lock.EXPECT().Acquire(ctx, id, settlementLockTTL).Return(false, nil)

	_, err := d.svc.Execute(ctx, id)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SET_002", appErr.Code)
}

func TestSettlementService_Execute_MissingCustody_StaysPending(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerID := uuid.New()
	settlement := pendingSettlement(sellerID, uuid.New(), "1")

	// Watch-only record: address but no encrypted key material.
	watchOnly := &domain.WalletRecord{UserID: sellerID, Address: solana.NewWallet().PublicKey().String()}

	d.lock.EXPECT().Acquire(ctx, settlement.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(settlement, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, sellerID).Return(watchOnly, nil)
	d.lock.EXPECT().Release(gomock.Any(), settlement.ID).Return(nil)
	// No MarkFailed: custody gaps are operator-repairable, the settlement
	// must stay pending.

	_, err := d.svc.Execute(ctx, settlement.ID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CUS_001", appErr.Code)
}

func TestSettlementService_Execute_WrongCustodySecret_MarksFailed(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerID := uuid.New()
	settlement := pendingSettlement(sellerID, uuid.New(), "1")
	sellerWallet, _, _ := testSeller(t, sellerID)

	d.lock.EXPECT().Acquire(ctx, settlement.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(settlement, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, sellerID).Return(sellerWallet, nil)
	d.custody.EXPECT().
		Decrypt(sellerWallet.EncryptedKey, sellerWallet.Salt, sellerWallet.IV).
		Return(nil, apperror.ErrAuthenticationFailure(errors.New("cipher: message authentication failed")))
	// Unusable key material is terminal; no event is pushed.
	d.settlementRepo.EXPECT().MarkFailed(ctx, settlement.ID, gomock.Any()).Return(nil)
	d.lock.EXPECT().Release(gomock.Any(), settlement.ID).Return(nil)

	_, err := d.svc.Execute(ctx, settlement.ID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CUS_002", appErr.Code)
}

func TestSettlementService_Execute_CorruptKeyMaterial_MarksFailed(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerID := uuid.New()
	settlement := pendingSettlement(sellerID, uuid.New(), "1")
	sellerWallet, _, _ := testSeller(t, sellerID)

	d.lock.EXPECT().Acquire(ctx, settlement.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(settlement, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, sellerID).Return(sellerWallet, nil)
	// Decrypts fine but the plaintext is not a valid key length.
	d.custody.EXPECT().
		Decrypt(sellerWallet.EncryptedKey, sellerWallet.Salt, sellerWallet.IV).
		Return(make([]byte, 48), nil)
	d.settlementRepo.EXPECT().MarkFailed(ctx, settlement.ID, gomock.Any()).Return(nil)
	d.lock.EXPECT().Release(gomock.Any(), settlement.ID).Return(nil)

	_, err := d.svc.Execute(ctx, settlement.ID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CUS_003", appErr.Code)
}

func TestSettlementService_Execute_AddressMismatch_MarksFailed(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerID := uuid.New()
	settlement := pendingSettlement(sellerID, uuid.New(), "1")

	sellerWallet, seed, _ := testSeller(t, sellerID)
	// Stored address belongs to some other key.
	sellerWallet.Address = solana.NewWallet().PublicKey().String()

	d.lock.EXPECT().Acquire(ctx, settlement.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(settlement, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, sellerID).Return(sellerWallet, nil)
	d.custody.EXPECT().Decrypt(sellerWallet.EncryptedKey, sellerWallet.Salt, sellerWallet.IV).Return(seed, nil)
	d.settlementRepo.EXPECT().MarkFailed(ctx, settlement.ID, gomock.Any()).Return(nil)
	d.lock.EXPECT().Release(gomock.Any(), settlement.ID).Return(nil)

	_, err := d.svc.Execute(ctx, settlement.ID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "CUS_004", appErr.Code)
}

func TestSettlementService_Execute_NegativeAmount_MarksFailed(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerID, buyerID := uuid.New(), uuid.New()
	settlement := pendingSettlement(sellerID, buyerID, "-1")

	sellerWallet, seed, _ := testSeller(t, sellerID)
	buyerWallet := &domain.WalletRecord{UserID: buyerID, Address: solana.NewWallet().PublicKey().String()}

	d.lock.EXPECT().Acquire(ctx, settlement.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(settlement, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, sellerID).Return(sellerWallet, nil)
	d.custody.EXPECT().Decrypt(sellerWallet.EncryptedKey, sellerWallet.Salt, sellerWallet.IV).Return(seed, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, buyerID).Return(buyerWallet, nil)
	// Nothing may reach the ledger with a corrupted amount.
	d.settlementRepo.EXPECT().MarkFailed(ctx, settlement.ID, gomock.Any()).Return(nil)
	d.lock.EXPECT().Release(gomock.Any(), settlement.ID).Return(nil)

	_, err := d.svc.Execute(ctx, settlement.ID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SYS_001", appErr.Code)
}

func TestSettlementService_Execute_LedgerRejection_MarksFailed(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerID, buyerID := uuid.New(), uuid.New()
	settlement := pendingSettlement(sellerID, buyerID, "3")

	sellerWallet, seed, sellerPub := testSeller(t, sellerID)
	buyerAccount := solana.NewWallet()
	buyerWallet := &domain.WalletRecord{UserID: buyerID, Address: buyerAccount.PublicKey().String()}

	submitErr := errors.New("insufficient funds for rent")

	d.lock.EXPECT().Acquire(ctx, settlement.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(settlement, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, sellerID).Return(sellerWallet, nil)
	d.custody.EXPECT().Decrypt(sellerWallet.EncryptedKey, sellerWallet.Salt, sellerWallet.IV).Return(seed, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, buyerID).Return(buyerWallet, nil)
	d.ledger.EXPECT().
		SubmitTransfer(ctx, gomock.Any(), sellerPub, buyerAccount.PublicKey(), uint64(3_000_000_000)).
		Return("", submitErr)
	// Failure is recorded but never fanned out; the strict mock controller
	// fails the test if the service pushes an event here.
	d.settlementRepo.EXPECT().MarkFailed(ctx, settlement.ID, submitErr.Error()).Return(nil)
	d.lock.EXPECT().Release(gomock.Any(), settlement.ID).Return(nil)

	_, err := d.svc.Execute(ctx, settlement.ID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "LED_001", appErr.Code)
}

func TestSettlementService_Execute_CompletionWriteRetried(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerID, buyerID := uuid.New(), uuid.New()
	settlement := pendingSettlement(sellerID, buyerID, "1")

	sellerWallet, seed, sellerPub := testSeller(t, sellerID)
	buyerAccount := solana.NewWallet()
	buyerWallet := &domain.WalletRecord{UserID: buyerID, Address: buyerAccount.PublicKey().String()}

	sig := "sigRetryPath"
	completed := *settlement
	completed.Status = domain.SettlementStatusCompleted
	completed.TransactionHash = &sig

	d.lock.EXPECT().Acquire(ctx, settlement.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(settlement, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, sellerID).Return(sellerWallet, nil)
	d.custody.EXPECT().Decrypt(sellerWallet.EncryptedKey, sellerWallet.Salt, sellerWallet.IV).Return(seed, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, buyerID).Return(buyerWallet, nil)
	// The transfer goes through exactly once even though the status write
	// flakes twice.
	d.ledger.EXPECT().
		SubmitTransfer(ctx, gomock.Any(), sellerPub, buyerAccount.PublicKey(), uint64(1_000_000_000)).
		Times(1).
		Return(sig, nil)
	gomock.InOrder(
		d.settlementRepo.EXPECT().MarkCompleted(ctx, settlement.ID, sig).Return(errors.New("deadlock detected")),
		d.settlementRepo.EXPECT().MarkCompleted(ctx, settlement.ID, sig).Return(errors.New("deadlock detected")),
		d.settlementRepo.EXPECT().MarkCompleted(ctx, settlement.ID, sig).Return(nil),
	)
	d.settlementRepo.EXPECT().GetByID(ctx, settlement.ID).Return(&completed, nil)
	d.notifier.EXPECT().SendToUser(sellerID, gomock.Any())
	d.notifier.EXPECT().SendToUser(buyerID, gomock.Any())
	d.lock.EXPECT().Release(gomock.Any(), settlement.ID).Return(nil)

	result, err := d.svc.Execute(ctx, settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementStatusCompleted, result.Status)
}

func TestSettlementService_ExecutePending_MixedBatch(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	sellerID, buyerID := uuid.New(), uuid.New()
	ok := pendingSettlement(sellerID, buyerID, "1")
	orphan := pendingSettlement(uuid.New(), uuid.New(), "2")

	sellerWallet, seed, sellerPub := testSeller(t, sellerID)
	buyerAccount := solana.NewWallet()
	buyerWallet := &domain.WalletRecord{UserID: buyerID, Address: buyerAccount.PublicKey().String()}

	sig := "sigBatch"
	completed := *ok
	completed.Status = domain.SettlementStatusCompleted
	completed.TransactionHash = &sig

	d.settlementRepo.EXPECT().ListPending(ctx, 50).Return([]domain.Settlement{*ok, *orphan}, nil)

	// First settlement runs to completion.
	d.lock.EXPECT().Acquire(ctx, ok.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, ok.ID).Return(ok, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, sellerID).Return(sellerWallet, nil)
	d.custody.EXPECT().Decrypt(sellerWallet.EncryptedKey, sellerWallet.Salt, sellerWallet.IV).Return(seed, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, buyerID).Return(buyerWallet, nil)
	d.ledger.EXPECT().
		SubmitTransfer(ctx, gomock.Any(), sellerPub, buyerAccount.PublicKey(), uint64(1_000_000_000)).
		Return(sig, nil)
	d.settlementRepo.EXPECT().MarkCompleted(ctx, ok.ID, sig).Return(nil)
	d.settlementRepo.EXPECT().GetByID(ctx, ok.ID).Return(&completed, nil)
	d.notifier.EXPECT().SendToUser(sellerID, gomock.Any())
	d.notifier.EXPECT().SendToUser(buyerID, gomock.Any())
	d.lock.EXPECT().Release(gomock.Any(), ok.ID).Return(nil)

	// Second settlement has no seller wallet at all: skipped, stays pending.
	d.lock.EXPECT().Acquire(ctx, orphan.ID, settlementLockTTL).Return(true, nil)
	d.settlementRepo.EXPECT().GetByID(ctx, orphan.ID).Return(orphan, nil)
	d.walletRepo.EXPECT().GetByUserID(ctx, orphan.SellerID).Return(nil, nil)
	d.lock.EXPECT().Release(gomock.Any(), orphan.ID).Return(nil)

	count, err := d.svc.ExecutePending(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSettlementService_ExecutePending_EmptyQueue(t *testing.T) {
	d := setupSettlementService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.settlementRepo.EXPECT().ListPending(ctx, executePendingMaxBatch).Return(nil, nil)

	count, err := d.svc.ExecutePending(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, count)
}
