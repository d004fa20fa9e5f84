package service

import (
	"context"
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

type walletTestDeps struct {
	svc        *WalletServiceImpl
	walletRepo *mocks.MockWalletRepository
	custody    *mocks.MockKeyCustody
	ledger     *mocks.MockLedgerClient
	ctrl       *gomock.Controller
}

func setupWalletService(t *testing.T) *walletTestDeps {
	ctrl := gomock.NewController(t)
	d := &walletTestDeps{
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		custody:    mocks.NewMockKeyCustody(ctrl),
		ledger:     mocks.NewMockLedgerClient(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewWalletService(d.walletRepo, d.custody, d.ledger, zerolog.Nop())
	return d
}

func TestWalletService_Provision_Success(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(nil, nil)
	d.custody.EXPECT().Encrypt(gomock.Len(64)).
		Return([]byte("ct"), []byte("salt"), []byte("iv"), nil)

	var created *domain.WalletRecord
	d.walletRepo.EXPECT().Create(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, w *domain.WalletRecord) error {
			created = w
			return nil
		})

	record, err := d.svc.Provision(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, record.UserID)
	assert.True(t, record.HasCustody())

	// Address must be a valid base58 public key.
	_, err = solana.PublicKeyFromBase58(record.Address)
	assert.NoError(t, err)
	assert.Equal(t, record, created)
}

func TestWalletService_Provision_AlreadyExists(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).
		Return(&domain.WalletRecord{UserID: userID}, nil)

	_, err := d.svc.Provision(ctx, userID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SET_004", appErr.Code)
}

func TestWalletService_TokenBalance(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	owner := solana.NewWallet().PublicKey()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).
		Return(&domain.WalletRecord{UserID: userID, Address: owner.String()}, nil)
	d.ledger.EXPECT().GetTokenBalance(ctx, owner).
		Return(decimal.RequireFromString("12.5"), nil)

	balance, err := d.svc.TokenBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("12.5")))
}

func TestWalletService_TokenBalance_NoWallet(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).Return(nil, nil)

	_, err := d.svc.TokenBalance(ctx, userID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "SET_003", appErr.Code)
}

func TestWalletService_NativeBalance(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	owner := solana.NewWallet().PublicKey()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).
		Return(&domain.WalletRecord{UserID: userID, Address: owner.String()}, nil)
	d.ledger.EXPECT().GetNativeBalance(ctx, owner).Return(uint64(5_000_000), nil)

	balance, err := d.svc.NativeBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), balance)
}

func TestWalletService_NativeBalance_RPCDown(t *testing.T) {
	d := setupWalletService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	userID := uuid.New()
	owner := solana.NewWallet().PublicKey()

	d.walletRepo.EXPECT().GetByUserID(ctx, userID).
		Return(&domain.WalletRecord{UserID: userID, Address: owner.String()}, nil)
	d.ledger.EXPECT().GetNativeBalance(ctx, owner).
		Return(uint64(0), errors.New("rpc: connection refused"))

	_, err := d.svc.NativeBalance(ctx, userID)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "LED_001", appErr.Code)
}
