package service

import (
	"context"
	"fmt"
	"time"

	"energy-trading-backend/internal/core/domain"
	"energy-trading-backend/internal/core/ports"
	"energy-trading-backend/pkg/apperror"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	custody    ports.KeyCustody
	ledger     ports.LedgerClient
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl.
func NewWalletService(
	walletRepo ports.WalletRepository,
	custody ports.KeyCustody,
	ledger ports.LedgerClient,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		custody:    custody,
		ledger:     ledger,
		log:        log,
	}
}

// Provision generates a fresh keypair for the user and stores it under
// custody encryption. A user gets exactly one custodial wallet.
func (s *WalletServiceImpl) Provision(ctx context.Context, userID uuid.UUID) (*domain.WalletRecord, error) {
	existing, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("check existing wallet: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrWalletExists()
	}

	account := solana.NewWallet()
	material := []byte(account.PrivateKey)
	defer Zeroize(material)

	ciphertext, salt, iv, err := s.custody.Encrypt(material)
	if err != nil {
		return nil, err
	}

	record := &domain.WalletRecord{
		UserID:       userID,
		Address:      account.PublicKey().String(),
		EncryptedKey: ciphertext,
		Salt:         salt,
		IV:           iv,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.walletRepo.Create(ctx, record); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create wallet: %w", err))
	}

	s.log.Info().
		Str("user_id", userID.String()).
		Str("address", record.Address).
		Msg("custodial wallet provisioned")

	return record, nil
}

// TokenBalance returns the user's energy token balance in whole tokens.
func (s *WalletServiceImpl) TokenBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	owner, err := s.ownerKey(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := s.ledger.GetTokenBalance(ctx, owner)
	if err != nil {
		return decimal.Zero, apperror.ErrLedger(err)
	}
	return balance, nil
}

// NativeBalance returns the user's native balance in lamports.
func (s *WalletServiceImpl) NativeBalance(ctx context.Context, userID uuid.UUID) (uint64, error) {
	owner, err := s.ownerKey(ctx, userID)
	if err != nil {
		return 0, err
	}
	balance, err := s.ledger.GetNativeBalance(ctx, owner)
	if err != nil {
		return 0, apperror.ErrLedger(err)
	}
	return balance, nil
}

func (s *WalletServiceImpl) ownerKey(ctx context.Context, userID uuid.UUID) (solana.PublicKey, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return solana.PublicKey{}, apperror.ErrDatabaseError(fmt.Errorf("load wallet: %w", err))
	}
	if wallet == nil {
		return solana.PublicKey{}, apperror.ErrWalletNotFound()
	}
	owner, err := solana.PublicKeyFromBase58(wallet.Address)
	if err != nil {
		return solana.PublicKey{}, apperror.InternalError(fmt.Errorf("parse wallet address: %w", err))
	}
	return owner, nil
}
