package solana

import (
	"context"
	"fmt"
	"strings"

	"energy-trading-backend/config"
	"energy-trading-backend/internal/core/domain"

	solanago "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client implements ports.LedgerClient against a Solana RPC node. All energy
// token movements go through SPL transfer-checked instructions on the
// configured mint.
type Client struct {
	rpcClient  *rpc.Client
	mint       solanago.PublicKey
	commitment rpc.CommitmentType
	log        zerolog.Logger
}

// NewClient creates a ledger client for the configured RPC endpoint and mint.
func NewClient(cfg config.SolanaConfig, log zerolog.Logger) (*Client, error) {
	mint, err := solanago.PublicKeyFromBase58(cfg.EnergyMint)
	if err != nil {
		return nil, fmt.Errorf("invalid energy mint address: %w", err)
	}

	return &Client{
		rpcClient:  rpc.New(cfg.RPCURL),
		mint:       mint,
		commitment: parseCommitment(cfg.Commitment),
		log:        log,
	}, nil
}

// SubmitTransfer moves amountBaseUnits of the energy token from the seller to
// the buyer and returns the transaction signature. If the buyer has no
// associated token account yet, one is created in the same transaction with
// the seller paying rent.
func (c *Client) SubmitTransfer(ctx context.Context, signer solanago.PrivateKey, fromOwner, toOwner solanago.PublicKey, amountBaseUnits uint64) (string, error) {
	if !signer.PublicKey().Equals(fromOwner) {
		return "", fmt.Errorf("signer does not match source owner %s", fromOwner)
	}

	sourceATA, _, err := solanago.FindAssociatedTokenAddress(fromOwner, c.mint)
	if err != nil {
		return "", fmt.Errorf("derive source token account: %w", err)
	}
	destATA, _, err := solanago.FindAssociatedTokenAddress(toOwner, c.mint)
	if err != nil {
		return "", fmt.Errorf("derive destination token account: %w", err)
	}

	var instructions []solanago.Instruction

	destInfo, err := c.rpcClient.GetAccountInfo(ctx, destATA)
	if err != nil && !isAccountNotFound(err) {
		return "", fmt.Errorf("check destination token account: %w", err)
	}
	if isAccountNotFound(err) || destInfo.Value == nil {
		c.log.Debug().
			Str("owner", toOwner.String()).
			Str("ata", destATA.String()).
			Msg("destination token account missing, creating in-flight")
		instructions = append(instructions, associatedtokenaccount.NewCreateInstruction(
			fromOwner, // payer
			toOwner,   // owner
			c.mint,
		).Build())
	}

	instructions = append(instructions, token.NewTransferCheckedInstruction(
		amountBaseUnits,
		uint8(domain.EnergyTokenDecimals),
		sourceATA,
		c.mint,
		destATA,
		fromOwner,
		[]solanago.PublicKey{},
	).Build())

	recent, err := c.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solanago.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solanago.TransactionPayer(fromOwner),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if signer.PublicKey().Equals(key) {
			return &signer
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	return sig.String(), nil
}

// GetTokenBalance returns the energy token balance of an owner in whole
// tokens. An owner without a token account simply has zero balance.
func (c *Client) GetTokenBalance(ctx context.Context, owner solanago.PublicKey) (decimal.Decimal, error) {
	ata, _, err := solanago.FindAssociatedTokenAddress(owner, c.mint)
	if err != nil {
		return decimal.Zero, fmt.Errorf("derive token account: %w", err)
	}

	balance, err := c.rpcClient.GetTokenAccountBalance(ctx, ata, c.commitment)
	if err != nil {
		if isAccountNotFound(err) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("get token account balance: %w", err)
	}
	if balance.Value == nil {
		return decimal.Zero, nil
	}

	return baseUnitsToTokens(balance.Value.Amount)
}

// GetNativeBalance returns the owner's native balance in lamports.
func (c *Client) GetNativeBalance(ctx context.Context, owner solanago.PublicKey) (uint64, error) {
	balance, err := c.rpcClient.GetBalance(ctx, owner, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get native balance: %w", err)
	}
	return balance.Value, nil
}

// baseUnitsToTokens converts a raw base-unit amount string into whole tokens.
func baseUnitsToTokens(amount string) (decimal.Decimal, error) {
	raw, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token amount %q: %w", amount, err)
	}
	return raw.Shift(-domain.EnergyTokenDecimals), nil
}

func parseCommitment(s string) rpc.CommitmentType {
	switch s {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

// isAccountNotFound checks if an RPC error indicates a missing account.
func isAccountNotFound(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "could not find account") ||
		strings.Contains(errStr, "not found")
}
