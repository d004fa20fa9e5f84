package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStatus represents the lifecycle state of a settlement.
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "pending"
	SettlementStatusCompleted SettlementStatus = "completed"
	SettlementStatusFailed    SettlementStatus = "failed"
)

// EnergyTokenDecimals is the on-chain decimal count of the energy token:
// 1 kWh = 10^9 base units.
const EnergyTokenDecimals = 9

// Settlement represents a matched trade awaiting (or having completed)
// on-chain token transfer. Produced by the order-matching subsystem;
// this core only transitions pending -> completed | failed.
type Settlement struct {
	ID              uuid.UUID        `json:"id"`
	SellerID        uuid.UUID        `json:"seller_id"`
	BuyerID         uuid.UUID        `json:"buyer_id"`
	EnergyAmount    decimal.Decimal  `json:"energy_amount"` // kWh
	Status          SettlementStatus `json:"status"`
	TransactionHash *string          `json:"transaction_hash,omitempty"`
	FailureReason   *string          `json:"failure_reason,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the settlement reached a final state.
func (s *Settlement) IsTerminal() bool {
	return s.Status == SettlementStatusCompleted || s.Status == SettlementStatusFailed
}

// BaseUnits converts the energy amount to on-chain base units
// (amount * 10^9), truncating any fractional remainder toward zero so
// the platform never transfers more than the recorded energy amount.
func (s *Settlement) BaseUnits() (uint64, error) {
	return ToBaseUnits(s.EnergyAmount)
}

// ToBaseUnits scales a kWh amount to token base units with truncation.
// Negative amounts and amounts past the uint64 transfer range are rejected
// so corrupted rows can never produce a wrapped transfer amount.
func ToBaseUnits(amount decimal.Decimal) (uint64, error) {
	scaled := amount.Shift(EnergyTokenDecimals).Truncate(0)
	if scaled.Sign() < 0 {
		return 0, fmt.Errorf("energy amount %s is negative", amount)
	}
	units := scaled.BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("energy amount %s exceeds the transferable range", amount)
	}
	return units.Uint64(), nil
}
