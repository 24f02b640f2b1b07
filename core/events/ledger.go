package events

import (
	"math/big"
	"strconv"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/types"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

const (
	TypeStaked              = "ledger.staked"
	TypeUnstaked            = "ledger.unstaked"
	TypeCollateralSubmitted = "ledger.collateral.submitted"
	TypeCollateralVerified  = "ledger.collateral.verified"
	TypeLoanIssued          = "ledger.loan.issued"
	TypeMonthlyInterestPaid = "ledger.loan.interest_paid"
	TypeLoanRepaid          = "ledger.loan.repaid"
	TypeLiquidityAdded      = "ledger.liquidity.added"
	TypeLiquidityRemoved    = "ledger.liquidity.removed"
)

// Staked is emitted when an account opens a stake.
type Staked struct {
	Account   crypto.Address
	Amount    *big.Int
	APY       uint64
	Timestamp int64
}

func (Staked) EventType() string { return TypeStaked }

func (e Staked) Event() *types.Event {
	return &types.Event{
		Type:      TypeStaked,
		Timestamp: e.Timestamp,
		Attributes: map[string]string{
			"account": e.Account.String(),
			"amount":  formatAmount(e.Amount),
			"apy":     strconv.FormatUint(e.APY, 10),
		},
	}
}

// Unstaked is emitted when a stake is closed and paid out.
type Unstaked struct {
	Account   crypto.Address
	Principal *big.Int
	Reward    *big.Int
	Payout    *big.Int
	Timestamp int64
}

func (Unstaked) EventType() string { return TypeUnstaked }

func (e Unstaked) Event() *types.Event {
	return &types.Event{
		Type:      TypeUnstaked,
		Timestamp: e.Timestamp,
		Attributes: map[string]string{
			"account":   e.Account.String(),
			"principal": formatAmount(e.Principal),
			"reward":    formatAmount(e.Reward),
			"amount":    formatAmount(e.Payout),
		},
	}
}

// CollateralSubmitted records a pending loan request and its collateral
// descriptor.
type CollateralSubmitted struct {
	Account         crypto.Address
	CollateralType  string
	TokenID         *big.Int
	ContractAddress string
	ContractChain   string
	Timestamp       int64
}

func (CollateralSubmitted) EventType() string { return TypeCollateralSubmitted }

func (e CollateralSubmitted) Event() *types.Event {
	return &types.Event{
		Type:      TypeCollateralSubmitted,
		Timestamp: e.Timestamp,
		Attributes: map[string]string{
			"account":  e.Account.String(),
			"type":     e.CollateralType,
			"tokenId":  formatAmount(e.TokenID),
			"contract": e.ContractAddress,
			"chain":    e.ContractChain,
			"amount":   "0",
		},
	}
}

// CollateralVerified records the authority decision on a collateral
// descriptor.
type CollateralVerified struct {
	Account   crypto.Address
	Verified  bool
	Authority crypto.Address
	Timestamp int64
}

func (CollateralVerified) EventType() string { return TypeCollateralVerified }

func (e CollateralVerified) Event() *types.Event {
	return &types.Event{
		Type:      TypeCollateralVerified,
		Timestamp: e.Timestamp,
		Attributes: map[string]string{
			"account":   e.Account.String(),
			"verified":  strconv.FormatBool(e.Verified),
			"authority": e.Authority.String(),
		},
	}
}

// LoanIssued is emitted when loan funds leave the pool.
type LoanIssued struct {
	Account   crypto.Address
	Amount    *big.Int
	Duration  int64
	Timestamp int64
}

func (LoanIssued) EventType() string { return TypeLoanIssued }

func (e LoanIssued) Event() *types.Event {
	return &types.Event{
		Type:      TypeLoanIssued,
		Timestamp: e.Timestamp,
		Attributes: map[string]string{
			"account":  e.Account.String(),
			"amount":   formatAmount(e.Amount),
			"duration": intToString(e.Duration),
		},
	}
}

// MonthlyInterestPaid is emitted for every settled monthly installment.
type MonthlyInterestPaid struct {
	Account    crypto.Address
	Amount     *big.Int
	MonthsPaid uint64
	Timestamp  int64
}

func (MonthlyInterestPaid) EventType() string { return TypeMonthlyInterestPaid }

func (e MonthlyInterestPaid) Event() *types.Event {
	return &types.Event{
		Type:      TypeMonthlyInterestPaid,
		Timestamp: e.Timestamp,
		Attributes: map[string]string{
			"account":    e.Account.String(),
			"amount":     formatAmount(e.Amount),
			"monthsPaid": strconv.FormatUint(e.MonthsPaid, 10),
		},
	}
}

// LoanRepaid is emitted when a matured loan is settled in full.
type LoanRepaid struct {
	Account           crypto.Address
	Principal         *big.Int
	RemainingInterest *big.Int
	Amount            *big.Int
	Timestamp         int64
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	return &types.Event{
		Type:      TypeLoanRepaid,
		Timestamp: e.Timestamp,
		Attributes: map[string]string{
			"account":           e.Account.String(),
			"principal":         formatAmount(e.Principal),
			"remainingInterest": formatAmount(e.RemainingInterest),
			"amount":            formatAmount(e.Amount),
		},
	}
}

// LiquidityAdded is emitted when the authority tops up the pool.
type LiquidityAdded struct {
	Account   crypto.Address
	Amount    *big.Int
	Total     *big.Int
	Timestamp int64
}

func (LiquidityAdded) EventType() string { return TypeLiquidityAdded }

func (e LiquidityAdded) Event() *types.Event {
	return &types.Event{
		Type:      TypeLiquidityAdded,
		Timestamp: e.Timestamp,
		Attributes: map[string]string{
			"account": e.Account.String(),
			"amount":  formatAmount(e.Amount),
			"total":   formatAmount(e.Total),
		},
	}
}

// LiquidityRemoved is emitted for authority withdrawals. Emergency marks the
// unchecked drain path.
type LiquidityRemoved struct {
	Account   crypto.Address
	Amount    *big.Int
	Total     *big.Int
	Emergency bool
	Timestamp int64
}

func (LiquidityRemoved) EventType() string { return TypeLiquidityRemoved }

func (e LiquidityRemoved) Event() *types.Event {
	attrs := map[string]string{
		"account": e.Account.String(),
		"amount":  formatAmount(e.Amount),
		"total":   formatAmount(e.Total),
	}
	if e.Emergency {
		attrs["emergency"] = "true"
	}
	return &types.Event{Type: TypeLiquidityRemoved, Timestamp: e.Timestamp, Attributes: attrs}
}
