package lending

import (
	"math/big"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

// Stake is the single deposit an account may hold.
type Stake struct {
	Amount *big.Int `json:"amount"`
	Start  int64    `json:"start"`
	APY    uint64   `json:"apy"`
}

// Clone returns a deep copy.
func (s *Stake) Clone() *Stake {
	if s == nil {
		return nil
	}
	return &Stake{Amount: cloneInt(s.Amount), Start: s.Start, APY: s.APY}
}

// Collateral describes the off-ledger asset pledged for a loan. The ledger
// never inspects it beyond checking that a token id is present.
type Collateral struct {
	Type            string   `json:"type"`
	TokenID         *big.Int `json:"tokenId"`
	ContractAddress string   `json:"contractAddress"`
	ContractChain   string   `json:"contractChain"`
}

// Present reports whether a descriptor was submitted.
func (c Collateral) Present() bool {
	return c.TokenID != nil && c.TokenID.Sign() != 0
}

func (c Collateral) clone() Collateral {
	c.TokenID = cloneInt(c.TokenID)
	return c
}

// Loan is the borrowing record of an account. Records are never deleted.
type Loan struct {
	LoanAmount     *big.Int   `json:"loanAmount"`
	InterestRate   uint64     `json:"interestRate"`
	StartTimestamp int64      `json:"startTimestamp"`
	Duration       int64      `json:"duration"`
	MonthsPaid     uint64     `json:"monthsPaid"`
	Collateral     Collateral `json:"collateral"`
	IsVerified     bool       `json:"isVerified"`
	IsActive       bool       `json:"isActive"`
}

// Clone returns a deep copy.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.LoanAmount = cloneInt(l.LoanAmount)
	clone.Collateral = l.Collateral.clone()
	return &clone
}

func (l *Loan) hasAmount() bool {
	return l != nil && l.LoanAmount != nil && l.LoanAmount.Sign() != 0
}

// UnstakeReceipt reports the settlement of a closed stake.
type UnstakeReceipt struct {
	Principal *big.Int `json:"principal"`
	Reward    *big.Int `json:"reward"`
	Payout    *big.Int `json:"payout"`
}

// AmountDue quotes what an active loan currently owes.
type AmountDue struct {
	Principal         *big.Int `json:"principal"`
	MonthsPaid        uint64   `json:"monthsPaid"`
	RemainingMonths   uint64   `json:"remainingMonths"`
	RemainingInterest *big.Int `json:"remainingInterest"`
	RepaymentTotal    *big.Int `json:"repaymentTotal"`
	Installment       *big.Int `json:"installment"`
	// InstallmentDue is true when PayMonthlyInterest would currently succeed.
	InstallmentDue bool  `json:"installmentDue"`
	MaturesAt      int64 `json:"maturesAt"`
	Matured        bool  `json:"matured"`
}

// StakeEntry pairs a stake with its owner for listings.
type StakeEntry struct {
	Account crypto.Address `json:"account"`
	Stake   *Stake         `json:"stake"`
}

// LoanEntry pairs a loan with its borrower for listings.
type LoanEntry struct {
	Account crypto.Address `json:"account"`
	Loan    *Loan          `json:"loan"`
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
