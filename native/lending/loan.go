package lending

import (
	"context"
	"math/big"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

// SubmitCollateral records a pending loan request backed by the descriptor.
// It is rejected once the account has ever been issued a loan.
func (e *Engine) SubmitCollateral(ctx context.Context, account crypto.Address, collateral Collateral) error {
	return e.run(ctx, "submit_collateral", ModuleLending, account, func(ctx context.Context) error {
		existing, _, err := e.state.GetLoan(account)
		if err != nil {
			return err
		}
		if existing.hasAmount() {
			return ErrLoanAlreadyExists
		}

		loan := &Loan{
			LoanAmount:   big.NewInt(0),
			InterestRate: e.params.InterestRatePercent,
			Collateral:   collateral.clone(),
		}
		cs := newChangeset()
		cs.putLoan(account, loan)
		if err := e.commit(ctx, "submit_collateral", cs, nil); err != nil {
			return err
		}

		e.emit(events.CollateralSubmitted{
			Account:         account,
			CollateralType:  collateral.Type,
			TokenID:         cloneInt(collateral.TokenID),
			ContractAddress: collateral.ContractAddress,
			ContractChain:   collateral.ContractChain,
			Timestamp:       e.clock.Now(),
		})
		return nil
	})
}

// VerifyCollateral records the authority's decision on the account's
// collateral.
func (e *Engine) VerifyCollateral(ctx context.Context, caller, account crypto.Address, verified bool) error {
	return e.run(ctx, "verify_collateral", ModuleLending, account, func(ctx context.Context) error {
		if err := e.requireAuthority(caller); err != nil {
			return err
		}
		loan, exists, err := e.state.GetLoan(account)
		if err != nil {
			return err
		}
		if !exists || loan == nil {
			return ErrNoCollateral
		}
		if loan.IsActive {
			return ErrLoanAlreadyActive
		}
		if !loan.Collateral.Present() {
			return ErrNoCollateral
		}

		loan.IsVerified = verified
		cs := newChangeset()
		cs.putLoan(account, loan)
		if err := e.commit(ctx, "verify_collateral", cs, nil); err != nil {
			return err
		}

		e.emit(events.CollateralVerified{
			Account:   account,
			Verified:  verified,
			Authority: caller,
			Timestamp: e.clock.Now(),
		})
		return nil
	})
}

// IssueLoan disburses amount from the pool to a verified borrower for
// duration seconds.
func (e *Engine) IssueLoan(ctx context.Context, caller, account crypto.Address, amount *big.Int, duration int64) error {
	return e.run(ctx, "issue_loan", ModuleLending, account, func(ctx context.Context) error {
		if err := e.requireAuthority(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 || duration <= 0 {
			return ErrInvalidAmount
		}
		loan, exists, err := e.state.GetLoan(account)
		if err != nil {
			return err
		}
		if !exists || loan == nil || !loan.IsVerified {
			return ErrNotVerified
		}
		if loan.IsActive {
			return ErrLoanAlreadyActive
		}
		total, err := e.liquidity()
		if err != nil {
			return err
		}
		if amount.Cmp(total) > 0 {
			return ErrInsufficientLiquidity
		}

		now := e.clock.Now()
		loan.LoanAmount = new(big.Int).Set(amount)
		loan.StartTimestamp = now
		loan.Duration = duration
		loan.MonthsPaid = 0
		loan.IsActive = true

		cs := newChangeset()
		cs.putLoan(account, loan)
		cs.setLiquidity(new(big.Int).Sub(total, amount))
		if err := e.apply(ctx, "issue_loan", cs, transferOut(account, amount)); err != nil {
			return err
		}

		e.metrics.ObservePayout("issue_loan", amount)
		e.emit(events.LoanIssued{Account: account, Amount: cloneInt(amount), Duration: duration, Timestamp: now})
		return nil
	})
}

// PayMonthlyInterest settles one monthly installment. At most one installment
// can be paid per elapsed month.
func (e *Engine) PayMonthlyInterest(ctx context.Context, account crypto.Address) (*big.Int, error) {
	var paid *big.Int
	err := e.run(ctx, "pay_interest", ModuleLending, account, func(ctx context.Context) error {
		loan, exists, err := e.state.GetLoan(account)
		if err != nil {
			return err
		}
		if !exists || loan == nil || !loan.IsActive {
			return ErrNoActiveLoan
		}
		now := e.clock.Now()
		if !installmentDue(loan, now, e.params.Month) {
			return ErrAlreadyPaidThisPeriod
		}
		total, err := e.liquidity()
		if err != nil {
			return err
		}

		interest := interestForMonths(loan.LoanAmount, loan.InterestRate, 1)
		loan.MonthsPaid++
		cs := newChangeset()
		cs.putLoan(account, loan)
		cs.setLiquidity(new(big.Int).Add(total, interest))
		if interest.Sign() > 0 {
			err = e.apply(ctx, "pay_interest", cs, transferIn(account, interest))
		} else {
			err = e.commit(ctx, "pay_interest", cs, nil)
		}
		if err != nil {
			return err
		}

		paid = interest
		e.emit(events.MonthlyInterestPaid{
			Account:    account,
			Amount:     cloneInt(interest),
			MonthsPaid: loan.MonthsPaid,
			Timestamp:  now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// RepayLoan settles a matured loan: principal plus interest for every unpaid
// month of the term.
func (e *Engine) RepayLoan(ctx context.Context, account crypto.Address) (*big.Int, error) {
	var repaid *big.Int
	err := e.run(ctx, "repay_loan", ModuleLending, account, func(ctx context.Context) error {
		loan, exists, err := e.state.GetLoan(account)
		if err != nil {
			return err
		}
		if !exists || loan == nil || !loan.IsActive {
			return ErrNoActiveLoan
		}
		now := e.clock.Now()
		if now-loan.StartTimestamp < loan.Duration {
			return ErrNotMatured
		}
		total, err := e.liquidity()
		if err != nil {
			return err
		}

		remaining := remainingMonths(loan, e.params.Month)
		interest := interestForMonths(loan.LoanAmount, loan.InterestRate, remaining)
		due := new(big.Int).Add(loan.LoanAmount, interest)
		loan.IsActive = false

		cs := newChangeset()
		cs.putLoan(account, loan)
		cs.setLiquidity(new(big.Int).Add(total, due))
		if err := e.apply(ctx, "repay_loan", cs, transferIn(account, due)); err != nil {
			return err
		}

		repaid = due
		e.emit(events.LoanRepaid{
			Account:           account,
			Principal:         cloneInt(loan.LoanAmount),
			RemainingInterest: cloneInt(interest),
			Amount:            cloneInt(due),
			Timestamp:         now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repaid, nil
}

// GetBorrowing returns the account's loan record. Accounts that never
// submitted collateral get the zero record.
func (e *Engine) GetBorrowing(ctx context.Context, account crypto.Address) (Loan, error) {
	var out Loan
	err := e.run(ctx, "get_borrowing", "", account, func(context.Context) error {
		loan, ok, err := e.state.GetLoan(account)
		if err != nil {
			return err
		}
		if ok && loan != nil {
			out = *loan.Clone()
		}
		return nil
	})
	if out.LoanAmount == nil {
		out.LoanAmount = big.NewInt(0)
	}
	return out, err
}

// AmountDue quotes the repayment total and the next installment of an active
// loan.
func (e *Engine) AmountDue(ctx context.Context, account crypto.Address) (*AmountDue, error) {
	var due *AmountDue
	err := e.run(ctx, "amount_due", "", account, func(context.Context) error {
		loan, ok, err := e.state.GetLoan(account)
		if err != nil {
			return err
		}
		if !ok || loan == nil || !loan.IsActive {
			return ErrNoActiveLoan
		}
		now := e.clock.Now()
		remaining := remainingMonths(loan, e.params.Month)
		interest := interestForMonths(loan.LoanAmount, loan.InterestRate, remaining)
		maturesAt := loan.StartTimestamp + loan.Duration
		due = &AmountDue{
			Principal:         cloneInt(loan.LoanAmount),
			MonthsPaid:        loan.MonthsPaid,
			RemainingMonths:   remaining,
			RemainingInterest: interest,
			RepaymentTotal:    new(big.Int).Add(loan.LoanAmount, interest),
			Installment:       interestForMonths(loan.LoanAmount, loan.InterestRate, 1),
			InstallmentDue:    installmentDue(loan, now, e.params.Month),
			MaturesAt:         maturesAt,
			Matured:           now >= maturesAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return due, nil
}

func installmentDue(loan *Loan, now, month int64) bool {
	return elapsedMonths(loan.StartTimestamp, now, month) >= loan.MonthsPaid+1
}

func remainingMonths(loan *Loan, month int64) uint64 {
	months := termMonths(loan.Duration, month)
	if loan.MonthsPaid >= months {
		return 0
	}
	return months - loan.MonthsPaid
}
