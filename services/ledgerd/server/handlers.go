package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/lending"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/services/ledgerd/audit"
)

const maxBodyBytes = 1 << 20

type amountRequest struct {
	Amount string `json:"amount"`
}

type collateralRequest struct {
	Type            string `json:"type"`
	TokenID         string `json:"tokenId"`
	ContractAddress string `json:"contractAddress"`
	ContractChain   string `json:"contractChain"`
}

type verifyRequest struct {
	Account  string `json:"account"`
	Verified bool   `json:"verified"`
}

type issueRequest struct {
	Account  string `json:"account"`
	Amount   string `json:"amount"`
	Duration int64  `json:"duration"`
}

type stakeView struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Start   int64  `json:"start"`
	APY     uint64 `json:"apy"`
}

type receiptView struct {
	Account   string `json:"account"`
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
	Payout    string `json:"payout"`
}

type collateralView struct {
	Type            string `json:"type"`
	TokenID         string `json:"tokenId"`
	ContractAddress string `json:"contractAddress"`
	ContractChain   string `json:"contractChain"`
}

type loanView struct {
	Account        string         `json:"account"`
	LoanAmount     string         `json:"loanAmount"`
	InterestRate   uint64         `json:"interestRate"`
	StartTimestamp int64          `json:"startTimestamp"`
	Duration       int64          `json:"duration"`
	MonthsPaid     uint64         `json:"monthsPaid"`
	Collateral     collateralView `json:"collateral"`
	IsVerified     bool           `json:"isVerified"`
	IsActive       bool           `json:"isActive"`
}

type dueView struct {
	Account           string `json:"account"`
	Principal         string `json:"principal"`
	MonthsPaid        uint64 `json:"monthsPaid"`
	RemainingMonths   uint64 `json:"remainingMonths"`
	RemainingInterest string `json:"remainingInterest"`
	RepaymentTotal    string `json:"repaymentTotal"`
	Installment       string `json:"installment"`
	InstallmentDue    bool   `json:"installmentDue"`
	MaturesAt         int64  `json:"maturesAt"`
	Matured           bool   `json:"matured"`
}

type amountView struct {
	Account string `json:"account,omitempty"`
	Amount  string `json:"amount"`
}

type liquidityView struct {
	Liquidity string `json:"liquidity"`
}

func newStakeView(account crypto.Address, stake lending.Stake) stakeView {
	return stakeView{
		Account: account.String(),
		Amount:  decimal(stake.Amount),
		Start:   stake.Start,
		APY:     stake.APY,
	}
}

func newLoanView(account crypto.Address, loan lending.Loan) loanView {
	return loanView{
		Account:        account.String(),
		LoanAmount:     decimal(loan.LoanAmount),
		InterestRate:   loan.InterestRate,
		StartTimestamp: loan.StartTimestamp,
		Duration:       loan.Duration,
		MonthsPaid:     loan.MonthsPaid,
		Collateral: collateralView{
			Type:            loan.Collateral.Type,
			TokenID:         decimal(loan.Collateral.TokenID),
			ContractAddress: loan.Collateral.ContractAddress,
			ContractChain:   loan.Collateral.ContractChain,
		},
		IsVerified: loan.IsVerified,
		IsActive:   loan.IsActive,
	}
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: amount required", errBadRequest)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount must be a base-10 integer", errBadRequest)
	}
	return amount, nil
}

func parseAccount(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: account: %v", errBadRequest, err)
	}
	return addr, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	caller, ok := CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
	}
	return caller, ok
}

func (s *Server) pathAccount(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, err := parseAccount(chi.URLParam(r, "account"))
	if err != nil {
		s.fail(w, r, err)
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stake, err := s.ledger.Stake(r.Context(), caller, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newStakeView(caller, *stake))
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	receipt, err := s.ledger.Unstake(r.Context(), caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptView{
		Account:   caller.String(),
		Principal: decimal(receipt.Principal),
		Reward:    decimal(receipt.Reward),
		Payout:    decimal(receipt.Payout),
	})
}

func (s *Server) handleListStakes(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.ListStakes(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]stakeView, 0, len(entries))
	for _, entry := range entries {
		if entry.Stake == nil {
			continue
		}
		views = append(views, newStakeView(entry.Account, *entry.Stake))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetStake(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	stake, found, err := s.ledger.GetStake(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !found {
		s.fail(w, r, lending.ErrNoStake)
		return
	}
	writeJSON(w, http.StatusOK, newStakeView(account, stake))
}

func (s *Server) handlePendingReward(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	reward, err := s.ledger.PendingReward(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Account: account.String(), Amount: decimal(reward)})
}

func (s *Server) handleSubmitCollateral(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req collateralRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	collateral := lending.Collateral{
		Type:            req.Type,
		ContractAddress: req.ContractAddress,
		ContractChain:   req.ContractChain,
	}
	if strings.TrimSpace(req.TokenID) != "" {
		tokenID, ok := new(big.Int).SetString(strings.TrimSpace(req.TokenID), 10)
		if !ok {
			s.fail(w, r, fmt.Errorf("%w: tokenId must be a base-10 integer", errBadRequest))
			return
		}
		collateral.TokenID = tokenID
	}
	if err := s.ledger.SubmitCollateral(r.Context(), caller, collateral); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifyCollateral(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := parseAccount(req.Account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.VerifyCollateral(r.Context(), caller, account, req.Verified); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIssueLoan(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req issueRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	account, err := parseAccount(req.Account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.IssueLoan(r.Context(), caller, account, amount, req.Duration); err != nil {
		s.fail(w, r, err)
		return
	}
	loan, err := s.ledger.GetBorrowing(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(account, loan))
}

func (s *Server) handlePayInterest(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	paid, err := s.ledger.PayMonthlyInterest(r.Context(), caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Account: caller.String(), Amount: decimal(paid)})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	paid, err := s.ledger.RepayLoan(r.Context(), caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Account: caller.String(), Amount: decimal(paid)})
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	entries, err := s.ledger.ListLoans(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]loanView, 0, len(entries))
	for _, entry := range entries {
		if entry.Loan == nil {
			continue
		}
		views = append(views, newLoanView(entry.Account, *entry.Loan))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	loan, err := s.ledger.GetBorrowing(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(account, loan))
}

func (s *Server) handleAmountDue(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	due, err := s.ledger.AmountDue(r.Context(), account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dueView{
		Account:           account.String(),
		Principal:         decimal(due.Principal),
		MonthsPaid:        due.MonthsPaid,
		RemainingMonths:   due.RemainingMonths,
		RemainingInterest: decimal(due.RemainingInterest),
		RepaymentTotal:    decimal(due.RepaymentTotal),
		Installment:       decimal(due.Installment),
		InstallmentDue:    due.InstallmentDue,
		MaturesAt:         due.MaturesAt,
		Matured:           due.Matured,
	})
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	s.handlePoolChange(w, r, s.ledger.AddLiquidity)
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	s.handlePoolChange(w, r, s.ledger.RemoveLiquidity)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handlePoolChange(w, r, s.ledger.Withdraw)
}

type poolChange func(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error)

func (s *Server) handlePoolChange(w http.ResponseWriter, r *http.Request, change poolChange) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	total, err := change(r.Context(), caller, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidityView{Liquidity: decimal(total)})
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	total, err := s.ledger.TotalLiquidity(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidityView{Liquidity: decimal(total)})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := s.pathAccount(w, r)
	if !ok {
		return
	}
	balance, err := s.balances.BalanceOf(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, amountView{Account: account.String(), Amount: decimal(balance)})
}

type auditView struct {
	OK      bool   `json:"ok"`
	Entries uint64 `json:"entries"`
	Head    string `json:"head"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	result, err := s.audit.Verify(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, auditView{OK: true, Entries: result.Entries, Head: result.Head})
	case errors.Is(err, audit.ErrChainBroken):
		writeJSON(w, http.StatusConflict, auditView{Entries: result.Entries, Head: result.Head, Error: err.Error()})
	default:
		s.fail(w, r, err)
	}
}
