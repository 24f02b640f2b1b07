package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/bank"
	nativecommon "github.com/This-Is-Captain-Code/ethtaipei-gk/native/common"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/lending"
)

var errBadRequest = errors.New("bad request")

// toStatus maps ledger errors to an HTTP status and a client-safe message.
func toStatus(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, lending.ErrUnauthorized):
		return http.StatusForbidden, "caller not authorized"
	case errors.Is(err, lending.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, lending.ErrNoStake):
		return http.StatusNotFound, "no stake"
	case errors.Is(err, lending.ErrNoActiveLoan):
		return http.StatusNotFound, "no active loan"
	case errors.Is(err, lending.ErrStakeAlreadyExists),
		errors.Is(err, lending.ErrLoanAlreadyExists),
		errors.Is(err, lending.ErrLoanAlreadyActive),
		errors.Is(err, lending.ErrNotVerified),
		errors.Is(err, lending.ErrNoCollateral),
		errors.Is(err, lending.ErrLockPeriodActive),
		errors.Is(err, lending.ErrNotMatured),
		errors.Is(err, lending.ErrAlreadyPaidThisPeriod):
		return http.StatusConflict, trimPrefix(err)
	case errors.Is(err, lending.ErrInsufficientLiquidity):
		return http.StatusUnprocessableEntity, "insufficient liquidity"
	case errors.Is(err, bank.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient balance"
	case errors.Is(err, bank.ErrSelfTransfer):
		return http.StatusUnprocessableEntity, "custodian cannot fund the pool"
	case errors.Is(err, lending.ErrExternalTransferFailed):
		return http.StatusBadGateway, "asset transfer failed"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "module paused"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func trimPrefix(err error) string {
	return strings.TrimPrefix(err.Error(), "lending engine: ")
}
