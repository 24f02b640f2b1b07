package lending

import "errors"

var (
	ErrInvalidAmount          = errors.New("lending engine: amount must be positive")
	ErrStakeAlreadyExists     = errors.New("lending engine: stake already exists")
	ErrNoStake                = errors.New("lending engine: no stake")
	ErrLockPeriodActive       = errors.New("lending engine: stake still locked")
	ErrLoanAlreadyExists      = errors.New("lending engine: loan already exists")
	ErrNoCollateral           = errors.New("lending engine: no collateral submitted")
	ErrLoanAlreadyActive      = errors.New("lending engine: loan already active")
	ErrNotVerified            = errors.New("lending engine: collateral not verified")
	ErrInsufficientLiquidity  = errors.New("lending engine: insufficient liquidity")
	ErrNoActiveLoan           = errors.New("lending engine: no active loan")
	ErrAlreadyPaidThisPeriod  = errors.New("lending engine: interest already paid for this period")
	ErrNotMatured             = errors.New("lending engine: loan not matured")
	ErrUnauthorized           = errors.New("lending engine: caller not authorized")
	ErrExternalTransferFailed = errors.New("lending engine: asset transfer failed")
	ErrReentrantCall          = errors.New("lending engine: re-entrant call")

	errNilState  = errors.New("lending engine: state not configured")
	errNilAssets = errors.New("lending engine: asset ledger not configured")
)
