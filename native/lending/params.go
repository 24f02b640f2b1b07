package lending

import "fmt"

const (
	// Day is the length of a ledger day in seconds.
	Day int64 = 24 * 60 * 60
	// Month is the fixed 30 day period used for lock-ups and installments.
	Month = 30 * Day
	// Year is the 365 day period that APY figures are quoted against.
	Year = 365 * Day

	DefaultInterestRatePercent uint64 = 10
	DefaultAPYMin              uint64 = 4
	DefaultAPYMax              uint64 = 10
)

// Params holds the tunable constants of the ledger.
type Params struct {
	LockPeriod          int64  `toml:"LockPeriodSeconds"`
	Month               int64  `toml:"MonthSeconds"`
	Year                int64  `toml:"YearSeconds"`
	InterestRatePercent uint64 `toml:"InterestRatePercent"`
	APYMin              uint64 `toml:"APYMin"`
	APYMax              uint64 `toml:"APYMax"`
}

// DefaultParams returns the production parameter set.
func DefaultParams() Params {
	return Params{
		LockPeriod:          Month,
		Month:               Month,
		Year:                Year,
		InterestRatePercent: DefaultInterestRatePercent,
		APYMin:              DefaultAPYMin,
		APYMax:              DefaultAPYMax,
	}
}

// Validate ensures the parameters describe a usable ledger.
func (p Params) Validate() error {
	if p.LockPeriod < 0 {
		return fmt.Errorf("lending params: lock period must not be negative")
	}
	if p.Month <= 0 {
		return fmt.Errorf("lending params: month must be positive")
	}
	if p.Year <= 0 {
		return fmt.Errorf("lending params: year must be positive")
	}
	if p.APYMin > p.APYMax {
		return fmt.Errorf("lending params: apy min %d exceeds max %d", p.APYMin, p.APYMax)
	}
	return nil
}
