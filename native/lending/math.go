package lending

import "math/big"

var (
	hundred        = big.NewInt(100)
	monthsPerYear  = big.NewInt(12)
	percentMonthly = new(big.Int).Mul(hundred, monthsPerYear)
)

// stakeReward computes amount*apy*elapsed / (100*year), truncating.
func stakeReward(amount *big.Int, apy uint64, elapsed, year int64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || elapsed <= 0 || year <= 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(amount, new(big.Int).SetUint64(apy))
	num.Mul(num, big.NewInt(elapsed))
	den := new(big.Int).Mul(hundred, big.NewInt(year))
	return num.Quo(num, den)
}

// interestForMonths computes principal*rate*months / 1200, truncating.
func interestForMonths(principal *big.Int, rate, months uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || months == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(principal, new(big.Int).SetUint64(rate))
	num.Mul(num, new(big.Int).SetUint64(months))
	return num.Quo(num, percentMonthly)
}

// elapsedMonths returns floor((now-start)/month), or zero before start.
func elapsedMonths(start, now, month int64) uint64 {
	if now <= start || month <= 0 {
		return 0
	}
	return uint64((now - start) / month)
}

// termMonths returns the whole months in a loan duration.
func termMonths(duration, month int64) uint64 {
	if duration <= 0 || month <= 0 {
		return 0
	}
	return uint64(duration / month)
}
