package lending

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

// Clock supplies the current unix time in seconds. Implementations must never
// move backwards.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() int64

func (f ClockFunc) Now() int64 { return f() }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// AssetLedger moves the pooled asset between accounts and the pool custodian.
// Transfers run while the engine lock is held. Callbacks into the engine are
// rejected with ErrReentrantCall only when they reuse the context handed to
// the ledger; a callback on a fresh context blocks on the lock.
type AssetLedger interface {
	TransferIn(ctx context.Context, from crypto.Address, amount *big.Int) error
	TransferOut(ctx context.Context, to crypto.Address, amount *big.Int) error
}

// Authority decides which callers may run privileged operations.
type Authority interface {
	IsAuthorized(caller crypto.Address) bool
}

// OwnerAuthority authorises exactly one address.
type OwnerAuthority crypto.Address

func (o OwnerAuthority) IsAuthorized(caller crypto.Address) bool {
	owner := crypto.Address(o)
	return !owner.IsZero() && caller == owner
}

// AuthoritySet authorises a mutable set of addresses.
type AuthoritySet struct {
	mu      sync.RWMutex
	members map[crypto.Address]struct{}
}

func NewAuthoritySet(members ...crypto.Address) *AuthoritySet {
	set := &AuthoritySet{members: make(map[crypto.Address]struct{}, len(members))}
	for _, m := range members {
		set.Add(m)
	}
	return set
}

func (s *AuthoritySet) Add(addr crypto.Address) {
	if addr.IsZero() {
		return
	}
	s.mu.Lock()
	s.members[addr] = struct{}{}
	s.mu.Unlock()
}

func (s *AuthoritySet) Remove(addr crypto.Address) {
	s.mu.Lock()
	delete(s.members, addr)
	s.mu.Unlock()
}

func (s *AuthoritySet) IsAuthorized(caller crypto.Address) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[caller]
	return ok
}

// APYSelector picks the APY for a new stake.
type APYSelector interface {
	SelectAPY(account crypto.Address, now int64, params Params) uint64
}

// APYSelectorFunc adapts a function to APYSelector.
type APYSelectorFunc func(account crypto.Address, now int64, params Params) uint64

func (f APYSelectorFunc) SelectAPY(account crypto.Address, now int64, params Params) uint64 {
	return f(account, now, params)
}

// TimestampAPY derives the APY from the open timestamp. It is predictable and
// only spreads rates across the configured band.
type TimestampAPY struct{}

func (TimestampAPY) SelectAPY(_ crypto.Address, now int64, params Params) uint64 {
	if params.APYMax <= params.APYMin {
		return params.APYMin
	}
	ts := now
	if ts < 0 {
		ts = -ts
	}
	span := params.APYMax - params.APYMin + 1
	if span == 0 {
		// The band covers every uint64.
		return uint64(ts)
	}
	return uint64(ts)%span + params.APYMin
}

// Metrics receives operation outcomes. observability/metrics provides the
// Prometheus implementation.
type Metrics interface {
	ObserveOperation(operation string, err error)
	ObserveTransferFailure(operation string)
	ObservePayout(operation string, amount *big.Int)
	SetLiquidity(total *big.Int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, error) {}
func (noopMetrics) ObserveTransferFailure(string)  {}
func (noopMetrics) ObservePayout(string, *big.Int) {}
func (noopMetrics) SetLiquidity(*big.Int)          {}
