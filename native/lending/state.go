package lending

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/storage"
)

type engineState interface {
	GetStake(addr crypto.Address) (*Stake, bool, error)
	GetLoan(addr crypto.Address) (*Loan, bool, error)
	GetLiquidity() (*big.Int, error)
	Commit(cs *Changeset) error
}

// Changeset journals the writes of one operation. Nothing reaches the state
// until Commit succeeds.
type Changeset struct {
	stakes    map[crypto.Address]*Stake
	loans     map[crypto.Address]*Loan
	liquidity *big.Int
}

func newChangeset() *Changeset {
	return &Changeset{
		stakes: make(map[crypto.Address]*Stake),
		loans:  make(map[crypto.Address]*Loan),
	}
}

func (c *Changeset) putStake(addr crypto.Address, stake *Stake) { c.stakes[addr] = stake.Clone() }

func (c *Changeset) deleteStake(addr crypto.Address) { c.stakes[addr] = nil }

func (c *Changeset) putLoan(addr crypto.Address, loan *Loan) { c.loans[addr] = loan.Clone() }

func (c *Changeset) setLiquidity(total *big.Int) { c.liquidity = cloneInt(total) }

// Empty reports whether the changeset carries no writes.
func (c *Changeset) Empty() bool {
	return c == nil || (len(c.stakes) == 0 && len(c.loans) == 0 && c.liquidity == nil)
}

// --- in-memory state ---

// MemState keeps ledger records in maps.
type MemState struct {
	mu        sync.RWMutex
	stakes    map[crypto.Address]*Stake
	loans     map[crypto.Address]*Loan
	liquidity *big.Int
}

func NewMemState() *MemState {
	return &MemState{
		stakes:    make(map[crypto.Address]*Stake),
		loans:     make(map[crypto.Address]*Loan),
		liquidity: big.NewInt(0),
	}
}

func (m *MemState) GetStake(addr crypto.Address) (*Stake, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stake, ok := m.stakes[addr]
	return stake.Clone(), ok, nil
}

func (m *MemState) GetLoan(addr crypto.Address) (*Loan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loan, ok := m.loans[addr]
	return loan.Clone(), ok, nil
}

func (m *MemState) GetLiquidity() (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneInt(m.liquidity), nil
}

func (m *MemState) Commit(cs *Changeset) error {
	if cs.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr, stake := range cs.stakes {
		if stake == nil {
			delete(m.stakes, addr)
			continue
		}
		m.stakes[addr] = stake.Clone()
	}
	for addr, loan := range cs.loans {
		m.loans[addr] = loan.Clone()
	}
	if cs.liquidity != nil {
		m.liquidity = cloneInt(cs.liquidity)
	}
	return nil
}

func (m *MemState) ListStakes() ([]StakeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StakeEntry, 0, len(m.stakes))
	for addr, stake := range m.stakes {
		out = append(out, StakeEntry{Account: addr, Stake: stake.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.Hex() < out[j].Account.Hex() })
	return out, nil
}

func (m *MemState) ListLoans() ([]LoanEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]LoanEntry, 0, len(m.loans))
	for addr, loan := range m.loans {
		out = append(out, LoanEntry{Account: addr, Loan: loan.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account.Hex() < out[j].Account.Hex() })
	return out, nil
}

// --- persistent state ---

const (
	stakeKeyPrefix = "lending/stake/"
	loanKeyPrefix  = "lending/loan/"
	liquidityKey   = "lending/pool/liquidity"
)

type storedStake struct {
	Amount *big.Int
	Start  uint64
	APY    uint64
}

type storedLoan struct {
	LoanAmount      *big.Int
	InterestRate    uint64
	StartTimestamp  uint64
	Duration        uint64
	MonthsPaid      uint64
	CollateralType  string
	TokenID         *big.Int
	ContractAddress string
	ContractChain   string
	IsVerified      bool
	IsActive        bool
}

// rlp cannot carry negative integers, so the pool keeps its sign apart.
type storedLiquidity struct {
	Negative  bool
	Magnitude *big.Int
}

func newStoredStake(s *Stake) *storedStake {
	return &storedStake{Amount: zeroIfNil(s.Amount), Start: uint64(s.Start), APY: s.APY}
}

func (s *storedStake) toStake() *Stake {
	return &Stake{Amount: zeroIfNil(s.Amount), Start: int64(s.Start), APY: s.APY}
}

func newStoredLoan(l *Loan) *storedLoan {
	return &storedLoan{
		LoanAmount:      zeroIfNil(l.LoanAmount),
		InterestRate:    l.InterestRate,
		StartTimestamp:  uint64(l.StartTimestamp),
		Duration:        uint64(l.Duration),
		MonthsPaid:      l.MonthsPaid,
		CollateralType:  l.Collateral.Type,
		TokenID:         zeroIfNil(l.Collateral.TokenID),
		ContractAddress: l.Collateral.ContractAddress,
		ContractChain:   l.Collateral.ContractChain,
		IsVerified:      l.IsVerified,
		IsActive:        l.IsActive,
	}
}

func (s *storedLoan) toLoan() *Loan {
	return &Loan{
		LoanAmount:     zeroIfNil(s.LoanAmount),
		InterestRate:   s.InterestRate,
		StartTimestamp: int64(s.StartTimestamp),
		Duration:       int64(s.Duration),
		MonthsPaid:     s.MonthsPaid,
		Collateral: Collateral{
			Type:            s.CollateralType,
			TokenID:         zeroIfNil(s.TokenID),
			ContractAddress: s.ContractAddress,
			ContractChain:   s.ContractChain,
		},
		IsVerified: s.IsVerified,
		IsActive:   s.IsActive,
	}
}

// StoreState persists ledger records in a storage.Database. Each Commit is a
// single atomic batch.
type StoreState struct {
	db storage.Database
}

func NewStoreState(db storage.Database) *StoreState {
	return &StoreState{db: db}
}

func stakeKey(addr crypto.Address) []byte { return []byte(stakeKeyPrefix + addr.Hex()) }

func loanKey(addr crypto.Address) []byte { return []byte(loanKeyPrefix + addr.Hex()) }

func (s *StoreState) GetStake(addr crypto.Address) (*Stake, bool, error) {
	raw, err := s.db.Get(stakeKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedStake
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("lending store: decode stake: %w", err)
	}
	return stored.toStake(), true, nil
}

func (s *StoreState) GetLoan(addr crypto.Address) (*Loan, bool, error) {
	raw, err := s.db.Get(loanKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored storedLoan
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, fmt.Errorf("lending store: decode loan: %w", err)
	}
	return stored.toLoan(), true, nil
}

func (s *StoreState) GetLiquidity() (*big.Int, error) {
	raw, err := s.db.Get([]byte(liquidityKey))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedLiquidity
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("lending store: decode liquidity: %w", err)
	}
	total := new(big.Int).Set(zeroIfNil(stored.Magnitude))
	if stored.Negative {
		total.Neg(total)
	}
	return total, nil
}

func (s *StoreState) Commit(cs *Changeset) error {
	if cs.Empty() {
		return nil
	}
	batch := s.db.NewBatch()
	for addr, stake := range cs.stakes {
		if stake == nil {
			batch.Delete(stakeKey(addr))
			continue
		}
		encoded, err := rlp.EncodeToBytes(newStoredStake(stake))
		if err != nil {
			return fmt.Errorf("lending store: encode stake: %w", err)
		}
		batch.Put(stakeKey(addr), encoded)
	}
	for addr, loan := range cs.loans {
		encoded, err := rlp.EncodeToBytes(newStoredLoan(loan))
		if err != nil {
			return fmt.Errorf("lending store: encode loan: %w", err)
		}
		batch.Put(loanKey(addr), encoded)
	}
	if cs.liquidity != nil {
		stored := &storedLiquidity{
			Negative:  cs.liquidity.Sign() < 0,
			Magnitude: new(big.Int).Abs(cs.liquidity),
		}
		encoded, err := rlp.EncodeToBytes(stored)
		if err != nil {
			return fmt.Errorf("lending store: encode liquidity: %w", err)
		}
		batch.Put([]byte(liquidityKey), encoded)
	}
	return batch.Write()
}

func (s *StoreState) ListStakes() ([]StakeEntry, error) {
	var (
		out     []StakeEntry
		iterErr error
	)
	err := s.db.Iterate([]byte(stakeKeyPrefix), func(key, value []byte) bool {
		addr, err := addressFromKey(key, stakeKeyPrefix)
		if err != nil {
			iterErr = err
			return false
		}
		var stored storedStake
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			iterErr = fmt.Errorf("lending store: decode stake: %w", err)
			return false
		}
		out = append(out, StakeEntry{Account: addr, Stake: stored.toStake()})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

func (s *StoreState) ListLoans() ([]LoanEntry, error) {
	var (
		out     []LoanEntry
		iterErr error
	)
	err := s.db.Iterate([]byte(loanKeyPrefix), func(key, value []byte) bool {
		addr, err := addressFromKey(key, loanKeyPrefix)
		if err != nil {
			iterErr = err
			return false
		}
		var stored storedLoan
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			iterErr = fmt.Errorf("lending store: decode loan: %w", err)
			return false
		}
		out = append(out, LoanEntry{Account: addr, Loan: stored.toLoan()})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}

func addressFromKey(key []byte, prefix string) (crypto.Address, error) {
	hexPart := strings.TrimPrefix(string(key), prefix)
	addr, err := crypto.DecodeAddress("0x" + hexPart)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("lending store: malformed key %q: %w", key, err)
	}
	return addr, nil
}
