package bank

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/storage"
)

var (
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAccount      = errors.New("bank: account required")
	ErrSelfTransfer        = errors.New("bank: sender and recipient must differ")
	errNilDatabase         = errors.New("bank: database not configured")
)

const balanceKeyPrefix = "bank/balance/"

type storedBalance struct {
	Amount *big.Int
}

func balanceKey(addr crypto.Address) []byte {
	return []byte(balanceKeyPrefix + addr.Hex())
}

// Ledger keeps fungible balances for every account. One address, the
// custodian, holds the funds backing the lending pool.
type Ledger struct {
	mu        sync.Mutex
	db        storage.Database
	custodian crypto.Address
	emitter   events.Emitter
	nowFn     func() time.Time
}

// NewLedger returns a ledger persisting balances in db.
func NewLedger(db storage.Database, custodian crypto.Address) *Ledger {
	return &Ledger{
		db:        db,
		custodian: custodian,
		emitter:   events.NoopEmitter{},
		nowFn:     time.Now,
	}
}

// SetEmitter configures the event sink for transfer notifications.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the timestamp source used in emitted events.
func (l *Ledger) SetNowFunc(now func() time.Time) {
	if now == nil {
		l.nowFn = time.Now
		return
	}
	l.nowFn = now
}

// Custodian returns the pool custody address.
func (l *Ledger) Custodian() crypto.Address { return l.custodian }

// BalanceOf returns the balance held by addr.
func (l *Ledger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(addr)
}

// Credit mints amount into addr. It backs genesis allocations only.
func (l *Ledger) Credit(ctx context.Context, addr crypto.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if addr.IsZero() {
		return ErrInvalidAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	current, err := l.balance(addr)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	batch := l.db.NewBatch()
	if err := putBalance(batch, addr, new(big.Int).Add(current, amount)); err != nil {
		l.mu.Unlock()
		return err
	}
	err = batch.Write()
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("bank: persist credit: %w", err)
	}
	l.emitter.Emit(events.Transfer{To: addr, Amount: new(big.Int).Set(amount), Timestamp: l.nowFn().Unix()})
	return nil
}

// TransferIn moves amount from the account into the custodian.
func (l *Ledger) TransferIn(ctx context.Context, from crypto.Address, amount *big.Int) error {
	return l.Transfer(ctx, from, l.custodian, amount)
}

// TransferOut pays amount from the custodian to the account.
func (l *Ledger) TransferOut(ctx context.Context, to crypto.Address, amount *big.Int) error {
	return l.Transfer(ctx, l.custodian, to, amount)
}

// Transfer moves amount between two accounts in a single batch.
func (l *Ledger) Transfer(ctx context.Context, from, to crypto.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAccount
	}
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfTransfer, from)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if l.db == nil {
		return errNilDatabase
	}

	l.mu.Lock()
	fromBalance, err := l.balance(from)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from, fromBalance, amount)
	}
	toBalance, err := l.balance(to)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	batch := l.db.NewBatch()
	if err := putBalance(batch, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		l.mu.Unlock()
		return err
	}
	if err := putBalance(batch, to, new(big.Int).Add(toBalance, amount)); err != nil {
		l.mu.Unlock()
		return err
	}
	if err := batch.Write(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("bank: persist transfer: %w", err)
	}
	l.mu.Unlock()

	l.emitter.Emit(events.Transfer{
		From:      from,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Timestamp: l.nowFn().Unix(),
	})
	return nil
}

func (l *Ledger) balance(addr crypto.Address) (*big.Int, error) {
	if l.db == nil {
		return nil, errNilDatabase
	}
	raw, err := l.db.Get(balanceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	var stored storedBalance
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("bank: decode balance: %w", err)
	}
	if stored.Amount == nil {
		return big.NewInt(0), nil
	}
	return stored.Amount, nil
}

func putBalance(batch storage.Batch, addr crypto.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		batch.Delete(balanceKey(addr))
		return nil
	}
	encoded, err := rlp.EncodeToBytes(&storedBalance{Amount: amount})
	if err != nil {
		return fmt.Errorf("bank: encode balance: %w", err)
	}
	batch.Put(balanceKey(addr), encoded)
	return nil
}
