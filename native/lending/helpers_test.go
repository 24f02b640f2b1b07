package lending

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

func makeAddress(b byte) crypto.Address {
	var addr crypto.Address
	addr[0] = 0x6b
	addr[19] = b
	return addr
}

var (
	authorityAddr = makeAddress(0xA0)
	alice         = makeAddress(0x01)
	bob           = makeAddress(0x02)
)

type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) set(now int64) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *testClock) advance(d int64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

type movement struct {
	inbound bool
	account crypto.Address
	amount  *big.Int
}

type mockAssets struct {
	mu         sync.Mutex
	moves      []movement
	fail       error
	onTransfer func(ctx context.Context)
}

func (m *mockAssets) record(ctx context.Context, inbound bool, account crypto.Address, amount *big.Int) error {
	if m.onTransfer != nil {
		m.onTransfer(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.moves = append(m.moves, movement{inbound: inbound, account: account, amount: new(big.Int).Set(amount)})
	return nil
}

func (m *mockAssets) TransferIn(ctx context.Context, from crypto.Address, amount *big.Int) error {
	return m.record(ctx, true, from, amount)
}

func (m *mockAssets) TransferOut(ctx context.Context, to crypto.Address, amount *big.Int) error {
	return m.record(ctx, false, to, amount)
}

func (m *mockAssets) last() movement {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.moves) == 0 {
		return movement{}
	}
	return m.moves[len(m.moves)-1]
}

func (m *mockAssets) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.moves)
}

type failingCommitState struct {
	*MemState
	err error
}

func (s *failingCommitState) Commit(cs *Changeset) error {
	if s.err != nil {
		return s.err
	}
	return s.MemState.Commit(cs)
}

type recordingMetrics struct {
	noopMetrics
	mu               sync.Mutex
	transferFailures []string
	outcomes         map[string]int
}

func (r *recordingMetrics) ObserveTransferFailure(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transferFailures = append(r.transferFailures, op)
}

func (r *recordingMetrics) ObserveOperation(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]int)
	}
	key := op + ":ok"
	if err != nil {
		key = op + ":error"
	}
	r.outcomes[key]++
}

type harness struct {
	engine   *Engine
	state    *MemState
	assets   *mockAssets
	clock    *testClock
	recorder *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		state:    NewMemState(),
		assets:   &mockAssets{},
		clock:    &testClock{},
		recorder: &events.Recorder{},
	}
	h.engine = NewEngine(h.assets, OwnerAuthority(authorityAddr), DefaultParams())
	h.engine.SetState(h.state)
	h.engine.SetClock(h.clock)
	h.engine.SetEmitter(h.recorder)
	return h
}

func (h *harness) fund(t *testing.T, amount int64) {
	t.Helper()
	if _, err := h.engine.AddLiquidity(context.Background(), authorityAddr, big.NewInt(amount)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	h.recorder.Reset()
}

func (h *harness) liquidity(t *testing.T) *big.Int {
	t.Helper()
	total, err := h.engine.TotalLiquidity(context.Background())
	if err != nil {
		t.Fatalf("total liquidity: %v", err)
	}
	return total
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func expectAmount(t *testing.T, label string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s = %v, want %d", label, got, want)
	}
}
