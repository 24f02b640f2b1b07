package lending

import (
	"context"
	"math"
	"math/big"
	"testing"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

func TestStakeUnstakeAfterLockPeriod(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 10_000)
	ctx := context.Background()

	stake, err := h.engine.Stake(ctx, alice, big.NewInt(1000))
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if stake.APY != 4 || stake.Start != 0 {
		t.Fatalf("unexpected stake %+v", stake)
	}
	expectAmount(t, "pool after stake", h.liquidity(t), 11_000)
	if mv := h.assets.last(); !mv.inbound || mv.account != alice || mv.amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("unexpected transfer %+v", mv)
	}

	h.clock.set(Month)
	receipt, err := h.engine.Unstake(ctx, alice)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	// 1000*4*2592000 / (100*31536000) truncates to 3.
	expectAmount(t, "reward", receipt.Reward, 3)
	expectAmount(t, "payout", receipt.Payout, 1003)
	expectAmount(t, "pool after unstake", h.liquidity(t), 9_997)
	if mv := h.assets.last(); mv.inbound || mv.account != alice || mv.amount.Cmp(big.NewInt(1003)) != 0 {
		t.Fatalf("unexpected payout transfer %+v", mv)
	}
	if _, exists, _ := h.engine.GetStake(ctx, alice); exists {
		t.Fatalf("stake should be deleted after unstake")
	}

	types := h.recorder.Types()
	if len(types) != 2 || types[0] != events.TypeStaked || types[1] != events.TypeUnstaked {
		t.Fatalf("unexpected events %v", types)
	}
	if got := h.recorder.Events()[1].Event().Attr("amount"); got != "1003" {
		t.Fatalf("unstaked amount attribute = %s", got)
	}
}

func TestUnstakeRewardAtCentScale(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1_000_000)
	ctx := context.Background()

	// 1000.00 expressed in hundredths.
	if _, err := h.engine.Stake(ctx, alice, big.NewInt(100_000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	h.clock.set(Month)
	receipt, err := h.engine.Unstake(ctx, alice)
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	expectAmount(t, "reward", receipt.Reward, 328)
	expectAmount(t, "payout", receipt.Payout, 100_328)
}

func TestStakeRejectsInvalidAndDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Stake(ctx, alice, big.NewInt(0))
	expectErr(t, err, ErrInvalidAmount)
	_, err = h.engine.Stake(ctx, alice, nil)
	expectErr(t, err, ErrInvalidAmount)
	_, err = h.engine.Stake(ctx, alice, big.NewInt(-5))
	expectErr(t, err, ErrInvalidAmount)

	if _, err := h.engine.Stake(ctx, alice, big.NewInt(50)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	_, err = h.engine.Stake(ctx, alice, big.NewInt(50))
	expectErr(t, err, ErrStakeAlreadyExists)
	expectAmount(t, "pool", h.liquidity(t), 50)
	if h.assets.count() != 1 {
		t.Fatalf("rejected stakes must not move funds")
	}
}

func TestUnstakeLockPeriod(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 10_000)
	ctx := context.Background()

	_, err := h.engine.Unstake(ctx, alice)
	expectErr(t, err, ErrNoStake)

	h.clock.set(1_000)
	if _, err := h.engine.Stake(ctx, alice, big.NewInt(500)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	h.clock.set(1_000 + Month - 1)
	_, err = h.engine.Unstake(ctx, alice)
	expectErr(t, err, ErrLockPeriodActive)
	if _, exists, _ := h.engine.GetStake(ctx, alice); !exists {
		t.Fatalf("early unstake must keep the stake")
	}

	h.clock.set(1_000 + Month)
	if _, err := h.engine.Unstake(ctx, alice); err != nil {
		t.Fatalf("unstake at lock expiry: %v", err)
	}
}

func TestUnstakePayoutBeyondPool(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.engine.Stake(ctx, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	h.clock.set(Year)
	_, err := h.engine.Unstake(ctx, alice)
	expectErr(t, err, ErrInsufficientLiquidity)
	if _, exists, _ := h.engine.GetStake(ctx, alice); !exists {
		t.Fatalf("failed unstake must keep the stake")
	}
	expectAmount(t, "pool", h.liquidity(t), 1000)
}

func TestPendingReward(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.engine.SetAPYSelector(APYSelectorFunc(func(crypto.Address, int64, Params) uint64 { return 10 }))

	_, err := h.engine.PendingReward(ctx, alice)
	expectErr(t, err, ErrNoStake)

	if _, err := h.engine.Stake(ctx, alice, big.NewInt(36_500)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	h.clock.set(Day)
	reward, err := h.engine.PendingReward(ctx, alice)
	if err != nil {
		t.Fatalf("pending reward: %v", err)
	}
	// 36500 * 10% / 365 per day.
	expectAmount(t, "reward", reward, 10)
}

func TestTimestampAPYStaysInBand(t *testing.T) {
	params := DefaultParams()
	seen := make(map[uint64]bool)
	for now := int64(0); now < 50; now++ {
		apy := TimestampAPY{}.SelectAPY(alice, now, params)
		if apy < params.APYMin || apy > params.APYMax {
			t.Fatalf("apy %d outside [%d,%d] at %d", apy, params.APYMin, params.APYMax, now)
		}
		seen[apy] = true
	}
	if len(seen) != int(params.APYMax-params.APYMin+1) {
		t.Fatalf("expected every apy in band, saw %v", seen)
	}
	if got := (TimestampAPY{}).SelectAPY(alice, 0, params); got != 4 {
		t.Fatalf("apy at t=0 = %d, want 4", got)
	}
}

func TestTimestampAPYFullBand(t *testing.T) {
	params := DefaultParams()
	params.APYMin = 0
	params.APYMax = math.MaxUint64
	if err := params.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := (TimestampAPY{}).SelectAPY(alice, 1234, params); got != 1234 {
		t.Fatalf("apy = %d, want 1234", got)
	}
	if got := (TimestampAPY{}).SelectAPY(alice, -7, params); got != 7 {
		t.Fatalf("apy = %d, want 7", got)
	}
}
