package lending

import (
	"context"
	"math/big"
	"testing"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
)

func TestLiquidityAddRemove(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	total, err := h.engine.AddLiquidity(ctx, authorityAddr, big.NewInt(5_000))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	expectAmount(t, "total", total, 5_000)

	_, err = h.engine.RemoveLiquidity(ctx, authorityAddr, big.NewInt(5_001))
	expectErr(t, err, ErrInsufficientLiquidity)

	total, err = h.engine.RemoveLiquidity(ctx, authorityAddr, big.NewInt(2_000))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	expectAmount(t, "total", total, 3_000)
	if mv := h.assets.last(); mv.inbound || mv.account != authorityAddr {
		t.Fatalf("unexpected transfer %+v", mv)
	}

	_, err = h.engine.AddLiquidity(ctx, authorityAddr, big.NewInt(0))
	expectErr(t, err, ErrInvalidAmount)
	_, err = h.engine.RemoveLiquidity(ctx, authorityAddr, nil)
	expectErr(t, err, ErrInvalidAmount)
}

func TestWithdrawCanDrivePoolNegative(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 100)
	ctx := context.Background()

	total, err := h.engine.Withdraw(ctx, authorityAddr, big.NewInt(250))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	expectAmount(t, "total", total, -150)
	expectAmount(t, "stored total", h.liquidity(t), -150)

	evts := h.recorder.Events()
	if len(evts) != 1 || evts[0].EventType() != events.TypeLiquidityRemoved {
		t.Fatalf("unexpected events %v", h.recorder.Types())
	}
	if evts[0].Event().Attr("emergency") != "true" {
		t.Fatalf("withdraw should be flagged as emergency")
	}
	if evts[0].Event().Attr("total") != "-150" {
		t.Fatalf("unexpected total attribute %q", evts[0].Event().Attr("total"))
	}
}

func TestAuthorityOperationsRejectOthers(t *testing.T) {
	h := newHarness(t)
	h.fund(t, 1_000)
	ctx := context.Background()
	if err := h.engine.SubmitCollateral(ctx, alice, nftCollateral(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	cases := map[string]func() error{
		"verify": func() error { return h.engine.VerifyCollateral(ctx, bob, alice, true) },
		"issue":  func() error { return h.engine.IssueLoan(ctx, bob, alice, big.NewInt(1), Month) },
		"add": func() error {
			_, err := h.engine.AddLiquidity(ctx, bob, big.NewInt(1))
			return err
		},
		"remove": func() error {
			_, err := h.engine.RemoveLiquidity(ctx, bob, big.NewInt(1))
			return err
		},
		"withdraw": func() error {
			_, err := h.engine.Withdraw(ctx, bob, big.NewInt(1))
			return err
		},
	}
	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			expectErr(t, call(), ErrUnauthorized)
		})
	}
	expectAmount(t, "pool", h.liquidity(t), 1_000)
}

func TestAuthoritySet(t *testing.T) {
	set := NewAuthoritySet(authorityAddr)
	if !set.IsAuthorized(authorityAddr) || set.IsAuthorized(alice) {
		t.Fatalf("unexpected membership")
	}
	set.Add(alice)
	set.Remove(authorityAddr)
	if set.IsAuthorized(authorityAddr) || !set.IsAuthorized(alice) {
		t.Fatalf("membership not updated")
	}
	var zero OwnerAuthority
	if zero.IsAuthorized([20]byte{}) {
		t.Fatalf("zero owner must not authorise the zero address")
	}
}
