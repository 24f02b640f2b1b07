package lending

import (
	"context"
	"math/big"
	"testing"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/storage"
)

func newStoreEngine(t *testing.T, db storage.Database, clock Clock) *Engine {
	t.Helper()
	engine := NewEngine(&mockAssets{}, OwnerAuthority(authorityAddr), DefaultParams())
	engine.SetState(NewStoreState(db))
	engine.SetClock(clock)
	return engine
}

func TestStoreStatePersistsAcrossEngines(t *testing.T) {
	db, err := storage.NewMemLevelDB()
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	clock := &testClock{now: 100}

	first := newStoreEngine(t, db, clock)
	if _, err := first.AddLiquidity(ctx, authorityAddr, big.NewInt(10_000)); err != nil {
		t.Fatalf("add liquidity: %v", err)
	}
	if _, err := first.Stake(ctx, alice, big.NewInt(700)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := first.SubmitCollateral(ctx, bob, nftCollateral(77)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := first.VerifyCollateral(ctx, authorityAddr, bob, true); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := first.IssueLoan(ctx, authorityAddr, bob, big.NewInt(2_000), 2*Month); err != nil {
		t.Fatalf("issue: %v", err)
	}

	second := newStoreEngine(t, db, clock)
	stake, ok, err := second.GetStake(ctx, alice)
	if err != nil || !ok {
		t.Fatalf("reload stake: ok=%v err=%v", ok, err)
	}
	if stake.Start != 100 || stake.Amount.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("unexpected stake %+v", stake)
	}
	loan, err := second.GetBorrowing(ctx, bob)
	if err != nil {
		t.Fatalf("reload loan: %v", err)
	}
	if !loan.IsActive || !loan.IsVerified || loan.Duration != 2*Month || loan.InterestRate != 10 {
		t.Fatalf("unexpected loan %+v", loan)
	}
	if loan.Collateral.TokenID.Cmp(big.NewInt(77)) != 0 || loan.Collateral.ContractChain != "ethereum" {
		t.Fatalf("collateral not persisted: %+v", loan.Collateral)
	}
	total, err := second.TotalLiquidity(ctx)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	expectAmount(t, "total", total, 8_700)

	stakes, err := second.ListStakes(ctx)
	if err != nil || len(stakes) != 1 || stakes[0].Account != alice {
		t.Fatalf("list stakes: %v %+v", err, stakes)
	}
	loans, err := second.ListLoans(ctx)
	if err != nil || len(loans) != 1 || loans[0].Account != bob {
		t.Fatalf("list loans: %v %+v", err, loans)
	}
}

func TestStoreStateNegativeLiquidity(t *testing.T) {
	db := storage.NewMemDB()
	ctx := context.Background()
	engine := newStoreEngine(t, db, &testClock{})
	if _, err := engine.Withdraw(ctx, authorityAddr, big.NewInt(42)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	total, err := NewStoreState(db).GetLiquidity()
	if err != nil {
		t.Fatalf("get liquidity: %v", err)
	}
	expectAmount(t, "total", total, -42)
}

func TestStoreStateUnstakeDeletesRecord(t *testing.T) {
	db := storage.NewMemDB()
	ctx := context.Background()
	clock := &testClock{}
	engine := newStoreEngine(t, db, clock)
	if _, err := engine.AddLiquidity(ctx, authorityAddr, big.NewInt(1_000)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := engine.Stake(ctx, alice, big.NewInt(100)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	clock.set(Month)
	if _, err := engine.Unstake(ctx, alice); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if ok, _ := db.Has(stakeKey(alice)); ok {
		t.Fatalf("stake key should be deleted")
	}
}

func TestMemStateListing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, addr := range []byte{3, 1, 2} {
		if _, err := h.engine.Stake(ctx, makeAddress(addr), big.NewInt(1)); err != nil {
			t.Fatalf("stake: %v", err)
		}
	}
	stakes, err := h.engine.ListStakes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stakes) != 3 || stakes[0].Account != makeAddress(1) || stakes[2].Account != makeAddress(3) {
		t.Fatalf("unexpected order %+v", stakes)
	}
}
