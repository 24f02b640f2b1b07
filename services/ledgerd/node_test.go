package main

import (
	"bytes"
	"context"
	"log/slog"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/config"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/bank"
	nativecommon "github.com/This-Is-Captain-Code/ethtaipei-gk/native/common"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/lending"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/storage"
)

func testAddress(b byte) crypto.Address {
	var addr crypto.Address
	addr[0] = 0x11
	addr[19] = b
	return addr
}

func testConfig() *config.Config {
	cfg := config.Default(testAddress(0xA0), testAddress(0xC0))
	cfg.Genesis = []config.GenesisAllocation{
		{Address: testAddress(0x01).String(), Amount: "5000"},
		{Address: testAddress(0xA0).String(), Amount: "100000"},
	}
	return cfg
}

func TestGenesisAppliedOnce(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	cfg := testConfig()

	first, err := newNode(ctx, cfg, db, slog.Default(), nil, events.NoopEmitter{})
	require.NoError(t, err)
	bal, err := first.bank.BalanceOf(testAddress(0x01))
	require.NoError(t, err)
	require.Equal(t, int64(5000), bal.Int64())

	second, err := newNode(ctx, cfg, db, slog.Default(), nil, events.NoopEmitter{})
	require.NoError(t, err)
	bal, err = second.bank.BalanceOf(testAddress(0x01))
	require.NoError(t, err)
	require.Equal(t, int64(5000), bal.Int64())
}

func TestNodeWiresAuthorityAndPauses(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Pauses.Lending = true
	recorder := &events.Recorder{}

	n, err := newNode(ctx, cfg, storage.NewMemDB(), slog.Default(), nil, recorder)
	require.NoError(t, err)
	require.True(t, n.engine.IsAuthority(testAddress(0xA0)))
	require.False(t, n.engine.IsAuthority(testAddress(0x01)))

	total, err := n.engine.AddLiquidity(ctx, testAddress(0xA0), big.NewInt(700))
	require.NoError(t, err)
	require.Equal(t, int64(700), total.Int64())

	custodian, err := n.bank.BalanceOf(testAddress(0xC0))
	require.NoError(t, err)
	require.Equal(t, int64(700), custodian.Int64())
	require.NotEmpty(t, recorder.Events())

	err = n.engine.SubmitCollateral(ctx, testAddress(0x01), lending.Collateral{Type: "erc721", TokenID: big.NewInt(1)})
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	n.pauses.Set(lending.ModuleLending, false)
	require.NoError(t, n.engine.SubmitCollateral(ctx, testAddress(0x01), lending.Collateral{Type: "erc721", TokenID: big.NewInt(1)}))
}

func TestCustodianCannotFundItself(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Genesis = append(cfg.Genesis, config.GenesisAllocation{Address: testAddress(0xC0).String(), Amount: "100"})

	n, err := newNode(ctx, cfg, storage.NewMemDB(), slog.Default(), nil, events.NoopEmitter{})
	require.NoError(t, err)

	_, err = n.engine.Stake(ctx, testAddress(0xC0), big.NewInt(100))
	require.ErrorIs(t, err, bank.ErrSelfTransfer)

	total, err := n.engine.TotalLiquidity(ctx)
	require.NoError(t, err)
	require.Zero(t, total.Sign())
	held, err := n.bank.BalanceOf(testAddress(0xC0))
	require.NoError(t, err)
	require.Equal(t, int64(100), held.Int64())

	shared := testConfig()
	shared.Custodian = testAddress(0xA0).String()
	_, err = newNode(ctx, shared, storage.NewMemDB(), slog.Default(), nil, events.NoopEmitter{})
	require.ErrorContains(t, err, "must not be an authority")
}

func TestLogEmitterWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logEmitter{logger: logger}.Emit(events.LiquidityAdded{
		Account:   testAddress(0xA0),
		Amount:    big.NewInt(9),
		Total:     big.NewInt(9),
		Timestamp: 42,
	})
	out := buf.String()
	require.Contains(t, out, `"type":"`+events.TypeLiquidityAdded+`"`)
	require.Contains(t, out, `"total":"9"`)
	require.Contains(t, out, `"event_time":42`)
}
