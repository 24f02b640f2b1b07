package metrics

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
)

func TestLedgerMetricsRecord(t *testing.T) {
	m := NewLedgerMetrics(prometheus.NewRegistry())

	m.ObserveOperation("stake", nil)
	m.ObserveOperation("stake", errors.New("boom"))
	m.ObserveOperation("stake", nil)
	require.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("stake", "error")))

	m.ObserveTransferFailure("unstake")
	require.Equal(t, 1.0, testutil.ToFloat64(m.transferFailures.WithLabelValues("unstake")))

	m.SetLiquidity(big.NewInt(-150))
	require.Equal(t, -150.0, testutil.ToFloat64(m.liquidity))

	m.Emit(events.Staked{Amount: big.NewInt(1)})
	require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues(events.TypeStaked)))

	m.ObserveRequest("/v1/stake", 200, 5*time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/v1/stake", "200")))
}

func TestNilLedgerMetrics(t *testing.T) {
	var m *LedgerMetrics
	m.ObserveOperation("stake", nil)
	m.SetLiquidity(big.NewInt(1))
	m.ObservePayout("unstake", big.NewInt(1))
	m.Emit(events.Staked{})
	m.ObserveRequest("/", 200, time.Second)
}
