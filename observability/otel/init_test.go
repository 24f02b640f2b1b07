package otel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,bogus,=empty, tenant=ledger")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "ledger"}, headers)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("OTEL_SDK_DISABLED", "")
	cfg := ConfigFromEnv("ledgerd", "dev")
	require.Equal(t, "collector:4318", cfg.Endpoint)
	require.False(t, cfg.Insecure)
	require.True(t, cfg.Traces)

	t.Setenv("OTEL_SDK_DISABLED", "true")
	cfg = ConfigFromEnv("ledgerd", "dev")
	require.False(t, cfg.Traces)
	require.False(t, cfg.Metrics)

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestEndpointHost(t *testing.T) {
	require.Equal(t, "collector:4318", endpointHost("https://collector:4318"))
	require.Equal(t, "collector:4318", endpointHost(" http://collector:4318 "))
	require.Equal(t, defaultEndpoint, endpointHost(""))
}

func TestInitInstallsProviders(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		ServiceName:    "ledgerd-test",
		Environment:    "test",
		Endpoint:       "127.0.0.1:1",
		Insecure:       true,
		Traces:         true,
		Metrics:        true,
		MetricInterval: time.Hour,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}
