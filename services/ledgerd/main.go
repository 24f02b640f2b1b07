package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	ledgercfg "github.com/This-Is-Captain-Code/ethtaipei-gk/config"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/observability/logging"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/observability/metrics"
	telemetry "github.com/This-Is-Captain-Code/ethtaipei-gk/observability/otel"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/services/ledgerd/audit"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/services/ledgerd/config"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/services/ledgerd/server"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/storage"
)

const (
	serviceName     = "ledgerd"
	shutdownTimeout = 5 * time.Second
	sweepInterval   = time.Minute
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/ledgerd/config.yaml", "path to ledgerd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("GK_ENV"))
	if err := run(cfgPath, env); err != nil {
		log.Fatalf("ledgerd: %v", err)
	}
}

func run(cfgPath, env string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions(logging.Options{
		Service:    serviceName,
		Env:        env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv(serviceName, env))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	ledgerPath := cfg.LedgerConfig
	if !filepath.IsAbs(ledgerPath) {
		ledgerPath = filepath.Join(filepath.Dir(cfgPath), ledgerPath)
	}
	ledgerConf, err := ledgercfg.Load(ledgerPath)
	if err != nil {
		return fmt.Errorf("load ledger config: %w", err)
	}

	db, err := storage.NewLevelDB(ledgerConf.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerMetrics := metrics.Ledger()
	hub := server.NewHub(logger)
	emitters := events.Fanout{hub, ledgerMetrics, logEmitter{logger: logger}}

	var auditStore *audit.Store
	if cfg.AuditEnabled() {
		auditDB, err := audit.Open(cfg.Audit.Driver, cfg.Audit.DSN)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		auditStore, err = audit.NewStore(auditDB, logger)
		if err != nil {
			return fmt.Errorf("init audit store: %w", err)
		}
		emitters = append(emitters, auditStore)
		logger.Info("audit log enabled",
			slog.String("driver", cfg.Audit.Driver),
			logging.MaskField("dsn", cfg.Audit.DSN))
	}

	n, err := newNode(ctx, ledgerConf, db, logger, ledgerMetrics, emitters)
	if err != nil {
		return err
	}
	if total, err := n.engine.TotalLiquidity(ctx); err == nil {
		ledgerMetrics.SetLiquidity(total)
	}

	limiter := server.NewRateLimiter(server.RateLimit{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	})
	go limiter.Run(ctx, sweepInterval)

	opts := server.Options{
		Ledger:   n.engine,
		Balances: n.bank,
		Hub:      hub,
		Auth: server.NewAuthenticator(server.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger),
		RateLimiter: limiter,
		Metrics:     ledgerMetrics,
		Gatherer:    prometheus.DefaultGatherer,
		Logger:      logger,
	}
	if auditStore != nil {
		opts.Audit = auditStore
	}
	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	if cfg.TLS.AllowInsecure {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			_ = listener.Close()
			return errors.New("plaintext ledgerd mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tlsCfg, err := loadServerTLS(cfg.TLS)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("configure tls: %w", err)
	}
	if tlsCfg != nil {
		httpServer.TLSConfig = tlsCfg
		listener = tls.NewListener(listener, tlsCfg)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ledgerd listening",
			slog.String("addr", cfg.ListenAddress),
			slog.Bool("tls", tlsCfg != nil))
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", slog.Any("error", err))
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	}
}

func loadServerTLS(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CertPath == "" || cfg.KeyPath == "" {
		if cfg.AllowInsecure {
			return nil, nil
		}
		return nil, errors.New("tls credentials are required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}
