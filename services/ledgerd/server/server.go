package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/lending"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/observability/metrics"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/services/ledgerd/audit"
)

// Ledger is the engine surface exposed over HTTP.
type Ledger interface {
	Stake(ctx context.Context, account crypto.Address, amount *big.Int) (*lending.Stake, error)
	Unstake(ctx context.Context, account crypto.Address) (*lending.UnstakeReceipt, error)
	GetStake(ctx context.Context, account crypto.Address) (lending.Stake, bool, error)
	PendingReward(ctx context.Context, account crypto.Address) (*big.Int, error)
	ListStakes(ctx context.Context) ([]lending.StakeEntry, error)

	SubmitCollateral(ctx context.Context, account crypto.Address, collateral lending.Collateral) error
	VerifyCollateral(ctx context.Context, caller, account crypto.Address, verified bool) error
	IssueLoan(ctx context.Context, caller, account crypto.Address, amount *big.Int, duration int64) error
	PayMonthlyInterest(ctx context.Context, account crypto.Address) (*big.Int, error)
	RepayLoan(ctx context.Context, account crypto.Address) (*big.Int, error)
	GetBorrowing(ctx context.Context, account crypto.Address) (lending.Loan, error)
	AmountDue(ctx context.Context, account crypto.Address) (*lending.AmountDue, error)
	ListLoans(ctx context.Context) ([]lending.LoanEntry, error)

	AddLiquidity(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error)
	RemoveLiquidity(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error)
	Withdraw(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error)
	TotalLiquidity(ctx context.Context) (*big.Int, error)
}

// Balances reads asset balances.
type Balances interface {
	BalanceOf(addr crypto.Address) (*big.Int, error)
}

// AuditLog verifies the audit hash chain.
type AuditLog interface {
	Verify(ctx context.Context) (audit.VerifyResult, error)
}

// Options wires the server's collaborators. Ledger, Balances and Auth are
// required.
type Options struct {
	Ledger      Ledger
	Balances    Balances
	Audit       AuditLog
	Hub         *Hub
	Auth        *Authenticator
	RateLimiter *RateLimiter
	Metrics     *metrics.LedgerMetrics
	Gatherer    prometheus.Gatherer
	Logger      *slog.Logger
}

// Server serves the ledger HTTP API.
type Server struct {
	ledger   Ledger
	balances Balances
	audit    AuditLog
	hub      *Hub
	auth     *Authenticator
	limiter  *RateLimiter
	metrics  *metrics.LedgerMetrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Ledger == nil {
		return nil, errors.New("ledgerd: ledger required")
	}
	if opts.Balances == nil {
		return nil, errors.New("ledgerd: balances required")
	}
	if opts.Auth == nil {
		return nil, errors.New("ledgerd: authenticator required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(opts.Logger)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		ledger:   opts.Ledger,
		balances: opts.Balances,
		audit:    opts.Audit,
		hub:      opts.Hub,
		auth:     opts.Auth,
		limiter:  opts.RateLimiter,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		logger:   opts.Logger,
	}, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(v chi.Router) {
		if s.limiter != nil {
			v.Use(s.limiter.Middleware)
		}
		v.Use(s.auth.Middleware)

		v.Post("/stake", s.handleStake)
		v.Post("/unstake", s.handleUnstake)
		v.Get("/stakes", s.handleListStakes)
		v.Get("/stakes/{account}", s.handleGetStake)
		v.Get("/stakes/{account}/reward", s.handlePendingReward)

		v.Post("/loans/collateral", s.handleSubmitCollateral)
		v.Post("/loans/verify", s.handleVerifyCollateral)
		v.Post("/loans/issue", s.handleIssueLoan)
		v.Post("/loans/interest", s.handlePayInterest)
		v.Post("/loans/repay", s.handleRepay)
		v.Get("/loans", s.handleListLoans)
		v.Get("/loans/{account}", s.handleGetLoan)
		v.Get("/loans/{account}/due", s.handleAmountDue)

		v.Post("/pool/add", s.handleAddLiquidity)
		v.Post("/pool/remove", s.handleRemoveLiquidity)
		v.Post("/pool/withdraw", s.handleWithdraw)
		v.Get("/pool", s.handlePool)

		v.Get("/accounts/{account}/balance", s.handleBalance)
		v.Get("/audit/verify", s.handleAuditVerify)
		v.Handle("/events/ws", s.hub)
	})
	return otelhttp.NewHandler(r, "ledgerd")
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, status, time.Since(start))
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := toStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			slog.Any("error", err))
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
