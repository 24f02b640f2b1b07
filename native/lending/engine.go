package lending

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
	nativecommon "github.com/This-Is-Captain-Code/ethtaipei-gk/native/common"
)

// Pause guard module names.
const (
	ModuleStaking = "staking"
	ModuleLending = "lending"
	ModulePool    = "pool"
)

const tracerName = "github.com/This-Is-Captain-Code/ethtaipei-gk/native/lending"

type transferMarker struct{}

func markTransfer(ctx context.Context) context.Context {
	return context.WithValue(ctx, transferMarker{}, true)
}

// InTransfer reports whether ctx was handed out by the engine to its asset
// ledger. Calls made with such a context are rejected with ErrReentrantCall.
func InTransfer(ctx context.Context) bool {
	marked, _ := ctx.Value(transferMarker{}).(bool)
	return marked
}

// Engine is the ledger state machine covering stakes, loans and the shared
// liquidity pool. Every operation runs under one mutex, so operations are
// totally ordered.
type Engine struct {
	mu        sync.Mutex
	state     engineState
	assets    AssetLedger
	authority Authority
	clock     Clock
	emitter   events.Emitter
	pauses    nativecommon.PauseView
	params    Params
	apy       APYSelector
	metrics   Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewEngine constructs an engine moving funds through assets and gating
// privileged operations with authority.
func NewEngine(assets AssetLedger, authority Authority, params Params) *Engine {
	return &Engine{
		assets:    assets,
		authority: authority,
		clock:     SystemClock{},
		emitter:   events.NoopEmitter{},
		params:    params,
		apy:       TimestampAPY{},
		metrics:   noopMetrics{},
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetClock(clock Clock) {
	if clock == nil {
		clock = SystemClock{}
	}
	e.clock = clock
}

// SetEmitter configures the sink for ledger events. Emitters run while the
// engine lock is held and must not call back into the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

func (e *Engine) SetAPYSelector(selector APYSelector) {
	if selector == nil {
		selector = TimestampAPY{}
	}
	e.apy = selector
}

func (e *Engine) SetMetrics(m Metrics) {
	if m == nil {
		m = noopMetrics{}
	}
	e.metrics = m
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// Params returns the active parameter set.
func (e *Engine) Params() Params { return e.params }

// IsAuthority reports whether addr may run privileged operations.
func (e *Engine) IsAuthority(addr crypto.Address) bool {
	return e.authority != nil && e.authority.IsAuthorized(addr)
}

func (e *Engine) requireAuthority(caller crypto.Address) error {
	if !e.IsAuthority(caller) {
		return ErrUnauthorized
	}
	return nil
}

// run executes fn under the engine lock inside a span. module, when set, is
// checked against the pause view first.
func (e *Engine) run(ctx context.Context, op, module string, account crypto.Address, fn func(ctx context.Context) error) (err error) {
	if InTransfer(ctx) {
		return ErrReentrantCall
	}
	ctx, span := e.tracer.Start(ctx, "lending."+op, trace.WithAttributes(
		attribute.String("ledger.operation", op),
		attribute.String("ledger.account", account.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if module != "" {
			e.metrics.ObserveOperation(op, err)
		}
	}()

	if e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, module); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(ctx)
}

type transfer struct {
	inbound bool
	account crypto.Address
	amount  *big.Int
}

func transferIn(from crypto.Address, amount *big.Int) transfer {
	return transfer{inbound: true, account: from, amount: amount}
}

func transferOut(to crypto.Address, amount *big.Int) transfer {
	return transfer{account: to, amount: amount}
}

func (t transfer) reverse() transfer {
	t.inbound = !t.inbound
	return t
}

func (t transfer) direction() string {
	if t.inbound {
		return "in"
	}
	return "out"
}

func (e *Engine) move(ctx context.Context, t transfer) error {
	if e.assets == nil {
		return errNilAssets
	}
	if t.inbound {
		return e.assets.TransferIn(markTransfer(ctx), t.account, new(big.Int).Set(t.amount))
	}
	return e.assets.TransferOut(markTransfer(ctx), t.account, new(big.Int).Set(t.amount))
}

// apply performs the single asset transfer of an operation and commits cs
// only when it succeeds. A commit failure is compensated with the reverse
// transfer.
func (e *Engine) apply(ctx context.Context, op string, cs *Changeset, t transfer) error {
	if err := e.move(ctx, t); err != nil {
		e.metrics.ObserveTransferFailure(op)
		e.logger.Warn("lending transfer failed",
			slog.String("operation", op),
			slog.String("direction", t.direction()),
			slog.String("account", t.account.String()),
			slog.String("amount", t.amount.String()),
			slog.Any("error", err))
		return fmt.Errorf("%w: %w", ErrExternalTransferFailed, err)
	}
	return e.commit(ctx, op, cs, &t)
}

func (e *Engine) commit(ctx context.Context, op string, cs *Changeset, t *transfer) error {
	if err := e.state.Commit(cs); err != nil {
		if t != nil {
			if rerr := e.move(ctx, t.reverse()); rerr != nil {
				e.logger.Error("lending compensation failed",
					slog.String("operation", op),
					slog.String("account", t.account.String()),
					slog.String("amount", t.amount.String()),
					slog.Any("commit_error", err),
					slog.Any("error", rerr))
			}
		}
		return fmt.Errorf("lending engine: commit %s: %w", op, err)
	}
	if cs.liquidity != nil {
		e.metrics.SetLiquidity(cs.liquidity)
	}
	return nil
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) liquidity() (*big.Int, error) {
	total, err := e.state.GetLiquidity()
	if err != nil {
		return nil, err
	}
	return zeroIfNil(total), nil
}

// TotalLiquidity returns the pool balance. It may be negative after an
// emergency Withdraw.
func (e *Engine) TotalLiquidity(ctx context.Context) (*big.Int, error) {
	var total *big.Int
	err := e.run(ctx, "total_liquidity", "", crypto.Address{}, func(context.Context) error {
		var err error
		total, err = e.liquidity()
		return err
	})
	return total, err
}
