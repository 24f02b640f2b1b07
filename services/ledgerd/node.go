package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/config"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/bank"
	nativecommon "github.com/This-Is-Captain-Code/ethtaipei-gk/native/common"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/native/lending"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/storage"
)

var genesisMarkerKey = []byte("ledgerd/genesis")

// logEmitter writes every ledger event at debug level.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	payload := evt.Event()
	if payload == nil {
		return
	}
	attrs := make([]any, 0, len(payload.Attributes)+2)
	attrs = append(attrs, slog.String("type", payload.Type), slog.Int64("event_time", payload.Timestamp))
	for key, value := range payload.Attributes {
		attrs = append(attrs, slog.String(key, value))
	}
	l.logger.Debug("ledger event", attrs...)
}

// node bundles the asset ledger and the lending engine over one database.
type node struct {
	bank   *bank.Ledger
	engine *lending.Engine
	pauses *nativecommon.PauseSet
}

func newNode(ctx context.Context, cfg *config.Config, db storage.Database, logger *slog.Logger, metrics lending.Metrics, emitter events.Emitter) (*node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	authorities, err := cfg.AuthorityAddresses()
	if err != nil {
		return nil, err
	}
	custodian, err := cfg.CustodianAddress()
	if err != nil {
		return nil, err
	}
	allocations, err := cfg.Allocations()
	if err != nil {
		return nil, err
	}

	ledger := bank.NewLedger(db, custodian)
	applied, err := applyGenesis(ctx, db, ledger, allocations)
	if err != nil {
		return nil, err
	}
	if applied {
		logger.Info("genesis allocations applied", slog.Int("accounts", len(allocations)))
	}
	ledger.SetEmitter(emitter)

	pauses := nativecommon.NewPauseSet(cfg.Pauses.Modules())
	engine := lending.NewEngine(ledger, lending.NewAuthoritySet(authorities...), cfg.Params)
	engine.SetState(lending.NewStoreState(db))
	engine.SetPauses(pauses)
	engine.SetMetrics(metrics)
	engine.SetEmitter(emitter)
	engine.SetLogger(logger)

	return &node{bank: ledger, engine: engine, pauses: pauses}, nil
}

// applyGenesis credits allocations once per database. It reports whether the
// allocations were applied by this call.
func applyGenesis(ctx context.Context, db storage.Database, ledger *bank.Ledger, allocations []config.Allocation) (bool, error) {
	done, err := db.Has(genesisMarkerKey)
	if err != nil {
		return false, fmt.Errorf("check genesis marker: %w", err)
	}
	if done {
		return false, nil
	}
	for _, alloc := range allocations {
		if err := ledger.Credit(ctx, alloc.Address, alloc.Amount); err != nil {
			return false, fmt.Errorf("genesis credit %s: %w", alloc.Address, err)
		}
	}
	if err := db.Put(genesisMarkerKey, []byte{1}); err != nil {
		return false, fmt.Errorf("persist genesis marker: %w", err)
	}
	return true, nil
}
