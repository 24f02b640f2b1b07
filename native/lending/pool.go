package lending

import (
	"context"
	"math/big"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

// AddLiquidity moves amount from the authority caller into the pool.
func (e *Engine) AddLiquidity(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error) {
	var updated *big.Int
	err := e.run(ctx, "add_liquidity", ModulePool, caller, func(ctx context.Context) error {
		if err := e.requireAuthority(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		total, err := e.liquidity()
		if err != nil {
			return err
		}
		next := new(big.Int).Add(total, amount)
		cs := newChangeset()
		cs.setLiquidity(next)
		if err := e.apply(ctx, "add_liquidity", cs, transferIn(caller, amount)); err != nil {
			return err
		}
		updated = next
		e.emit(events.LiquidityAdded{Account: caller, Amount: cloneInt(amount), Total: cloneInt(next), Timestamp: e.clock.Now()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveLiquidity pays amount from the pool to the authority caller.
func (e *Engine) RemoveLiquidity(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error) {
	return e.drain(ctx, "remove_liquidity", caller, amount, false)
}

// Withdraw is the emergency drain. It skips the balance check, so the pool
// can go negative.
func (e *Engine) Withdraw(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, error) {
	return e.drain(ctx, "withdraw", caller, amount, true)
}

func (e *Engine) drain(ctx context.Context, op string, caller crypto.Address, amount *big.Int, emergency bool) (*big.Int, error) {
	var updated *big.Int
	err := e.run(ctx, op, ModulePool, caller, func(ctx context.Context) error {
		if err := e.requireAuthority(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		total, err := e.liquidity()
		if err != nil {
			return err
		}
		if !emergency && amount.Cmp(total) > 0 {
			return ErrInsufficientLiquidity
		}
		next := new(big.Int).Sub(total, amount)
		cs := newChangeset()
		cs.setLiquidity(next)
		if err := e.apply(ctx, op, cs, transferOut(caller, amount)); err != nil {
			return err
		}
		updated = next
		if emergency {
			e.logger.Warn("emergency liquidity withdrawal",
				"caller", caller.String(),
				"amount", amount.String(),
				"total", next.String())
		}
		e.emit(events.LiquidityRemoved{
			Account:   caller,
			Amount:    cloneInt(amount),
			Total:     cloneInt(next),
			Emergency: emergency,
			Timestamp: e.clock.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
