package lending

import (
	"context"
	"math/big"

	"github.com/This-Is-Captain-Code/ethtaipei-gk/core/events"
	"github.com/This-Is-Captain-Code/ethtaipei-gk/crypto"
)

// Stake opens a stake of amount for account. The APY is fixed at open time.
func (e *Engine) Stake(ctx context.Context, account crypto.Address, amount *big.Int) (*Stake, error) {
	var opened *Stake
	err := e.run(ctx, "stake", ModuleStaking, account, func(ctx context.Context) error {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		_, exists, err := e.state.GetStake(account)
		if err != nil {
			return err
		}
		if exists {
			return ErrStakeAlreadyExists
		}
		total, err := e.liquidity()
		if err != nil {
			return err
		}

		now := e.clock.Now()
		stake := &Stake{
			Amount: new(big.Int).Set(amount),
			Start:  now,
			APY:    e.apy.SelectAPY(account, now, e.params),
		}
		cs := newChangeset()
		cs.putStake(account, stake)
		cs.setLiquidity(new(big.Int).Add(total, amount))
		if err := e.apply(ctx, "stake", cs, transferIn(account, amount)); err != nil {
			return err
		}

		opened = stake
		e.emit(events.Staked{Account: account, Amount: cloneInt(amount), APY: stake.APY, Timestamp: now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return opened, nil
}

// Unstake closes the account's stake once the lock period has passed and pays
// out principal plus linear reward.
func (e *Engine) Unstake(ctx context.Context, account crypto.Address) (*UnstakeReceipt, error) {
	var receipt *UnstakeReceipt
	err := e.run(ctx, "unstake", ModuleStaking, account, func(ctx context.Context) error {
		stake, exists, err := e.state.GetStake(account)
		if err != nil {
			return err
		}
		if !exists || stake == nil {
			return ErrNoStake
		}
		now := e.clock.Now()
		if now < stake.Start+e.params.LockPeriod {
			return ErrLockPeriodActive
		}

		reward := stakeReward(stake.Amount, stake.APY, now-stake.Start, e.params.Year)
		payout := new(big.Int).Add(stake.Amount, reward)
		total, err := e.liquidity()
		if err != nil {
			return err
		}
		if payout.Cmp(total) > 0 {
			return ErrInsufficientLiquidity
		}

		cs := newChangeset()
		cs.deleteStake(account)
		cs.setLiquidity(new(big.Int).Sub(total, payout))
		if err := e.apply(ctx, "unstake", cs, transferOut(account, payout)); err != nil {
			return err
		}

		receipt = &UnstakeReceipt{Principal: cloneInt(stake.Amount), Reward: reward, Payout: payout}
		e.metrics.ObservePayout("unstake", payout)
		e.emit(events.Unstaked{
			Account:   account,
			Principal: cloneInt(stake.Amount),
			Reward:    cloneInt(reward),
			Payout:    cloneInt(payout),
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// GetStake returns the account's stake, if any.
func (e *Engine) GetStake(ctx context.Context, account crypto.Address) (Stake, bool, error) {
	var (
		out    Stake
		exists bool
	)
	err := e.run(ctx, "get_stake", "", account, func(context.Context) error {
		stake, ok, err := e.state.GetStake(account)
		if err != nil {
			return err
		}
		if ok && stake != nil {
			out = *stake.Clone()
			exists = true
		}
		return nil
	})
	return out, exists, err
}

// PendingReward previews the reward the stake has accrued so far. The lock
// period is not enforced.
func (e *Engine) PendingReward(ctx context.Context, account crypto.Address) (*big.Int, error) {
	var reward *big.Int
	err := e.run(ctx, "pending_reward", "", account, func(context.Context) error {
		stake, ok, err := e.state.GetStake(account)
		if err != nil {
			return err
		}
		if !ok || stake == nil {
			return ErrNoStake
		}
		reward = stakeReward(stake.Amount, stake.APY, e.clock.Now()-stake.Start, e.params.Year)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}
