package farm

import "math/big"

// Settle returns a copy of pool with emission accounted up to height. Blocks
// at or past EndBlock emit nothing, and calling Settle again at the same
// height is a no-op. While no stake is locked the accumulator does not move;
// the emission is parked in Unallocated instead.
func Settle(pool *Pool, height uint64) (*Pool, error) {
	if pool == nil {
		pool = NewPool()
	}
	next := pool.Clone()
	next.EnsureDefaults()

	upTo := height
	if next.EndBlock < upTo {
		upTo = next.EndBlock
	}
	if upTo <= next.LastUpdateBlock {
		return next, nil
	}
	elapsed := upTo - next.LastUpdateBlock

	emitted, err := checkedMulUint64(next.BlockReward, elapsed)
	if err != nil {
		return nil, err
	}
	if next.GlobalStakeBalance.Sign() == 0 {
		if next.Unallocated, err = checkedAdd(next.Unallocated, emitted); err != nil {
			return nil, err
		}
	} else {
		delta, err := mulDivFloor(emitted, FixedPointScale(), next.GlobalStakeBalance)
		if err != nil {
			return nil, err
		}
		if next.AccRewardPerShare, err = checkedAdd(next.AccRewardPerShare, delta); err != nil {
			return nil, err
		}
	}
	next.LastUpdateBlock = upTo
	return next, nil
}

// SettleAccount returns a copy of staker with the reward accrued since its
// last snapshot moved into Pending. pool must already be settled.
func SettleAccount(pool *Pool, staker *Staker) (*Staker, error) {
	next := staker.Clone()
	next.EnsureDefaults()
	acc := big.NewInt(0)
	if pool != nil && pool.AccRewardPerShare != nil {
		acc = pool.AccRewardPerShare
	}
	if next.Staked.Sign() > 0 {
		perShare, err := checkedSub(acc, next.RewardSnapshot)
		if err != nil {
			return nil, err
		}
		earned, err := mulDivFloor(perShare, next.Staked, FixedPointScale())
		if err != nil {
			return nil, err
		}
		if next.Pending, err = checkedAdd(next.Pending, earned); err != nil {
			return nil, err
		}
	}
	next.RewardSnapshot = new(big.Int).Set(acc)
	return next, nil
}

// remainingEmission is what the current window would still emit from height
// to EndBlock at the current rate.
func remainingEmission(pool *Pool, height uint64) (*big.Int, error) {
	if height >= pool.EndBlock {
		return big.NewInt(0), nil
	}
	return checkedMulUint64(pool.BlockReward, pool.EndBlock-height)
}

// respread recomputes BlockReward so total is emitted evenly over
// [height, endBlock). The floor-division dust is parked in Unallocated.
func respread(pool *Pool, total *big.Int, height, endBlock uint64) error {
	rate, dust, err := divModUint64(total, endBlock-height)
	if err != nil {
		return err
	}
	unallocated, err := checkedAdd(pool.Unallocated, dust)
	if err != nil {
		return err
	}
	pool.BlockReward = rate
	pool.Unallocated = unallocated
	pool.EndBlock = endBlock
	pool.LastUpdateBlock = height
	return nil
}

// openWindow applies a jackpot top-up to a pool already settled at height.
func openWindow(pool *Pool, amount *big.Int, height, endBlock uint64, policy ZeroStakePolicy) (*Pool, error) {
	next := pool.Clone()
	next.EnsureDefaults()

	total, err := remainingEmission(next, height)
	if err != nil {
		return nil, err
	}
	if policy == ZeroStakeCarryForward && next.Unallocated.Sign() > 0 {
		if total, err = checkedAdd(total, next.Unallocated); err != nil {
			return nil, err
		}
		next.Unallocated = big.NewInt(0)
	}
	if total, err = checkedAdd(total, amount); err != nil {
		return nil, err
	}
	if next.GlobalRewardBalance, err = checkedAdd(next.GlobalRewardBalance, amount); err != nil {
		return nil, err
	}
	if err := respread(next, total, height, endBlock); err != nil {
		return nil, err
	}
	return next, nil
}

// resumeEmission re-spreads parked emission over the rest of an open window.
// It runs when stake returns to an empty pool under carry-forward.
func resumeEmission(pool *Pool, height uint64) (*Pool, error) {
	next := pool.Clone()
	next.EnsureDefaults()
	if next.Unallocated.Sign() == 0 || height >= next.EndBlock {
		return next, nil
	}
	total, err := remainingEmission(next, height)
	if err != nil {
		return nil, err
	}
	if total, err = checkedAdd(total, next.Unallocated); err != nil {
		return nil, err
	}
	next.Unallocated = big.NewInt(0)
	if err := respread(next, total, height, next.EndBlock); err != nil {
		return nil, err
	}
	return next, nil
}
