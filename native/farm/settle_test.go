package farm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettleAccumulatesPerShare(t *testing.T) {
	pool := NewPool()
	pool.BlockReward = big.NewInt(100)
	pool.EndBlock = 50
	pool.LastUpdateBlock = 10
	pool.GlobalStakeBalance = big.NewInt(4)

	next, err := Settle(pool, 20)
	require.NoError(t, err)
	// 10 blocks * 100 / 4 staked, scaled.
	want := new(big.Int).Mul(big.NewInt(250), FixedPointScale())
	require.Zero(t, next.AccRewardPerShare.Cmp(want))
	require.Equal(t, uint64(20), next.LastUpdateBlock)
	require.Zero(t, pool.AccRewardPerShare.Sign(), "input pool must not be mutated")

	again, err := Settle(next, 20)
	require.NoError(t, err)
	require.Zero(t, again.AccRewardPerShare.Cmp(next.AccRewardPerShare))
	require.Equal(t, next.LastUpdateBlock, again.LastUpdateBlock)
}

func TestSettleClampsToEndBlock(t *testing.T) {
	pool := NewPool()
	pool.BlockReward = big.NewInt(7)
	pool.EndBlock = 15
	pool.LastUpdateBlock = 10
	pool.GlobalStakeBalance = FixedPointScale()

	next, err := Settle(pool, 1_000)
	require.NoError(t, err)
	require.Equal(t, uint64(15), next.LastUpdateBlock)
	require.Zero(t, next.AccRewardPerShare.Cmp(big.NewInt(35)))
}

func TestSettleParksEmissionWithoutStake(t *testing.T) {
	pool := NewPool()
	pool.BlockReward = big.NewInt(3)
	pool.EndBlock = 100
	pool.Unallocated = big.NewInt(1)

	next, err := Settle(pool, 10)
	require.NoError(t, err)
	require.Zero(t, next.AccRewardPerShare.Sign())
	require.Zero(t, next.Unallocated.Cmp(big.NewInt(31)))
}

func TestSettleAccountCreditsSinceSnapshot(t *testing.T) {
	pool := NewPool()
	pool.AccRewardPerShare = new(big.Int).Mul(big.NewInt(5), FixedPointScale())

	staker := NewStaker(makeAddress(1))
	staker.Staked = big.NewInt(3)
	staker.RewardSnapshot = new(big.Int).Mul(big.NewInt(2), FixedPointScale())
	staker.Pending = big.NewInt(1)

	next, err := SettleAccount(pool, staker)
	require.NoError(t, err)
	require.Zero(t, next.Pending.Cmp(big.NewInt(10)))
	require.Zero(t, next.RewardSnapshot.Cmp(pool.AccRewardPerShare))
	require.Zero(t, staker.Pending.Cmp(big.NewInt(1)), "input staker must not be mutated")
}

func TestSettleAccountWithoutStakeOnlyMovesSnapshot(t *testing.T) {
	pool := NewPool()
	pool.AccRewardPerShare = big.NewInt(42)

	next, err := SettleAccount(pool, NewStaker(makeAddress(1)))
	require.NoError(t, err)
	require.Zero(t, next.Pending.Sign())
	require.Zero(t, next.RewardSnapshot.Cmp(big.NewInt(42)))
}

func TestSettleRejectsOverflow(t *testing.T) {
	maxWord := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	pool := NewPool()
	pool.BlockReward = maxWord
	pool.EndBlock = 10
	pool.GlobalStakeBalance = big.NewInt(1)
	_, err := Settle(pool, 5)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestCheckedMath(t *testing.T) {
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	maxWord := new(big.Int).Sub(tooBig, big.NewInt(1))

	_, err := checkedAdd(maxWord, big.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = checkedSub(big.NewInt(1), big.NewInt(2))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = toWord(tooBig)
	require.ErrorIs(t, err, ErrOverflow)

	_, err = toWord(big.NewInt(-1))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = mulDivFloor(big.NewInt(1), big.NewInt(1), big.NewInt(0))
	require.ErrorIs(t, err, ErrOverflow)

	// The intermediate product exceeds 256 bits but the quotient fits.
	got, err := mulDivFloor(maxWord, FixedPointScale(), FixedPointScale())
	require.NoError(t, err)
	require.Zero(t, got.Cmp(maxWord))

	q, r, err := divModUint64(big.NewInt(1000), 3)
	require.NoError(t, err)
	require.Zero(t, q.Cmp(big.NewInt(333)))
	require.Zero(t, r.Cmp(big.NewInt(1)))

	_, _, err = divModUint64(big.NewInt(1), 0)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestParseZeroStakePolicy(t *testing.T) {
	for raw, want := range map[string]ZeroStakePolicy{
		"":              ZeroStakeCarryForward,
		"carry":         ZeroStakeCarryForward,
		"Carry-Forward": ZeroStakeCarryForward,
		" forfeit ":     ZeroStakeForfeit,
	} {
		got, err := ParseZeroStakePolicy(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}
	_, err := ParseZeroStakePolicy("burn")
	require.Error(t, err)
}

func TestResumeEmissionRespreadsParkedReward(t *testing.T) {
	pool := NewPool()
	pool.BlockReward = big.NewInt(10)
	pool.EndBlock = 20
	pool.LastUpdateBlock = 10
	pool.Unallocated = big.NewInt(101)

	next, err := resumeEmission(pool, 10)
	require.NoError(t, err)
	// (10 * 10 + 101) over 10 blocks.
	require.Zero(t, next.BlockReward.Cmp(big.NewInt(20)))
	require.Zero(t, next.Unallocated.Cmp(big.NewInt(1)))
	require.Equal(t, uint64(20), next.EndBlock)

	closed, err := resumeEmission(pool, 20)
	require.NoError(t, err)
	require.Zero(t, closed.Unallocated.Cmp(big.NewInt(101)))
}
