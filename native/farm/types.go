package farm

import (
	"fmt"
	"math/big"
	"strings"

	"epkfarm/crypto"
)

// Pool captures the global emission and accrual state of the farm. Amount
// values are 18-decimal fixed-point integers in base units of their token.
type Pool struct {
	// GlobalRewardBalance is the reward (EPK) amount held in custody for
	// distribution. It grows on jackpot top-ups and shrinks on harvest.
	GlobalRewardBalance *big.Int
	// GlobalStakeBalance is the total stake (LP) locked by all stakers.
	GlobalStakeBalance *big.Int
	// BlockReward is the reward emitted per block inside the current window.
	BlockReward *big.Int
	// EndBlock is the first height that no longer emits.
	EndBlock uint64
	// LastUpdateBlock records the height up to which emission was settled.
	LastUpdateBlock uint64
	// AccRewardPerShare is the cumulative reward per stake unit, scaled by
	// 1e18.
	AccRewardPerShare *big.Int
	// Unallocated holds emission that found no stake plus floor-division dust
	// from rate changes. The zero-stake policy decides whether it is emitted
	// again.
	Unallocated *big.Int
}

// Staker maintains the position of an individual participant.
type Staker struct {
	Address crypto.Address
	// Staked is the stake amount currently locked.
	Staked *big.Int
	// RewardSnapshot is the AccRewardPerShare value at the last settlement.
	RewardSnapshot *big.Int
	// Pending is settled reward not yet harvested.
	Pending *big.Int
}

// ZeroStakePolicy selects what happens to emission produced while nobody is
// staked.
type ZeroStakePolicy string

const (
	// ZeroStakeCarryForward re-spreads unallocated emission over the rest of
	// the window once stake returns, or folds it into the next jackpot.
	ZeroStakeCarryForward ZeroStakePolicy = "carry-forward"
	// ZeroStakeForfeit leaves unallocated emission in custody forever.
	ZeroStakeForfeit ZeroStakePolicy = "forfeit"
)

// ParseZeroStakePolicy normalises a configured policy name. The empty string
// selects carry-forward.
func ParseZeroStakePolicy(raw string) (ZeroStakePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ZeroStakeCarryForward), "carry":
		return ZeroStakeCarryForward, nil
	case string(ZeroStakeForfeit):
		return ZeroStakeForfeit, nil
	default:
		return "", fmt.Errorf("farm: unknown zero-stake policy %q", raw)
	}
}

// NewPool returns an empty pool with every amount initialised.
func NewPool() *Pool {
	p := &Pool{}
	p.EnsureDefaults()
	return p
}

// EnsureDefaults populates nil big.Int fields so arithmetic and RLP handling
// are safe.
func (p *Pool) EnsureDefaults() {
	if p.GlobalRewardBalance == nil {
		p.GlobalRewardBalance = big.NewInt(0)
	}
	if p.GlobalStakeBalance == nil {
		p.GlobalStakeBalance = big.NewInt(0)
	}
	if p.BlockReward == nil {
		p.BlockReward = big.NewInt(0)
	}
	if p.AccRewardPerShare == nil {
		p.AccRewardPerShare = big.NewInt(0)
	}
	if p.Unallocated == nil {
		p.Unallocated = big.NewInt(0)
	}
}

// Clone returns a deep copy of the pool.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := &Pool{
		EndBlock:        p.EndBlock,
		LastUpdateBlock: p.LastUpdateBlock,
	}
	if p.GlobalRewardBalance != nil {
		clone.GlobalRewardBalance = new(big.Int).Set(p.GlobalRewardBalance)
	}
	if p.GlobalStakeBalance != nil {
		clone.GlobalStakeBalance = new(big.Int).Set(p.GlobalStakeBalance)
	}
	if p.BlockReward != nil {
		clone.BlockReward = new(big.Int).Set(p.BlockReward)
	}
	if p.AccRewardPerShare != nil {
		clone.AccRewardPerShare = new(big.Int).Set(p.AccRewardPerShare)
	}
	if p.Unallocated != nil {
		clone.Unallocated = new(big.Int).Set(p.Unallocated)
	}
	return clone
}

// NewStaker returns a zeroed position for addr.
func NewStaker(addr crypto.Address) *Staker {
	s := &Staker{Address: addr}
	s.EnsureDefaults()
	return s
}

// EnsureDefaults populates nil big.Int fields.
func (s *Staker) EnsureDefaults() {
	if s.Staked == nil {
		s.Staked = big.NewInt(0)
	}
	if s.RewardSnapshot == nil {
		s.RewardSnapshot = big.NewInt(0)
	}
	if s.Pending == nil {
		s.Pending = big.NewInt(0)
	}
}

// Clone returns a deep copy of the staker position.
func (s *Staker) Clone() *Staker {
	if s == nil {
		return nil
	}
	clone := &Staker{Address: s.Address}
	if s.Staked != nil {
		clone.Staked = new(big.Int).Set(s.Staked)
	}
	if s.RewardSnapshot != nil {
		clone.RewardSnapshot = new(big.Int).Set(s.RewardSnapshot)
	}
	if s.Pending != nil {
		clone.Pending = new(big.Int).Set(s.Pending)
	}
	return clone
}

// AuditReport summarises a full scan of staker positions against the pool
// totals.
type AuditReport struct {
	Height              uint64
	Stakers             int
	StakeSum            *big.Int
	PendingSum          *big.Int
	GlobalStakeBalance  *big.Int
	GlobalRewardBalance *big.Int
}
