package farm

import (
	"errors"
	"fmt"
	"math/big"

	"epkfarm/core/events"
	"epkfarm/crypto"
	nativecommon "epkfarm/native/common"
)

var (
	ErrNilState      = errors.New("farm: state not configured")
	ErrNilTokens     = errors.New("farm: token ledgers not configured")
	ErrZeroAmount    = errors.New("farm: amount must be positive")
	ErrNoStake       = errors.New("farm: nothing staked")
	ErrInvalidWindow = errors.New("farm: end block must be after the current block")
	ErrOverflow      = errors.New("farm: fixed-point overflow")
	ErrInvariant     = errors.New("farm: accounting invariant violated")

	// Custody failures surfaced by the token ledgers.
	ErrInsufficientBalance   = nativecommon.ErrInsufficientBalance
	ErrInsufficientAllowance = nativecommon.ErrInsufficientAllowance
	ErrModulePaused          = nativecommon.ErrModulePaused
)

const moduleName = "farm"

type engineState interface {
	GetFarmPool() (*Pool, error)
	PutFarmPool(pool *Pool) error
	GetFarmStaker(addr crypto.Address) (*Staker, error)
	PutFarmStaker(staker *Staker) error
	FarmStakers() ([]crypto.Address, error)
}

// TokenLedger is the custody capability the farm needs from each token.
type TokenLedger interface {
	Symbol() string
	Transfer(from, to crypto.Address, amount *big.Int) error
	TransferFrom(spender, owner, to crypto.Address, amount *big.Int) error
	BalanceOf(addr crypto.Address) (*big.Int, error)
}

// Engine applies the farm state transitions. It settles emission lazily on
// every call, so no background work is needed; callers supply the block
// height once per call through SetBlockHeight and serialise calls.
type Engine struct {
	state         engineState
	stakeToken    TokenLedger
	rewardToken   TokenLedger
	moduleAddress crypto.Address
	blockHeight   uint64
	policy        ZeroStakePolicy
	pauses        nativecommon.PauseView
	emitter       events.Emitter
}

// NewEngine constructs a farm engine whose custody account is moduleAddr.
func NewEngine(moduleAddr crypto.Address) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		policy:        ZeroStakeCarryForward,
		emitter:       events.NoopEmitter{},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the stake (LP) and reward (EPK) ledgers.
func (e *Engine) SetTokens(stake, reward TokenLedger) {
	if e == nil {
		return
	}
	e.stakeToken = stake
	e.rewardToken = reward
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetZeroStakePolicy selects how emission without stakers is treated.
func (e *Engine) SetZeroStakePolicy(policy ZeroStakePolicy) {
	if e == nil {
		return
	}
	if policy == "" {
		policy = ZeroStakeCarryForward
	}
	e.policy = policy
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetBlockHeight records the block height used for every settlement until the
// next call.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
}

// BlockHeight returns the configured height.
func (e *Engine) BlockHeight() uint64 {
	if e == nil {
		return 0
	}
	return e.blockHeight
}

// ModuleAddress returns the custody account holding staked and reward funds.
func (e *Engine) ModuleAddress() crypto.Address {
	return e.moduleAddress
}

// IncreaseJackpot pulls amount reward tokens from funder and restarts the
// emission window so everything not yet emitted, plus amount, is spread evenly
// until endBlock.
func (e *Engine) IncreaseJackpot(funder crypto.Address, amount *big.Int, endBlock uint64) (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if endBlock <= e.blockHeight {
		return nil, ErrInvalidWindow
	}

	pool, err := e.settledPool()
	if err != nil {
		return nil, err
	}
	next, err := openWindow(pool, amount, e.blockHeight, endBlock, e.policy)
	if err != nil {
		return nil, err
	}
	if err := e.rewardToken.TransferFrom(e.moduleAddress, funder, e.moduleAddress, amount); err != nil {
		return nil, fmt.Errorf("farm: pull jackpot: %w", err)
	}
	if err := e.state.PutFarmPool(next); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.FarmJackpotIncreased{
		Funder:      funder.Raw(),
		Amount:      new(big.Int).Set(amount),
		BlockReward: new(big.Int).Set(next.BlockReward),
		EndBlock:    next.EndBlock,
		Height:      e.blockHeight,
	})
	return next.Clone(), nil
}

// Stake pulls amount stake tokens from the caller into custody and adds them
// to the caller's position. Reward earned on the previous position is settled
// first so the new stake only earns from this block on.
func (e *Engine) Stake(caller crypto.Address, amount *big.Int) (*Staker, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	pool, staker, err := e.settle(caller)
	if err != nil {
		return nil, err
	}
	if pool.GlobalStakeBalance.Sign() == 0 && e.policy == ZeroStakeCarryForward {
		if pool, err = resumeEmission(pool, e.blockHeight); err != nil {
			return nil, err
		}
	}

	if err := e.stakeToken.TransferFrom(e.moduleAddress, caller, e.moduleAddress, amount); err != nil {
		return nil, fmt.Errorf("farm: pull stake: %w", err)
	}
	if staker.Staked, err = checkedAdd(staker.Staked, amount); err != nil {
		return nil, err
	}
	if pool.GlobalStakeBalance, err = checkedAdd(pool.GlobalStakeBalance, amount); err != nil {
		return nil, err
	}
	if err := e.persist(pool, staker); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.FarmStaked{
		Account:     caller.Raw(),
		Amount:      new(big.Int).Set(amount),
		Staked:      new(big.Int).Set(staker.Staked),
		GlobalStake: new(big.Int).Set(pool.GlobalStakeBalance),
		Height:      e.blockHeight,
	})
	return staker.Clone(), nil
}

// Unstake returns the caller's full stake. Earned reward stays pending until
// harvested. The returned amount is the stake released.
func (e *Engine) Unstake(caller crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	pool, staker, err := e.settle(caller)
	if err != nil {
		return nil, err
	}
	if staker.Staked.Sign() == 0 {
		return nil, ErrNoStake
	}
	amount := new(big.Int).Set(staker.Staked)

	if pool.GlobalStakeBalance, err = checkedSub(pool.GlobalStakeBalance, amount); err != nil {
		return nil, err
	}
	staker.Staked = big.NewInt(0)
	if err := e.stakeToken.Transfer(e.moduleAddress, caller, amount); err != nil {
		return nil, fmt.Errorf("farm: release stake: %w", err)
	}
	if err := e.persist(pool, staker); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.FarmUnstaked{
		Account:     caller.Raw(),
		Amount:      new(big.Int).Set(amount),
		GlobalStake: new(big.Int).Set(pool.GlobalStakeBalance),
		Height:      e.blockHeight,
	})
	return amount, nil
}

// Harvest pays out the caller's pending reward and returns the amount paid.
// With nothing pending the call still settles and pays zero.
func (e *Engine) Harvest(caller crypto.Address) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	pool, staker, err := e.settle(caller)
	if err != nil {
		return nil, err
	}
	paid := new(big.Int).Set(staker.Pending)
	if paid.Sign() == 0 && staker.Staked.Sign() == 0 {
		return paid, nil
	}
	if paid.Sign() > 0 {
		if pool.GlobalRewardBalance, err = checkedSub(pool.GlobalRewardBalance, paid); err != nil {
			return nil, fmt.Errorf("%w: pending exceeds reward balance", ErrInvariant)
		}
		staker.Pending = big.NewInt(0)
		if err := e.rewardToken.Transfer(e.moduleAddress, caller, paid); err != nil {
			return nil, fmt.Errorf("farm: pay reward: %w", err)
		}
	}
	if err := e.persist(pool, staker); err != nil {
		return nil, err
	}

	if paid.Sign() > 0 {
		e.emitter.Emit(events.FarmHarvested{
			Account: caller.Raw(),
			Amount:  new(big.Int).Set(paid),
			Height:  e.blockHeight,
		})
	}
	return paid, nil
}

// Pool returns the pool as a state-changing call at the current height would
// observe it. Nothing is written.
func (e *Engine) Pool() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.settledPool()
}

// StakerInfo returns addr's position settled to the current height without
// persisting anything.
func (e *Engine) StakerInfo(addr crypto.Address) (*Staker, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	_, staker, err := e.settle(addr)
	if err != nil {
		return nil, err
	}
	return staker, nil
}

// RewardBalanceOf returns addr's harvestable reward as of the current height.
func (e *Engine) RewardBalanceOf(addr crypto.Address) (*big.Int, error) {
	staker, err := e.StakerInfo(addr)
	if err != nil {
		return nil, err
	}
	return staker.Pending, nil
}

// LPStaked returns the stake locked by addr.
func (e *Engine) LPStaked(addr crypto.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	staker, err := e.loadStaker(addr)
	if err != nil {
		return nil, err
	}
	return staker.Staked, nil
}

// GlobalEPKBalance returns the reward amount held for distribution.
func (e *Engine) GlobalEPKBalance() (*big.Int, error) {
	pool, err := e.storedPool()
	if err != nil {
		return nil, err
	}
	return pool.GlobalRewardBalance, nil
}

// GlobalLPBalance returns the total locked stake.
func (e *Engine) GlobalLPBalance() (*big.Int, error) {
	pool, err := e.storedPool()
	if err != nil {
		return nil, err
	}
	return pool.GlobalStakeBalance, nil
}

// BlockReward returns the per-block emission of the current window.
func (e *Engine) BlockReward() (*big.Int, error) {
	pool, err := e.storedPool()
	if err != nil {
		return nil, err
	}
	return pool.BlockReward, nil
}

// EndBlock returns the height at which emission stops.
func (e *Engine) EndBlock() (uint64, error) {
	pool, err := e.storedPool()
	if err != nil {
		return 0, err
	}
	return pool.EndBlock, nil
}

// Audit scans every staker and checks the pool totals against them: the stake
// sum must equal GlobalStakeBalance and the pending sum, settled to the
// current height, must not exceed GlobalRewardBalance. It also checks that
// custody holds at least what the pool accounts for. The scan is O(stakers)
// and meant for operators, never for the transaction path.
func (e *Engine) Audit() (*AuditReport, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.settledPool()
	if err != nil {
		return nil, err
	}
	addrs, err := e.state.FarmStakers()
	if err != nil {
		return nil, err
	}
	report := &AuditReport{
		Height:              e.blockHeight,
		Stakers:             len(addrs),
		StakeSum:            big.NewInt(0),
		PendingSum:          big.NewInt(0),
		GlobalStakeBalance:  new(big.Int).Set(pool.GlobalStakeBalance),
		GlobalRewardBalance: new(big.Int).Set(pool.GlobalRewardBalance),
	}
	for _, addr := range addrs {
		stored, err := e.loadStaker(addr)
		if err != nil {
			return nil, err
		}
		staker, err := SettleAccount(pool, stored)
		if err != nil {
			return nil, err
		}
		report.StakeSum.Add(report.StakeSum, staker.Staked)
		report.PendingSum.Add(report.PendingSum, staker.Pending)
	}
	if report.StakeSum.Cmp(pool.GlobalStakeBalance) != 0 {
		return report, fmt.Errorf("%w: stake sum %s != global stake %s", ErrInvariant, report.StakeSum, pool.GlobalStakeBalance)
	}
	if report.PendingSum.Cmp(pool.GlobalRewardBalance) > 0 {
		return report, fmt.Errorf("%w: pending sum %s > reward balance %s", ErrInvariant, report.PendingSum, pool.GlobalRewardBalance)
	}
	if err := e.checkCustody(e.stakeToken, pool.GlobalStakeBalance); err != nil {
		return report, err
	}
	if err := e.checkCustody(e.rewardToken, pool.GlobalRewardBalance); err != nil {
		return report, err
	}
	return report, nil
}

func (e *Engine) checkCustody(ledger TokenLedger, accounted *big.Int) error {
	held, err := ledger.BalanceOf(e.moduleAddress)
	if err != nil {
		return err
	}
	if held.Cmp(accounted) < 0 {
		return fmt.Errorf("%w: %s custody %s below accounted %s", ErrInvariant, ledger.Symbol(), held, accounted)
	}
	return nil
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if e.stakeToken == nil || e.rewardToken == nil {
		return ErrNilTokens
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

func (e *Engine) storedPool() (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pool, err := e.state.GetFarmPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return NewPool(), nil
	}
	pool.EnsureDefaults()
	return pool, nil
}

func (e *Engine) settledPool() (*Pool, error) {
	pool, err := e.storedPool()
	if err != nil {
		return nil, err
	}
	return Settle(pool, e.blockHeight)
}

func (e *Engine) loadStaker(addr crypto.Address) (*Staker, error) {
	staker, err := e.state.GetFarmStaker(addr)
	if err != nil {
		return nil, err
	}
	if staker == nil {
		return NewStaker(addr), nil
	}
	staker.Address = addr
	staker.EnsureDefaults()
	return staker, nil
}

// settle runs the global settlement followed by the per-account one. The
// results are copies; nothing is persisted.
func (e *Engine) settle(addr crypto.Address) (*Pool, *Staker, error) {
	pool, err := e.settledPool()
	if err != nil {
		return nil, nil, err
	}
	stored, err := e.loadStaker(addr)
	if err != nil {
		return nil, nil, err
	}
	staker, err := SettleAccount(pool, stored)
	if err != nil {
		return nil, nil, err
	}
	return pool, staker, nil
}

func (e *Engine) persist(pool *Pool, staker *Staker) error {
	if err := e.state.PutFarmStaker(staker); err != nil {
		return err
	}
	return e.state.PutFarmPool(pool)
}
