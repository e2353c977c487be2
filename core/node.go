package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"epkfarm/core/events"
	"epkfarm/core/state"
	"epkfarm/crypto"
	nativecommon "epkfarm/native/common"
	"epkfarm/native/farm"
	"epkfarm/native/token"
	"epkfarm/observability/metrics"
	telemetry "epkfarm/observability/otel"
	"epkfarm/storage"
)

var (
	ErrNilDatabase = errors.New("core: database not configured")
	ErrNilClock    = errors.New("core: block clock not configured")
)

// Config binds the farm to its two tokens and policy knobs.
type Config struct {
	StakeToken      string
	RewardToken     string
	ZeroStakePolicy farm.ZeroStakePolicy
	Pauses          nativecommon.PauseView
}

// Node serialises farm operations over a database. Every state-changing call
// reads the block clock once, runs against a fresh state journal and either
// commits all of its writes in one batch or none of them. Events raised during
// the call reach the configured emitter only after the commit succeeds.
type Node struct {
	db    storage.Database
	clock BlockClock
	cfg   Config

	stateMu sync.RWMutex

	emitter events.Emitter
	metrics *metrics.FarmMetrics
	tracer  trace.Tracer
	log     *slog.Logger
}

func NewNode(db storage.Database, clock BlockClock, cfg Config) (*Node, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	if clock == nil {
		return nil, ErrNilClock
	}
	cfg.StakeToken = strings.ToUpper(strings.TrimSpace(cfg.StakeToken))
	cfg.RewardToken = strings.ToUpper(strings.TrimSpace(cfg.RewardToken))
	if cfg.StakeToken == "" || cfg.RewardToken == "" {
		return nil, fmt.Errorf("core: stake and reward tokens are required")
	}
	if cfg.StakeToken == cfg.RewardToken {
		return nil, fmt.Errorf("core: stake and reward tokens must differ")
	}
	if cfg.ZeroStakePolicy == "" {
		cfg.ZeroStakePolicy = farm.ZeroStakeCarryForward
	}
	if err := state.EnsureStateVersion(db, false); err != nil {
		return nil, err
	}
	return &Node{
		db:      db,
		clock:   clock,
		cfg:     cfg,
		emitter: events.NoopEmitter{},
		tracer:  telemetry.Tracer("core"),
		log:     slog.Default(),
	}, nil
}

// SetEmitter configures where committed events are delivered. Passing nil
// discards them.
func (n *Node) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	n.emitter = emitter
}

func (n *Node) SetLogger(log *slog.Logger) {
	if log != nil {
		n.log = log
	}
}

func (n *Node) SetMetrics(m *metrics.FarmMetrics) { n.metrics = m }

// FarmAddress returns the custody account of the farm.
func (n *Node) FarmAddress() crypto.Address {
	return crypto.ModuleAddress("farm")
}

// BlockNumber returns the current height of the block clock.
func (n *Node) BlockNumber() uint64 { return n.clock.BlockNumber() }

// StakeToken returns the symbol of the token locked by stakers.
func (n *Node) StakeToken() string { return n.cfg.StakeToken }

// RewardToken returns the symbol of the token paid as reward.
func (n *Node) RewardToken() string { return n.cfg.RewardToken }

// IncreaseJackpot tops up the reward pool from funder and resets the emission
// window to close at endBlock. It also returns the height the call ran at.
func (n *Node) IncreaseJackpot(ctx context.Context, funder crypto.Address, amount *big.Int, endBlock uint64) (*farm.Pool, uint64, error) {
	var (
		pool   *farm.Pool
		height uint64
	)
	err := n.update(ctx, "increaseJackpot", func(s *session) error {
		var err error
		height = s.height
		pool, err = s.engine.IncreaseJackpot(funder, amount, endBlock)
		return err
	})
	return pool, height, err
}

// Stake locks amount stake tokens for caller and returns the position with
// the height it was settled at.
func (n *Node) Stake(ctx context.Context, caller crypto.Address, amount *big.Int) (*farm.Staker, uint64, error) {
	var (
		staker *farm.Staker
		height uint64
	)
	err := n.update(ctx, "stake", func(s *session) error {
		var err error
		height = s.height
		staker, err = s.engine.Stake(caller, amount)
		return err
	})
	return staker, height, err
}

// Unstake releases caller's full stake and returns the amount released.
func (n *Node) Unstake(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	var amount *big.Int
	err := n.update(ctx, "unstake", func(s *session) error {
		var err error
		amount, err = s.engine.Unstake(caller)
		return err
	})
	return amount, err
}

// Harvest pays caller's pending reward and returns the amount paid.
func (n *Node) Harvest(ctx context.Context, caller crypto.Address) (*big.Int, error) {
	var paid *big.Int
	err := n.update(ctx, "harvest", func(s *session) error {
		var err error
		paid, err = s.engine.Harvest(caller)
		return err
	})
	if err == nil {
		n.metrics.RecordHarvest(paid)
	}
	return paid, err
}

// Approve sets spender's allowance over owner's balance of symbol.
func (n *Node) Approve(ctx context.Context, symbol string, owner, spender crypto.Address, amount *big.Int) error {
	return n.update(ctx, "approve", func(s *session) error {
		ledger, err := s.ledger(symbol)
		if err != nil {
			return err
		}
		return ledger.Approve(owner, spender, amount)
	})
}

// Mint creates amount of symbol for to on behalf of the token's mint
// authority.
func (n *Node) Mint(ctx context.Context, symbol string, authority, to crypto.Address, amount *big.Int) error {
	return n.update(ctx, "mint", func(s *session) error {
		ledger, err := s.ledger(symbol)
		if err != nil {
			return err
		}
		return ledger.Mint(authority, to, amount)
	})
}

// Pool returns the pool settled to the current height, and that height.
func (n *Node) Pool(ctx context.Context) (*farm.Pool, uint64, error) {
	var (
		pool   *farm.Pool
		height uint64
	)
	err := n.view(ctx, "pool", func(s *session) error {
		var err error
		height = s.height
		pool, err = s.engine.Pool()
		return err
	})
	return pool, height, err
}

// StakerInfo returns addr's position settled to the current height, and that
// height.
func (n *Node) StakerInfo(ctx context.Context, addr crypto.Address) (*farm.Staker, uint64, error) {
	var (
		staker *farm.Staker
		height uint64
	)
	err := n.view(ctx, "stakerInfo", func(s *session) error {
		var err error
		height = s.height
		staker, err = s.engine.StakerInfo(addr)
		return err
	})
	return staker, height, err
}

// RewardBalanceOf returns addr's harvestable reward at the current height.
func (n *Node) RewardBalanceOf(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	var reward *big.Int
	err := n.view(ctx, "rewardBalanceOf", func(s *session) error {
		var err error
		reward, err = s.engine.RewardBalanceOf(addr)
		return err
	})
	return reward, err
}

// LPStaked returns the stake locked by addr.
func (n *Node) LPStaked(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	var staked *big.Int
	err := n.view(ctx, "lpStaked", func(s *session) error {
		var err error
		staked, err = s.engine.LPStaked(addr)
		return err
	})
	return staked, err
}

// TokenBalance returns addr's balance of symbol.
func (n *Node) TokenBalance(ctx context.Context, symbol string, addr crypto.Address) (*big.Int, error) {
	var balance *big.Int
	err := n.view(ctx, "balanceOf", func(s *session) error {
		ledger, err := s.ledger(symbol)
		if err != nil {
			return err
		}
		balance, err = ledger.BalanceOf(addr)
		return err
	})
	return balance, err
}

// Allowance returns how much spender may pull from owner's balance of symbol.
func (n *Node) Allowance(ctx context.Context, symbol string, owner, spender crypto.Address) (*big.Int, error) {
	var allowance *big.Int
	err := n.view(ctx, "allowance", func(s *session) error {
		ledger, err := s.ledger(symbol)
		if err != nil {
			return err
		}
		allowance, err = ledger.Allowance(owner, spender)
		return err
	})
	return allowance, err
}

// Audit runs the full staker scan at the current height.
func (n *Node) Audit(ctx context.Context) (*farm.AuditReport, error) {
	var report *farm.AuditReport
	err := n.view(ctx, "audit", func(s *session) error {
		var err error
		report, err = s.engine.Audit()
		return err
	})
	return report, err
}

// session is the per-call binding of engines to a state journal.
type session struct {
	height  uint64
	manager *state.Manager
	buffer  *events.Buffer
	engine  *farm.Engine
}

func (n *Node) open(height uint64) (*session, error) {
	manager := state.NewManager(n.db)
	buffer := &events.Buffer{}
	stake, err := token.NewLedger(manager, n.cfg.StakeToken, buffer)
	if err != nil {
		return nil, err
	}
	reward, err := token.NewLedger(manager, n.cfg.RewardToken, buffer)
	if err != nil {
		return nil, err
	}
	engine := farm.NewEngine(n.FarmAddress())
	engine.SetState(manager)
	engine.SetTokens(stake, reward)
	engine.SetZeroStakePolicy(n.cfg.ZeroStakePolicy)
	engine.SetPauses(n.cfg.Pauses)
	engine.SetEmitter(buffer)
	engine.SetBlockHeight(height)
	return &session{height: height, manager: manager, buffer: buffer, engine: engine}, nil
}

func (s *session) ledger(symbol string) (*token.Ledger, error) {
	return token.NewLedger(s.manager, symbol, s.buffer)
}

func (n *Node) update(ctx context.Context, op string, fn func(*session) error) error {
	ctx, span := n.tracer.Start(ctx, "farm."+op)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return err
	}

	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	height := n.clock.BlockNumber()
	span.SetAttributes(attribute.Int64("farm.height", int64(height)))

	s, err := n.open(height)
	if err == nil {
		err = fn(s)
	}
	if err != nil {
		if s != nil {
			s.manager.Discard()
			s.buffer.Reset()
		}
		n.fail(ctx, span, op, height, err)
		return err
	}
	if err := s.manager.Commit(); err != nil {
		s.buffer.Reset()
		err = fmt.Errorf("core: commit %s: %w", op, err)
		n.fail(ctx, span, op, height, err)
		return err
	}
	committed := s.buffer.Flush(n.emitter, height)

	if pool, err := s.engine.Pool(); err == nil {
		n.metrics.RecordPool(metrics.PoolSnapshot{
			GlobalRewardBalance: pool.GlobalRewardBalance,
			GlobalStakeBalance:  pool.GlobalStakeBalance,
			BlockReward:         pool.BlockReward,
			Unallocated:         pool.Unallocated,
			EndBlock:            pool.EndBlock,
		})
	}
	n.metrics.ObserveOperation(op, "ok")
	n.log.DebugContext(ctx, "farm operation committed", "op", op, "height", height, "events", len(committed))
	return nil
}

func (n *Node) view(ctx context.Context, op string, fn func(*session) error) error {
	ctx, span := n.tracer.Start(ctx, "farm."+op)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return err
	}

	n.stateMu.RLock()
	defer n.stateMu.RUnlock()

	height := n.clock.BlockNumber()
	span.SetAttributes(attribute.Int64("farm.height", int64(height)))
	s, err := n.open(height)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer s.manager.Discard()
	if err := fn(s); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (n *Node) fail(ctx context.Context, span trace.Span, op string, height uint64, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	outcome := Outcome(err)
	n.metrics.ObserveOperation(op, outcome)
	if outcome == "rejected" {
		n.log.WarnContext(ctx, "farm operation rejected", "op", op, "height", height, "error", err)
		return
	}
	n.log.ErrorContext(ctx, "farm operation failed", "op", op, "height", height, "error", err)
}

var rejections = []error{
	farm.ErrZeroAmount,
	farm.ErrNoStake,
	farm.ErrInvalidWindow,
	nativecommon.ErrInsufficientBalance,
	nativecommon.ErrInsufficientAllowance,
	nativecommon.ErrModulePaused,
	token.ErrInvalidAmount,
	token.ErrNegativeAmount,
	token.ErrUnknownToken,
	token.ErrMintUnauthorized,
	token.ErrZeroAddress,
}

// Outcome classifies an operation error as "rejected" when the caller's input
// or balances caused it and "error" otherwise.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return "rejected"
		}
	}
	return "error"
}
