package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"epkfarm/core/events"
	"epkfarm/core/state"
	"epkfarm/crypto"
	nativecommon "epkfarm/native/common"
	"epkfarm/native/farm"
	"epkfarm/storage"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.EventType())
	}
	return out
}

// failingDB accepts reads and direct writes but fails every batch commit
// once armed.
type failingDB struct {
	*storage.MemDB
	fail bool
}

func (f *failingDB) NewBatch() storage.Batch {
	if f.fail {
		return failingBatch{}
	}
	return f.MemDB.NewBatch()
}

type failingBatch struct{}

func (failingBatch) Put([]byte, []byte) {}
func (failingBatch) Delete([]byte)      {}
func (failingBatch) Len() int           { return 0 }
func (failingBatch) Write() error       { return errors.New("disk full") }

var minter = crypto.DeriveAddress("minter")

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), farm.FixedPointScale())
}

func seedTokens(t *testing.T, db storage.Database) {
	t.Helper()
	manager := state.NewManager(db)
	for _, symbol := range []string{"LP", "EPK"} {
		require.NoError(t, manager.RegisterToken(symbol, symbol+" Token", 18))
		require.NoError(t, manager.SetTokenMintAuthority(symbol, minter.Bytes()))
	}
	require.NoError(t, manager.Commit())
}

func newTestNode(t *testing.T, db storage.Database, policy farm.ZeroStakePolicy) (*Node, *ManualClock, *recordingEmitter) {
	t.Helper()
	seedTokens(t, db)
	clock := NewManualClock(0)
	node, err := NewNode(db, clock, Config{StakeToken: "lp", RewardToken: "epk", ZeroStakePolicy: policy})
	require.NoError(t, err)
	rec := &recordingEmitter{}
	node.SetEmitter(rec)
	return node, clock, rec
}

func fund(t *testing.T, node *Node, symbol string, who crypto.Address, amount *big.Int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, node.Mint(ctx, symbol, minter, who, amount))
	require.NoError(t, node.Approve(ctx, symbol, who, node.FarmAddress(), amount))
}

func TestNewNodeValidatesConfig(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	clock := NewManualClock(0)

	_, err := NewNode(nil, clock, Config{StakeToken: "LP", RewardToken: "EPK"})
	require.ErrorIs(t, err, ErrNilDatabase)
	_, err = NewNode(db, nil, Config{StakeToken: "LP", RewardToken: "EPK"})
	require.ErrorIs(t, err, ErrNilClock)
	_, err = NewNode(db, clock, Config{StakeToken: "LP", RewardToken: "lp"})
	require.Error(t, err)
	_, err = NewNode(db, clock, Config{StakeToken: "LP"})
	require.Error(t, err)
}

func TestNodeFarmLifecycle(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	defer db.Close()
	node, clock, rec := newTestNode(t, db, farm.ZeroStakeForfeit)

	funder := crypto.DeriveAddress("funder")
	b := crypto.DeriveAddress("b")
	c := crypto.DeriveAddress("c")
	fund(t, node, "EPK", funder, units(1000))
	fund(t, node, "LP", b, units(100))
	fund(t, node, "LP", c, units(100))

	clock.Set(100)
	pool, height, err := node.IncreaseJackpot(ctx, funder, units(800), 200)
	require.NoError(t, err)
	require.Zero(t, pool.BlockReward.Cmp(units(8)))
	require.Equal(t, uint64(200), pool.EndBlock)
	require.Equal(t, uint64(100), height)

	clock.Set(110)
	_, _, err = node.Stake(ctx, b, units(10))
	require.NoError(t, err)
	clock.Set(120)
	_, _, err = node.Stake(ctx, c, units(20))
	require.NoError(t, err)

	clock.Set(130)
	pending, err := node.RewardBalanceOf(ctx, b)
	require.NoError(t, err)
	before, err := node.TokenBalance(ctx, "EPK", b)
	require.NoError(t, err)

	paid, err := node.Harvest(ctx, b)
	require.NoError(t, err)
	require.Zero(t, paid.Cmp(pending))
	after, err := node.TokenBalance(ctx, "EPK", b)
	require.NoError(t, err)
	require.Zero(t, new(big.Int).Sub(after, before).Cmp(paid))

	remaining, err := node.RewardBalanceOf(ctx, b)
	require.NoError(t, err)
	require.Zero(t, remaining.Sign())

	clock.Set(131)
	returned, err := node.Unstake(ctx, b)
	require.NoError(t, err)
	require.Zero(t, returned.Cmp(units(10)))

	pool, height, err = node.Pool(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(131), height)
	require.Zero(t, pool.GlobalStakeBalance.Cmp(units(20)))

	report, err := node.Audit(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, report.Stakers)

	require.Contains(t, rec.types(), events.TypeFarmJackpotIncreased)
	require.Contains(t, rec.types(), events.TypeFarmHarvested)
	require.Contains(t, rec.types(), events.TypeFarmUnstaked)
}

func TestNodeRejectedCallLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	defer db.Close()
	node, clock, rec := newTestNode(t, db, farm.ZeroStakeCarryForward)

	staker := crypto.DeriveAddress("staker")
	require.NoError(t, node.Mint(ctx, "LP", minter, staker, units(5)))
	emitted := len(rec.types())
	keys := db.Len()

	clock.Set(10)
	_, _, err := node.Stake(ctx, staker, units(5))
	require.ErrorIs(t, err, nativecommon.ErrInsufficientAllowance)
	require.Equal(t, "rejected", Outcome(err))
	require.Equal(t, keys, db.Len())
	require.Len(t, rec.types(), emitted)

	staked, err := node.LPStaked(ctx, staker)
	require.NoError(t, err)
	require.Zero(t, staked.Sign())
}

func TestNodeCommitFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := &failingDB{MemDB: storage.NewMemDB()}
	defer db.Close()
	node, clock, rec := newTestNode(t, db, farm.ZeroStakeCarryForward)

	staker := crypto.DeriveAddress("staker")
	fund(t, node, "LP", staker, units(5))
	emitted := len(rec.types())

	db.fail = true
	clock.Set(3)
	_, _, err := node.Stake(ctx, staker, units(5))
	require.Error(t, err)
	require.Equal(t, "error", Outcome(err))
	require.Len(t, rec.types(), emitted, "events must not escape a failed commit")

	db.fail = false
	balance, err := node.TokenBalance(ctx, "LP", staker)
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(units(5)))
	staked, err := node.LPStaked(ctx, staker)
	require.NoError(t, err)
	require.Zero(t, staked.Sign())
}

func TestNodeConcurrentStakes(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	defer db.Close()
	node, clock, _ := newTestNode(t, db, farm.ZeroStakeCarryForward)

	const stakers = 16
	addrs := make([]crypto.Address, stakers)
	for i := range addrs {
		addrs[i] = crypto.DeriveAddress(fmt.Sprintf("staker-%d", i))
		fund(t, node, "LP", addrs[i], units(int64(i+1)))
	}
	funder := crypto.DeriveAddress("funder")
	fund(t, node, "EPK", funder, units(160))
	_, _, err := node.IncreaseJackpot(ctx, funder, units(160), 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 2*stakers)
	for i, addr := range addrs {
		wg.Add(1)
		go func(i int, addr crypto.Address) {
			defer wg.Done()
			clock.Advance(1)
			if _, _, err := node.Stake(ctx, addr, units(int64(i+1))); err != nil {
				errs <- err
			}
			if _, err := node.RewardBalanceOf(ctx, addr); err != nil {
				errs <- err
			}
		}(i, addr)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	pool, _, err := node.Pool(ctx)
	require.NoError(t, err)
	require.Zero(t, pool.GlobalStakeBalance.Cmp(units(stakers*(stakers+1)/2)))
	_, err = node.Audit(ctx)
	require.NoError(t, err)
}

func TestNodePausedFarm(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	defer db.Close()
	seedTokens(t, db)

	node, err := NewNode(db, NewManualClock(1), Config{
		StakeToken:  "LP",
		RewardToken: "EPK",
		Pauses:      nativecommon.StaticPauses{"farm": true},
	})
	require.NoError(t, err)

	_, err = node.Harvest(ctx, crypto.DeriveAddress("x"))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	_, _, err = node.Pool(ctx)
	require.NoError(t, err)
}

func TestNodeHonoursCancelledContext(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	node, _, _ := newTestNode(t, db, farm.ZeroStakeCarryForward)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := node.Stake(ctx, crypto.DeriveAddress("x"), units(1))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNodeLogLevels(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemDB()
	defer db.Close()
	node, clock, _ := newTestNode(t, db, farm.ZeroStakeCarryForward)

	var buf bytes.Buffer
	node.SetLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	staker := crypto.DeriveAddress("staker")
	fund(t, node, "LP", staker, units(1))
	clock.Set(5)
	_, err := node.Unstake(ctx, staker)
	require.ErrorIs(t, err, farm.ErrNoStake)

	levels := map[string]string{}
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var line map[string]any
		require.NoError(t, dec.Decode(&line))
		levels[line["msg"].(string)] = line["level"].(string)
	}
	require.Equal(t, "DEBUG", levels["farm operation committed"])
	require.Equal(t, "WARN", levels["farm operation rejected"])
}
