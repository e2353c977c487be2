package metrics

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestFarmMetricsRecordPool(t *testing.T) {
	m := Farm()
	require.Same(t, m, Farm())

	m.RecordPool(PoolSnapshot{
		GlobalRewardBalance: tokens(800),
		GlobalStakeBalance:  tokens(30),
		BlockReward:         tokens(8),
		Unallocated:         new(big.Int).Quo(tokens(1), big.NewInt(2)),
		EndBlock:            200,
	})
	require.InDelta(t, 800, testutil.ToFloat64(m.rewardBalance), 1e-9)
	require.InDelta(t, 30, testutil.ToFloat64(m.stakeBalance), 1e-9)
	require.InDelta(t, 8, testutil.ToFloat64(m.blockReward), 1e-9)
	require.InDelta(t, 0.5, testutil.ToFloat64(m.unallocated), 1e-9)
	require.InDelta(t, 200, testutil.ToFloat64(m.endBlock), 1e-9)
}

func TestFarmMetricsCounters(t *testing.T) {
	m := Farm()
	before := testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok"))
	m.ObserveOperation("stake", "")
	require.InDelta(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("stake", "ok")), 1e-9)

	harvested := testutil.ToFloat64(m.harvested)
	m.RecordHarvest(tokens(3))
	m.RecordHarvest(big.NewInt(-1))
	require.InDelta(t, harvested+3, testutil.ToFloat64(m.harvested), 1e-9)

	var nilMetrics *FarmMetrics
	nilMetrics.ObserveOperation("stake", "ok")
}
