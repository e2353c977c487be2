package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// FarmMetrics tracks farm operations and the pool gauges refreshed after
// every committed state transition.
type FarmMetrics struct {
	operations    *prometheus.CounterVec
	rewardBalance prometheus.Gauge
	stakeBalance  prometheus.Gauge
	blockReward   prometheus.Gauge
	unallocated   prometheus.Gauge
	endBlock      prometheus.Gauge
	harvested     prometheus.Counter
}

// PoolSnapshot is the subset of pool state exported as gauges.
type PoolSnapshot struct {
	GlobalRewardBalance *big.Int
	GlobalStakeBalance  *big.Int
	BlockReward         *big.Int
	Unallocated         *big.Int
	EndBlock            uint64
}

var (
	farmOnce     sync.Once
	farmRegistry *FarmMetrics

	tokenScale = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
)

func Farm() *FarmMetrics {
	farmOnce.Do(func() {
		farmRegistry = &FarmMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epkfarm",
				Subsystem: "farm",
				Name:      "operations_total",
				Help:      "Count of farm operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			rewardBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "epkfarm",
				Subsystem: "farm",
				Name:      "pool_reward_balance",
				Help:      "Reward tokens held for distribution, in whole tokens.",
			}),
			stakeBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "epkfarm",
				Subsystem: "farm",
				Name:      "pool_stake_balance",
				Help:      "Stake tokens locked in the farm, in whole tokens.",
			}),
			blockReward: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "epkfarm",
				Subsystem: "farm",
				Name:      "block_reward",
				Help:      "Reward emitted per block in the current window, in whole tokens.",
			}),
			unallocated: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "epkfarm",
				Subsystem: "farm",
				Name:      "unallocated_reward",
				Help:      "Emission parked without stakers plus rounding dust, in whole tokens.",
			}),
			endBlock: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "epkfarm",
				Subsystem: "farm",
				Name:      "end_block",
				Help:      "Height at which the current emission window closes.",
			}),
			harvested: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "epkfarm",
				Subsystem: "farm",
				Name:      "harvested_total",
				Help:      "Reward paid out by harvests, in whole tokens.",
			}),
		}
		prometheus.MustRegister(
			farmRegistry.operations,
			farmRegistry.rewardBalance,
			farmRegistry.stakeBalance,
			farmRegistry.blockReward,
			farmRegistry.unallocated,
			farmRegistry.endBlock,
			farmRegistry.harvested,
		)
	})
	return farmRegistry
}

// ObserveOperation counts a farm call. Outcomes should be stable strings such
// as "ok", "rejected" or "error".
func (m *FarmMetrics) ObserveOperation(op, outcome string) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// RecordPool refreshes the pool gauges.
func (m *FarmMetrics) RecordPool(pool PoolSnapshot) {
	if m == nil {
		return
	}
	m.rewardBalance.Set(tokenUnits(pool.GlobalRewardBalance))
	m.stakeBalance.Set(tokenUnits(pool.GlobalStakeBalance))
	m.blockReward.Set(tokenUnits(pool.BlockReward))
	m.unallocated.Set(tokenUnits(pool.Unallocated))
	m.endBlock.Set(float64(pool.EndBlock))
}

// RecordHarvest adds a payout to the harvested counter.
func (m *FarmMetrics) RecordHarvest(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.harvested.Add(tokenUnits(amount))
}

// tokenUnits converts 18-decimal base units into whole tokens. Precision loss
// is acceptable for dashboards.
func tokenUnits(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), tokenScale).Float64()
	return f
}
