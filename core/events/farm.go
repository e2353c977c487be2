package events

import (
	"math/big"

	"epkfarm/core/types"
)

const (
	// TypeFarmJackpotIncreased is emitted when the reward pool is topped up
	// and the emission window is reset.
	TypeFarmJackpotIncreased = "farm.jackpotIncreased"
	// TypeFarmStaked is emitted when an account locks stake.
	TypeFarmStaked = "farm.staked"
	// TypeFarmUnstaked is emitted when an account withdraws its full stake.
	TypeFarmUnstaked = "farm.unstaked"
	// TypeFarmHarvested is emitted when pending reward is paid out.
	TypeFarmHarvested = "farm.harvested"
)

// FarmJackpotIncreased captures a reward pool top-up.
type FarmJackpotIncreased struct {
	Funder      [20]byte
	Amount      *big.Int
	BlockReward *big.Int
	EndBlock    uint64
	Height      uint64
}

// EventType satisfies the Event interface.
func (FarmJackpotIncreased) EventType() string { return TypeFarmJackpotIncreased }

// Event converts the structured payload into a broadcastable event.
func (e FarmJackpotIncreased) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmJackpotIncreased,
		Attributes: map[string]string{
			"funder":      formatAccount(e.Funder),
			"amount":      formatAmount(e.Amount),
			"blockReward": formatAmount(e.BlockReward),
			"endBlock":    formatHeight(e.EndBlock),
			"height":      formatHeight(e.Height),
		},
	}
}

// FarmStaked captures a stake deposit.
type FarmStaked struct {
	Account     [20]byte
	Amount      *big.Int
	Staked      *big.Int
	GlobalStake *big.Int
	Height      uint64
}

// EventType satisfies the Event interface.
func (FarmStaked) EventType() string { return TypeFarmStaked }

// Event converts the structured payload into a broadcastable event.
func (e FarmStaked) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmStaked,
		Attributes: map[string]string{
			"addr":        formatAccount(e.Account),
			"amount":      formatAmount(e.Amount),
			"staked":      formatAmount(e.Staked),
			"globalStake": formatAmount(e.GlobalStake),
			"height":      formatHeight(e.Height),
		},
	}
}

// FarmUnstaked captures a full stake withdrawal.
type FarmUnstaked struct {
	Account     [20]byte
	Amount      *big.Int
	GlobalStake *big.Int
	Height      uint64
}

// EventType satisfies the Event interface.
func (FarmUnstaked) EventType() string { return TypeFarmUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e FarmUnstaked) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmUnstaked,
		Attributes: map[string]string{
			"addr":        formatAccount(e.Account),
			"amount":      formatAmount(e.Amount),
			"globalStake": formatAmount(e.GlobalStake),
			"height":      formatHeight(e.Height),
		},
	}
}

// FarmHarvested captures a reward payout.
type FarmHarvested struct {
	Account [20]byte
	Amount  *big.Int
	Height  uint64
}

// EventType satisfies the Event interface.
func (FarmHarvested) EventType() string { return TypeFarmHarvested }

// Event converts the structured payload into a broadcastable event.
func (e FarmHarvested) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmHarvested,
		Attributes: map[string]string{
			"addr":   formatAccount(e.Account),
			"amount": formatAmount(e.Amount),
			"height": formatHeight(e.Height),
		},
	}
}

// Renderable is implemented by every farm event; consumers that persist or
// stream events convert through it.
type Renderable interface {
	EventType() string
	Event() *types.Event
}
