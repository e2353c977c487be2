package state

import (
	"fmt"
	"math/big"

	"epkfarm/crypto"
	"epkfarm/native/farm"
)

type storedFarmPool struct {
	GlobalRewardBalance *big.Int
	GlobalStakeBalance  *big.Int
	BlockReward         *big.Int
	EndBlock            uint64
	LastUpdateBlock     uint64
	AccRewardPerShare   *big.Int
	Unallocated         *big.Int
}

type storedFarmStaker struct {
	Address        []byte
	Staked         *big.Int
	RewardSnapshot *big.Int
	Pending        *big.Int
}

// GetFarmPool returns the stored farm pool, or nil when no jackpot or stake
// has ever been recorded.
func (m *Manager) GetFarmPool() (*farm.Pool, error) {
	var stored storedFarmPool
	ok, err := m.KVGet(FarmPoolKey(), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: decode farm pool: %w", err)
	}
	if !ok {
		return nil, nil
	}
	pool := &farm.Pool{
		GlobalRewardBalance: stored.GlobalRewardBalance,
		GlobalStakeBalance:  stored.GlobalStakeBalance,
		BlockReward:         stored.BlockReward,
		EndBlock:            stored.EndBlock,
		LastUpdateBlock:     stored.LastUpdateBlock,
		AccRewardPerShare:   stored.AccRewardPerShare,
		Unallocated:         stored.Unallocated,
	}
	pool.EnsureDefaults()
	return pool, nil
}

// PutFarmPool persists the farm pool.
func (m *Manager) PutFarmPool(pool *farm.Pool) error {
	if pool == nil {
		return fmt.Errorf("state: nil farm pool")
	}
	p := pool.Clone()
	p.EnsureDefaults()
	return m.KVPut(FarmPoolKey(), &storedFarmPool{
		GlobalRewardBalance: p.GlobalRewardBalance,
		GlobalStakeBalance:  p.GlobalStakeBalance,
		BlockReward:         p.BlockReward,
		EndBlock:            p.EndBlock,
		LastUpdateBlock:     p.LastUpdateBlock,
		AccRewardPerShare:   p.AccRewardPerShare,
		Unallocated:         p.Unallocated,
	})
}

// GetFarmStaker returns addr's stored position, or nil when addr never
// interacted with the farm.
func (m *Manager) GetFarmStaker(addr crypto.Address) (*farm.Staker, error) {
	var stored storedFarmStaker
	ok, err := m.KVGet(FarmStakerKey(addr.Bytes()), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: decode farm staker: %w", err)
	}
	if !ok {
		return nil, nil
	}
	staker := &farm.Staker{
		Address:        addr,
		Staked:         stored.Staked,
		RewardSnapshot: stored.RewardSnapshot,
		Pending:        stored.Pending,
	}
	staker.EnsureDefaults()
	return staker, nil
}

// PutFarmStaker persists a position. An address stored for the first time is
// also appended to the staker index; updates touch only the position key.
func (m *Manager) PutFarmStaker(staker *farm.Staker) error {
	if staker == nil {
		return fmt.Errorf("state: nil farm staker")
	}
	if staker.Address.IsZero() {
		return fmt.Errorf("state: farm staker address must not be empty")
	}
	s := staker.Clone()
	s.EnsureDefaults()
	addr := s.Address.Bytes()
	key := FarmStakerKey(addr)
	known, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	if err := m.KVPut(key, &storedFarmStaker{
		Address:        addr,
		Staked:         s.Staked,
		RewardSnapshot: s.RewardSnapshot,
		Pending:        s.Pending,
	}); err != nil {
		return err
	}
	if known {
		return nil
	}
	return m.indexFarmStaker(addr)
}

func (m *Manager) indexFarmStaker(addr []byte) error {
	count, err := m.farmStakerCount()
	if err != nil {
		return err
	}
	if err := m.KVPut(FarmStakerSeqKey(count), addr); err != nil {
		return err
	}
	return m.KVPut(FarmStakerCountKey(), count+1)
}

func (m *Manager) farmStakerCount() (uint64, error) {
	var count uint64
	if _, err := m.KVGet(FarmStakerCountKey(), &count); err != nil {
		return 0, fmt.Errorf("state: decode farm staker count: %w", err)
	}
	return count, nil
}

// FarmStakers lists every address with a stored position in first-seen order.
func (m *Manager) FarmStakers() ([]crypto.Address, error) {
	count, err := m.farmStakerCount()
	if err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, count)
	for seq := uint64(0); seq < count; seq++ {
		var raw []byte
		ok, err := m.KVGet(FarmStakerSeqKey(seq), &raw)
		if err != nil {
			return nil, fmt.Errorf("state: decode farm staker index %d: %w", seq, err)
		}
		if !ok {
			return nil, fmt.Errorf("state: farm staker index %d missing", seq)
		}
		out = append(out, crypto.NewAddress(crypto.EPKPrefix, raw))
	}
	return out, nil
}
