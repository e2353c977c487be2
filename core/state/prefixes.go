package state

import "encoding/binary"

var (
	farmPoolKeyBytes     = []byte("farm/pool")
	farmStakerPrefix     = []byte("farm/staker/")
	farmStakerCountBytes = []byte("farm/stakers/count")
	farmStakerSeqPrefix  = []byte("farm/stakers/seq/")
)

// FarmPoolKey returns the key holding the global farm pool.
func FarmPoolKey() []byte {
	return append([]byte(nil), farmPoolKeyBytes...)
}

// FarmStakerKey returns the key holding addr's farm position.
func FarmStakerKey(addr []byte) []byte {
	key := make([]byte, len(farmStakerPrefix)+len(addr))
	copy(key, farmStakerPrefix)
	copy(key[len(farmStakerPrefix):], addr)
	return key
}

// FarmStakerCountKey returns the key holding the number of indexed stakers.
func FarmStakerCountKey() []byte {
	return append([]byte(nil), farmStakerCountBytes...)
}

// FarmStakerSeqKey returns the index key of the seq-th staker ever seen.
func FarmStakerSeqKey(seq uint64) []byte {
	key := make([]byte, len(farmStakerSeqPrefix)+8)
	copy(key, farmStakerSeqPrefix)
	binary.BigEndian.PutUint64(key[len(farmStakerSeqPrefix):], seq)
	return key
}
