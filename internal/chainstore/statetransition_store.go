// Copyright 2025 Certen Protocol
//
// StateTransitionStore is a durable, block-shard-keyed store of recorded
// partial storage, so a producer doesn't have to recompute it from
// scratch every time it builds a witness. Backed by cometbft-db through
// pkg/kvdb's byte-level Get/Set wrapper.

package chainstore

import (
	"encoding/binary"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/pkg/kvdb"
)

// StateTransitionStore persists StoredChunkStateTransitionData rows keyed
// by (block hash, shard id).
type StateTransitionStore struct {
	kv *kvdb.KVAdapter
}

// NewStateTransitionStore wraps an open cometbft-db database.
func NewStateTransitionStore(db dbm.DB) *StateTransitionStore {
	return &StateTransitionStore{kv: kvdb.NewKVAdapter(db)}
}

func blockShardKey(blockHash common.Hash, shardID uint64) []byte {
	key := make([]byte, len(blockHash)+8)
	copy(key, blockHash[:])
	binary.BigEndian.PutUint64(key[len(blockHash):], shardID)
	return key
}

// Get reads back the row stored for (blockHash, shardID), or
// chunktypes.ErrMissingStateProof if nothing was ever written there.
func (s *StateTransitionStore) Get(blockHash common.Hash, shardID uint64) (*chunktypes.StoredChunkStateTransitionData, error) {
	raw, err := s.kv.Get(blockShardKey(blockHash, shardID))
	if err != nil {
		return nil, fmt.Errorf("statetransitionstore: get: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: block %s shard %d", chunktypes.ErrMissingStateProof, blockHash, shardID)
	}
	var data chunktypes.StoredChunkStateTransitionData
	if err := rlp.DecodeBytes(raw, &data); err != nil {
		return nil, fmt.Errorf("statetransitionstore: decode: %w", err)
	}
	return &data, nil
}

// Put persists data for (blockHash, shardID), overwriting any prior row.
func (s *StateTransitionStore) Put(blockHash common.Hash, shardID uint64, data chunktypes.StoredChunkStateTransitionData) error {
	enc, err := rlp.EncodeToBytes(&data)
	if err != nil {
		return fmt.Errorf("statetransitionstore: encode: %w", err)
	}
	if err := s.kv.Set(blockShardKey(blockHash, shardID), enc); err != nil {
		return fmt.Errorf("statetransitionstore: set: %w", err)
	}
	return nil
}
