// Copyright 2025 Certen Protocol
//
// chainstore declares the ChainStore capability the chunk validation core
// borrows from its host chain, plus an in-memory reference implementation
// used by the reference runtime and by tests. Production deployments wire
// a real implementation backed by the host chain's block/chunk database;
// this core never assumes anything about that storage layer beyond this
// interface, the same way a capability-style chain-backend abstraction
// keeps every concrete backend behind one narrow interface.

package chainstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/chunkvalidator/internal/chunktypes"
)

// ChainStore is the read surface over block, chunk and receipt history that
// the witness builder and pre-validator both need. Every method is
// side-effect free from this core's point of view.
type ChainStore interface {
	GetBlock(ctx context.Context, hash common.Hash) (*chunktypes.Block, error)
	GetBlockByHeight(ctx context.Context, height uint64) (*chunktypes.Block, error)
	GetPreviousBlock(ctx context.Context, hash common.Hash) (*chunktypes.Block, error)

	// GetChunkExtra returns the stored post-apply metadata for the chunk at
	// (blockHash, shardID), produced the first time that chunk was applied.
	GetChunkExtra(ctx context.Context, blockHash common.Hash, shardID uint64) (*chunktypes.ChunkExtra, error)

	// GetIncomingReceipts returns the receipts addressed to shardID that were
	// produced at blockHash, grouped the way build_receipts_hashes groups
	// per-source-shard batches.
	GetIncomingReceipts(ctx context.Context, blockHash common.Hash, shardID uint64) ([]chunktypes.Receipt, error)

	// GetStateTransitionData returns the recorded partial storage and
	// applied-receipts hash persisted the first time (blockHash, shardID)
	// was applied — the row a witness builder reads back to avoid
	// re-executing history that's already settled.
	GetStateTransitionData(ctx context.Context, blockHash common.Hash, shardID uint64) (*chunktypes.StoredChunkStateTransitionData, error)

	// PutStateTransitionData persists the row a producer computes the first
	// time it applies a chunk, so later witness builds can read it back
	// instead of re-executing.
	PutStateTransitionData(ctx context.Context, blockHash common.Hash, shardID uint64, data chunktypes.StoredChunkStateTransitionData) error

	PutChunkExtra(ctx context.Context, blockHash common.Hash, shardID uint64, extra chunktypes.ChunkExtra) error
}

// InMemory is a ChainStore backed entirely by Go maps, protected by a single
// mutex. It exists for tests and for the reference Runtime's standalone
// demo chain, not for production use.
type InMemory struct {
	mu sync.RWMutex

	blocksByHash   map[common.Hash]*chunktypes.Block
	blocksByHeight map[uint64]common.Hash
	chunkExtras    map[chunkKey]chunktypes.ChunkExtra
	incoming       map[chunkKey][]chunktypes.Receipt
	transitionData map[chunkKey]chunktypes.StoredChunkStateTransitionData
}

type chunkKey struct {
	blockHash common.Hash
	shardID   uint64
}

// NewInMemory returns an empty in-memory chain store.
func NewInMemory() *InMemory {
	return &InMemory{
		blocksByHash:   make(map[common.Hash]*chunktypes.Block),
		blocksByHeight: make(map[uint64]common.Hash),
		chunkExtras:    make(map[chunkKey]chunktypes.ChunkExtra),
		incoming:       make(map[chunkKey][]chunktypes.Receipt),
		transitionData: make(map[chunkKey]chunktypes.StoredChunkStateTransitionData),
	}
}

// PutBlock registers a block so later GetBlock/GetBlockByHeight/
// GetPreviousBlock calls can find it. Test fixtures and the reference
// runtime call this as they mint blocks; production ChainStore
// implementations would instead read straight from the host chain's db.
func (s *InMemory) PutBlock(b *chunktypes.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocksByHash[b.Header.Hash] = b
	s.blocksByHeight[b.Header.Height] = b.Header.Hash
}

// SetIncomingReceipts registers the receipts addressed to shardID produced
// at blockHash, for GetIncomingReceipts to serve later.
func (s *InMemory) SetIncomingReceipts(blockHash common.Hash, shardID uint64, receipts []chunktypes.Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incoming[chunkKey{blockHash, shardID}] = receipts
}

func (s *InMemory) GetBlock(_ context.Context, hash common.Hash) (*chunktypes.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocksByHash[hash]
	if !ok {
		return nil, fmt.Errorf("%w: block %s not found", chunktypes.ErrChainAccess, hash)
	}
	return b, nil
}

func (s *InMemory) GetBlockByHeight(_ context.Context, height uint64) (*chunktypes.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.blocksByHeight[height]
	if !ok {
		return nil, fmt.Errorf("%w: no block at height %d", chunktypes.ErrChainAccess, height)
	}
	return s.blocksByHash[hash], nil
}

func (s *InMemory) GetPreviousBlock(ctx context.Context, hash common.Hash) (*chunktypes.Block, error) {
	b, err := s.GetBlock(ctx, hash)
	if err != nil {
		return nil, err
	}
	if b.Header.PrevHash == (common.Hash{}) {
		return nil, fmt.Errorf("%w: block %s has no parent (genesis)", chunktypes.ErrChainAccess, hash)
	}
	return s.GetBlock(ctx, b.Header.PrevHash)
}

func (s *InMemory) GetChunkExtra(_ context.Context, blockHash common.Hash, shardID uint64) (*chunktypes.ChunkExtra, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.chunkExtras[chunkKey{blockHash, shardID}]
	if !ok {
		return nil, fmt.Errorf("%w: no chunk extra for block %s shard %d", chunktypes.ErrChainAccess, blockHash, shardID)
	}
	clone := e.Clone()
	return &clone, nil
}

func (s *InMemory) PutChunkExtra(_ context.Context, blockHash common.Hash, shardID uint64, extra chunktypes.ChunkExtra) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkExtras[chunkKey{blockHash, shardID}] = extra.Clone()
	return nil
}

func (s *InMemory) GetIncomingReceipts(_ context.Context, blockHash common.Hash, shardID uint64) ([]chunktypes.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]chunktypes.Receipt(nil), s.incoming[chunkKey{blockHash, shardID}]...), nil
}

func (s *InMemory) GetStateTransitionData(_ context.Context, blockHash common.Hash, shardID uint64) (*chunktypes.StoredChunkStateTransitionData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.transitionData[chunkKey{blockHash, shardID}]
	if !ok {
		return nil, fmt.Errorf("%w: block %s shard %d", chunktypes.ErrMissingStateProof, blockHash, shardID)
	}
	return &d, nil
}

func (s *InMemory) PutStateTransitionData(_ context.Context, blockHash common.Hash, shardID uint64, data chunktypes.StoredChunkStateTransitionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitionData[chunkKey{blockHash, shardID}] = data
	return nil
}

// CollectReceiptsFromResponse merges incoming receipts gathered while
// walking backward from a chunk to the previous new-chunk boundary, in
// oldest-block-first order — the order ApplyOldChunk / ApplyNewChunk
// expect them in.
func CollectReceiptsFromResponse(perBlockOldestFirst [][]chunktypes.Receipt) []chunktypes.Receipt {
	var out []chunktypes.Receipt
	for _, batch := range perBlockOldestFirst {
		out = append(out, batch...)
	}
	return out
}
