// Copyright 2025 Certen Protocol
//
// epoch declares the EpochManager capability: everything the chunk
// validation core needs to know about validator committees, shard layout
// and protocol versioning, without knowing how the host chain actually
// elects validators. A reference in-memory implementation backs tests and
// the standalone demo chain.

package epoch

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/chunkvalidator/internal/chunktypes"
)

// MinProtocolVersionForChunkValidation is the protocol-version feature
// gate: blocks produced under an older protocol version never carry
// chunk state witnesses, and this core must treat that as "nothing to
// do", not as an error.
const MinProtocolVersionForChunkValidation = 1

// EpochManager is the validator-committee and shard-layout oracle. A
// production implementation reads these facts from the host chain's epoch
// manager; this core treats it as opaque beyond this interface, the same
// way it treats ChainStore.
type EpochManager interface {
	GetEpochID(ctx context.Context, blockHash common.Hash) (chunktypes.EpochID, error)
	GetEpochIDFromPrevBlock(ctx context.Context, prevBlockHash common.Hash) (chunktypes.EpochID, error)

	GetShardLayout(ctx context.Context, epoch chunktypes.EpochID) (chunktypes.ShardLayout, error)
	ShardIDToUID(ctx context.Context, epoch chunktypes.EpochID, shardID uint64) (chunktypes.ShardUID, error)

	// GetChunkValidators returns the account ids of the validators assigned
	// to endorse the chunk at (epoch, shardID, heightCreated).
	GetChunkValidators(ctx context.Context, epoch chunktypes.EpochID, shardID uint64, heightCreated uint64) ([]string, error)

	GetBlockProducer(ctx context.Context, epoch chunktypes.EpochID, height uint64) (string, error)

	// GetProtocolVersion returns the protocol version active in epoch. The
	// scheduler uses this to skip witness processing entirely for blocks
	// produced before chunk validation existed.
	GetProtocolVersion(ctx context.Context, epoch chunktypes.EpochID) (uint32, error)
}

// InMemory is a fixed validator-set EpochManager: one shard layout and one
// chunk-validator committee per shard, shared across all epochs. Real
// epoch transitions (committee reshuffles, resharding) are out of scope
// for this core (spec §1 Non-goals) — this reference implementation
// reflects that by not modeling epoch boundaries at all.
type InMemory struct {
	mu sync.RWMutex

	layout          chunktypes.ShardLayout
	validators      map[uint64][]string // shardID -> chunk validator account ids
	blockProducer   string
	protocolVersion uint32
	epochOf         map[common.Hash]chunktypes.EpochID
	defaultEpoch    chunktypes.EpochID
}

// NewInMemory builds an EpochManager with a single static epoch.
func NewInMemory(layout chunktypes.ShardLayout, validators map[uint64][]string, blockProducer string) *InMemory {
	return &InMemory{
		layout:          layout,
		validators:      validators,
		blockProducer:   blockProducer,
		protocolVersion: MinProtocolVersionForChunkValidation,
		epochOf:         make(map[common.Hash]chunktypes.EpochID),
		defaultEpoch:    chunktypes.EpochID(common.HexToHash("epoch-0")),
	}
}

// SetProtocolVersion overrides the protocol version reported for every
// epoch — used by tests that exercise the pre-chunk-validation feature
// gate.
func (m *InMemory) SetProtocolVersion(v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.protocolVersion = v
}

func (m *InMemory) GetEpochID(_ context.Context, blockHash common.Hash) (chunktypes.EpochID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.epochOf[blockHash]; ok {
		return e, nil
	}
	return m.defaultEpoch, nil
}

func (m *InMemory) GetEpochIDFromPrevBlock(ctx context.Context, prevBlockHash common.Hash) (chunktypes.EpochID, error) {
	return m.GetEpochID(ctx, prevBlockHash)
}

func (m *InMemory) GetShardLayout(_ context.Context, _ chunktypes.EpochID) (chunktypes.ShardLayout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.layout, nil
}

func (m *InMemory) ShardIDToUID(_ context.Context, _ chunktypes.EpochID, shardID uint64) (chunktypes.ShardUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if shardID >= m.layout.NumShards() {
		return chunktypes.ShardUID{}, fmt.Errorf("%w: shard %d out of range for layout version %d", chunktypes.ErrChainAccess, shardID, m.layout.Version)
	}
	return chunktypes.ShardUID{Version: m.layout.Version, ShardID: shardID}, nil
}

func (m *InMemory) GetChunkValidators(_ context.Context, _ chunktypes.EpochID, shardID uint64, _ uint64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vs, ok := m.validators[shardID]
	if !ok {
		return nil, fmt.Errorf("%w: no chunk validator committee configured for shard %d", chunktypes.ErrChainAccess, shardID)
	}
	return append([]string(nil), vs...), nil
}

func (m *InMemory) GetBlockProducer(_ context.Context, _ chunktypes.EpochID, _ uint64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.blockProducer, nil
}

func (m *InMemory) GetProtocolVersion(_ context.Context, _ chunktypes.EpochID) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.protocolVersion, nil
}

// IsChunkValidator reports whether accountID sits on shardID's chunk
// validator committee — the gate the scheduler applies before offloading
// a witness to the replayer (spec §4.5).
func IsChunkValidator(ctx context.Context, m EpochManager, epoch chunktypes.EpochID, shardID, heightCreated uint64, accountID string) (bool, error) {
	validators, err := m.GetChunkValidators(ctx, epoch, shardID, heightCreated)
	if err != nil {
		return false, err
	}
	for _, v := range validators {
		if v == accountID {
			return true, nil
		}
	}
	return false, nil
}
