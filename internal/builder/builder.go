// Copyright 2025 Certen Protocol
//
// builder is the chunk producer's half of the protocol: once a chunk is
// produced, gather the recorded state transitions that let a validator
// replay it without the full chain, package them into a ChunkStateWitness,
// and send it to the shard's chunk validator committee.

package builder

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/chunkvalidator/internal/chainstore"
	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/internal/epoch"
	"github.com/certen/chunkvalidator/internal/network"
)

// Builder assembles and distributes chunk state witnesses on the chunk
// producer side of the protocol.
type Builder struct {
	chain   chainstore.ChainStore
	epochs  epoch.EpochManager
	network network.NetworkSender
}

// New returns a witness builder wired to its three collaborators.
func New(chain chainstore.ChainStore, epochs epoch.EpochManager, sender network.NetworkSender) *Builder {
	return &Builder{chain: chain, epochs: epochs, network: sender}
}

// CollectStateTransitionData gathers the main transition (the block that
// produced chunkHeader's previous chunk) plus every implicit transition in
// between, by walking the chain from chunkHeader.PrevBlockHash back to the
// block that included prevChunkHeader. Returned in chronological order:
// main transition first, then implicit transitions oldest-to-newest.
func (b *Builder) CollectStateTransitionData(ctx context.Context, chunkHeader chunktypes.ChunkHeader, prevChunkHeader chunktypes.ChunkHeader) (chunktypes.ChunkStateTransition, []chunktypes.ChunkStateTransition, common.Hash, error) {
	shardID := chunkHeader.ShardID

	prevBlocks, err := b.blocksDownTo(ctx, chunkHeader.PrevBlockHash, prevChunkHeader.HeightCreated)
	if err != nil {
		return chunktypes.ChunkStateTransition{}, nil, common.Hash{}, err
	}
	if len(prevBlocks) == 0 {
		return chunktypes.ChunkStateTransition{}, nil, common.Hash{}, fmt.Errorf("builder: no blocks between chunk and its previous chunk's boundary")
	}
	// prevBlocks is newest-first from the walk; reverse to oldest-first so
	// the first entry is the main transition's block.
	reverse(prevBlocks)
	mainBlockHash := prevBlocks[0]
	implicitBlocks := prevBlocks[1:]

	mainData, err := b.chain.GetStateTransitionData(ctx, mainBlockHash, shardID)
	if err != nil {
		return chunktypes.ChunkStateTransition{}, nil, common.Hash{}, fmt.Errorf("builder: missing state proof for block %s shard %d: %w", mainBlockHash, shardID, err)
	}
	mainExtra, err := b.chain.GetChunkExtra(ctx, mainBlockHash, shardID)
	if err != nil {
		return chunktypes.ChunkStateTransition{}, nil, common.Hash{}, err
	}
	mainTransition := chunktypes.ChunkStateTransition{
		BlockHash:     mainBlockHash,
		BaseState:     mainData.BaseState,
		PostStateRoot: mainExtra.StateRoot,
	}

	implicitTransitions := make([]chunktypes.ChunkStateTransition, 0, len(implicitBlocks))
	for _, blockHash := range implicitBlocks {
		data, err := b.chain.GetStateTransitionData(ctx, blockHash, shardID)
		if err != nil {
			return chunktypes.ChunkStateTransition{}, nil, common.Hash{}, fmt.Errorf("builder: missing state proof for block %s shard %d: %w", blockHash, shardID, err)
		}
		extra, err := b.chain.GetChunkExtra(ctx, blockHash, shardID)
		if err != nil {
			return chunktypes.ChunkStateTransition{}, nil, common.Hash{}, err
		}
		implicitTransitions = append(implicitTransitions, chunktypes.ChunkStateTransition{
			BlockHash:     blockHash,
			BaseState:     data.BaseState,
			PostStateRoot: extra.StateRoot,
		})
	}

	return mainTransition, implicitTransitions, mainData.ReceiptsHash, nil
}

// blocksDownTo walks backward from startHash (inclusive) to the first block
// at or below floorHeight (inclusive), newest-first, mirroring
// ChainStore::get_blocks_until_height.
func (b *Builder) blocksDownTo(ctx context.Context, startHash common.Hash, floorHeight uint64) ([]common.Hash, error) {
	var out []common.Hash
	hash := startHash
	for {
		block, err := b.chain.GetBlock(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("builder: walk chain: %w", err)
		}
		out = append(out, hash)
		if block.Header.Height <= floorHeight {
			break
		}
		hash = block.Header.PrevHash
		if hash == (common.Hash{}) {
			break
		}
	}
	return out, nil
}

func reverse(hashes []common.Hash) {
	for i, j := 0, len(hashes)-1; i < j; i, j = i+1, j-1 {
		hashes[i], hashes[j] = hashes[j], hashes[i]
	}
}

// SendChunkStateWitnessToChunkValidators builds and distributes the witness
// for chunk, with two short-circuits: skip silently below the
// chunk-validation protocol version, and skip silently when the previous
// chunk is the genesis chunk (there is nothing to replay yet); otherwise
// it builds and sends.
func (b *Builder) SendChunkStateWitnessToChunkValidators(ctx context.Context, epochID chunktypes.EpochID, prevChunkHeader chunktypes.ChunkHeader, chunk chunktypes.Chunk, prevChunkTransactions []chunktypes.Transaction) error {
	version, err := b.epochs.GetProtocolVersion(ctx, epochID)
	if err != nil {
		return fmt.Errorf("builder: %w: %w", chunktypes.ErrChainAccess, err)
	}
	if version < epoch.MinProtocolVersionForChunkValidation {
		return nil
	}
	if prevChunkHeader.PrevBlockHash == (common.Hash{}) {
		return nil
	}

	chunkHeader := chunk.Header
	validators, err := b.epochs.GetChunkValidators(ctx, epochID, chunkHeader.ShardID, chunkHeader.HeightCreated)
	if err != nil {
		return fmt.Errorf("builder: %w: %w", chunktypes.ErrChainAccess, err)
	}

	mainTransition, implicitTransitions, appliedReceiptsHash, err := b.CollectStateTransitionData(ctx, chunkHeader, prevChunkHeader)
	if err != nil {
		return err
	}

	witness := &chunktypes.ChunkStateWitness{
		ChunkHeader:         chunkHeader,
		MainStateTransition: mainTransition,
		ImplicitTransitions: implicitTransitions,
		SourceReceiptProofs: map[common.Hash]chunktypes.ReceiptProof{},
		Transactions:        prevChunkTransactions,
		AppliedReceiptsHash: appliedReceiptsHash,
		NewTransactions:     chunk.Transactions,
	}

	return b.network.SendChunkStateWitness(ctx, validators, witness)
}
