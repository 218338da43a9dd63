// Copyright 2025 Certen Protocol
//
// prevalidate is the cheap, synchronous half of chunk validation: before
// handing a witness off to the CPU-heavy replayer, walk chain history to
// confirm the receipts and transactions the witness claims actually match
// what the chain says happened. Everything this package checks, it checks
// for the same reason: catching a malformed or malicious witness before
// spending CPU replaying it.

package prevalidate

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/chunkvalidator/internal/chainstore"
	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/internal/epoch"
	"github.com/certen/chunkvalidator/internal/merkletrie"
)

// Output is what pre-validation hands the replayer: the fully-formed main
// transition input, plus the block contexts each implicit transition in the
// witness should be applied against, oldest first.
type Output struct {
	MainTransitionParams     chunktypes.NewChunkData
	ImplicitTransitionParams []ImplicitTransitionParam
}

// ImplicitTransitionParam is one no-new-chunk block's apply context: the
// block itself, plus whatever receipts arrived for the shard at that
// block and still need incoming-receipt bookkeeping.
type ImplicitTransitionParam struct {
	Block    chunktypes.ApplyChunkBlockContext
	Receipts []chunktypes.Receipt
}

// PreValidator performs the chain-history checks that don't require
// replaying any state.
type PreValidator struct {
	chain  chainstore.ChainStore
	epochs epoch.EpochManager
}

// New returns a pre-validator wired to its chain collaborators.
func New(chain chainstore.ChainStore, epochs epoch.EpochManager) *PreValidator {
	return &PreValidator{chain: chain, epochs: epochs}
}

// PreValidate walks back from witness.ChunkHeader.PrevBlockHash to locate
// the block that produced the shard's previous new chunk and the one
// before that, checks the witness's receipts hash and transaction root
// against what the chain recorded, and builds the replayer's inputs.
func (v *PreValidator) PreValidate(ctx context.Context, witness *chunktypes.ChunkStateWitness) (*Output, error) {
	shardID := witness.ChunkHeader.ShardID

	var blocksAfterLastChunk []*chunktypes.Block
	var blocksAfterLastLastChunk []*chunktypes.Block

	blockHash := witness.ChunkHeader.PrevBlockHash
	prevChunksSeen := 0
	for {
		block, err := v.chain.GetBlock(ctx, blockHash)
		if err != nil {
			return nil, fmt.Errorf("prevalidate: %w: %w", chunktypes.ErrChainAccess, err)
		}
		chunk, ok := block.ChunkForShard(shardID)
		if !ok {
			return nil, chunktypes.InvalidWitness("shard %d does not exist in block %s", shardID, block.Header.Hash)
		}
		isNewChunk := chunk.IsNewChunk
		nextHash := block.Header.PrevHash

		switch prevChunksSeen {
		case 0:
			blocksAfterLastChunk = append(blocksAfterLastChunk, block)
		case 1:
			blocksAfterLastLastChunk = append(blocksAfterLastLastChunk, block)
		}
		if isNewChunk {
			prevChunksSeen++
		}
		if prevChunksSeen == 2 {
			break
		}
		if nextHash == (common.Hash{}) {
			return nil, chunktypes.InvalidWitness("ran out of chain history before finding two previous new chunks for shard %d", shardID)
		}
		blockHash = nextHash
	}

	lastChunkBlock := blocksAfterLastChunk[len(blocksAfterLastChunk)-1]
	implicitTransitionBlocks := blocksAfterLastChunk[:len(blocksAfterLastChunk)-1]
	floorBlock := blocksAfterLastLastChunk[len(blocksAfterLastLastChunk)-1]

	receiptBatches, err := v.incomingReceiptsBetween(ctx, lastChunkBlock.Header.Hash, floorBlock.Header.Height, shardID)
	if err != nil {
		return nil, err
	}
	receiptsToApply := chainstore.CollectReceiptsFromResponse(receiptBatches)

	appliedReceiptsHash := chunktypes.HashReceipts(receiptsToApply)
	if appliedReceiptsHash != witness.AppliedReceiptsHash {
		return nil, chunktypes.InvalidWitness("receipts hash %s does not match expected receipts hash %s", appliedReceiptsHash, witness.AppliedReceiptsHash)
	}

	txRootFromWitness := merkletrie.MerkleRoot(chunktypes.TransactionList(witness.Transactions))
	lastChunkHeader, ok := lastChunkBlock.ChunkForShard(shardID)
	if !ok {
		return nil, chunktypes.InvalidWitness("shard %d missing from last new chunk block %s", shardID, lastChunkBlock.Header.Hash)
	}
	if lastChunkHeader.TxRoot != txRootFromWitness {
		return nil, chunktypes.InvalidWitness("transaction root %s does not match expected transaction root %s", txRootFromWitness, lastChunkHeader.TxRoot)
	}

	epochID, err := v.epochs.GetEpochID(ctx, lastChunkBlock.Header.Hash)
	if err != nil {
		return nil, fmt.Errorf("prevalidate: %w: %w", chunktypes.ErrChainAccess, err)
	}
	layout, err := v.epochs.GetShardLayout(ctx, epochID)
	if err != nil {
		return nil, fmt.Errorf("prevalidate: %w: %w", chunktypes.ErrChainAccess, err)
	}

	mainParams := chunktypes.NewChunkData{
		ChunkHeader:  lastChunkHeader,
		Layout:       layout,
		Transactions: witness.Transactions,
		Receipts:     receiptsToApply,
		Block: chunktypes.ApplyChunkBlockContext{
			BlockHash:     lastChunkBlock.Header.Hash,
			Height:        lastChunkBlock.Header.Height,
			Timestamp:     lastChunkBlock.Header.Timestamp,
			PrevStateRoot: lastChunkHeader.PrevStateRoot,
		},
		StorageContext: chunktypes.StorageContext{
			Nodes:         witness.MainStateTransition.BaseState,
			RecordStorage: false,
		},
	}

	implicitParams := make([]ImplicitTransitionParam, 0, len(implicitTransitionBlocks))
	for i := len(implicitTransitionBlocks) - 1; i >= 0; i-- {
		b := implicitTransitionBlocks[i]
		receipts, err := v.chain.GetIncomingReceipts(ctx, b.Header.Hash, shardID)
		if err != nil {
			return nil, fmt.Errorf("prevalidate: %w: %w", chunktypes.ErrChainAccess, err)
		}
		implicitParams = append(implicitParams, ImplicitTransitionParam{
			Block: chunktypes.ApplyChunkBlockContext{
				BlockHash: b.Header.Hash,
				Height:    b.Header.Height,
				Timestamp: b.Header.Timestamp,
			},
			Receipts: receipts,
		})
	}

	return &Output{MainTransitionParams: mainParams, ImplicitTransitionParams: implicitParams}, nil
}

// incomingReceiptsBetween returns, oldest block first, the receipts
// addressed to shardID produced by every block from floorHeight (exclusive)
// up to and including blockHash.
func (v *PreValidator) incomingReceiptsBetween(ctx context.Context, blockHash common.Hash, floorHeight uint64, shardID uint64) ([][]chunktypes.Receipt, error) {
	var newestFirst [][]chunktypes.Receipt
	hash := blockHash
	for {
		block, err := v.chain.GetBlock(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("prevalidate: %w: %w", chunktypes.ErrChainAccess, err)
		}
		if block.Header.Height <= floorHeight {
			break
		}
		receipts, err := v.chain.GetIncomingReceipts(ctx, hash, shardID)
		if err != nil {
			return nil, fmt.Errorf("prevalidate: %w: %w", chunktypes.ErrChainAccess, err)
		}
		newestFirst = append(newestFirst, receipts)
		hash = block.Header.PrevHash
		if hash == (common.Hash{}) {
			break
		}
	}
	oldestFirst := make([][]chunktypes.Receipt, len(newestFirst))
	for i, batch := range newestFirst {
		oldestFirst[len(newestFirst)-1-i] = batch
	}
	return oldestFirst, nil
}
