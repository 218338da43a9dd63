// Copyright 2025 Certen Protocol
//
// replay is the computationally expensive half of chunk validation:
// actually executing the main transition and every implicit transition a
// witness claims, and checking the result against what the chunk
// producer proposed. Three checks, in order: main transition post-state
// root, each implicit transition's post-state root, and the final
// chunk-extra / outgoing-receipts-root cross-check against the chunk
// header.

package replay

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/internal/epoch"
	"github.com/certen/chunkvalidator/internal/merkletrie"
	"github.com/certen/chunkvalidator/internal/prevalidate"
	"github.com/certen/chunkvalidator/internal/runtime"
)

// Replayer applies a pre-validated witness's transitions end to end.
type Replayer struct {
	runtime runtime.Runtime
	epochs  epoch.EpochManager
}

// New returns a replayer wired to the runtime capability and epoch
// manager it needs to resolve shard ids and shard layouts.
func New(rt runtime.Runtime, epochs epoch.EpochManager) *Replayer {
	return &Replayer{runtime: rt, epochs: epochs}
}

// Validate replays pre.MainTransitionParams and every implicit transition
// in lockstep with witness.ImplicitTransitions, and checks the final
// result against witness.ChunkHeader. A nil error means the chunk is
// correct and safe to endorse.
func (r *Replayer) Validate(ctx context.Context, witness *chunktypes.ChunkStateWitness, pre *prevalidate.Output) error {
	main := pre.MainTransitionParams
	epochID, err := r.epochs.GetEpochID(ctx, main.Block.BlockHash)
	if err != nil {
		return fmt.Errorf("replay: %w: %w", chunktypes.ErrChainAccess, err)
	}
	shardUID, err := r.epochs.ShardIDToUID(ctx, epochID, main.ChunkHeader.ShardID)
	if err != nil {
		return fmt.Errorf("replay: %w: %w", chunktypes.ErrChainAccess, err)
	}
	main.Shard = chunktypes.ShardContext{
		ShardUID:                 shardUID,
		CaresAboutShardThisEpoch: true,
		ShouldApplyChunk:         true,
	}

	mainResult, err := r.runtime.ApplyNewChunk(ctx, main)
	if err != nil {
		return fmt.Errorf("replay: apply main transition: %w", err)
	}
	outgoingReceipts := mainResult.OutgoingReceipts
	mainResult.OutgoingReceipts = nil

	chunkExtra := applyResultToChunkExtra(mainResult, main.ChunkHeader.GasLimit)
	if chunkExtra.StateRoot != witness.MainStateTransition.PostStateRoot {
		return chunktypes.InvalidWitness(
			"post state root %s for main transition does not match expected post state root %s",
			chunkExtra.StateRoot, witness.MainStateTransition.PostStateRoot,
		)
	}

	if len(pre.ImplicitTransitionParams) != len(witness.ImplicitTransitions) {
		return chunktypes.InvalidWitness(
			"implicit transition count mismatch: chain history has %d, witness carries %d",
			len(pre.ImplicitTransitionParams), len(witness.ImplicitTransitions),
		)
	}

	for i, param := range pre.ImplicitTransitionParams {
		transition := witness.ImplicitTransitions[i]
		old := chunktypes.OldChunkData{
			PrevChunkExtra: chunkExtra.Clone(),
			Shard: chunktypes.ShardContext{
				ShardUID:                 shardUID,
				CaresAboutShardThisEpoch: true,
				ShouldApplyChunk:         false,
			},
			Receipts: param.Receipts,
			Block:    param.Block,
			StorageContext: chunktypes.StorageContext{
				Nodes:         transition.BaseState,
				RecordStorage: false,
			},
		}
		result, err := r.runtime.ApplyOldChunk(ctx, old)
		if err != nil {
			return fmt.Errorf("replay: apply implicit transition at block %s: %w", param.Block.BlockHash, err)
		}
		chunkExtra.StateRoot = result.NewRoot
		if chunkExtra.StateRoot != transition.PostStateRoot {
			return chunktypes.InvalidWitness(
				"post state root %s for implicit transition at block %s does not match expected state root %s",
				chunkExtra.StateRoot, param.Block.BlockHash, transition.PostStateRoot,
			)
		}
	}

	layout, err := r.epochs.GetShardLayout(ctx, epochID)
	if err != nil {
		return fmt.Errorf("replay: %w: %w", chunktypes.ErrChainAccess, err)
	}
	outgoingReceiptsRoot := buildOutgoingReceiptsRoot(outgoingReceipts, layout)

	return validateChunkWithChunkExtraAndReceiptsRoot(chunkExtra, witness.ChunkHeader, outgoingReceiptsRoot)
}

func applyResultToChunkExtra(result *chunktypes.ApplyChunkResult, gasLimit uint64) chunktypes.ChunkExtra {
	return chunktypes.ChunkExtra{
		StateRoot:          result.NewRoot,
		OutcomeRoot:        chunktypes.OutcomeRoot(result.Outcomes),
		ValidatorProposals: result.ValidatorProposals,
		TotalGasBurnt:      result.TotalGasBurnt,
		GasLimit:           gasLimit,
		TotalBalanceBurnt:  result.TotalBalanceBurnt,
	}
}

// buildOutgoingReceiptsRoot groups outgoing receipts per destination shard
// (hashing each shard's batch, the way build_receipts_hashes groups
// per-target-shard receipt batches) and merklizes the per-shard hashes,
// matching the producer-side commitment a chunk header's
// prev_outgoing_receipts_root checks against.
func buildOutgoingReceiptsRoot(receipts []chunktypes.Receipt, layout chunktypes.ShardLayout) common.Hash {
	perShard := make([][]chunktypes.Receipt, layout.NumShards())
	for _, r := range receipts {
		perShard[r.ToShardID] = append(perShard[r.ToShardID], r)
	}
	hashes := make(hashList, len(perShard))
	for i, batch := range perShard {
		hashes[i] = chunktypes.HashReceipts(batch)
	}
	return merkletrie.MerkleRoot(hashes)
}

// validateChunkWithChunkExtraAndReceiptsRoot is the final cross-check: the
// chunk extra replay arrived at from walking history must be exactly what
// the proposed new chunk claims as its starting point, across all five
// commitments — state root, outcome root, gas used, validator proposals
// and outgoing receipts root. Any disagreement fails with InvalidWitness.
func validateChunkWithChunkExtraAndReceiptsRoot(extra chunktypes.ChunkExtra, header chunktypes.ChunkHeader, outgoingReceiptsRoot common.Hash) error {
	if extra.StateRoot != header.PrevStateRoot {
		return chunktypes.InvalidWitness(
			"chunk extra post state root %s does not match chunk header's prev state root %s",
			extra.StateRoot, header.PrevStateRoot,
		)
	}
	if extra.OutcomeRoot != header.PrevOutcomeRoot {
		return chunktypes.InvalidWitness(
			"chunk extra outcome root %s does not match chunk header's prev outcome root %s",
			extra.OutcomeRoot, header.PrevOutcomeRoot,
		)
	}
	if extra.TotalGasBurnt != header.PrevGasUsed {
		return chunktypes.InvalidWitness(
			"chunk extra gas burnt %d does not match chunk header's prev gas used %d",
			extra.TotalGasBurnt, header.PrevGasUsed,
		)
	}
	proposalsRoot := chunktypes.ValidatorProposalsRoot(extra.ValidatorProposals)
	if proposalsRoot != header.PrevValidatorProposalsRoot {
		return chunktypes.InvalidWitness(
			"chunk extra validator proposals root %s does not match chunk header's prev validator proposals root %s",
			proposalsRoot, header.PrevValidatorProposalsRoot,
		)
	}
	if outgoingReceiptsRoot != header.PrevOutgoingReceiptsRoot {
		return chunktypes.InvalidWitness(
			"outgoing receipts root %s does not match chunk header's prev outgoing receipts root %s",
			outgoingReceiptsRoot, header.PrevOutgoingReceiptsRoot,
		)
	}
	return nil
}

type hashList []common.Hash

func (h hashList) Len() int { return len(h) }
func (h hashList) EncodeIndex(i int, w *bytes.Buffer) {
	w.Write(h[i][:])
}
