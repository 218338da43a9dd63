// Copyright 2025 Certen Protocol
//
// Types shared between the pre-validator, the replayer and the Runtime
// capability interface: the block context and shard context a chunk is
// applied under, and the result an apply call hands back.

package chunktypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ApplyChunkBlockContext carries the per-block parameters the runtime needs
// that don't come from the trie itself: which block this is, and the state
// root it should start reading from.
type ApplyChunkBlockContext struct {
	BlockHash                     common.Hash
	Height                        uint64
	Timestamp                     uint64
	PrevStateRoot                 common.Hash
	IsFirstBlockWithChunkOfVersion bool
}

// ShardContext declares how a shard participates in this apply call.
// WillShardLayoutChange and NeedToReshard are always false in this core —
// mid-epoch resharding is a documented non-goal, not silently dropped.
type ShardContext struct {
	ShardUID                 ShardUID
	CaresAboutShardThisEpoch bool
	ShouldApplyChunk         bool
	WillShardLayoutChange    bool
	NeedToReshard            bool
}

// NewChunkData is the input to apply_new_chunk: the main transition applies
// a chunk's own transactions and its incoming receipts against the shard's
// recorded partial storage.
type NewChunkData struct {
	ChunkHeader    ChunkHeader
	Shard          ShardContext
	Layout         ShardLayout
	Transactions   []Transaction
	Receipts       []Receipt
	Block          ApplyChunkBlockContext
	StorageContext StorageContext
}

// OldChunkData is the input to apply_old_chunk: an implicit, no-new-chunk
// transition that only evolves incoming-receipt bookkeeping, never
// executes a chunk body.
type OldChunkData struct {
	PrevChunkExtra ChunkExtra
	Shard          ShardContext
	Receipts       []Receipt
	Block          ApplyChunkBlockContext
	StorageContext StorageContext
}

// StorageContext selects where trie reads are served from during replay.
// RecordStorage must be false during replay: the recorded partial storage
// in the witness is meant to be exactly sufficient, and accumulating a new
// proof during replay would defeat that invariant.
type StorageContext struct {
	Nodes         [][]byte // recorded partial storage (PartialStorage)
	RecordStorage bool
}

// ExecutionOutcome is the per-transaction / per-receipt result the runtime
// produces, rolled up into the chunk extra's outcome root.
type ExecutionOutcome struct {
	ID       common.Hash
	Status   uint8
	GasBurnt uint64
}

// ApplyChunkResult is what apply_new_chunk / apply_old_chunk return: the new
// state root, execution outcomes, any receipts produced for other shards,
// and the accounting totals that roll into a ChunkExtra.
type ApplyChunkResult struct {
	NewRoot            common.Hash
	Nodes              [][]byte // trie nodes this apply call wrote, for extending a producer's trie database
	Outcomes           []ExecutionOutcome
	OutgoingReceipts   []Receipt
	ValidatorProposals []ValidatorProposal
	TotalGasBurnt       uint64
	TotalBalanceBurnt   *big.Int
}

// OutcomeRoot hashes the outcome list into the single root a ChunkExtra
// commits to.
func OutcomeRoot(outcomes []ExecutionOutcome) common.Hash {
	enc, err := rlp.EncodeToBytes(outcomes)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// ValidatorProposalsRoot hashes a validator-proposal list into the single
// root a ChunkExtra commits to, the same RLP-then-Keccak256 shape as
// OutcomeRoot.
func ValidatorProposalsRoot(proposals []ValidatorProposal) common.Hash {
	enc, err := rlp.EncodeToBytes(proposals)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}
