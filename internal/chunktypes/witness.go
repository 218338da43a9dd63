// Copyright 2025 Certen Protocol

package chunktypes

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ChunkStateTransition is one step of state evolution for a shard, anchored
// at a specific block: the recorded partial storage needed to replay it,
// plus the post-state root the producer claims it reached.
type ChunkStateTransition struct {
	BlockHash     common.Hash
	BaseState     [][]byte // trie node blobs (recorded partial storage)
	PostStateRoot common.Hash
}

// ChunkStateWitness is the full self-contained replay package a chunk
// producer sends to the chunk validators selected for ChunkHeader.
type ChunkStateWitness struct {
	ChunkHeader         ChunkHeader
	MainStateTransition ChunkStateTransition
	ImplicitTransitions []ChunkStateTransition

	// SourceReceiptProofs and NewTransactionsValidationState are carried on
	// the wire for format completeness but unused by this version's
	// pre-validator / replayer — see SPEC_FULL.md open-question decisions.
	SourceReceiptProofs map[common.Hash]ReceiptProof

	AppliedReceiptsHash common.Hash
	Transactions        []Transaction
	NewTransactions     []Transaction

	NewTransactionsValidationState [][]byte
}

// ValidatorProposal is a validator-set change proposed by a chunk's
// execution (stake changes, new/removed validators).
type ValidatorProposal struct {
	AccountID string
	PublicKey []byte
	Stake     *big.Int
}

// ChunkExtra is the derived post-chunk metadata a replay reproduces and
// checks against the proposed chunk header.
type ChunkExtra struct {
	StateRoot          common.Hash
	OutcomeRoot        common.Hash
	ValidatorProposals []ValidatorProposal
	TotalGasBurnt       uint64
	GasLimit            uint64
	TotalBalanceBurnt   *big.Int
}

// Clone returns a deep-enough copy of e for threading through sequential
// implicit transitions, where each step mutates StateRoot from the
// previous step's result.
func (e ChunkExtra) Clone() ChunkExtra {
	proposals := make([]ValidatorProposal, len(e.ValidatorProposals))
	copy(proposals, e.ValidatorProposals)
	burnt := new(big.Int)
	if e.TotalBalanceBurnt != nil {
		burnt.Set(e.TotalBalanceBurnt)
	}
	return ChunkExtra{
		StateRoot:          e.StateRoot,
		OutcomeRoot:        e.OutcomeRoot,
		ValidatorProposals: proposals,
		TotalGasBurnt:       e.TotalGasBurnt,
		GasLimit:             e.GasLimit,
		TotalBalanceBurnt:   burnt,
	}
}

// ChunkEndorsementInner binds a signature to the specific chunk being
// endorsed, so a signature cannot be replayed against a different chunk.
type ChunkEndorsementInner struct {
	ChunkHash common.Hash
}

// ChunkEndorsement is the signed attestation a chunk validator sends back
// to the block producer once replay succeeds.
type ChunkEndorsement struct {
	AccountID string
	Signature []byte
	Inner     ChunkEndorsementInner
}

// StoredChunkStateTransitionData is the StateTransitionData column row: the
// recorded partial storage and applied-receipts hash a producer persists
// when it first applies a chunk, later read back to build future witnesses.
type StoredChunkStateTransitionData struct {
	BaseState    [][]byte
	ReceiptsHash common.Hash
}
