// Copyright 2025 Certen Protocol
//
// Core chain data model for the chunk validation core: blocks, chunks,
// transactions and receipts as seen from a single shard's point of view.
// These are intentionally thin — the real block/transaction formats belong
// to the chain this core is borrowed into; this module only needs the
// fields chunk validation actually reads.

package chunktypes

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// ShardUID identifies a shard across shard-layout versions, matching the
// real chain's (version, shard_id) pair.
type ShardUID struct {
	Version uint32
	ShardID uint64
}

// EpochID identifies an epoch. Epochs are opaque to this core; it only
// ever threads the id through to the epoch manager.
type EpochID common.Hash

// ShardLayout maps accounts to shards via a sorted list of boundary account
// ids, e.g. partitioning 100 accounts across 4 shards at boundaries
// account3/5/7.
type ShardLayout struct {
	Version    uint32
	Boundaries []string // sorted account ids; len(Boundaries)+1 == NumShards
}

// NumShards returns the number of shards this layout defines.
func (l ShardLayout) NumShards() uint64 {
	return uint64(len(l.Boundaries) + 1)
}

// ShardIDFor returns which shard owns accountID under this layout.
func (l ShardLayout) ShardIDFor(accountID string) uint64 {
	var shard uint64
	for _, boundary := range l.Boundaries {
		if accountID < boundary {
			break
		}
		shard++
	}
	return shard
}

// ChunkHeader identifies a chunk by its commitments. IsNewChunk tells the
// pre-validator whether the block that carried this header produced a
// fresh chunk for the shard or just repeated the previous one.
//
// The five Prev* fields mirror the five ChunkExtra fields a replay
// reproduces: PrevStateRoot/PrevOutcomeRoot/PrevGasUsed/
// PrevValidatorProposalsRoot/PrevOutgoingReceiptsRoot are what the chunk
// producer commits to having reached by applying the previous chunk, and
// the final replay cross-check compares all five against what replay
// actually produced.
type ChunkHeader struct {
	ShardID                    uint64
	HeightCreated              uint64
	PrevBlockHash              common.Hash
	ChunkHash                  common.Hash
	TxRoot                     common.Hash
	PrevStateRoot              common.Hash
	PrevOutcomeRoot            common.Hash
	PrevGasUsed                uint64
	PrevValidatorProposalsRoot common.Hash
	PrevOutgoingReceiptsRoot   common.Hash
	GasLimit                   uint64
	IsNewChunk                 bool
}

// Chunk is a chunk header plus the transaction body it committed to.
type Chunk struct {
	Header       ChunkHeader
	Transactions []Transaction
}

// BlockHeader carries the chain-walk fields the pre-validator and witness
// builder need: identity, height, and the link back to the parent block.
type BlockHeader struct {
	Hash      common.Hash
	PrevHash  common.Hash
	Height    uint64
	Timestamp uint64
}

// Block is a block header plus, per shard, the chunk header included at
// that height (IsNewChunk distinguishes a fresh chunk from an inherited
// stand-in).
type Block struct {
	Header BlockHeader
	Chunks []ChunkHeader // indexed by shard id
}

// ChunkForShard returns the chunk header for shardID, or false if the shard
// does not appear in this block (a fatal condition for this core — see
// spec §4.2 tie-breaks).
func (b *Block) ChunkForShard(shardID uint64) (ChunkHeader, bool) {
	if shardID >= uint64(len(b.Chunks)) {
		return ChunkHeader{}, false
	}
	return b.Chunks[shardID], true
}

// Transaction is a minimal value-transfer transaction: enough to exercise
// merkleization, hashing and a toy balance-transition runtime without
// pulling in a full execution engine (out of scope per spec §1).
type Transaction struct {
	SignerID   string
	ReceiverID string
	Amount     uint64
	Nonce      uint64
}

// Hash returns the transaction's content hash, used as the outcome key and
// as a merkle leaf.
func (t Transaction) Hash() common.Hash {
	enc, _ := rlp.EncodeToBytes(&t)
	return crypto.Keccak256Hash(enc)
}

// TransactionList adapts a []Transaction to go-ethereum's trie.DerivableList
// so transaction roots can be computed with the same hasher the chain's
// block header commitments use.
type TransactionList []Transaction

func (l TransactionList) Len() int { return len(l) }

func (l TransactionList) EncodeIndex(i int, w *bytes.Buffer) {
	if err := rlp.Encode(w, &l[i]); err != nil {
		panic(err)
	}
}

// Receipt is a cross-shard message produced while applying a chunk: value
// to move from FromShardID into ToShardID, addressed to Receiver.
type Receipt struct {
	ID          common.Hash
	FromShardID uint64
	ToShardID   uint64
	Receiver    string
	Amount      uint64
}

// ReceiptList adapts a []Receipt to trie.DerivableList, used both for the
// per-shard outgoing-receipts hash and for hashing a flattened receipt set
// for applied_receipts_hash.
type ReceiptList []Receipt

func (l ReceiptList) Len() int { return len(l) }

func (l ReceiptList) EncodeIndex(i int, w *bytes.Buffer) {
	if err := rlp.Encode(w, &l[i]); err != nil {
		panic(err)
	}
}

// HashReceipts hashes an ordered receipt list the way both the applied
// receipts hash and a single shard's outgoing-receipts group hash are
// computed: RLP-encode the whole slice, then Keccak256 it. Order matters;
// callers must bucket receipts by destination shard before calling this
// so each shard's root is computed over exactly the receipts it owns.
func HashReceipts(receipts []Receipt) common.Hash {
	enc, err := rlp.EncodeToBytes(ReceiptList(receipts))
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(enc)
}

// ReceiptProof is a receipt batch plus its Merkle path against the source
// chunk's outgoing-receipts root. It is part of the witness wire format
// (spec §3) but is not consumed by this version's pre-validator — see
// SPEC_FULL.md's open-question decision for source_receipt_proofs.
type ReceiptProof struct {
	FromChunkHash common.Hash
	ToShardID     uint64
	Receipts      []Receipt
	ProofPath     [][]byte
}
