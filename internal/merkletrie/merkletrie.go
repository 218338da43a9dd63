// Copyright 2025 Certen Protocol
//
// merkletrie adapts go-ethereum's trie package to recorded partial
// storage: a set of trie nodes sufficient to answer every read a replay
// performs, with no disk fallback. A witness carries exactly that node
// set; this package is the only place that opens and commits tries (the
// reference runtime only reads and updates a trie this package opened),
// the same way all gnark-crypto BLS calls stay behind pkg/crypto/bls.

package merkletrie

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
)

// ErrNodeNotRecorded is returned when replay needs a trie node that was not
// included in the witness's recorded partial storage — the producer built
// an incomplete proof, or a malicious producer omitted a node on purpose.
var ErrNodeNotRecorded = errors.New("merkletrie: trie node not present in recorded partial storage")

// RecordedStorage is a content-addressed set of trie node blobs: exactly
// the witness's base_state, keyed by the node's own hash so a trie can look
// nodes up without ever touching disk.
type RecordedStorage struct {
	db *memorydb.Database
}

// NewRecordedStorage builds a RecordedStorage from the raw node blobs
// carried on a ChunkStateWitness / ChunkStateTransition.
func NewRecordedStorage(nodes [][]byte) *RecordedStorage {
	db := memorydb.New()
	for _, node := range nodes {
		hash := crypto.Keccak256(node)
		_ = db.Put(hash, node)
	}
	return &RecordedStorage{db: db}
}

// Nodes returns the flat list of node blobs backing this recorded storage,
// suitable for embedding back into a ChunkStateTransition.
func (s *RecordedStorage) Nodes() [][]byte {
	it := s.db.NewIterator(nil, nil)
	defer it.Release()
	var out [][]byte
	for it.Next() {
		blob := make([]byte, len(it.Value()))
		copy(blob, it.Value())
		out = append(out, blob)
	}
	return out
}

// database returns the underlying key-value store, wrapped so the trie
// package's hash-scheme backend reads from it with no disk fallback: a
// miss is a miss, never a fetch from somewhere else.
func (s *RecordedStorage) database() ethdb.KeyValueStore {
	return s.db
}

// OpenTrie opens a read/write handle onto the trie rooted at root, backed
// solely by the given recorded storage. Reads for nodes outside the
// recorded set fail closed.
func OpenTrie(root common.Hash, storage *RecordedStorage) (*trie.Trie, error) {
	db := triedb.NewDatabase(storage.database())
	t, err := trie.New(trie.TrieID(root), db)
	if err != nil {
		return nil, fmt.Errorf("merkletrie: open trie at %s: %w", root, err)
	}
	return t, nil
}

// Commit finalizes mutations to t, returning the new root and the node
// blobs that changed — used by the reference Runtime to both advance the
// trie and capture the StateTransitionData row a future witness will need.
func Commit(t *trie.Trie) (common.Hash, [][]byte, error) {
	root, nodes, err := t.Commit(false)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("merkletrie: commit: %w", err)
	}
	if nodes == nil {
		return root, nil, nil
	}
	flat := nodes.Flatten()
	out := make([][]byte, 0, len(flat))
	for _, n := range flat {
		out = append(out, append([]byte(nil), n.Blob...))
	}
	return root, out, nil
}

// MerkleRoot computes the merkle root of an ordered list the same way the
// chain commits transaction roots and outgoing-receipts roots: a fresh
// StackTrie hashed over the list's RLP-encoded entries.
func MerkleRoot(list types.DerivableList) common.Hash {
	return types.DeriveSha(list, trie.NewStackTrie(nil))
}

// EmptyRoot is the state root of a trie with no entries — the starting
// PrevStateRoot for a shard's genesis chunk.
var EmptyRoot = types.EmptyRootHash

// VerifyProof re-derives a leaf's inclusion in a tree rooted at expectedRoot
// from a flat ordered sibling path, using Keccak256-pair composition. This is
// the primitive a future source_receipt_proofs verifier (spec §9 open
// question) would build on; it is not yet wired into the pre-validator.
func VerifyProof(leaf common.Hash, siblings []common.Hash, rightFlags []bool, expectedRoot common.Hash) error {
	if len(siblings) != len(rightFlags) {
		return fmt.Errorf("merkletrie: proof path length mismatch: %d hashes, %d flags", len(siblings), len(rightFlags))
	}
	current := leaf
	for i, sibling := range siblings {
		if rightFlags[i] {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
	}
	if !bytes.Equal(current[:], expectedRoot[:]) {
		return fmt.Errorf("merkletrie: proof root mismatch: computed %s, expected %s", current, expectedRoot)
	}
	return nil
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}
