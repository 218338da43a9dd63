// Copyright 2025 Certen Protocol

package merkletrie_test

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/certen/chunkvalidator/internal/merkletrie"
)

type hashListForTest []common.Hash

func (h hashListForTest) Len() int                        { return len(h) }
func (h hashListForTest) EncodeIndex(i int, w *bytes.Buffer) { w.Write(h[i][:]) }

func hashPairForTest(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left[:], right[:])
}

func TestOpenTrieEmptyRootNeedsNoNodes(t *testing.T) {
	storage := merkletrie.NewRecordedStorage(nil)
	tr, err := merkletrie.OpenTrie(merkletrie.EmptyRoot, storage)
	require.NoError(t, err)

	val, err := tr.Get([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, val)
}

func TestCommitThenReopenFromRecordedNodes(t *testing.T) {
	storage := merkletrie.NewRecordedStorage(nil)
	tr, err := merkletrie.OpenTrie(merkletrie.EmptyRoot, storage)
	require.NoError(t, err)

	require.NoError(t, tr.Update([]byte("alice"), []byte("100")))
	require.NoError(t, tr.Update([]byte("bob"), []byte("50")))

	root, nodes, err := merkletrie.Commit(tr)
	require.NoError(t, err)
	require.NotEqual(t, merkletrie.EmptyRoot, root)
	require.NotEmpty(t, nodes)

	// A fresh RecordedStorage built only from the nodes Commit returned must
	// be sufficient to replay every read that produced root — no disk
	// fallback involved.
	replay := merkletrie.NewRecordedStorage(nodes)
	reopened, err := merkletrie.OpenTrie(root, replay)
	require.NoError(t, err)

	val, err := reopened.Get([]byte("alice"))
	require.NoError(t, err)
	require.Equal(t, []byte("100"), val)

	val, err = reopened.Get([]byte("bob"))
	require.NoError(t, err)
	require.Equal(t, []byte("50"), val)
}

func TestOpenTrieFailsClosedWithoutRecordedNodes(t *testing.T) {
	storage := merkletrie.NewRecordedStorage(nil)
	tr, err := merkletrie.OpenTrie(merkletrie.EmptyRoot, storage)
	require.NoError(t, err)
	require.NoError(t, tr.Update([]byte("alice"), []byte("100")))
	root, _, err := merkletrie.Commit(tr)
	require.NoError(t, err)

	empty := merkletrie.NewRecordedStorage(nil)
	_, err = merkletrie.OpenTrie(root, empty)
	require.Error(t, err)
}

func TestMerkleRootIsOrderSensitive(t *testing.T) {
	a := common.HexToHash("0x01")
	b := common.HexToHash("0x02")

	root1 := merkletrie.MerkleRoot(hashListForTest{a, b})
	root2 := merkletrie.MerkleRoot(hashListForTest{b, a})
	require.NotEqual(t, root1, root2)
}

func TestVerifyProof(t *testing.T) {
	leaf := common.HexToHash("0x01")
	sibling := common.HexToHash("0x02")
	// left||right = leaf||sibling
	root := hashPairForTest(leaf, sibling)

	require.NoError(t, merkletrie.VerifyProof(leaf, []common.Hash{sibling}, []bool{true}, root))
	require.Error(t, merkletrie.VerifyProof(leaf, []common.Hash{sibling}, []bool{false}, root))
	require.Error(t, merkletrie.VerifyProof(leaf, []common.Hash{sibling, sibling}, []bool{true}, root))
}
