// Copyright 2025 Certen Protocol

package chainstore_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/certen/chunkvalidator/internal/chainstore"
	"github.com/certen/chunkvalidator/internal/chunktypes"
)

func TestInMemoryBlockLookups(t *testing.T) {
	ctx := context.Background()
	store := chainstore.NewInMemory()

	hash := common.HexToHash("0x01")
	block := &chunktypes.Block{Header: chunktypes.BlockHeader{Hash: hash, Height: 5}}
	store.PutBlock(block)

	got, err := store.GetBlock(ctx, hash)
	require.NoError(t, err)
	require.Same(t, block, got)

	got, err = store.GetBlockByHeight(ctx, 5)
	require.NoError(t, err)
	require.Same(t, block, got)

	_, err = store.GetBlock(ctx, common.HexToHash("0x02"))
	require.ErrorIs(t, err, chunktypes.ErrChainAccess)
}

func TestInMemoryPreviousBlockGenesisHasNoParent(t *testing.T) {
	ctx := context.Background()
	store := chainstore.NewInMemory()

	genesisHash := common.HexToHash("0x01")
	store.PutBlock(&chunktypes.Block{Header: chunktypes.BlockHeader{Hash: genesisHash, Height: 0}})

	_, err := store.GetPreviousBlock(ctx, genesisHash)
	require.Error(t, err)
}

func TestInMemoryChunkExtraRoundTripIsAClone(t *testing.T) {
	ctx := context.Background()
	store := chainstore.NewInMemory()
	hash := common.HexToHash("0x01")

	extra := chunktypes.ChunkExtra{StateRoot: common.HexToHash("0xaa")}
	require.NoError(t, store.PutChunkExtra(ctx, hash, 0, extra))

	got, err := store.GetChunkExtra(ctx, hash, 0)
	require.NoError(t, err)
	require.Equal(t, extra.StateRoot, got.StateRoot)

	got.StateRoot = common.HexToHash("0xbb")
	second, err := store.GetChunkExtra(ctx, hash, 0)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0xaa"), second.StateRoot)

	_, err = store.GetChunkExtra(ctx, hash, 1)
	require.ErrorIs(t, err, chunktypes.ErrChainAccess)
}

func TestInMemoryStateTransitionDataMissingIsErrMissingStateProof(t *testing.T) {
	ctx := context.Background()
	store := chainstore.NewInMemory()

	_, err := store.GetStateTransitionData(ctx, common.HexToHash("0x01"), 0)
	require.ErrorIs(t, err, chunktypes.ErrMissingStateProof)

	data := chunktypes.StoredChunkStateTransitionData{ReceiptsHash: common.HexToHash("0xaa")}
	require.NoError(t, store.PutStateTransitionData(ctx, common.HexToHash("0x01"), 0, data))

	got, err := store.GetStateTransitionData(ctx, common.HexToHash("0x01"), 0)
	require.NoError(t, err)
	require.Equal(t, data.ReceiptsHash, got.ReceiptsHash)
}

func TestInMemoryIncomingReceiptsDefaultsToEmpty(t *testing.T) {
	ctx := context.Background()
	store := chainstore.NewInMemory()

	receipts, err := store.GetIncomingReceipts(ctx, common.HexToHash("0x01"), 0)
	require.NoError(t, err)
	require.Empty(t, receipts)

	want := []chunktypes.Receipt{{Receiver: "alice", Amount: 10}}
	store.SetIncomingReceipts(common.HexToHash("0x01"), 0, want)

	got, err := store.GetIncomingReceipts(ctx, common.HexToHash("0x01"), 0)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestCollectReceiptsFromResponsePreservesOldestFirstOrder(t *testing.T) {
	oldest := []chunktypes.Receipt{{Receiver: "alice"}}
	newest := []chunktypes.Receipt{{Receiver: "bob"}}

	got := chainstore.CollectReceiptsFromResponse([][]chunktypes.Receipt{oldest, newest})
	require.Equal(t, []chunktypes.Receipt{{Receiver: "alice"}, {Receiver: "bob"}}, got)
}
