// Copyright 2025 Certen Protocol

package builder_test

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/certen/chunkvalidator/internal/builder"
	"github.com/certen/chunkvalidator/internal/chainstore"
	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/internal/epoch"
	"github.com/certen/chunkvalidator/internal/network"
)

func TestSendChunkStateWitnessSkipsGenesisPredecessor(t *testing.T) {
	ctx := context.Background()
	chain := chainstore.NewInMemory()
	layout := chunktypes.ShardLayout{Version: 1}
	epochs := epoch.NewInMemory(layout, map[uint64][]string{0: {"validator0"}}, "producer0")
	bus := network.NewInProcessBus()
	wb := builder.New(chain, epochs, bus)

	called := false
	bus.RegisterChunkValidator("validator0", func(context.Context, *chunktypes.ChunkStateWitness) error {
		called = true
		return nil
	})

	epochID, err := epochs.GetEpochID(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)

	// prevChunkHeader.PrevBlockHash is the zero hash: this is the genesis
	// chunk, so there is nothing to replay yet and no witness should be sent.
	prevChunkHeader := chunktypes.ChunkHeader{ShardID: 0, HeightCreated: 0}
	chunk := chunktypes.Chunk{Header: chunktypes.ChunkHeader{ShardID: 0, HeightCreated: 1}}
	err = wb.SendChunkStateWitnessToChunkValidators(ctx, epochID, prevChunkHeader, chunk, nil)
	require.NoError(t, err)
	require.False(t, called)
}

func TestSendChunkStateWitnessSkipsBelowMinProtocolVersion(t *testing.T) {
	ctx := context.Background()
	chain := chainstore.NewInMemory()
	layout := chunktypes.ShardLayout{Version: 1}
	epochs := epoch.NewInMemory(layout, map[uint64][]string{0: {"validator0"}}, "producer0")
	epochs.SetProtocolVersion(0)
	bus := network.NewInProcessBus()
	wb := builder.New(chain, epochs, bus)

	called := false
	bus.RegisterChunkValidator("validator0", func(context.Context, *chunktypes.ChunkStateWitness) error {
		called = true
		return nil
	})

	epochID, err := epochs.GetEpochID(ctx, common.HexToHash("0x01"))
	require.NoError(t, err)

	prevChunkHeader := chunktypes.ChunkHeader{ShardID: 0, HeightCreated: 1, PrevBlockHash: common.HexToHash("0x01")}
	chunk := chunktypes.Chunk{Header: chunktypes.ChunkHeader{ShardID: 0, HeightCreated: 2}}
	err = wb.SendChunkStateWitnessToChunkValidators(ctx, epochID, prevChunkHeader, chunk, nil)
	require.NoError(t, err)
	require.False(t, called)
}

func TestCollectStateTransitionDataWithNoImplicitTransitions(t *testing.T) {
	ctx := context.Background()
	chain := chainstore.NewInMemory()
	layout := chunktypes.ShardLayout{Version: 1}
	epochs := epoch.NewInMemory(layout, map[uint64][]string{0: {"validator0"}}, "producer0")
	bus := network.NewInProcessBus()
	wb := builder.New(chain, epochs, bus)

	genesisHash := common.HexToHash("0xaa")
	chain.PutBlock(&chunktypes.Block{Header: chunktypes.BlockHeader{Hash: genesisHash, Height: 0}, Chunks: []chunktypes.ChunkHeader{{ShardID: 0, HeightCreated: 0, IsNewChunk: true}}})

	blockHash := common.HexToHash("0xbb")
	chunkHeader := chunktypes.ChunkHeader{ShardID: 0, HeightCreated: 1, PrevBlockHash: genesisHash, IsNewChunk: true}
	chain.PutBlock(&chunktypes.Block{Header: chunktypes.BlockHeader{Hash: blockHash, PrevHash: genesisHash, Height: 1}, Chunks: []chunktypes.ChunkHeader{chunkHeader}})
	require.NoError(t, chain.PutStateTransitionData(ctx, blockHash, 0, chunktypes.StoredChunkStateTransitionData{ReceiptsHash: common.HexToHash("0xcc")}))
	require.NoError(t, chain.PutChunkExtra(ctx, blockHash, 0, chunktypes.ChunkExtra{StateRoot: common.HexToHash("0xdd")}))

	nextHeader := chunktypes.ChunkHeader{ShardID: 0, HeightCreated: 2, PrevBlockHash: blockHash}
	main, implicit, appliedReceiptsHash, err := wb.CollectStateTransitionData(ctx, nextHeader, chunkHeader)
	require.NoError(t, err)
	require.Equal(t, blockHash, main.BlockHash)
	require.Equal(t, common.HexToHash("0xdd"), main.PostStateRoot)
	require.Empty(t, implicit)
	require.Equal(t, common.HexToHash("0xcc"), appliedReceiptsHash)
}
