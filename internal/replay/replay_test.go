// Copyright 2025 Certen Protocol

package replay_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/certen/chunkvalidator/internal/builder"
	"github.com/certen/chunkvalidator/internal/chainstore"
	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/internal/endorse"
	"github.com/certen/chunkvalidator/internal/epoch"
	"github.com/certen/chunkvalidator/internal/merkletrie"
	"github.com/certen/chunkvalidator/internal/network"
	"github.com/certen/chunkvalidator/internal/prevalidate"
	"github.com/certen/chunkvalidator/internal/replay"
	"github.com/certen/chunkvalidator/internal/runtime"
	"github.com/certen/chunkvalidator/internal/scheduler"
	"github.com/certen/chunkvalidator/internal/signer"
)

// hashList is a minimal types.DerivableList for merklizing per-shard
// outgoing-receipts hashes in test fixtures, mirroring the unexported type
// the replay package itself uses for the same purpose.
type hashList []common.Hash

func (h hashList) Len() int                       { return len(h) }
func (h hashList) EncodeIndex(i int, w *bytes.Buffer) { w.Write(h[i][:]) }

func outgoingReceiptsRoot(receipts []chunktypes.Receipt, layout chunktypes.ShardLayout) common.Hash {
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

// TestFullRoundTrip builds three chunks worth of chain history with the
// reference runtime, then drives the producer and validator sides of the
// protocol end to end: build a witness for the third chunk, pre-validate
// it, replay it, and confirm a correct endorsement comes back signed by
// the expected validator.
func TestFullRoundTrip(t *testing.T) {
	ctx := context.Background()
	layout := chunktypes.ShardLayout{Version: 1}
	shardUID := chunktypes.ShardUID{Version: 1, ShardID: 0}
	chain := chainstore.NewInMemory()
	epochs := epoch.NewInMemory(layout, map[uint64][]string{0: {"validator0"}}, "producer0")
	rt := runtime.NewTransferRuntime()

	genesisHash := common.HexToHash("0xaa")
	chain.PutBlock(&chunktypes.Block{
		Header: chunktypes.BlockHeader{Hash: genesisHash, Height: 0, Timestamp: 1000},
		Chunks: []chunktypes.ChunkHeader{{
			ShardID:       0,
			HeightCreated: 0,
			PrevStateRoot: merkletrie.EmptyRoot,
			TxRoot:        merkletrie.MerkleRoot(chunktypes.TransactionList(nil)),
			IsNewChunk:    true,
		}},
	})

	// Chunk 1: fund alice via an incoming receipt, then alice pays bob 30.
	block1Hash := common.HexToHash("0xbb")
	incoming1 := []chunktypes.Receipt{{ID: common.HexToHash("0x01"), ToShardID: 0, Receiver: "alice", Amount: 100}}
	chain.SetIncomingReceipts(block1Hash, 0, incoming1)
	txs1 := []chunktypes.Transaction{{SignerID: "alice", ReceiverID: "bob", Amount: 30, Nonce: 0}}
	header1 := chunktypes.ChunkHeader{
		ShardID:                    0,
		HeightCreated:              1,
		PrevBlockHash:              genesisHash,
		ChunkHash:                  common.HexToHash("0xc1"),
		TxRoot:                     merkletrie.MerkleRoot(chunktypes.TransactionList(txs1)),
		PrevStateRoot:              merkletrie.EmptyRoot,
		PrevOutcomeRoot:            chunktypes.OutcomeRoot(nil),
		PrevValidatorProposalsRoot: chunktypes.ValidatorProposalsRoot(nil),
		PrevOutgoingReceiptsRoot:   outgoingReceiptsRoot(nil, layout),
		GasLimit:                   1_000_000,
		IsNewChunk:                 true,
	}
	result1, err := rt.ApplyNewChunk(ctx, chunktypes.NewChunkData{
		ChunkHeader: header1,
		Shard:       chunktypes.ShardContext{ShardUID: shardUID, CaresAboutShardThisEpoch: true, ShouldApplyChunk: true},
		Layout:      layout,
		Transactions: txs1,
		Receipts:     incoming1,
		Block: chunktypes.ApplyChunkBlockContext{
			BlockHash:     block1Hash,
			Height:        1,
			Timestamp:     2000,
			PrevStateRoot: merkletrie.EmptyRoot,
		},
		StorageContext: chunktypes.StorageContext{RecordStorage: false},
	})
	require.NoError(t, err)

	require.NoError(t, chain.PutStateTransitionData(ctx, block1Hash, 0, chunktypes.StoredChunkStateTransitionData{
		BaseState:    nil,
		ReceiptsHash: chunktypes.HashReceipts(incoming1),
	}))
	require.NoError(t, chain.PutChunkExtra(ctx, block1Hash, 0, chunktypes.ChunkExtra{
		StateRoot:          result1.NewRoot,
		OutcomeRoot:        chunktypes.OutcomeRoot(result1.Outcomes),
		ValidatorProposals: result1.ValidatorProposals,
		TotalGasBurnt:      result1.TotalGasBurnt,
		GasLimit:           header1.GasLimit,
		TotalBalanceBurnt:  result1.TotalBalanceBurnt,
	}))
	chain.PutBlock(&chunktypes.Block{
		Header: chunktypes.BlockHeader{Hash: block1Hash, PrevHash: genesisHash, Height: 1, Timestamp: 2000},
		Chunks: []chunktypes.ChunkHeader{header1},
	})

	// Chunk 2: alice pays bob 20 more, no incoming receipts this time.
	block2Hash := common.HexToHash("0xcc")
	txs2 := []chunktypes.Transaction{{SignerID: "alice", ReceiverID: "bob", Amount: 20, Nonce: 1}}
	header2 := chunktypes.ChunkHeader{
		ShardID:                    0,
		HeightCreated:              2,
		PrevBlockHash:              block1Hash,
		ChunkHash:                  common.HexToHash("0xc2"),
		TxRoot:                     merkletrie.MerkleRoot(chunktypes.TransactionList(txs2)),
		PrevStateRoot:              result1.NewRoot,
		PrevOutcomeRoot:            chunktypes.OutcomeRoot(result1.Outcomes),
		PrevGasUsed:                result1.TotalGasBurnt,
		PrevValidatorProposalsRoot: chunktypes.ValidatorProposalsRoot(result1.ValidatorProposals),
		PrevOutgoingReceiptsRoot:   outgoingReceiptsRoot(nil, layout),
		GasLimit:                   1_000_000,
		IsNewChunk:                 true,
	}
	result2, err := rt.ApplyNewChunk(ctx, chunktypes.NewChunkData{
		ChunkHeader:  header2,
		Shard:        chunktypes.ShardContext{ShardUID: shardUID, CaresAboutShardThisEpoch: true, ShouldApplyChunk: true},
		Layout:       layout,
		Transactions: txs2,
		Block: chunktypes.ApplyChunkBlockContext{
			BlockHash:     block2Hash,
			Height:        2,
			Timestamp:     3000,
			PrevStateRoot: result1.NewRoot,
		},
		StorageContext: chunktypes.StorageContext{Nodes: result1.Nodes, RecordStorage: false},
	})
	require.NoError(t, err)

	require.NoError(t, chain.PutStateTransitionData(ctx, block2Hash, 0, chunktypes.StoredChunkStateTransitionData{
		BaseState:    result1.Nodes,
		ReceiptsHash: chunktypes.HashReceipts(nil),
	}))
	require.NoError(t, chain.PutChunkExtra(ctx, block2Hash, 0, chunktypes.ChunkExtra{
		StateRoot:          result2.NewRoot,
		OutcomeRoot:        chunktypes.OutcomeRoot(result2.Outcomes),
		ValidatorProposals: result2.ValidatorProposals,
		TotalGasBurnt:      result2.TotalGasBurnt,
		GasLimit:           header2.GasLimit,
		TotalBalanceBurnt:  result2.TotalBalanceBurnt,
	}))
	chain.PutBlock(&chunktypes.Block{
		Header: chunktypes.BlockHeader{Hash: block2Hash, PrevHash: block1Hash, Height: 2, Timestamp: 3000},
		Chunks: []chunktypes.ChunkHeader{header2},
	})

	// Chunk 3 is the one under validation: its witness's main transition
	// replays chunk 2.
	header3 := chunktypes.ChunkHeader{
		ShardID:                    0,
		HeightCreated:              3,
		PrevBlockHash:              block2Hash,
		ChunkHash:                  common.HexToHash("0xc3"),
		TxRoot:                     merkletrie.MerkleRoot(chunktypes.TransactionList(nil)),
		PrevStateRoot:              result2.NewRoot,
		PrevOutcomeRoot:            chunktypes.OutcomeRoot(result2.Outcomes),
		PrevGasUsed:                result2.TotalGasBurnt,
		PrevValidatorProposalsRoot: chunktypes.ValidatorProposalsRoot(result2.ValidatorProposals),
		PrevOutgoingReceiptsRoot:   outgoingReceiptsRoot(nil, layout),
		GasLimit:                   1_000_000,
		IsNewChunk:                 true,
	}

	epochID, err := epochs.GetEpochID(ctx, block2Hash)
	require.NoError(t, err)

	bus := network.NewInProcessBus()
	wb := builder.New(chain, epochs, bus)

	validatorSigner, validatorPub, err := signer.NewBLSSignerFromSeed("validator0", []byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	pre := prevalidate.New(chain, epochs)
	replayer := replay.New(rt, epochs)
	dispatcher := endorse.New(validatorSigner, bus, nil)
	sched := scheduler.New(scheduler.Config{MaxWorkers: 1}, validatorSigner, epochs, pre, replayer, dispatcher, nil, nil)

	bus.RegisterChunkValidator("validator0", func(ctx context.Context, witness *chunktypes.ChunkStateWitness) error {
		return sched.ProcessWitness(ctx, witness)
	})
	endorsements := make(chan chunktypes.ChunkEndorsement, 1)
	bus.RegisterBlockProducer("producer0", func(_ context.Context, e chunktypes.ChunkEndorsement) error {
		endorsements <- e
		return nil
	})

	err = wb.SendChunkStateWitnessToChunkValidators(ctx, epochID, header2, chunktypes.Chunk{Header: header3}, txs2)
	require.NoError(t, err)

	select {
	case e := <-endorsements:
		require.Equal(t, "validator0", e.AccountID)
		require.Equal(t, header3.ChunkHash, e.Inner.ChunkHash)
		ok, err := signer.VerifyEndorsement(validatorPub, e)
		require.NoError(t, err)
		require.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chunk endorsement")
	}
}

// TestRejectsTamperedPostStateRoot confirms a witness whose claimed post
// state root doesn't match what replay actually produces is rejected
// rather than endorsed — a single-field perturbation should be enough to
// fail validation.
func TestRejectsTamperedPostStateRoot(t *testing.T) {
	ctx := context.Background()
	layout := chunktypes.ShardLayout{Version: 1}
	shardUID := chunktypes.ShardUID{Version: 1, ShardID: 0}
	chain := chainstore.NewInMemory()
	epochs := epoch.NewInMemory(layout, map[uint64][]string{0: {"validator0"}}, "producer0")
	rt := runtime.NewTransferRuntime()

	header := chunktypes.ChunkHeader{ShardID: 0, HeightCreated: 1, GasLimit: 1_000_000, PrevStateRoot: merkletrie.EmptyRoot}
	main := chunktypes.NewChunkData{
		ChunkHeader: header,
		Shard:       chunktypes.ShardContext{ShardUID: shardUID, CaresAboutShardThisEpoch: true, ShouldApplyChunk: true},
		Layout:      layout,
		Block:       chunktypes.ApplyChunkBlockContext{BlockHash: common.HexToHash("0x01"), PrevStateRoot: merkletrie.EmptyRoot},
	}

	witness := &chunktypes.ChunkStateWitness{
		ChunkHeader: header,
		MainStateTransition: chunktypes.ChunkStateTransition{
			BlockHash:     main.Block.BlockHash,
			PostStateRoot: common.HexToHash("0xbaaaaaad"),
		},
	}

	pre := &prevalidate.Output{MainTransitionParams: main}
	replayer := replay.New(rt, epochs)
	err := replayer.Validate(ctx, witness, pre)
	require.Error(t, err)
	require.True(t, chunktypes.IsInvalidWitness(err))
}

// TestRejectsMismatchedChunkExtra confirms the final cross-check covers
// more than state root: a witness whose main
// transition replays correctly (matching post state root) but whose chunk
// header disagrees with replay on outcome root, gas used or validator
// proposals root must still be rejected.
func TestRejectsMismatchedChunkExtra(t *testing.T) {
	ctx := context.Background()
	layout := chunktypes.ShardLayout{Version: 1}
	shardUID := chunktypes.ShardUID{Version: 1, ShardID: 0}
	epochs := epoch.NewInMemory(layout, map[uint64][]string{0: {"validator0"}}, "producer0")
	rt := runtime.NewTransferRuntime()

	txs := []chunktypes.Transaction{{SignerID: "alice", ReceiverID: "bob", Amount: 10, Nonce: 0}}
	incoming := []chunktypes.Receipt{{ID: common.HexToHash("0x01"), ToShardID: 0, Receiver: "alice", Amount: 100}}
	main := chunktypes.NewChunkData{
		ChunkHeader:  chunktypes.ChunkHeader{ShardID: 0, HeightCreated: 1, GasLimit: 1_000_000, PrevStateRoot: merkletrie.EmptyRoot},
		Shard:        chunktypes.ShardContext{ShardUID: shardUID, CaresAboutShardThisEpoch: true, ShouldApplyChunk: true},
		Layout:       layout,
		Transactions: txs,
		Receipts:     incoming,
		Block:        chunktypes.ApplyChunkBlockContext{BlockHash: common.HexToHash("0x01"), PrevStateRoot: merkletrie.EmptyRoot},
	}
	result, err := rt.ApplyNewChunk(ctx, main)
	require.NoError(t, err)
	validProposalsRoot := chunktypes.ValidatorProposalsRoot(result.ValidatorProposals)
	validReceiptsRoot := outgoingReceiptsRoot(result.OutgoingReceipts, layout)

	cases := map[string]chunktypes.ChunkHeader{
		"outcome root": {
			PrevStateRoot:              result.NewRoot,
			PrevOutcomeRoot:            common.HexToHash("0xbad"),
			PrevGasUsed:                result.TotalGasBurnt,
			PrevValidatorProposalsRoot: validProposalsRoot,
			PrevOutgoingReceiptsRoot:   validReceiptsRoot,
		},
		"gas used": {
			PrevStateRoot:              result.NewRoot,
			PrevOutcomeRoot:            chunktypes.OutcomeRoot(result.Outcomes),
			PrevGasUsed:                result.TotalGasBurnt + 1,
			PrevValidatorProposalsRoot: validProposalsRoot,
			PrevOutgoingReceiptsRoot:   validReceiptsRoot,
		},
		"validator proposals root": {
			PrevStateRoot:              result.NewRoot,
			PrevOutcomeRoot:            chunktypes.OutcomeRoot(result.Outcomes),
			PrevGasUsed:                result.TotalGasBurnt,
			PrevValidatorProposalsRoot: common.HexToHash("0xbad"),
			PrevOutgoingReceiptsRoot:   validReceiptsRoot,
		},
	}

	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			witness := &chunktypes.ChunkStateWitness{
				ChunkHeader: header,
				MainStateTransition: chunktypes.ChunkStateTransition{
					BlockHash:     main.Block.BlockHash,
					PostStateRoot: result.NewRoot,
				},
			}
			pre := &prevalidate.Output{MainTransitionParams: main}
			replayer := replay.New(rt, epochs)
			err := replayer.Validate(ctx, witness, pre)
			require.Error(t, err)
			require.True(t, chunktypes.IsInvalidWitness(err))
		})
	}
}
