// Copyright 2025 Certen Protocol
//
// runtime declares the Runtime capability that actually executes a chunk's
// transactions and receipts against a shard's state. A real execution
// engine (contracts, gas metering, full account model) belongs to the
// host chain, not to this validation core; what's here is a reference
// implementation, a plain money-transfer scenario (accounts split by the
// account3/5/7 boundaries) sufficient to exercise every ApplyNewChunk /
// ApplyOldChunk code path the validation core actually touches.

package runtime

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/internal/merkletrie"
)

// Runtime is the state-transition capability the replayer and the witness
// builder's producer-side counterpart both call into. This core never
// executes anything itself outside of this interface.
type Runtime interface {
	ApplyNewChunk(ctx context.Context, data chunktypes.NewChunkData) (*chunktypes.ApplyChunkResult, error)
	ApplyOldChunk(ctx context.Context, data chunktypes.OldChunkData) (*chunktypes.ApplyChunkResult, error)
}

// TransferRuntime is a reference Runtime backed by a go-ethereum trie of
// account balances. It is deliberately small: transactions move value from
// SignerID to ReceiverID, crossing shards via outgoing receipts when the
// receiver lives elsewhere, the standard cross-shard receipt relay
// pattern, without needing any contract execution model.
type TransferRuntime struct{}

// NewTransferRuntime returns the reference balance-transfer runtime.
func NewTransferRuntime() *TransferRuntime { return &TransferRuntime{} }

func accountKey(accountID string) []byte {
	return crypto.Keccak256([]byte(accountID))
}

func getBalance(t *trieHandle, accountID string) (*big.Int, error) {
	enc, err := t.trie.Get(accountKey(accountID))
	if err != nil {
		return nil, fmt.Errorf("runtime: read balance for %s: %w", accountID, err)
	}
	if enc == nil {
		return big.NewInt(0), nil
	}
	var balance big.Int
	if err := rlp.DecodeBytes(enc, &balance); err != nil {
		return nil, fmt.Errorf("runtime: decode balance for %s: %w", accountID, err)
	}
	return &balance, nil
}

func putBalance(t *trieHandle, accountID string, balance *big.Int) error {
	enc, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return fmt.Errorf("runtime: encode balance for %s: %w", accountID, err)
	}
	if err := t.trie.Update(accountKey(accountID), enc); err != nil {
		return fmt.Errorf("runtime: write balance for %s: %w", accountID, err)
	}
	return nil
}

type trieHandle struct {
	trie    *trieAdapter
	storage *merkletrie.RecordedStorage
}

func openBalances(root common.Hash, ctx chunktypes.StorageContext) (*trieHandle, error) {
	storage := merkletrie.NewRecordedStorage(ctx.Nodes)
	t, err := merkletrie.OpenTrie(root, storage)
	if err != nil {
		return nil, err
	}
	return &trieHandle{trie: &trieAdapter{t}, storage: storage}, nil
}

func (r *TransferRuntime) ApplyNewChunk(_ context.Context, data chunktypes.NewChunkData) (*chunktypes.ApplyChunkResult, error) {
	if data.StorageContext.RecordStorage {
		return nil, fmt.Errorf("runtime: record_storage must be false during replay")
	}
	handle, err := openBalances(data.Block.PrevStateRoot, data.StorageContext)
	if err != nil {
		return nil, err
	}

	var (
		outcomes          []chunktypes.ExecutionOutcome
		outgoingReceipts  []chunktypes.Receipt
		totalGas          uint64
		totalBalanceBurnt = new(big.Int)
	)

	applyReceipt := func(recv chunktypes.Receipt) error {
		balance, err := getBalance(handle, recv.Receiver)
		if err != nil {
			return err
		}
		balance.Add(balance, new(big.Int).SetUint64(recv.Amount))
		return putBalance(handle, recv.Receiver, balance)
	}
	for _, recv := range data.Receipts {
		if err := applyReceipt(recv); err != nil {
			return nil, err
		}
	}

	const gasPerTransfer = 1_000
	for _, tx := range data.Transactions {
		status := uint8(1)
		signerBalance, err := getBalance(handle, tx.SignerID)
		if err != nil {
			return nil, err
		}
		amount := new(big.Int).SetUint64(tx.Amount)
		if signerBalance.Cmp(amount) < 0 {
			status = 0
		} else {
			signerBalance.Sub(signerBalance, amount)
			if err := putBalance(handle, tx.SignerID, signerBalance); err != nil {
				return nil, err
			}
			receiverShard := data.Layout.ShardIDFor(tx.ReceiverID)
			if receiverShard == data.ChunkHeader.ShardID {
				receiverBalance, err := getBalance(handle, tx.ReceiverID)
				if err != nil {
					return nil, err
				}
				receiverBalance.Add(receiverBalance, amount)
				if err := putBalance(handle, tx.ReceiverID, receiverBalance); err != nil {
					return nil, err
				}
			} else {
				outgoingReceipts = append(outgoingReceipts, chunktypes.Receipt{
					ID:          tx.Hash(),
					FromShardID: data.ChunkHeader.ShardID,
					ToShardID:   receiverShard,
					Receiver:    tx.ReceiverID,
					Amount:      tx.Amount,
				})
			}
		}
		totalGas += gasPerTransfer
		outcomes = append(outcomes, chunktypes.ExecutionOutcome{ID: tx.Hash(), Status: status, GasBurnt: gasPerTransfer})
	}

	newRoot, nodes, err := merkletrie.Commit(handle.trie.inner)
	if err != nil {
		return nil, err
	}

	return &chunktypes.ApplyChunkResult{
		NewRoot:           newRoot,
		Nodes:             nodes,
		Outcomes:          outcomes,
		OutgoingReceipts:  outgoingReceipts,
		TotalGasBurnt:     totalGas,
		TotalBalanceBurnt: totalBalanceBurnt,
	}, nil
}

func (r *TransferRuntime) ApplyOldChunk(_ context.Context, data chunktypes.OldChunkData) (*chunktypes.ApplyChunkResult, error) {
	if data.StorageContext.RecordStorage {
		return nil, fmt.Errorf("runtime: record_storage must be false during replay")
	}
	handle, err := openBalances(data.PrevChunkExtra.StateRoot, data.StorageContext)
	if err != nil {
		return nil, err
	}

	for _, recv := range data.Receipts {
		balance, err := getBalance(handle, recv.Receiver)
		if err != nil {
			return nil, err
		}
		balance.Add(balance, new(big.Int).SetUint64(recv.Amount))
		if err := putBalance(handle, recv.Receiver, balance); err != nil {
			return nil, err
		}
	}

	newRoot, nodes, err := merkletrie.Commit(handle.trie.inner)
	if err != nil {
		return nil, err
	}

	return &chunktypes.ApplyChunkResult{
		NewRoot:           newRoot,
		Nodes:             nodes,
		Outcomes:          nil,
		OutgoingReceipts:  nil,
		TotalGasBurnt:     0,
		TotalBalanceBurnt: new(big.Int),
	}, nil
}
