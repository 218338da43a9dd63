// Copyright 2025 Certen Protocol
//
// network declares the NetworkSender capability the witness builder and
// endorsement dispatcher use to reach other validators, plus an in-process
// fan-out reference implementation. A networked implementation would
// broadcast to peers over HTTP, keeping the same "broadcast to named
// peers, collect best-effort" shape; this reference dispatches in-process
// instead, which is all a single-node core needs to be useful in tests
// and in the standalone demo chain.

package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/chunkvalidator/internal/chunktypes"
)

// NetworkSender is the chunk validation core's only outbound network
// surface: sending a witness to the shard's chunk validators, and sending
// an endorsement back to the block producer.
type NetworkSender interface {
	SendChunkStateWitness(ctx context.Context, validatorAccountIDs []string, witness *chunktypes.ChunkStateWitness) error
	SendChunkEndorsement(ctx context.Context, producerAccountID string, endorsement chunktypes.ChunkEndorsement) error
}

// WitnessHandler is what a chunk validator node registers to receive
// inbound witnesses; EndorsementHandler is what a block producer node
// registers to receive inbound endorsements.
type WitnessHandler func(ctx context.Context, witness *chunktypes.ChunkStateWitness) error
type EndorsementHandler func(ctx context.Context, endorsement chunktypes.ChunkEndorsement) error

// InProcessBus is a NetworkSender backed by direct handler registration,
// addressed by account id. It models a validator set running in one
// process — every node's inbox is just a function call away — which is
// sufficient for the reference runtime, the demo chain and tests; a real
// deployment replaces this with an implementation that serializes onto the
// host chain's p2p network.
type InProcessBus struct {
	mu                  sync.RWMutex
	witnessHandlers     map[string]WitnessHandler
	endorsementHandlers map[string]EndorsementHandler
}

// NewInProcessBus returns an empty bus with no registered nodes.
func NewInProcessBus() *InProcessBus {
	return &InProcessBus{
		witnessHandlers:     make(map[string]WitnessHandler),
		endorsementHandlers: make(map[string]EndorsementHandler),
	}
}

// RegisterChunkValidator wires accountID's inbound-witness handler — the
// scheduler's ProcessWitness entry point, in practice.
func (b *InProcessBus) RegisterChunkValidator(accountID string, handler WitnessHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.witnessHandlers[accountID] = handler
}

// RegisterBlockProducer wires accountID's inbound-endorsement handler.
func (b *InProcessBus) RegisterBlockProducer(accountID string, handler EndorsementHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endorsementHandlers[accountID] = handler
}

func (b *InProcessBus) SendChunkStateWitness(ctx context.Context, validatorAccountIDs []string, witness *chunktypes.ChunkStateWitness) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var errs []error
	for _, id := range validatorAccountIDs {
		handler, ok := b.witnessHandlers[id]
		if !ok {
			errs = append(errs, fmt.Errorf("network: no registered chunk validator %q", id))
			continue
		}
		if err := handler(ctx, witness); err != nil {
			errs = append(errs, fmt.Errorf("network: deliver witness to %q: %w", id, err))
		}
	}
	return joinErrors(errs)
}

func (b *InProcessBus) SendChunkEndorsement(ctx context.Context, producerAccountID string, endorsement chunktypes.ChunkEndorsement) error {
	b.mu.RLock()
	handler, ok := b.endorsementHandlers[producerAccountID]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("network: no registered block producer %q", producerAccountID)
	}
	return handler(ctx, endorsement)
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
