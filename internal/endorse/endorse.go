// Copyright 2025 Certen Protocol
//
// endorse is the chunk validator's last step once replay succeeds: sign a
// ChunkEndorsement and send it to the chunk's block producer. On
// failure, a validator logs and drops — a rejected chunk makes no
// network call at all, rather than sending a structured rejection.

package endorse

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"

	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/internal/network"
	"github.com/certen/chunkvalidator/internal/signer"
)

// Dispatcher signs and sends chunk endorsements.
type Dispatcher struct {
	signer  signer.Signer
	network network.NetworkSender
	logger  *log.Logger
}

// New returns a dispatcher bound to a validator's signer and network
// sender. logger may be nil, in which case log.Default() is used.
func New(s signer.Signer, sender network.NetworkSender, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{signer: s, network: sender, logger: logger}
}

// Endorse signs chunkHash and sends the resulting endorsement to
// producerAccountID. Send failures are returned, not swallowed: unlike a
// replay rejection, a delivery failure is this node's own problem and
// callers may want to retry.
func (d *Dispatcher) Endorse(ctx context.Context, producerAccountID string, chunkHash common.Hash) error {
	inner := chunktypes.ChunkEndorsementInner{ChunkHash: chunkHash}
	endorsement, err := d.signer.SignEndorsement(inner)
	if err != nil {
		return fmt.Errorf("endorse: sign: %w", err)
	}
	d.logger.Printf("chunk validated successfully, sending endorsement chunk=%s producer=%s", chunkHash, producerAccountID)
	if err := d.network.SendChunkEndorsement(ctx, producerAccountID, endorsement); err != nil {
		return fmt.Errorf("endorse: send to %s: %w", producerAccountID, err)
	}
	return nil
}

// LogRejection records a chunk's validation failure. This is the only
// thing that happens when validation fails: no endorsement, no network
// call, no retry.
func (d *Dispatcher) LogRejection(chunkHash common.Hash, err error) {
	d.logger.Printf("failed to validate chunk %s: %v", chunkHash, err)
}
