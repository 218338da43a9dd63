// Copyright 2025 Certen Protocol
//
// scheduler is the entry point a network handler calls when a chunk state
// witness arrives: it performs the cheap validator/committee gate and the
// synchronous pre-validation inline, then offloads the CPU-heavy replay to
// a bounded worker pool so a burst of witnesses never blocks the network
// thread or starves other shards' work. Grounded on
// ChunkValidator::start_validating_chunk, which does the same gate-then-
// rayon::spawn split — this core swaps rayon's data-parallel thread pool
// for a work-stealing goroutine pool, since Go's model is cooperative
// goroutines, not a fork-join runtime.

package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/JekaMas/workerpool"
	"github.com/google/uuid"

	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/internal/endorse"
	"github.com/certen/chunkvalidator/internal/epoch"
	"github.com/certen/chunkvalidator/internal/metrics"
	"github.com/certen/chunkvalidator/internal/prevalidate"
	"github.com/certen/chunkvalidator/internal/replay"
	"github.com/certen/chunkvalidator/internal/signer"
)

// Scheduler gates inbound witnesses and offloads validated-as-plausible
// ones onto a bounded CPU worker pool.
type Scheduler struct {
	signer     signer.Signer // nil if this node isn't a validator
	epochs     epoch.EpochManager
	pre        *prevalidate.PreValidator
	replayer   *replay.Replayer
	dispatcher *endorse.Dispatcher
	pool       *workerpool.WorkerPool
	logger     *log.Logger
	metrics    *metrics.Collectors
}

// Config controls the worker pool's size. A size of 0 defaults to 4, the
// teacher's typical bounded-concurrency default elsewhere in its config
// package.
type Config struct {
	MaxWorkers int
}

// New builds a scheduler. s may be nil for a node with no validator signer
// configured; ProcessWitness will then always return ErrNotAValidator.
// collectors may be nil, in which case metrics are not recorded.
func New(cfg Config, s signer.Signer, epochs epoch.EpochManager, pre *prevalidate.PreValidator, replayer *replay.Replayer, dispatcher *endorse.Dispatcher, collectors *metrics.Collectors, logger *log.Logger) *Scheduler {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		signer:     s,
		epochs:     epochs,
		pre:        pre,
		replayer:   replayer,
		dispatcher: dispatcher,
		pool:       workerpool.New(maxWorkers),
		logger:     logger,
		metrics:    collectors,
	}
}

// Stop drains the worker pool, waiting for in-flight replays to finish.
func (s *Scheduler) Stop() {
	s.pool.StopWait()
}

// ProcessWitness is the network handler's entry point. It gates
// synchronously (no signer configured, or not on this chunk's committee),
// returns nil without doing anything for an epoch below
// MinProtocolVersionForChunkValidation, and pre-validates synchronously:
// cheap checks happen on the calling
// goroutine so a bad witness is rejected immediately, and only plausible
// witnesses reach the pool.
func (s *Scheduler) ProcessWitness(ctx context.Context, witness *chunktypes.ChunkStateWitness) error {
	if s.signer == nil {
		return chunktypes.ErrNotAValidator
	}

	epochID, err := s.epochs.GetEpochIDFromPrevBlock(ctx, witness.ChunkHeader.PrevBlockHash)
	if err != nil {
		return err
	}
	version, err := s.epochs.GetProtocolVersion(ctx, epochID)
	if err != nil {
		return err
	}
	if version < epoch.MinProtocolVersionForChunkValidation {
		return nil
	}
	isValidator, err := epoch.IsChunkValidator(ctx, s.epochs, epochID, witness.ChunkHeader.ShardID, witness.ChunkHeader.HeightCreated, s.signer.AccountID())
	if err != nil {
		return err
	}
	if !isValidator {
		return chunktypes.ErrNotAChunkValidator
	}

	preOutput, err := s.pre.PreValidate(ctx, witness)
	if err != nil {
		return err
	}

	blockProducer, err := s.epochs.GetBlockProducer(ctx, epochID, witness.ChunkHeader.HeightCreated)
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.WitnessesProcessed.Inc()
	}

	chunkHash := witness.ChunkHeader.ChunkHash
	taskID := uuid.New()
	s.logger.Printf("scheduler: submitting replay task %s for chunk %s", taskID, chunkHash)
	s.pool.Submit(func() {
		start := time.Now()
		err := s.replayer.Validate(ctx, witness, preOutput)
		if s.metrics != nil {
			s.metrics.ReplayDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			s.logger.Printf("scheduler: replay task %s rejected chunk %s: %v", taskID, chunkHash, err)
			s.dispatcher.LogRejection(chunkHash, err)
			if s.metrics != nil {
				s.metrics.WitnessesRejected.WithLabelValues(rejectionReason(err)).Inc()
			}
			return
		}
		if err := s.dispatcher.Endorse(ctx, blockProducer, chunkHash); err != nil {
			s.dispatcher.LogRejection(chunkHash, err)
			return
		}
		s.logger.Printf("scheduler: replay task %s endorsed chunk %s", taskID, chunkHash)
		if s.metrics != nil {
			s.metrics.EndorsementsSent.Inc()
		}
	})
	return nil
}

func rejectionReason(err error) string {
	if chunktypes.IsInvalidWitness(err) {
		return "invalid_witness"
	}
	return "replay_error"
}
