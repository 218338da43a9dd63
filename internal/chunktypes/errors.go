// Copyright 2025 Certen Protocol

package chunktypes

import (
	"errors"
	"fmt"
)

// Sentinel errors for the chunk validation core. Each maps to one of the
// error kinds in the chunk validation design: a node either isn't a
// validator at all, isn't in the committee for this specific chunk, is
// missing a piece of recorded state it needs to replay, or hit a plain
// chain-access failure reading its collaborators.
var (
	ErrNotAValidator      = errors.New("node has no validator signer configured")
	ErrNotAChunkValidator = errors.New("node is not in the chunk validator committee for this chunk")
	ErrMissingStateProof  = errors.New("missing recorded state transition data")
	ErrChainAccess        = errors.New("chain store or epoch manager access failed")
)

// InvalidWitnessError reports a structural or cryptographic mismatch found
// while pre-validating or replaying a chunk state witness. The Reason
// identifies which check failed, matching one of the diagnostics a reviewer
// would want in a rejected-chunk log line.
type InvalidWitnessError struct {
	Reason string
}

func (e *InvalidWitnessError) Error() string {
	return fmt.Sprintf("invalid chunk state witness: %s", e.Reason)
}

// InvalidWitness constructs an InvalidWitnessError with a formatted reason.
func InvalidWitness(format string, args ...interface{}) error {
	return &InvalidWitnessError{Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidWitness reports whether err is (or wraps) an InvalidWitnessError.
func IsInvalidWitness(err error) bool {
	var iw *InvalidWitnessError
	return errors.As(err, &iw)
}
