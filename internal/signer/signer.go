// Copyright 2025 Certen Protocol
//
// signer declares the Signer capability the endorsement dispatcher uses to
// produce a validator's signature over a chunk endorsement, backed by the
// BLS12-381 implementation in pkg/crypto/bls — the same library the
// teacher's attestation service signs validator attestations with, now
// carrying its own domain-separation tag for chunk endorsements.

package signer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/certen/chunkvalidator/internal/chunktypes"
	"github.com/certen/chunkvalidator/pkg/crypto/bls"
)

// Signer produces a validator's signature over a chunk endorsement. A node
// without a configured signer (an observer, or a non-validator) should not
// be constructed with one at all; callers check for ErrNotAValidator at the
// scheduler layer instead of probing this interface for nil-ness.
type Signer interface {
	AccountID() string
	SignEndorsement(inner chunktypes.ChunkEndorsementInner) (chunktypes.ChunkEndorsement, error)
}

// BLSSigner is the reference Signer implementation: a validator account id
// bound to a BLS12-381 private key.
type BLSSigner struct {
	accountID string
	key       *bls.PrivateKey
}

// NewBLSSigner wraps an existing BLS key pair for accountID.
func NewBLSSigner(accountID string, key *bls.PrivateKey) *BLSSigner {
	return &BLSSigner{accountID: accountID, key: key}
}

// NewBLSSignerFromSeed deterministically derives a key pair from seed — used
// by tests and by the standalone demo chain to stand up a fixed validator
// set without persisting key material.
func NewBLSSignerFromSeed(accountID string, seed []byte) (*BLSSigner, *bls.PublicKey, error) {
	sk, pk, err := bls.GenerateKeyPairFromSeed(seed)
	if err != nil {
		return nil, nil, fmt.Errorf("signer: derive key for %s: %w", accountID, err)
	}
	return &BLSSigner{accountID: accountID, key: sk}, pk, nil
}

func (s *BLSSigner) AccountID() string { return s.accountID }

func (s *BLSSigner) SignEndorsement(inner chunktypes.ChunkEndorsementInner) (chunktypes.ChunkEndorsement, error) {
	msg, err := endorsementMessage(inner)
	if err != nil {
		return chunktypes.ChunkEndorsement{}, err
	}
	sig := s.key.SignWithDomain(msg, bls.DomainChunkEndorsement)
	return chunktypes.ChunkEndorsement{
		AccountID: s.accountID,
		Signature: sig.Bytes(),
		Inner:     inner,
	}, nil
}

// VerifyEndorsement checks that endorsement.Signature is a valid
// DomainChunkEndorsement signature by pk over endorsement.Inner.
func VerifyEndorsement(pk *bls.PublicKey, endorsement chunktypes.ChunkEndorsement) (bool, error) {
	msg, err := endorsementMessage(endorsement.Inner)
	if err != nil {
		return false, err
	}
	sig, err := bls.SignatureFromBytes(endorsement.Signature)
	if err != nil {
		return false, fmt.Errorf("signer: decode endorsement signature: %w", err)
	}
	return pk.VerifyWithDomain(sig, msg, bls.DomainChunkEndorsement), nil
}

func endorsementMessage(inner chunktypes.ChunkEndorsementInner) ([]byte, error) {
	enc, err := rlp.EncodeToBytes(&inner)
	if err != nil {
		return nil, fmt.Errorf("signer: encode endorsement inner: %w", err)
	}
	return enc, nil
}

// chunkHashMessage wraps a bare chunk hash in the inner struct that
// SignEndorsement signs. Nothing in this package calls it.
func chunkHashMessage(chunkHash common.Hash) chunktypes.ChunkEndorsementInner {
	return chunktypes.ChunkEndorsementInner{ChunkHash: chunkHash}
}
