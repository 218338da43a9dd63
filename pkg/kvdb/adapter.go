// Copyright 2025 Certen Protocol
//
// kvdb wraps cometbft-db's dbm.DB behind a plain byte-key/byte-value Get/Set
// pair, the narrow surface every durable store in this codebase actually
// needs from the underlying database.

package kvdb

import (
	dbm "github.com/cometbft/cometbft-db"
)

// KVAdapter wraps a CometBFT dbm.DB down to Get/Set. A nil db makes every
// call a no-op, so a store can be constructed without persistence wired up
// yet (tests, the standalone demo chain before its data dir is configured).
type KVAdapter struct {
	db dbm.DB
}

// NewKVAdapter wraps db.
func NewKVAdapter(db dbm.DB) *KVAdapter {
	return &KVAdapter{db: db}
}

// Get returns the value stored at key, or nil if nothing is stored there.
func (a *KVAdapter) Get(key []byte) ([]byte, error) {
	if a.db == nil {
		return nil, nil
	}
	v, err := a.db.Get(key)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Set durably writes value at key, overwriting whatever was there.
func (a *KVAdapter) Set(key, value []byte) error {
	if a.db == nil {
		return nil
	}
	return a.db.SetSync(key, value)
}