// Copyright 2025 Certen Protocol

package runtime

import "github.com/ethereum/go-ethereum/trie"

// trieAdapter narrows *trie.Trie to the Get/Update pair the balance model
// uses, keeping the rest of this package's go-ethereum/trie imports to one
// file.
type trieAdapter struct {
	inner *trie.Trie
}

func (a *trieAdapter) Get(key []byte) ([]byte, error) {
	return a.inner.Get(key)
}

func (a *trieAdapter) Update(key, value []byte) error {
	return a.inner.Update(key, value)
}
