// Package cas implements content-addressable storage: values keyed by the
// hash of their canonical serialization.
package cas

import (
	"github.com/dynaput247/holochain-sub000/src/core"
)

// ContentAddressableStorage is the interface for CAS backends. Handles are
// shared freely across goroutines; implementations must synchronize
// internally so that a write through one reference is visible through every
// other reference to the same store.
type ContentAddressableStorage interface {
	// Add stores content under its address. Re-adding identical content is
	// a no-op success.
	Add(content core.AddressableContent) error
	// Contains reports whether an address is present.
	Contains(address core.Address) (bool, error)
	// Fetch returns the content stored under an address, and whether it was
	// present.
	Fetch(address core.Address) (core.Content, bool, error)
}

// FetchEntry is a convenience that fetches and parses an Entry.
func FetchEntry(storage ContentAddressableStorage, address core.Address) (*core.Entry, bool, error) {
	content, ok, err := storage.Fetch(address)
	if err != nil || !ok {
		return nil, ok, err
	}
	entry, err := core.EntryFromContent(content)
	if err != nil {
		return nil, true, err
	}
	return entry, true, nil
}
