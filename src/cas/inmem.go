package cas

import (
	"sync"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

// InmemStorage implements ContentAddressableStorage with a map guarded by a
// read-write lock: many concurrent readers, one writer. All references to an
// InmemStorage observe the same backing map.
type InmemStorage struct {
	mtx  sync.RWMutex
	data map[core.Address]core.Content
}

// NewInmemStorage creates an empty in-memory CAS.
func NewInmemStorage() *InmemStorage {
	return &InmemStorage{
		data: make(map[core.Address]core.Content),
	}
}

// Add implements ContentAddressableStorage.
func (s *InmemStorage) Add(content core.AddressableContent) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.data[content.Address()] = content.Content()
	return nil
}

// Contains implements ContentAddressableStorage.
func (s *InmemStorage) Contains(address core.Address) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	_, ok := s.data[address]
	return ok, nil
}

// Fetch implements ContentAddressableStorage.
func (s *InmemStorage) Fetch(address core.Address) (core.Content, bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	content, ok := s.data[address]
	if !ok {
		return "", false, nil
	}
	return content, true, nil
}

// Len returns the number of stored items.
func (s *InmemStorage) Len() (int, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	if s.data == nil {
		return 0, common.NewHcError(common.ErrIO, "storage not initialized")
	}
	return len(s.data), nil
}
