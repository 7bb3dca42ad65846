package cas

import (
	"github.com/dgraph-io/badger"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

const casPrefix = "cas_"

// BadgerStorage implements ContentAddressableStorage on a Badger database.
// Badger handles its own concurrency control; a single *BadgerStorage handle
// is safe for concurrent use.
type BadgerStorage struct {
	db   *badger.DB
	path string
}

// NewBadgerStorage opens (or creates) a CAS database at path.
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, common.NewHcError(common.ErrIO, err.Error())
	}
	return &BadgerStorage{
		db:   handle,
		path: path,
	}, nil
}

// WrapBadger builds a CAS view over an already-open database, so the CAS and
// EAV stores can share one database directory.
func WrapBadger(db *badger.DB, path string) *BadgerStorage {
	return &BadgerStorage{db: db, path: path}
}

// Add implements ContentAddressableStorage.
func (s *BadgerStorage) Add(content core.AddressableContent) error {
	key := casKey(content.Address())
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(content.Content()))
	})
	if err != nil {
		return common.NewHcError(common.ErrIO, err.Error())
	}
	return nil
}

// Contains implements ContentAddressableStorage.
func (s *BadgerStorage) Contains(address core.Address) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(casKey(address))
		if err == nil {
			found = true
			return nil
		}
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return false, common.NewHcError(common.ErrIO, err.Error())
	}
	return found, nil
}

// Fetch implements ContentAddressableStorage.
func (s *BadgerStorage) Fetch(address core.Address) (core.Content, bool, error) {
	var content []byte
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(casKey(address))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		content, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", false, common.NewHcError(common.ErrIO, err.Error())
	}
	if !found {
		return "", false, nil
	}
	return core.Content(content), true, nil
}

// StorePath returns the filepath of the underlying database.
func (s *BadgerStorage) StorePath() string {
	return s.path
}

// Close closes the underlying database.
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func casKey(address core.Address) []byte {
	return append([]byte(casPrefix), []byte(address)...)
}
