package eav

import (
	"fmt"

	"github.com/dgraph-io/badger"
	"github.com/ugorji/go/codec"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

const eavPrefix = "eav_"

// BadgerEavStorage implements EntityAttributeValueStorage on a Badger
// database. Keys are the zero-padded row index under an "eav_" prefix, so a
// prefix scan yields rows in index order, and values carry the codec-encoded
// row. Indexes are globally unique which keeps collision handling to a
// single key probe.
type BadgerEavStorage struct {
	db   *badger.DB
	path string
}

// NewBadgerEavStorage opens (or creates) an EAV database at path.
func NewBadgerEavStorage(path string) (*BadgerEavStorage, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, common.NewHcError(common.ErrIO, err.Error())
	}
	return &BadgerEavStorage{
		db:   handle,
		path: path,
	}, nil
}

// WrapBadger builds an EAV view over an already-open database. Key prefixes
// keep EAV rows disjoint from CAS content in a shared database.
func WrapBadger(db *badger.DB, path string) *BadgerEavStorage {
	return &BadgerEavStorage{db: db, path: path}
}

// AddEavi implements EntityAttributeValueStorage.
func (s *BadgerEavStorage) AddEavi(eavi *EntityAttributeValueIndex) (*EntityAttributeValueIndex, error) {
	stored := *eavi
	err := s.db.Update(func(txn *badger.Txn) error {
		for {
			_, err := txn.Get(eavKey(stored.Index))
			if err == badger.ErrKeyNotFound {
				break
			}
			if err != nil {
				return err
			}
			stored.Index++
		}
		var buf []byte
		enc := codec.NewEncoderBytes(&buf, new(codec.JsonHandle))
		if err := enc.Encode(&stored); err != nil {
			return err
		}
		return txn.Set(eavKey(stored.Index), buf)
	})
	if err != nil {
		return nil, common.NewHcError(common.ErrIO, err.Error())
	}
	res := stored
	return &res, nil
}

// FetchEavi implements EntityAttributeValueStorage.
func (s *BadgerEavStorage) FetchEavi(entity *core.Address, attribute *Attribute, value *core.Address, indexRange IndexRange) ([]*EntityAttributeValueIndex, error) {
	all := []*EntityAttributeValueIndex{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(eavPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			buf, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			row := new(EntityAttributeValueIndex)
			dec := codec.NewDecoderBytes(buf, new(codec.JsonHandle))
			if err := dec.Decode(row); err != nil {
				return err
			}
			all = append(all, row)
		}
		return nil
	})
	if err != nil {
		return nil, common.NewHcError(common.ErrIO, err.Error())
	}
	return selectRows(all, entity, attribute, value, indexRange), nil
}

// StorePath returns the filepath of the underlying database.
func (s *BadgerEavStorage) StorePath() string {
	return s.path
}

// Close closes the underlying database.
func (s *BadgerEavStorage) Close() error {
	return s.db.Close()
}

// eavKey pads the index to fixed width so lexicographic key order matches
// numeric index order. Indexes are nanosecond timestamps and stay positive.
func eavKey(index int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", eavPrefix, index))
}
