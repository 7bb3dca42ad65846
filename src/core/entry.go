package core

import (
	"bytes"
	"encoding/json"
)

// Entry is the immutable unit of storage and validation: a serialized value
// plus its entry-type tag. Its content-address is the hash of its canonical
// JSON encoding.
type Entry struct {
	Value     string    `json:"value"`
	EntryType EntryType `json:"entry_type"`
}

// NewEntry builds an Entry from a type and a serialized value.
func NewEntry(entryType EntryType, value string) *Entry {
	return &Entry{
		Value:     value,
		EntryType: entryType,
	}
}

// Marshal returns the canonical JSON encoding of the Entry.
func (e *Entry) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

// Unmarshal converts a JSON encoded Entry to an Entry.
func (e *Entry) Unmarshal(data []byte) error {
	dec := json.NewDecoder(bytes.NewBuffer(data))
	return dec.Decode(e)
}

// Content implements AddressableContent.
func (e *Entry) Content() Content {
	data, err := e.Marshal()
	if err != nil {
		// Entry only holds strings; encoding cannot fail.
		panic(err)
	}
	return Content(data)
}

// Address implements AddressableContent.
func (e *Entry) Address() Address {
	return AddressOf(e.Content())
}

// EntryFromContent parses an Entry back out of its canonical serialization.
func EntryFromContent(content Content) (*Entry, error) {
	entry := &Entry{}
	if err := entry.Unmarshal([]byte(content)); err != nil {
		return nil, err
	}
	return entry, nil
}

// EntryWithHeader pairs an entry with the chain header that committed it.
// It is the unit that travels between agents during publish and gossip.
type EntryWithHeader struct {
	Entry  *Entry       `json:"entry"`
	Header *ChainHeader `json:"header"`
}
