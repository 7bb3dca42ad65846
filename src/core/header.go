package core

import (
	"bytes"
	"encoding/json"
)

// ChainHeader is the immutable metadata committed to an agent's source chain
// for one entry. Its content-address is the chain key. The first header in a
// chain has Link == NilAddress; every other header links to the address of
// the immediately preceding header.
type ChainHeader struct {
	// EntryType must equal the paired entry's type exactly.
	EntryType EntryType `json:"entry_type"`
	// EntryAddress must equal the paired entry's content-address exactly.
	EntryAddress Address `json:"entry_address"`
	// Provenances holds the signatures over the entry, author first.
	Provenances []Provenance `json:"provenances"`
	// Timestamp is an ISO8601 time stamp.
	Timestamp string `json:"timestamp"`
	// Link is the address of the previous header in the chain.
	Link Address `json:"link,omitempty"`
	// LinkSameType is the address of the previous header of the same entry
	// type, NilAddress for the first of its type.
	LinkSameType Address `json:"link_same_type,omitempty"`
	// LinkUpdateDelete points at the entry being modified by an update or
	// delete, NilAddress otherwise.
	LinkUpdateDelete Address `json:"link_update_delete,omitempty"`
}

// NewChainHeader assembles a header. Callers are expected to derive link and
// linkSameType from the current chain tip while holding the chain's append
// lock.
func NewChainHeader(
	entryType EntryType,
	entryAddress Address,
	provenances []Provenance,
	timestamp string,
	link Address,
	linkSameType Address,
	linkUpdateDelete Address,
) *ChainHeader {
	return &ChainHeader{
		EntryType:        entryType,
		EntryAddress:     entryAddress,
		Provenances:      provenances,
		Timestamp:        timestamp,
		Link:             link,
		LinkSameType:     linkSameType,
		LinkUpdateDelete: linkUpdateDelete,
	}
}

// Marshal returns the canonical JSON encoding of the header.
func (h *ChainHeader) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	if err := enc.Encode(h); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

// Unmarshal converts a JSON encoded header back.
func (h *ChainHeader) Unmarshal(data []byte) error {
	dec := json.NewDecoder(bytes.NewBuffer(data))
	return dec.Decode(h)
}

// Content implements AddressableContent.
func (h *ChainHeader) Content() Content {
	data, err := h.Marshal()
	if err != nil {
		panic(err)
	}
	return Content(data)
}

// Address implements AddressableContent. The header's address is the chain
// key under which the (header, entry) pair is retrievable.
func (h *ChainHeader) Address() Address {
	return AddressOf(h.Content())
}

// ToEntry wraps the header in a ChainHeader-typed entry so it can itself be
// published and held on the DHT.
func (h *ChainHeader) ToEntry() *Entry {
	return NewEntry(ChainHeaderEntryType, string(h.Content()))
}

// ChainHeaderFromContent parses a header out of its serialization.
func ChainHeaderFromContent(content Content) (*ChainHeader, error) {
	header := &ChainHeader{}
	if err := header.Unmarshal([]byte(content)); err != nil {
		return nil, err
	}
	return header, nil
}
