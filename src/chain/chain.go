// Package chain implements an agent's local source chain: an append-only,
// signed sequence of (header, entry) pairs rooted in content-addressed
// storage. All reads reconstruct the chain by walking header links from the
// tip, so the chain needs no storage of its own beyond the CAS and the tip
// address.
package chain

import (
	"sync"
	"time"

	"github.com/dynaput247/holochain-sub000/src/cas"
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

// SourceChain appends entries for a single agent. Pushes are serialized by
// an internal lock so the previous-header links are always derived from a
// consistent tip.
type SourceChain struct {
	mtx     sync.Mutex
	storage cas.ContentAddressableStorage
	top     core.Address
}

// NewSourceChain starts an empty chain over the given storage.
func NewSourceChain(storage cas.ContentAddressableStorage) *SourceChain {
	return &SourceChain{
		storage: storage,
		top:     core.NilAddress,
	}
}

// LoadSourceChain resumes a chain whose tip header is already in storage.
func LoadSourceChain(storage cas.ContentAddressableStorage, top core.Address) (*SourceChain, error) {
	if top != core.NilAddress {
		found, err := storage.Contains(top)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, common.NewHcErrorf(common.ErrIO, "chain tip %s not in storage", top)
		}
	}
	return &SourceChain{storage: storage, top: top}, nil
}

// Top returns the address of the newest header, NilAddress for an empty
// chain.
func (c *SourceChain) Top() core.Address {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.top
}

// PushEntry appends an entry, building and storing a header that links to
// the current tip and to the previous header of the same type.
// linkUpdateDelete points at the entry an update or deletion modifies and is
// NilAddress for plain commits. Returns the new header.
func (c *SourceChain) PushEntry(entry *core.Entry, provenances []core.Provenance, linkUpdateDelete core.Address) (*core.ChainHeader, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	sameType, err := c.topOfTypeLocked(entry.EntryType)
	if err != nil {
		return nil, err
	}
	linkSameType := core.NilAddress
	if sameType != nil {
		linkSameType = sameType.Address()
	}

	header := core.NewChainHeader(
		entry.EntryType,
		entry.Address(),
		provenances,
		time.Now().UTC().Format(time.RFC3339),
		c.top,
		linkSameType,
		linkUpdateDelete,
	)

	if err := c.storage.Add(entry); err != nil {
		return nil, err
	}
	if err := c.storage.Add(header); err != nil {
		return nil, err
	}
	c.top = header.Address()
	return header, nil
}

// TopHeader returns the newest header, or nil for an empty chain.
func (c *SourceChain) TopHeader() (*core.ChainHeader, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.top == core.NilAddress {
		return nil, nil
	}
	return c.headerAt(c.top)
}

// TopHeaderOfType returns the newest header whose entry has the given type,
// or nil if the chain holds none.
func (c *SourceChain) TopHeaderOfType(entryType core.EntryType) (*core.ChainHeader, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.topOfTypeLocked(entryType)
}

func (c *SourceChain) topOfTypeLocked(entryType core.EntryType) (*core.ChainHeader, error) {
	at := c.top
	for at != core.NilAddress {
		header, err := c.headerAt(at)
		if err != nil {
			return nil, err
		}
		if header.EntryType == entryType {
			return header, nil
		}
		at = header.Link
	}
	return nil, nil
}

// Headers walks the whole chain newest-first.
func (c *SourceChain) Headers() ([]*core.ChainHeader, error) {
	c.mtx.Lock()
	at := c.top
	c.mtx.Unlock()

	headers := []*core.ChainHeader{}
	for at != core.NilAddress {
		header, err := c.headerAt(at)
		if err != nil {
			return nil, err
		}
		headers = append(headers, header)
		at = header.Link
	}
	return headers, nil
}

// HeadersOfType walks only the headers of one entry type newest-first, using
// the same-type links so unrelated headers are never touched.
func (c *SourceChain) HeadersOfType(entryType core.EntryType) ([]*core.ChainHeader, error) {
	top, err := c.TopHeaderOfType(entryType)
	if err != nil {
		return nil, err
	}

	headers := []*core.ChainHeader{}
	for top != nil {
		headers = append(headers, top)
		if top.LinkSameType == core.NilAddress {
			break
		}
		top, err = c.headerAt(top.LinkSameType)
		if err != nil {
			return nil, err
		}
	}
	return headers, nil
}

// EntriesOfType returns the entries of one type newest-first.
func (c *SourceChain) EntriesOfType(entryType core.EntryType) ([]*core.Entry, error) {
	headers, err := c.HeadersOfType(entryType)
	if err != nil {
		return nil, err
	}
	entries := make([]*core.Entry, 0, len(headers))
	for _, header := range headers {
		entry, err := c.entryAt(header.EntryAddress)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Entry fetches the entry committed under the given header.
func (c *SourceChain) Entry(header *core.ChainHeader) (*core.Entry, error) {
	return c.entryAt(header.EntryAddress)
}

// Validate walks the full chain and checks its structural integrity: the
// genesis records open the chain with exactly one dna entry followed by
// exactly one agent entry, each header's entry is present and its address
// matches, link types agree, and every provenance signature verifies over
// the entry content.
func (c *SourceChain) Validate() error {
	headers, err := c.Headers()
	if err != nil {
		return err
	}
	if n := len(headers); n > 0 {
		if headers[n-1].EntryType != core.DnaEntryType {
			return common.NewHcError(common.ErrValidationFailed,
				"chain does not open with a dna entry")
		}
		if n < 2 || headers[n-2].EntryType != core.AgentIDEntryType {
			return common.NewHcError(common.ErrValidationFailed,
				"chain does not record its agent after the dna entry")
		}
		for _, header := range headers[:n-2] {
			if header.EntryType == core.DnaEntryType || header.EntryType == core.AgentIDEntryType {
				return common.NewHcErrorf(common.ErrValidationFailed,
					"chain header %s: duplicate genesis entry of type %s", header.Address(), header.EntryType)
			}
		}
	}
	for _, header := range headers {
		entry, err := c.entryAt(header.EntryAddress)
		if err != nil {
			return common.NewHcErrorf(common.ErrValidationFailed,
				"chain header %s: missing entry: %v", header.Address(), err)
		}
		if entry.Address() != header.EntryAddress {
			return common.NewHcErrorf(common.ErrValidationFailed,
				"chain header %s: entry address mismatch", header.Address())
		}
		if entry.EntryType != header.EntryType {
			return common.NewHcErrorf(common.ErrValidationFailed,
				"chain header %s: entry type mismatch", header.Address())
		}
		for _, prov := range header.Provenances {
			if !prov.Verify([]byte(entry.Content())) {
				return common.NewHcErrorf(common.ErrValidationFailed,
					"chain header %s: bad signature from %s", header.Address(), prov.Source)
			}
		}
	}
	return nil
}

// Len counts the headers in the chain.
func (c *SourceChain) Len() (int, error) {
	headers, err := c.Headers()
	if err != nil {
		return 0, err
	}
	return len(headers), nil
}

func (c *SourceChain) headerAt(address core.Address) (*core.ChainHeader, error) {
	content, found, err := c.storage.Fetch(address)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.NewHcErrorf(common.ErrIO, "chain header %s not in storage", address)
	}
	return core.ChainHeaderFromContent(content)
}

func (c *SourceChain) entryAt(address core.Address) (*core.Entry, error) {
	content, found, err := c.storage.Fetch(address)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.NewHcErrorf(common.ErrIO, "chain entry %s not in storage", address)
	}
	return core.EntryFromContent(content)
}
