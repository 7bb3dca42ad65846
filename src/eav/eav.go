// Package eav implements the entity-attribute-value metadata store layered
// over content-addressed entries. It holds the link graph and the CRUD
// lifecycle of DHT entries as append-only triples with a monotonic index.
package eav

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/dynaput247/holochain-sub000/src/core"
)

// Attribute is the closed set of metadata relationships. Link tags extend
// the set through the "link__" namespace; everything else is fixed.
type Attribute string

const (
	// AttrCrudStatus rows carry an entry's lifecycle status.
	AttrCrudStatus Attribute = "crud-status"
	// AttrCrudLink rows point from a replaced entry to its replacement, or
	// from a deleted entry to its deletion entry.
	AttrCrudLink Attribute = "crud-link"
	// AttrEntryHeader rows point from an entry to a header that committed it.
	AttrEntryHeader Attribute = "entry-header"
	// AttrLink rows are untagged link edges.
	AttrLink Attribute = "link"
	// AttrPendingEntry rows park entries awaiting validation dependencies.
	AttrPendingEntry Attribute = "pending-entry"
)

const (
	linkTagPrefix        = "link__"
	removedLinkTagPrefix = "link_remove__"
)

// LinkTag builds the attribute for a tagged link edge.
func LinkTag(tag string) Attribute {
	return Attribute(linkTagPrefix + tag)
}

// RemovedLinkTag builds the tombstone attribute for a removed link edge.
// It lives outside the link__ namespace so a link legitimately tagged
// "removed_x" can never collide with the removal of tag "x".
func RemovedLinkTag(tag string) Attribute {
	return Attribute(removedLinkTagPrefix + tag)
}

// IsLinkTag reports whether the attribute is a tagged link edge.
func (a Attribute) IsLinkTag() bool {
	return strings.HasPrefix(string(a), linkTagPrefix)
}

// LinkTagName extracts the tag from a link attribute.
func (a Attribute) LinkTagName() (string, bool) {
	if !a.IsLinkTag() {
		return "", false
	}
	return strings.TrimPrefix(string(a), linkTagPrefix), true
}

// EntityAttributeValueIndex is one append-only metadata triple plus the
// monotonically increasing index that orders it. Rows are never mutated in
// place; history is reconstructed by reading all rows of a group in index
// order.
type EntityAttributeValueIndex struct {
	Entity    core.Address `json:"entity"`
	Attribute Attribute    `json:"attribute"`
	Value     core.Address `json:"value"`
	Index     int64        `json:"index"`
}

// NewEavi stamps a triple with the current nanosecond timestamp as index.
func NewEavi(entity core.Address, attribute Attribute, value core.Address) *EntityAttributeValueIndex {
	return NewEaviWithIndex(entity, attribute, value, time.Now().UnixNano())
}

// NewEaviWithIndex builds a triple with an explicit index; used by tests and
// by stores when resolving index collisions.
func NewEaviWithIndex(entity core.Address, attribute Attribute, value core.Address, index int64) *EntityAttributeValueIndex {
	return &EntityAttributeValueIndex{
		Entity:    entity,
		Attribute: attribute,
		Value:     value,
		Index:     index,
	}
}

// Marshal returns the canonical JSON encoding of the row.
func (e *EntityAttributeValueIndex) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return bytes.TrimRight(b.Bytes(), "\n"), nil
}

// Unmarshal converts a JSON encoded row back.
func (e *EntityAttributeValueIndex) Unmarshal(data []byte) error {
	dec := json.NewDecoder(bytes.NewBuffer(data))
	return dec.Decode(e)
}

// Content implements core.AddressableContent.
func (e *EntityAttributeValueIndex) Content() core.Content {
	data, err := e.Marshal()
	if err != nil {
		panic(err)
	}
	return core.Content(data)
}

// Address implements core.AddressableContent.
func (e *EntityAttributeValueIndex) Address() core.Address {
	return core.AddressOf(e.Content())
}

// sameGroup reports whether two rows describe the same (entity, attribute,
// value) triple regardless of index.
func (e *EntityAttributeValueIndex) sameGroup(other *EntityAttributeValueIndex) bool {
	return e.Entity == other.Entity &&
		e.Attribute == other.Attribute &&
		e.Value == other.Value
}

// IndexRange optionally constrains a fetch to an index window. A nil bound
// is open. The zero IndexRange selects "latest row per group" instead of a
// window.
type IndexRange struct {
	Start *int64
	End   *int64
}

// LatestOnly is the zero range: no window, latest row per group.
var LatestOnly = IndexRange{}

// Since returns a range open at the end.
func Since(start int64) IndexRange {
	return IndexRange{Start: &start}
}

// Between returns a fully bounded range.
func Between(start, end int64) IndexRange {
	return IndexRange{Start: &start, End: &end}
}

// isLatestOnly reports whether the range carries no constraint at all.
func (r IndexRange) isLatestOnly() bool {
	return r.Start == nil && r.End == nil
}

func (r IndexRange) contains(index int64) bool {
	if r.Start != nil && index < *r.Start {
		return false
	}
	if r.End != nil && index > *r.End {
		return false
	}
	return true
}

// EntityAttributeValueStorage is the interface for EAV backends. Fetch
// filters are independently optional; a nil filter matches everything.
type EntityAttributeValueStorage interface {
	// AddEavi appends a row, bumping its index past any collision, and
	// returns the row as stored.
	AddEavi(eavi *EntityAttributeValueIndex) (*EntityAttributeValueIndex, error)
	// FetchEavi returns matching rows sorted by index. With LatestOnly it
	// returns only the highest-index row of each distinct (entity,
	// attribute, value) group.
	FetchEavi(entity *core.Address, attribute *Attribute, value *core.Address, indexRange IndexRange) ([]*EntityAttributeValueIndex, error)
}
