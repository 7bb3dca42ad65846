// Package core defines the content-addressed data model shared by every
// layer of the runtime: entries, chain headers, links, provenances and the
// DNA that describes an application.
package core

import (
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/crypto"
)

// Content is the canonical serialized form of a piece of addressable data.
// It is what gets written to content-addressable storage and what gets
// hashed to produce an Address.
type Content string

// Address is the content-address of a Content: the hex-encoded SHA256 hash
// of its bytes. The empty Address stands for "none" (e.g. the genesis
// header's previous-header link).
type Address string

// NilAddress is the empty address.
const NilAddress = Address("")

// AddressOf derives the content-address of arbitrary content.
func AddressOf(content Content) Address {
	return Address(common.EncodeToString(crypto.SHA256([]byte(content))))
}

// AddressableContent is anything that can be stored in a CAS: it knows its
// canonical serialization and therefore its address.
type AddressableContent interface {
	Content() Content
	Address() Address
}

// RawContent wraps an already-serialized Content as AddressableContent.
type RawContent Content

// Content implements AddressableContent.
func (r RawContent) Content() Content {
	return Content(r)
}

// Address implements AddressableContent.
func (r RawContent) Address() Address {
	return AddressOf(Content(r))
}
