// Package ribosome executes zome code inside a WASM sandbox. Host and
// guest exchange values through one page of linear memory managed as a
// bump stack, passing a single encoded (offset,length) integer across the
// call boundary.
package ribosome

import (
	"github.com/dynaput247/holochain-sub000/src/common"
)

// WasmPageSize is the size of one WASM linear memory page.
const WasmPageSize = 1 << 16

// Allocation locates a value inside the exchange page. Offset and length
// both fit in 16 bits because the protocol never leaves the first page.
type Allocation struct {
	Offset uint16
	Length uint16
}

// Encode packs the allocation into the single integer passed over the ABI:
// offset in the high 16 bits, length in the low 16.
func (a Allocation) Encode() int32 {
	return int32(uint32(a.Offset)<<16 | uint32(a.Length))
}

// DecodeAllocation unpacks an ABI integer.
func DecodeAllocation(encoded int32) Allocation {
	u := uint32(encoded)
	return Allocation{
		Offset: uint16(u >> 16),
		Length: uint16(u),
	}
}

// SinglePageManager tracks a high-water stack offset inside the exchange
// page. Allocations are never freed individually; Reset drops the whole
// stack between top-level calls.
type SinglePageManager struct {
	memory func() []byte
	stack  uint32
}

// NewSinglePageManager builds a manager over a memory accessor. The
// accessor is a function because the backing slice moves if the guest
// grows its memory.
func NewSinglePageManager(memory func() []byte) *SinglePageManager {
	return &SinglePageManager{memory: memory}
}

// Write copies data into the page at the current stack offset and returns
// its allocation. Writes that would cross the page bound are rejected.
func (m *SinglePageManager) Write(data []byte) (Allocation, error) {
	if len(data) == 0 {
		return Allocation{}, common.NewHcError(common.ErrRibosomeFailed, "zero length allocation")
	}
	if m.stack+uint32(len(data)) > WasmPageSize {
		return Allocation{}, common.NewHcErrorf(common.ErrRibosomeFailed,
			"allocation of %d bytes at offset %d exceeds the page bound", len(data), m.stack)
	}
	mem := m.memory()
	if len(mem) < int(m.stack)+len(data) {
		return Allocation{}, common.NewHcError(common.ErrRibosomeFailed, "guest memory smaller than one page")
	}
	copy(mem[m.stack:], data)
	alloc := Allocation{Offset: uint16(m.stack), Length: uint16(len(data))}
	m.stack += uint32(len(data))
	return alloc, nil
}

// WriteString writes a string value for the guest.
func (m *SinglePageManager) WriteString(s string) (Allocation, error) {
	return m.Write([]byte(s))
}

// Read copies the allocated bytes back out of the page.
func (m *SinglePageManager) Read(alloc Allocation) ([]byte, error) {
	end := uint32(alloc.Offset) + uint32(alloc.Length)
	if end > WasmPageSize {
		return nil, common.NewHcError(common.ErrRibosomeFailed, "allocation exceeds the page bound")
	}
	mem := m.memory()
	if len(mem) < int(end) {
		return nil, common.NewHcError(common.ErrRibosomeFailed, "allocation outside guest memory")
	}
	out := make([]byte, alloc.Length)
	copy(out, mem[alloc.Offset:end])
	return out, nil
}

// ReadString reads an allocation as a string.
func (m *SinglePageManager) ReadString(alloc Allocation) (string, error) {
	b, err := m.Read(alloc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Reset drops every allocation. Called between top-level calls.
func (m *SinglePageManager) Reset() {
	m.stack = 0
}
