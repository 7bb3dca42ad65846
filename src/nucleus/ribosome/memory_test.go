package ribosome

import (
	"bytes"
	"testing"

	"github.com/dynaput247/holochain-sub000/src/common"
)

func pageManager() (*SinglePageManager, []byte) {
	mem := make([]byte, WasmPageSize)
	return NewSinglePageManager(func() []byte { return mem }), mem
}

func TestAllocationEncoding(t *testing.T) {
	alloc := Allocation{Offset: 0x1234, Length: 0x00ff}
	decoded := DecodeAllocation(alloc.Encode())
	if decoded != alloc {
		t.Fatalf("roundtrip mismatch: %+v != %+v", decoded, alloc)
	}
	if DecodeAllocation(0) != (Allocation{}) {
		t.Fatal("zero encodes the empty allocation")
	}
}

func TestWriteRead(t *testing.T) {
	m, _ := pageManager()

	first, err := m.WriteString("hello")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.WriteString("world")
	if err != nil {
		t.Fatal(err)
	}
	if second.Offset != first.Offset+first.Length {
		t.Fatal("allocations should stack")
	}

	got, err := m.ReadString(first)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Fatalf("expected hello, got %q", got)
	}
	got, err = m.ReadString(second)
	if err != nil {
		t.Fatal(err)
	}
	if got != "world" {
		t.Fatalf("expected world, got %q", got)
	}
}

func TestWriteRejectsPageOverflow(t *testing.T) {
	m, _ := pageManager()

	big := bytes.Repeat([]byte{'x'}, WasmPageSize-10)
	if _, err := m.Write(big); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Write(make([]byte, 11)); !common.IsKind(err, common.ErrRibosomeFailed) {
		t.Fatalf("overflowing the page should fail, got %v", err)
	}
}

func TestWriteRejectsEmpty(t *testing.T) {
	m, _ := pageManager()
	if _, err := m.Write(nil); err == nil {
		t.Fatal("empty allocations are invalid")
	}
}

func TestReset(t *testing.T) {
	m, _ := pageManager()

	if _, err := m.WriteString("hello"); err != nil {
		t.Fatal(err)
	}
	m.Reset()
	alloc, err := m.WriteString("again")
	if err != nil {
		t.Fatal(err)
	}
	if alloc.Offset != 0 {
		t.Fatal("reset should rewind the stack to the page start")
	}
}

func TestReadRejectsOutOfBounds(t *testing.T) {
	short := make([]byte, 16)
	m := NewSinglePageManager(func() []byte { return short })
	if _, err := m.Read(Allocation{Offset: 8, Length: 16}); err == nil {
		t.Fatal("reading past the guest memory should fail")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	out := MarshalEnvelope("0Xabc", nil)
	env, err := ParseEnvelope(out)
	if err != nil {
		t.Fatal(err)
	}
	if !env.Ok || env.Value != "0Xabc" || env.Error != "" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	out = MarshalEnvelope("", common.NewHcError(common.ErrGeneric, "nope"))
	env, err = ParseEnvelope(out)
	if err != nil {
		t.Fatal(err)
	}
	if env.Ok || env.Error == "" {
		t.Fatalf("error envelope should carry the message: %+v", env)
	}
}
