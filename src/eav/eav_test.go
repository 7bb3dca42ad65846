package eav

import (
	"io/ioutil"
	"os"
	"reflect"
	"testing"

	"github.com/dynaput247/holochain-sub000/src/core"
)

func addr(s string) core.Address {
	return core.AddressOf(core.Content(s))
}

func TestLinkTagAttribute(t *testing.T) {
	a := LinkTag("friend_of")
	if a != Attribute("link__friend_of") {
		t.Fatalf("wrong attribute: %s", a)
	}
	if !a.IsLinkTag() {
		t.Fatal("should be a link tag")
	}
	tag, ok := a.LinkTagName()
	if !ok || tag != "friend_of" {
		t.Fatalf("wrong tag: %s", tag)
	}
	if AttrCrudStatus.IsLinkTag() {
		t.Fatal("crud-status is not a link tag")
	}
	if RemovedLinkTag("friend_of").IsLinkTag() {
		t.Fatal("removal tombstones live outside the tag namespace")
	}
}

func TestEaviRoundTrip(t *testing.T) {
	row := NewEaviWithIndex(addr("base"), AttrLink, addr("target"), 42)
	data, err := row.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	back := new(EntityAttributeValueIndex)
	if err := back.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(row, back) {
		t.Fatalf("roundtrip mismatch. %#v != %#v", row, back)
	}
	if row.Address() != back.Address() {
		t.Fatal("addresses should match")
	}
}

func TestInmemAddCollision(t *testing.T) {
	store := NewInmemEavStorage()

	first, err := store.AddEavi(NewEaviWithIndex(addr("e"), AttrCrudStatus, addr("1"), 100))
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.AddEavi(NewEaviWithIndex(addr("e"), AttrCrudStatus, addr("2"), 100))
	if err != nil {
		t.Fatal(err)
	}
	if first.Index != 100 {
		t.Fatalf("first index should be 100, got %d", first.Index)
	}
	if second.Index != 101 {
		t.Fatalf("colliding index should be bumped to 101, got %d", second.Index)
	}
	if store.Len() != 2 {
		t.Fatalf("both rows should survive, got %d", store.Len())
	}
}

func TestInmemFetchLatestOnly(t *testing.T) {
	store := NewInmemEavStorage()
	e := addr("entry")

	// Three status rows for the same group; only the last should come back
	// without a range.
	for i, v := range []string{"1", "1", "1"} {
		if _, err := store.AddEavi(NewEaviWithIndex(e, AttrCrudStatus, addr(v), int64(10+i))); err != nil {
			t.Fatal(err)
		}
	}
	// A different group stays independently visible.
	if _, err := store.AddEavi(NewEaviWithIndex(e, AttrCrudStatus, addr("4"), 5)); err != nil {
		t.Fatal(err)
	}

	rows, err := store.FetchEavi(&e, nil, nil, LatestOnly)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected one row per group, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Value == addr("1") && row.Index != 12 {
			t.Fatalf("latest row of group should have index 12, got %d", row.Index)
		}
	}
}

func TestInmemFetchIndexRange(t *testing.T) {
	store := NewInmemEavStorage()
	e := addr("entry")
	for i := int64(0); i < 5; i++ {
		if _, err := store.AddEavi(NewEaviWithIndex(e, AttrCrudStatus, addr("1"), i)); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := store.FetchEavi(&e, nil, nil, Between(1, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected full history in window, got %d rows", len(rows))
	}
	for i, row := range rows {
		if row.Index != int64(i+1) {
			t.Fatalf("rows should be sorted by index, got %d at %d", row.Index, i)
		}
	}

	rows, err = store.FetchEavi(&e, nil, nil, Since(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows since index 3, got %d", len(rows))
	}
}

func TestInmemFetchFilters(t *testing.T) {
	store := NewInmemEavStorage()
	base := addr("base")
	other := addr("other")
	target := addr("target")

	if _, err := store.AddEavi(NewEaviWithIndex(base, LinkTag("knows"), target, 1)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddEavi(NewEaviWithIndex(base, AttrCrudStatus, addr("1"), 2)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddEavi(NewEaviWithIndex(other, LinkTag("knows"), target, 3)); err != nil {
		t.Fatal(err)
	}

	attr := LinkTag("knows")
	rows, err := store.FetchEavi(&base, &attr, nil, LatestOnly)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Value != target {
		t.Fatalf("expected single link row from base, got %v", rows)
	}

	rows, err = store.FetchEavi(nil, &attr, nil, LatestOnly)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected link rows from both bases, got %d", len(rows))
	}

	rows, err = store.FetchEavi(nil, nil, &target, LatestOnly)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows pointing at target, got %d", len(rows))
	}
}

func TestBadgerEavStorage(t *testing.T) {
	dir, err := ioutil.TempDir("", "eav")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := NewBadgerEavStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	e := addr("entry")
	if _, err := store.AddEavi(NewEaviWithIndex(e, AttrCrudStatus, addr("1"), 100)); err != nil {
		t.Fatal(err)
	}
	bumped, err := store.AddEavi(NewEaviWithIndex(e, AttrCrudStatus, addr("1"), 100))
	if err != nil {
		t.Fatal(err)
	}
	if bumped.Index != 101 {
		t.Fatalf("colliding index should be bumped to 101, got %d", bumped.Index)
	}

	rows, err := store.FetchEavi(&e, nil, nil, LatestOnly)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Index != 101 {
		t.Fatalf("expected single latest row at index 101, got %v", rows)
	}

	rows, err = store.FetchEavi(&e, nil, nil, Between(0, 200))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected full history in window, got %d", len(rows))
	}
}
