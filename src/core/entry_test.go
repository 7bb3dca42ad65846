package core

import (
	"reflect"
	"testing"
)

func TestEntryAddress(t *testing.T) {
	entry := NewEntry("post", `{"content":"foo"}`)
	entry2 := NewEntry("post", `{"content":"foo"}`)
	other := NewEntry("post", `{"content":"bar"}`)

	if entry.Address() != entry2.Address() {
		t.Fatalf("same content should yield same address")
	}
	if entry.Address() == other.Address() {
		t.Fatalf("different content should yield different addresses")
	}
	if entry.Address() != AddressOf(entry.Content()) {
		t.Fatalf("entry address should be the hash of its content")
	}
}

func TestEntryRoundTrip(t *testing.T) {
	entry := NewEntry("post", `{"content":"foo"}`)

	data, err := entry.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	back := &Entry{}
	if err := back.Unmarshal(data); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(entry, back) {
		t.Fatalf("expected %#v, got %#v", entry, back)
	}
}

func TestEntryTypeClassification(t *testing.T) {
	sys := []EntryType{
		DnaEntryType,
		AgentIDEntryType,
		LinkAddEntryType,
		LinkRemoveEntryType,
		DeletionEntryType,
		CapTokenGrantEntryType,
		ChainHeaderEntryType,
	}
	for _, entryType := range sys {
		if !entryType.IsSys() {
			t.Fatalf("%s should be a system type", entryType)
		}
		if entryType.IsApp() {
			t.Fatalf("%s should not be an app type", entryType)
		}
	}

	if EntryType("post").IsSys() {
		t.Fatal("post should not be a system type")
	}

	if DnaEntryType.CanPublish() {
		t.Fatal("DNA entries must stay private")
	}
	if CapTokenGrantEntryType.CanPublish() {
		t.Fatal("capability grants must stay private")
	}
	if !AgentIDEntryType.CanPublish() {
		t.Fatal("agent id entries are publishable")
	}
}

func TestHeaderAddressIsChainKey(t *testing.T) {
	entry := NewEntry("post", `{"content":"foo"}`)

	header := NewChainHeader(
		entry.EntryType,
		entry.Address(),
		[]Provenance{NewProvenance("0XAB", "r|s")},
		"2019-01-01T00:00:00Z",
		NilAddress,
		NilAddress,
		NilAddress,
	)

	if header.EntryAddress != entry.Address() {
		t.Fatal("header must record the entry address")
	}
	if header.Link != NilAddress {
		t.Fatal("genesis header must not link to a previous header")
	}

	same := NewChainHeader(
		entry.EntryType,
		entry.Address(),
		[]Provenance{NewProvenance("0XAB", "r|s")},
		"2019-01-01T00:00:00Z",
		NilAddress,
		NilAddress,
		NilAddress,
	)
	if header.Address() != same.Address() {
		t.Fatal("identical headers must share an address")
	}

	later := NewChainHeader(
		entry.EntryType,
		entry.Address(),
		[]Provenance{NewProvenance("0XAB", "r|s")},
		"2019-01-01T00:00:00Z",
		header.Address(),
		header.Address(),
		NilAddress,
	)
	if later.Address() == header.Address() {
		t.Fatal("linking must change the header address")
	}

	back, err := ChainHeaderFromContent(header.Content())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(header, back) {
		t.Fatalf("expected %#v, got %#v", header, back)
	}
}

func TestLinkEntryRoundTrip(t *testing.T) {
	base := AddressOf("base")
	target := AddressOf("target")
	link := NewLink(base, target, "comments")

	entry := LinkAddEntry(link)
	if entry.EntryType != LinkAddEntryType {
		t.Fatalf("unexpected entry type %s", entry.EntryType)
	}

	back, err := LinkFromEntry(entry)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(link, back) {
		t.Fatalf("expected %#v, got %#v", link, back)
	}
}

func TestCrudStatusStrings(t *testing.T) {
	cases := map[CrudStatus]string{
		StatusLive:     "1",
		StatusRejected: "2",
		StatusDeleted:  "4",
		StatusModified: "8",
		StatusLocked:   "16",
	}
	for status, expected := range cases {
		if status.String() != expected {
			t.Fatalf("expected %s, got %s", expected, status.String())
		}
		parsed, err := ParseCrudStatus(expected)
		if err != nil {
			t.Fatal(err)
		}
		if parsed != status {
			t.Fatalf("expected %v, got %v", status, parsed)
		}
	}

	if _, err := ParseCrudStatus("3"); err == nil {
		t.Fatal("combined status strings must not parse")
	}
}

func TestDnaEntryRoundTrip(t *testing.T) {
	dna := &Dna{
		Name: "blog",
		UUID: "00000000-0000-0000-0000-000000000000",
		Zomes: map[string]*Zome{
			"blog": {
				EntryTypes: map[string]EntryTypeDef{
					"post": {Sharing: SharingPublic, ValidationPackage: PackageEntry},
				},
				Functions: []string{"create_post"},
			},
		},
	}

	entry := dna.ToEntry()
	if entry.EntryType != DnaEntryType {
		t.Fatalf("unexpected entry type %s", entry.EntryType)
	}

	back, err := DnaFromEntry(entry)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dna, back) {
		t.Fatalf("expected %#v, got %#v", dna, back)
	}

	if _, _, ok := dna.ZomeForEntryType("post"); !ok {
		t.Fatal("post should resolve to the blog zome")
	}
	if _, _, ok := dna.ZomeForEntryType("missing"); ok {
		t.Fatal("missing type should not resolve")
	}
}
