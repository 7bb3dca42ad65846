package core

import "encoding/json"

// Sharing controls whether entries of an app type are published to the DHT
// or stay on the local chain.
type Sharing string

const (
	// SharingPublic entries are published after commit.
	SharingPublic Sharing = "public"
	// SharingPrivate entries are committed to the chain only.
	SharingPrivate Sharing = "private"
)

// CanPublish reports whether the sharing setting allows publishing.
func (s Sharing) CanPublish() bool {
	return s != SharingPrivate
}

// PackageType names the validation-package strategy an entry type declares:
// what chain context a validator needs to see.
type PackageType string

const (
	// PackageEntry validates from the entry and its header alone.
	PackageEntry PackageType = "entry"
	// PackageChainEntries needs all entries of the author's chain.
	PackageChainEntries PackageType = "chain_entries"
	// PackageChainHeaders needs all headers of the author's chain.
	PackageChainHeaders PackageType = "chain_headers"
	// PackageChainFull needs the full chain, headers and entries.
	PackageChainFull PackageType = "chain_full"
)

// EntryTypeDef is the DNA's declaration of one app entry type.
type EntryTypeDef struct {
	Sharing           Sharing     `json:"sharing"`
	ValidationPackage PackageType `json:"validation_package"`
}

// Zome is one module of application code: a WASM binary plus the entry types
// and callable functions it declares. Function names are checked against the
// module's exports when the instance loads; dispatch goes through an explicit
// registration map, not generated code.
type Zome struct {
	Code       []byte                  `json:"code"`
	EntryTypes map[string]EntryTypeDef `json:"entry_types"`
	Functions  []string                `json:"functions"`
}

// EntryTypeDef looks up an app entry type declared by the zome.
func (z *Zome) EntryTypeDef(name string) (EntryTypeDef, bool) {
	def, ok := z.EntryTypes[name]
	return def, ok
}

// Dna is the packaged application definition loaded into an instance.
type Dna struct {
	Name  string           `json:"name"`
	UUID  string           `json:"uuid"`
	Zomes map[string]*Zome `json:"zomes"`
}

// ZomeForEntryType finds the zome that declares the given app entry type.
func (d *Dna) ZomeForEntryType(entryType EntryType) (string, *Zome, bool) {
	for name, zome := range d.Zomes {
		if _, ok := zome.EntryTypes[string(entryType)]; ok {
			return name, zome, true
		}
	}
	return "", nil, false
}

// EntryTypeDef looks an app entry type up across all zomes.
func (d *Dna) EntryTypeDef(entryType EntryType) (EntryTypeDef, bool) {
	for _, zome := range d.Zomes {
		if def, ok := zome.EntryTypes[string(entryType)]; ok {
			return def, true
		}
	}
	return EntryTypeDef{}, false
}

// ToEntry serializes the DNA into its chain entry.
func (d *Dna) ToEntry() *Entry {
	value, err := json.Marshal(d)
	if err != nil {
		panic(err)
	}
	return NewEntry(DnaEntryType, string(value))
}

// DnaFromEntry parses a Dna entry's value.
func DnaFromEntry(entry *Entry) (*Dna, error) {
	dna := &Dna{}
	if err := json.Unmarshal([]byte(entry.Value), dna); err != nil {
		return nil, err
	}
	return dna, nil
}

// AgentIDEntry builds the AgentId system entry for an agent identity.
func AgentIDEntry(agentID string) *Entry {
	return NewEntry(AgentIDEntryType, agentID)
}
