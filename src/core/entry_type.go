package core

import "strings"

// EntryType tags an Entry with its kind. System types are reserved names
// with a "%" prefix; anything else is an application-defined type declared
// in the DNA.
type EntryType string

// System entry types.
const (
	DnaEntryType           EntryType = "%dna"
	AgentIDEntryType       EntryType = "%agent_id"
	LinkAddEntryType       EntryType = "%link_add"
	LinkRemoveEntryType    EntryType = "%link_remove"
	DeletionEntryType      EntryType = "%deletion"
	CapTokenGrantEntryType EntryType = "%cap_token_grant"
	ChainHeaderEntryType   EntryType = "%chain_header"
)

// IsSys reports whether the type is a reserved system type.
func (t EntryType) IsSys() bool {
	return strings.HasPrefix(string(t), "%")
}

// IsApp reports whether the type is application-defined.
func (t EntryType) IsApp() bool {
	return !t.IsSys()
}

// CanPublish reports whether entries of this type may leave the local chain.
// The DNA itself and capability grants stay private; everything else is
// publishable by default (app types additionally depend on their sharing
// setting in the DNA).
func (t EntryType) CanPublish() bool {
	switch t {
	case DnaEntryType, CapTokenGrantEntryType:
		return false
	}
	return true
}

func (t EntryType) String() string {
	return string(t)
}
