package core

import "encoding/json"

// Link is a directed, tagged edge between two addressed entries. It is not
// itself addressable; it travels as the value of LinkAdd/LinkRemove entries
// and is stored as an EAV row on the base.
type Link struct {
	Base   Address `json:"base"`
	Target Address `json:"target"`
	Tag    string  `json:"tag"`
}

// NewLink builds a link from base to target with a tag.
func NewLink(base, target Address, tag string) Link {
	return Link{Base: base, Target: target, Tag: tag}
}

// LinkEntryValue is the value of a LinkAdd or LinkRemove entry.
type LinkEntryValue struct {
	Link Link `json:"link"`
}

// LinkAddEntry wraps a link into a LinkAdd system entry.
func LinkAddEntry(link Link) *Entry {
	return linkEntry(LinkAddEntryType, link)
}

// LinkRemoveEntry wraps a link into a LinkRemove system entry.
func LinkRemoveEntry(link Link) *Entry {
	return linkEntry(LinkRemoveEntryType, link)
}

func linkEntry(entryType EntryType, link Link) *Entry {
	value, err := json.Marshal(LinkEntryValue{Link: link})
	if err != nil {
		panic(err)
	}
	return NewEntry(entryType, string(value))
}

// LinkFromEntry extracts the link carried by a LinkAdd/LinkRemove entry.
func LinkFromEntry(entry *Entry) (Link, error) {
	var value LinkEntryValue
	if err := json.Unmarshal([]byte(entry.Value), &value); err != nil {
		return Link{}, err
	}
	return value.Link, nil
}

// DeletionEntry builds a Deletion system entry whose value names the entry
// being deleted.
func DeletionEntry(deletedEntry Address) *Entry {
	return NewEntry(DeletionEntryType, string(deletedEntry))
}
