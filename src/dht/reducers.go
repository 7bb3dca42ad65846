package dht

import (
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/eav"
	"github.com/dynaput247/holochain-sub000/src/state"
)

// HoldEntryAction asks the shard to hold a validated entry and the header
// that committed it.
type HoldEntryAction struct {
	EntryWithHeader core.EntryWithHeader
}

// ActionName implements state.Action.
func (HoldEntryAction) ActionName() string { return "dht/hold_entry" }

// AddLinkAction records a link edge in the shard's metadata.
type AddLinkAction struct {
	Link core.Link
}

// ActionName implements state.Action.
func (AddLinkAction) ActionName() string { return "dht/add_link" }

// RemoveLinkAction tombstones a previously added link edge.
type RemoveLinkAction struct {
	Link core.Link
}

// ActionName implements state.Action.
func (RemoveLinkAction) ActionName() string { return "dht/remove_link" }

// UpdateEntryAction marks Old as superseded by New.
type UpdateEntryAction struct {
	Old core.Address
	New core.Address
}

// ActionName implements state.Action.
func (UpdateEntryAction) ActionName() string { return "dht/update_entry" }

// RemoveEntryAction marks Deleted as deleted, pointing at the deletion
// entry that authorized it.
type RemoveEntryAction struct {
	Deleted  core.Address
	Deletion core.Address
}

// ActionName implements state.Action.
func (RemoveEntryAction) ActionName() string { return "dht/remove_entry" }

type reducer func(prev *Store, aw state.ActionWrapper) *Store

// Reduce applies DHT actions. Unknown actions, and failures that leave no
// record, return prev unchanged.
func Reduce(prev *Store, aw state.ActionWrapper) *Store {
	var r reducer
	switch aw.Action.(type) {
	case HoldEntryAction:
		r = reduceHoldEntry
	case AddLinkAction:
		r = reduceAddLink
	case RemoveLinkAction:
		r = reduceRemoveLink
	case UpdateEntryAction:
		r = reduceUpdateEntry
	case RemoveEntryAction:
		r = reduceRemoveEntry
	default:
		return prev
	}
	return r(prev, aw)
}

// reduceHoldEntry writes the entry and a LIVE status row. Either write
// failing means no state change; hold is idempotent and the caller retries.
func reduceHoldEntry(prev *Store, aw state.ActionWrapper) *Store {
	action := aw.Action.(HoldEntryAction)
	ewh := action.EntryWithHeader

	if err := prev.content.Add(ewh.Entry); err != nil {
		return prev
	}
	if _, err := prev.meta.AddEavi(statusEav(ewh.Entry.Address(), core.StatusLive)); err != nil {
		return prev
	}

	next := prev.clone()
	var err error
	if ewh.Header != nil {
		err = next.AddHeaderForEntry(ewh.Entry, ewh.Header)
	}
	next.recordResult(aw.ID, err)
	return next
}

// reduceAddLink requires the link base to be held locally already.
func reduceAddLink(prev *Store, aw state.ActionWrapper) *Store {
	action := aw.Action.(AddLinkAction)
	link := action.Link

	next := prev.clone()
	found, err := prev.content.Contains(link.Base)
	if err == nil && !found {
		err = common.NewHcError(common.ErrGeneric, "base for link not found")
	}
	if err != nil {
		next.recordResult(aw.ID, err)
		return next
	}

	_, err = next.meta.AddEavi(eav.NewEavi(link.Base, eav.LinkTag(link.Tag), link.Target))
	next.recordResult(aw.ID, err)
	return next
}

// reduceRemoveLink writes a tombstone row; GetLinks subtracts tombstoned
// targets from the live set.
func reduceRemoveLink(prev *Store, aw state.ActionWrapper) *Store {
	action := aw.Action.(RemoveLinkAction)
	link := action.Link

	next := prev.clone()
	found, err := prev.content.Contains(link.Base)
	if err == nil && !found {
		err = common.NewHcError(common.ErrGeneric, "base for link not found")
	}
	if err != nil {
		next.recordResult(aw.ID, err)
		return next
	}

	_, err = next.meta.AddEavi(eav.NewEavi(link.Base, eav.RemovedLinkTag(link.Tag), link.Target))
	next.recordResult(aw.ID, err)
	return next
}

// reduceUpdateEntry marks the old address MODIFIED and writes the crud-link
// to its replacement. The two writes are independent; a failure is recorded
// without rolling back the other.
func reduceUpdateEntry(prev *Store, aw state.ActionWrapper) *Store {
	action := aw.Action.(UpdateEntryAction)

	next := prev.clone()
	if _, err := next.meta.AddEavi(statusEav(action.Old, core.StatusModified)); err != nil {
		next.recordResult(aw.ID, err)
		return next
	}
	_, err := next.meta.AddEavi(eav.NewEavi(action.Old, eav.AttrCrudLink, action.New))
	next.recordResult(aw.ID, err)
	return next
}

// reduceRemoveEntry deletes an entry after checking it is held locally, is
// not a system entry, and has never left the LIVE status.
func reduceRemoveEntry(prev *Store, aw state.ActionWrapper) *Store {
	action := aw.Action.(RemoveEntryAction)

	next := prev.clone()
	content, found, err := prev.content.Fetch(action.Deleted)
	if err != nil {
		next.recordResult(aw.ID, err)
		return next
	}
	if !found {
		next.recordResult(aw.ID, common.NewHcError(common.ErrGeneric, "trying to remove a missing entry"))
		return next
	}
	entry, err := core.EntryFromContent(content)
	if err != nil {
		next.recordResult(aw.ID, err)
		return next
	}
	if entry.EntryType.IsSys() {
		next.recordResult(aw.ID, common.NewHcError(common.ErrInvalidOperationOnSysEntry, "trying to remove a system entry"))
		return next
	}

	rows, err := prev.statusRows(action.Deleted)
	if err != nil {
		next.recordResult(aw.ID, err)
		return next
	}
	if len(rows) == 0 {
		next.recordResult(aw.ID, common.NewHcError(common.ErrGeneric, "entry does not have a status"))
		return next
	}
	for _, row := range rows {
		status, err := core.ParseCrudStatus(string(row.Value))
		if err != nil {
			next.recordResult(aw.ID, err)
			return next
		}
		if status != core.StatusLive {
			next.recordResult(aw.ID, common.NewHcErrorf(common.ErrGeneric,
				"cannot remove entry with status %s", status))
			return next
		}
	}

	if _, err := next.meta.AddEavi(statusEav(action.Deleted, core.StatusDeleted)); err != nil {
		next.recordResult(aw.ID, err)
		return next
	}
	_, err = next.meta.AddEavi(eav.NewEavi(action.Deleted, eav.AttrCrudLink, action.Deletion))
	next.recordResult(aw.ID, err)
	return next
}
