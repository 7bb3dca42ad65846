package workflows

import (
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/dht"
	"github.com/dynaput247/holochain-sub000/src/instance"
	"github.com/dynaput247/holochain-sub000/src/nucleus/validation"
)

// HoldEntry validates an entry published by a peer and, on success, holds
// it in the local shard with the metadata transitions its type implies.
// Validation blocked on unresolved dependencies parks the entry for retry
// instead of rejecting it.
func HoldEntry(inst *instance.Instance, ewh core.EntryWithHeader) error {
	if ewh.Header != nil {
		if err := validateCommitted(inst, ewh.Entry, ewh.Header); err != nil {
			switch validation.OutcomeOf(err) {
			case validation.OutcomeUnresolvedDependencies:
				parkValidation(inst, ewh.Entry, ewh.Header, err, "hold_entry")
				return err
			case validation.OutcomeNotImplemented:
				// System types without validators are held as-is.
			default:
				return err
			}
		}
	}

	if err := dispatchChecked(inst, dht.HoldEntryAction{EntryWithHeader: ewh}); err != nil {
		return err
	}
	return holdMetaTransitions(inst, ewh)
}

// holdMetaTransitions applies the link and CRUD side effects of holding a
// system entry.
func holdMetaTransitions(inst *instance.Instance, ewh core.EntryWithHeader) error {
	switch ewh.Entry.EntryType {
	case core.LinkAddEntryType:
		link, err := core.LinkFromEntry(ewh.Entry)
		if err != nil {
			return err
		}
		return dispatchChecked(inst, dht.AddLinkAction{Link: link})
	case core.LinkRemoveEntryType:
		link, err := core.LinkFromEntry(ewh.Entry)
		if err != nil {
			return err
		}
		return dispatchChecked(inst, dht.RemoveLinkAction{Link: link})
	case core.DeletionEntryType:
		target := core.Address(ewh.Entry.Value)
		return dispatchChecked(inst, dht.RemoveEntryAction{
			Deleted:  target,
			Deletion: ewh.Entry.Address(),
		})
	}

	// An update travels as a plain entry whose header names the entry it
	// replaces.
	if ewh.Header != nil && ewh.Header.LinkUpdateDelete != core.NilAddress {
		return dispatchChecked(inst, dht.UpdateEntryAction{
			Old: ewh.Header.LinkUpdateDelete,
			New: ewh.Entry.Address(),
		})
	}
	return nil
}
