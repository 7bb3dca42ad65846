package workflows

import (
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/dht"
	"github.com/dynaput247/holochain-sub000/src/instance"
	"github.com/dynaput247/holochain-sub000/src/nucleus"
	"github.com/dynaput247/holochain-sub000/src/nucleus/validation"
	"github.com/dynaput247/holochain-sub000/src/state"
)

// AuthorEntry runs the full authoring pipeline: endpoint checks for links,
// validation package construction, validation, chain commit, local hold,
// and publish. Each step's failure short-circuits the rest; completed
// steps are not rolled back, the chain is authoritative and append-only.
func AuthorEntry(inst *instance.Instance, entry *core.Entry, updateTarget core.Address) (core.Address, error) {
	return authorEntry(inst, entry, updateTarget, nil)
}

// AuthorEntryWithProvenance authors an entry carrying signatures from
// parties besides the committing agent, as cap grant style entries need.
func AuthorEntryWithProvenance(inst *instance.Instance, entry *core.Entry, extra []core.Provenance) (core.Address, error) {
	return authorEntry(inst, entry, core.NilAddress, extra)
}

func authorEntry(inst *instance.Instance, entry *core.Entry, updateTarget core.Address, extra []core.Provenance) (core.Address, error) {
	if entry.EntryType == core.LinkAddEntryType || entry.EntryType == core.LinkRemoveEntryType {
		if err := checkLinkEndpoints(inst, entry); err != nil {
			return core.NilAddress, err
		}
	}

	// Validation needs the header, and the header is a pure function of
	// the chain tip, so validation runs against a provisional header built
	// the same way the commit will.
	prov, err := inst.Agent().Provenance([]byte(entry.Content()))
	if err != nil {
		return core.NilAddress, err
	}
	provisional := provisionalHeader(inst, entry, append([]core.Provenance{prov}, extra...), updateTarget)
	if err := validateCommitted(inst, entry, provisional); err != nil {
		if validation.OutcomeOf(err) == validation.OutcomeUnresolvedDependencies {
			parkValidation(inst, entry, provisional, err, "author_entry")
		}
		return core.NilAddress, err
	}

	header, err := commit(inst, entry, updateTarget, extra)
	if err != nil {
		return core.NilAddress, err
	}

	// The author is also a holder of its own entries.
	if _, err := inst.DispatchAndWait(dht.HoldEntryAction{
		EntryWithHeader: core.EntryWithHeader{Entry: entry, Header: header},
	}); err != nil {
		return entry.Address(), err
	}
	if err := applyCrudActions(inst, entry, updateTarget); err != nil {
		return entry.Address(), err
	}

	if err := publish(inst, entry, header); err != nil {
		return entry.Address(), err
	}
	return entry.Address(), nil
}

// UpdateEntry authors a replacement entry and marks the old address
// MODIFIED with a crud-link to the new one.
func UpdateEntry(inst *instance.Instance, oldAddress core.Address, newEntry *core.Entry) (core.Address, error) {
	return AuthorEntry(inst, newEntry, oldAddress)
}

// RemoveEntry authors a Deletion entry for the target and marks it
// DELETED. Returns the deletion entry's address; the remove reducer's
// precondition verdict surfaces as the error.
func RemoveEntry(inst *instance.Instance, target core.Address) (core.Address, error) {
	return AuthorEntry(inst, core.DeletionEntry(target), target)
}

// applyCrudActions dispatches the metadata transitions implied by the
// entry type and update target.
func applyCrudActions(inst *instance.Instance, entry *core.Entry, updateTarget core.Address) error {
	switch entry.EntryType {
	case core.LinkAddEntryType:
		link, err := core.LinkFromEntry(entry)
		if err != nil {
			return err
		}
		return dispatchChecked(inst, dht.AddLinkAction{Link: link})
	case core.LinkRemoveEntryType:
		link, err := core.LinkFromEntry(entry)
		if err != nil {
			return err
		}
		return dispatchChecked(inst, dht.RemoveLinkAction{Link: link})
	case core.DeletionEntryType:
		if updateTarget != core.NilAddress {
			return dispatchChecked(inst, dht.RemoveEntryAction{
				Deleted:  updateTarget,
				Deletion: entry.Address(),
			})
		}
	default:
		if updateTarget != core.NilAddress {
			return dispatchChecked(inst, dht.UpdateEntryAction{
				Old: updateTarget,
				New: entry.Address(),
			})
		}
	}
	return nil
}

// dispatchChecked dispatches a DHT action and returns the reducer's
// recorded verdict.
func dispatchChecked(inst *instance.Instance, action state.Action) error {
	aw, err := inst.DispatchAndWait(action)
	if err != nil {
		return err
	}
	return inst.State().Dht.Results[aw.ID]
}

// checkLinkEndpoints fails fast when either endpoint of a link entry does
// not resolve to a known entry.
func checkLinkEndpoints(inst *instance.Instance, entry *core.Entry) error {
	link, err := core.LinkFromEntry(entry)
	if err != nil {
		return common.NewHcError(common.ErrValidationFailed, "malformed link entry: "+err.Error())
	}
	for _, endpoint := range []core.Address{link.Base, link.Target} {
		found, err := resolveEntry(inst, endpoint)
		if err != nil {
			return err
		}
		if !found {
			return common.NewHcErrorf(common.ErrValidationFailed, "link endpoint %s does not resolve", endpoint)
		}
	}
	return nil
}

// provisionalHeader builds the header the commit will produce, for
// validation ahead of the actual chain append.
func provisionalHeader(inst *instance.Instance, entry *core.Entry, provenances []core.Provenance, updateTarget core.Address) *core.ChainHeader {
	c := inst.Chain()
	link := c.Top()
	linkSameType := core.NilAddress
	if top, err := c.TopHeaderOfType(entry.EntryType); err == nil && top != nil {
		linkSameType = top.Address()
	}
	return core.NewChainHeader(
		entry.EntryType,
		entry.Address(),
		provenances,
		"",
		link,
		linkSameType,
		updateTarget,
	)
}

// parkValidation records a validation blocked on unresolved dependencies.
func parkValidation(inst *instance.Instance, entry *core.Entry, header *core.ChainHeader, verr error, workflow string) {
	deps := []core.Address{}
	if v, ok := verr.(*validation.Error); ok {
		deps = v.Dependencies
	}
	inst.DispatchAndWait(nucleus.AddPendingValidationAction{Pending: &nucleus.PendingValidation{
		EntryWithHeader: core.EntryWithHeader{Entry: entry, Header: header},
		Dependencies:    deps,
		Workflow:        workflow,
	}})
}
