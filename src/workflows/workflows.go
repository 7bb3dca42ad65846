// Package workflows ties the instance's layers together: committing to the
// chain, validating, publishing, holding, and querying across the network.
// Workflows run outside the reduce loop and feed results back in as
// actions.
package workflows

import (
	"time"

	"github.com/dynaput247/holochain-sub000/src/agent"
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/instance"
	"github.com/dynaput247/holochain-sub000/src/nucleus/validation"
)

// NetworkQueryTimeout bounds entry and links queries against the network.
const NetworkQueryTimeout = 2 * time.Second

// commit dispatches a chain commit and returns the resulting header.
func commit(inst *instance.Instance, entry *core.Entry, linkUpdateDelete core.Address, extra []core.Provenance) (*core.ChainHeader, error) {
	aw, err := inst.DispatchAndWait(agent.CommitAction{
		Entry:            entry,
		LinkUpdateDelete: linkUpdateDelete,
		ExtraProvenances: extra,
	})
	if err != nil {
		return nil, err
	}
	res, ok := inst.State().Agent.Results[aw.ID]
	if !ok {
		return nil, common.NewHcError(common.ErrGeneric, "commit result missing from state")
	}
	return res.Header, res.Err
}

// publish replicates a committed entry. Publishable entries travel with
// their header; everything else publishes the header alone so peers can
// still verify chain continuity.
func publish(inst *instance.Instance, entry *core.Entry, header *core.ChainHeader) error {
	conn := inst.State().Network.Connection()
	if conn == nil {
		// Offline instances are complete without replication.
		return nil
	}
	if publishable(inst, entry) {
		return conn.PublishEntry(core.EntryWithHeader{Entry: entry, Header: header})
	}
	return conn.PublishEntry(core.EntryWithHeader{Entry: header.ToEntry()})
}

func publishable(inst *instance.Instance, entry *core.Entry) bool {
	if !entry.EntryType.CanPublish() {
		return false
	}
	if entry.EntryType.IsApp() {
		dna := inst.State().Nucleus.Dna
		if dna == nil {
			return false
		}
		def, ok := dna.EntryTypeDef(entry.EntryType)
		if !ok {
			return false
		}
		return def.Sharing.CanPublish()
	}
	return true
}

// packageTypeFor resolves the declared validation package strategy for an
// entry type; system types validate from the entry alone.
func packageTypeFor(inst *instance.Instance, entryType core.EntryType) core.PackageType {
	if entryType.IsApp() {
		if dna := inst.State().Nucleus.Dna; dna != nil {
			if def, ok := dna.EntryTypeDef(entryType); ok {
				return def.ValidationPackage
			}
		}
	}
	return core.PackageEntry
}

// validateCommitted builds the package for a header and runs the full
// validation pipeline over its entry.
func validateCommitted(inst *instance.Instance, entry *core.Entry, header *core.ChainHeader) error {
	pkg, err := inst.PackageBuilder().Build(header, packageTypeFor(inst, entry.EntryType))
	if err != nil {
		return err
	}
	sources := make([]string, 0, len(header.Provenances))
	for _, prov := range header.Provenances {
		sources = append(sources, prov.Source)
	}
	data := validation.Data{Package: pkg, Sources: sources}
	return validation.ValidateEntry(entry, data, inst.State().Nucleus.Dna, inst.ValidationRunner())
}

// resolveEntry reports whether an address resolves to a known entry,
// checking the local shard first and falling back to a network query.
func resolveEntry(inst *instance.Instance, address core.Address) (bool, error) {
	found, err := inst.DhtStore().ContentStorage().Contains(address)
	if err != nil {
		return false, err
	}
	if found {
		return true, nil
	}
	entry, _, err := GetEntry(inst, address)
	if err != nil {
		if common.IsKind(err, common.ErrTimeout) {
			return false, nil
		}
		return false, err
	}
	return entry != nil, nil
}
