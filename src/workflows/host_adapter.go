package workflows

import (
	"encoding/json"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/instance"
)

// HostAdapter implements the ribosome host API against an instance, so
// guest code reaches the same workflows native callers use.
type HostAdapter struct {
	inst *instance.Instance
}

// NewHostAdapter binds the host API to an instance.
func NewHostAdapter(inst *instance.Instance) *HostAdapter {
	return &HostAdapter{inst: inst}
}

// Debug implements ribosome.HostAPI.
func (h *HostAdapter) Debug(msg string) {
	h.inst.Logger().WithField("zome", true).Debug(msg)
}

// CommitEntry implements ribosome.HostAPI.
func (h *HostAdapter) CommitEntry(entryJSON string) (string, error) {
	entry := new(core.Entry)
	if err := entry.Unmarshal([]byte(entryJSON)); err != nil {
		return "", common.NewHcError(common.ErrSerialization, err.Error())
	}
	address, err := AuthorEntry(h.inst, entry, core.NilAddress)
	if err != nil {
		return "", err
	}
	return string(address), nil
}

// commitWithProvenanceArgs is the payload of commit_entry_with_provenance.
type commitWithProvenanceArgs struct {
	Entry       *core.Entry       `json:"entry"`
	Provenances []core.Provenance `json:"provenances"`
}

// CommitEntryWithProvenance implements ribosome.HostAPI. The explicit
// provenances ride along in the committed header in addition to the
// instance agent's own signature.
func (h *HostAdapter) CommitEntryWithProvenance(argsJSON string) (string, error) {
	var args commitWithProvenanceArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", common.NewHcError(common.ErrSerialization, err.Error())
	}
	if args.Entry == nil {
		return "", common.NewHcError(common.ErrSerialization, "no entry in arguments")
	}
	for _, prov := range args.Provenances {
		if !prov.Verify([]byte(args.Entry.Content())) {
			return "", common.NewHcError(common.ErrValidationFailed, "claimed provenance does not verify")
		}
	}
	address, err := AuthorEntryWithProvenance(h.inst, args.Entry, args.Provenances)
	if err != nil {
		return "", err
	}
	return string(address), nil
}

// GetEntry implements ribosome.HostAPI.
func (h *HostAdapter) GetEntry(address string) (string, error) {
	entry, status, err := GetEntry(h.inst, core.Address(address))
	if err != nil {
		return "", err
	}
	if entry == nil {
		return "null", nil
	}
	out, err := json.Marshal(struct {
		Entry  *core.Entry `json:"entry"`
		Status string      `json:"status"`
	}{Entry: entry, Status: status.String()})
	if err != nil {
		return "", common.NewHcError(common.ErrSerialization, err.Error())
	}
	return string(out), nil
}

// getLinksArgs is the payload of get_links.
type getLinksArgs struct {
	Base core.Address `json:"base"`
	Tag  string       `json:"tag"`
}

// GetLinks implements ribosome.HostAPI.
func (h *HostAdapter) GetLinks(argsJSON string) (string, error) {
	var args getLinksArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", common.NewHcError(common.ErrSerialization, err.Error())
	}
	targets, err := GetLinks(h.inst, args.Base, args.Tag)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(targets)
	if err != nil {
		return "", common.NewHcError(common.ErrSerialization, err.Error())
	}
	return string(out), nil
}

// updateEntryArgs is the payload of update_entry.
type updateEntryArgs struct {
	Old   core.Address `json:"old"`
	Entry *core.Entry  `json:"entry"`
}

// UpdateEntry implements ribosome.HostAPI.
func (h *HostAdapter) UpdateEntry(argsJSON string) (string, error) {
	var args updateEntryArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return "", common.NewHcError(common.ErrSerialization, err.Error())
	}
	if args.Entry == nil {
		return "", common.NewHcError(common.ErrSerialization, "no entry in arguments")
	}
	address, err := UpdateEntry(h.inst, args.Old, args.Entry)
	if err != nil {
		return "", err
	}
	return string(address), nil
}

// InitGlobals implements ribosome.HostAPI.
func (h *HostAdapter) InitGlobals() (string, error) {
	state := h.inst.State()
	dnaName := ""
	dnaAddress := core.NilAddress
	if state.Nucleus.Dna != nil {
		dnaName = state.Nucleus.Dna.Name
		dnaAddress = state.Nucleus.Dna.ToEntry().Address()
	}
	out, err := json.Marshal(struct {
		AgentID    string       `json:"agent_id"`
		DnaName    string       `json:"dna_name"`
		DnaAddress core.Address `json:"dna_address"`
	}{
		AgentID:    h.inst.Agent().Identity,
		DnaName:    dnaName,
		DnaAddress: dnaAddress,
	})
	if err != nil {
		return "", common.NewHcError(common.ErrSerialization, err.Error())
	}
	return string(out), nil
}
