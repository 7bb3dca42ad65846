package workflows

import (
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/instance"
	"github.com/dynaput247/holochain-sub000/src/nucleus"
)

// Genesis initializes a fresh instance: loads the DNA into the nucleus and
// commits the Dna and AgentId entries at the chain root. Genesis entries
// are self-certifying and skip app validation.
func Genesis(inst *instance.Instance, dna *core.Dna) error {
	if _, err := inst.DispatchAndWait(nucleus.InitializeChainAction{Dna: dna}); err != nil {
		return err
	}

	err := commitGenesisEntries(inst, dna)
	result := nucleus.ReturnInitializationResultAction{}
	if err != nil {
		result.Err = err.Error()
	}
	if _, derr := inst.DispatchAndWait(result); derr != nil {
		return derr
	}
	return err
}

// Resume re-attaches the DNA to an instance restored from snapshots. The
// snapshot carries the lifecycle status but not the DNA itself, and the
// chain root must match the DNA being reloaded.
func Resume(inst *instance.Instance, dna *core.Dna) error {
	headers, err := inst.Chain().HeadersOfType(core.DnaEntryType)
	if err != nil {
		return err
	}
	if len(headers) == 0 {
		return common.NewHcError(common.ErrGeneric, "restored chain has no Dna entry")
	}
	if headers[len(headers)-1].EntryAddress != dna.ToEntry().Address() {
		return common.NewHcError(common.ErrGeneric, "DNA does not match the restored chain root")
	}
	_, err = inst.DispatchAndWait(nucleus.ReloadDnaAction{Dna: dna})
	return err
}

func commitGenesisEntries(inst *instance.Instance, dna *core.Dna) error {
	if _, err := commit(inst, dna.ToEntry(), core.NilAddress, nil); err != nil {
		return err
	}
	if _, err := commit(inst, inst.Agent().AgentEntry(), core.NilAddress, nil); err != nil {
		return err
	}
	return nil
}
