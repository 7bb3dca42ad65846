package nucleus

import (
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/state"
)

// InitializeChainAction loads a DNA and moves the nucleus to Initializing.
type InitializeChainAction struct {
	Dna *core.Dna
}

// ActionName implements state.Action.
func (InitializeChainAction) ActionName() string { return "nucleus/initialize_chain" }

// ReturnInitializationResultAction concludes genesis. An empty Err means
// success.
type ReturnInitializationResultAction struct {
	Err string
}

// ActionName implements state.Action.
func (ReturnInitializationResultAction) ActionName() string {
	return "nucleus/return_initialization_result"
}

// ReloadDnaAction re-attaches the DNA after a snapshot restore. Snapshots
// keep the lifecycle status only; the DNA itself is reloaded from its file.
type ReloadDnaAction struct {
	Dna *core.Dna
}

// ActionName implements state.Action.
func (ReloadDnaAction) ActionName() string { return "nucleus/reload_dna" }

// ReturnZomeFunctionResultAction reports the outcome of a zome call that
// was executed outside the reduce loop. CallID ties it back to the caller.
type ReturnZomeFunctionResultAction struct {
	CallID int64
	Result ZomeCallResult
}

// ActionName implements state.Action.
func (ReturnZomeFunctionResultAction) ActionName() string {
	return "nucleus/return_zome_function_result"
}

// AddPendingValidationAction parks a validation on unresolved dependencies.
type AddPendingValidationAction struct {
	Pending *PendingValidation
}

// ActionName implements state.Action.
func (AddPendingValidationAction) ActionName() string { return "nucleus/add_pending_validation" }

// RemovePendingValidationAction retires a parked validation after it has
// been re-driven to completion or abandoned.
type RemovePendingValidationAction struct {
	Key PendingKey
}

// ActionName implements state.Action.
func (RemovePendingValidationAction) ActionName() string {
	return "nucleus/remove_pending_validation"
}

// Reduce applies nucleus actions. Unknown actions return prev unchanged.
func Reduce(prev *State, aw state.ActionWrapper) *State {
	switch action := aw.Action.(type) {
	case InitializeChainAction:
		next := prev.clone()
		next.Dna = action.Dna
		next.Status = StatusInitializing
		return next

	case ReturnInitializationResultAction:
		// Only an initializing nucleus can conclude genesis.
		if prev.Status != StatusInitializing {
			return prev
		}
		next := prev.clone()
		if action.Err == "" {
			next.Status = StatusInitialized
		} else {
			next.Status = StatusInitializationFailed
			next.InitError = action.Err
		}
		return next

	case ReloadDnaAction:
		next := prev.clone()
		next.Dna = action.Dna
		return next

	case ReturnZomeFunctionResultAction:
		next := prev.clone()
		next.recordZomeCallResult(action.CallID, action.Result)
		return next

	case AddPendingValidationAction:
		key := PendingKey{
			Address:  action.Pending.EntryWithHeader.Entry.Address(),
			Workflow: action.Pending.Workflow,
		}
		next := prev.clone()
		next.PendingValidations[key] = action.Pending
		return next

	case RemovePendingValidationAction:
		if !prev.HasPending(action.Key) {
			return prev
		}
		next := prev.clone()
		delete(next.PendingValidations, action.Key)
		return next
	}
	return prev
}
