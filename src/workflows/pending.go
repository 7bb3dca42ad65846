package workflows

import (
	"github.com/dynaput247/holochain-sub000/src/instance"
	"github.com/dynaput247/holochain-sub000/src/nucleus"
	"github.com/dynaput247/holochain-sub000/src/nucleus/validation"
)

// RetryPendingValidations re-drives every parked validation. Entries whose
// dependencies now resolve are held and retired; entries that definitely
// fail are retired without holding; the rest stay parked for the next
// pass. Returns the number still parked.
func RetryPendingValidations(inst *instance.Instance) int {
	pending := inst.State().Nucleus.PendingValidations

	for key, pv := range pending {
		err := HoldEntry(inst, pv.EntryWithHeader)
		switch {
		case err == nil:
			inst.DispatchAndWait(nucleus.RemovePendingValidationAction{Key: key})
		case validation.OutcomeOf(err) == validation.OutcomeFail:
			// A definite rejection will not change on retry.
			inst.DispatchAndWait(nucleus.RemovePendingValidationAction{Key: key})
		default:
			// Still unresolved; leave it parked.
		}
	}
	return len(inst.State().Nucleus.PendingValidations)
}
