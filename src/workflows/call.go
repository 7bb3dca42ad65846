package workflows

import (
	"sync/atomic"

	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/instance"
	"github.com/dynaput247/holochain-sub000/src/nucleus"
)

var zomeCallSeq int64

// CallZomeFunction invokes an app function on an initialized instance and
// records the outcome in the nucleus slice. The call itself executes on
// the ribosome outside the reduce loop; only its result goes through
// dispatch, so a slow zome cannot stall other actions.
func CallZomeFunction(inst *instance.Instance, zome, function, params string) (string, error) {
	if inst.State().Nucleus.Status != nucleus.StatusInitialized {
		return "", common.NewHcError(common.ErrGeneric, "instance is not initialized")
	}
	rib := inst.Ribosome()
	if rib == nil {
		return "", common.NewHcError(common.ErrRibosomeFailed, "no ribosome attached")
	}

	callID := atomic.AddInt64(&zomeCallSeq, 1)
	value, err := rib.CallZomeFunction(zome, function, params)

	if _, derr := inst.DispatchAndWait(nucleus.ReturnZomeFunctionResultAction{
		CallID: callID,
		Result: nucleus.ZomeCallResult{Value: value, Err: err},
	}); derr != nil {
		return value, derr
	}
	return value, err
}
