// Package state implements the single-writer state store: a dispatch loop
// that applies actions to an immutable state value through a reducer and
// notifies observers after every transition. Sub-states and their reducers
// live with the components that own them; this package only carries the
// machinery.
package state

import "sync/atomic"

// Action is one unit of intent dispatched at the store. Concrete actions
// are plain structs defined by the component whose state they modify.
type Action interface {
	// ActionName identifies the action kind for reducer dispatch and logs.
	ActionName() string
}

var wrapperSeq int64

// ActionWrapper pairs an action with a process-unique id, so observers can
// tell two dispatches of an identical action apart.
type ActionWrapper struct {
	ID     int64
	Action Action
}

// NewActionWrapper stamps an action with the next id.
func NewActionWrapper(action Action) ActionWrapper {
	return ActionWrapper{
		ID:     atomic.AddInt64(&wrapperSeq, 1),
		Action: action,
	}
}
