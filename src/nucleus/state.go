// Package nucleus tracks the application side of an instance: the loaded
// DNA, initialization lifecycle, zome call results, and validations parked
// on unresolved dependencies.
package nucleus

import (
	"github.com/dynaput247/holochain-sub000/src/core"
)

// Status is the nucleus initialization lifecycle.
type Status int

const (
	// StatusNew is the state before any DNA is loaded.
	StatusNew Status = iota
	// StatusInitializing is set while genesis entries are being committed.
	StatusInitializing
	// StatusInitialized means the instance is ready for zome calls.
	StatusInitialized
	// StatusInitializationFailed is terminal; the error is kept alongside.
	StatusInitializationFailed
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusInitializing:
		return "Initializing"
	case StatusInitialized:
		return "Initialized"
	case StatusInitializationFailed:
		return "InitializationFailed"
	}
	return "Unknown"
}

// PendingKey identifies one parked validation.
type PendingKey struct {
	Address  core.Address
	Workflow string
}

// PendingValidation is a validation that could not complete because its
// dependencies were not yet resolvable. It is retried by a later triggering
// action rather than failed outright.
type PendingValidation struct {
	EntryWithHeader core.EntryWithHeader
	Dependencies    []core.Address
	Workflow        string
}

// ZomeCallResult is the outcome of one zome function call.
type ZomeCallResult struct {
	Value string
	Err   error
}

// zomeCallRetention bounds the call result map. The call driver reads its
// result as soon as the reduce completes, so only the recent tail matters.
const zomeCallRetention = 256

// State is the nucleus slice of the instance state.
type State struct {
	Dna       *core.Dna
	Status    Status
	InitError string

	ZomeCallResults    map[int64]ZomeCallResult
	PendingValidations map[PendingKey]*PendingValidation

	zomeCallOrder []int64
}

// NewState returns an empty nucleus state with status New.
func NewState() *State {
	return &State{
		Status:             StatusNew,
		ZomeCallResults:    make(map[int64]ZomeCallResult),
		PendingValidations: make(map[PendingKey]*PendingValidation),
	}
}

func (s *State) clone() *State {
	next := &State{
		Dna:                s.Dna,
		Status:             s.Status,
		InitError:          s.InitError,
		ZomeCallResults:    make(map[int64]ZomeCallResult, len(s.ZomeCallResults)+1),
		PendingValidations: make(map[PendingKey]*PendingValidation, len(s.PendingValidations)+1),
		zomeCallOrder:      make([]int64, len(s.zomeCallOrder), len(s.zomeCallOrder)+1),
	}
	for id, res := range s.ZomeCallResults {
		next.ZomeCallResults[id] = res
	}
	for key, pv := range s.PendingValidations {
		next.PendingValidations[key] = pv
	}
	copy(next.zomeCallOrder, s.zomeCallOrder)
	return next
}

// recordZomeCallResult stores one call outcome, evicting the oldest once
// the retention bound is reached. Only ever called on a fresh clone.
func (s *State) recordZomeCallResult(id int64, res ZomeCallResult) {
	if _, ok := s.ZomeCallResults[id]; !ok {
		s.zomeCallOrder = append(s.zomeCallOrder, id)
		if len(s.zomeCallOrder) > zomeCallRetention {
			delete(s.ZomeCallResults, s.zomeCallOrder[0])
			s.zomeCallOrder = s.zomeCallOrder[1:]
		}
	}
	s.ZomeCallResults[id] = res
}

// HasPending reports whether a validation is parked under the given key.
func (s *State) HasPending(key PendingKey) bool {
	_, ok := s.PendingValidations[key]
	return ok
}
