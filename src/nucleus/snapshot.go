package nucleus

import (
	"github.com/ugorji/go/codec"

	"github.com/dynaput247/holochain-sub000/src/cas"
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
)

const snapshotAddress = core.Address("NucleusState")

// Snapshot is the persisted slice of the nucleus state: the lifecycle
// status and any validations still parked on dependencies. Zome call
// results are ephemeral and not persisted.
type Snapshot struct {
	Status             Status               `json:"status"`
	PendingValidations []*PendingValidation `json:"pending_validations"`
}

// Content implements core.AddressableContent via a codec encoding.
func (s *Snapshot) Content() core.Content {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, new(codec.JsonHandle))
	if err := enc.Encode(s); err != nil {
		panic(err)
	}
	return core.Content(buf)
}

// Address implements core.AddressableContent with a fixed address.
func (s *Snapshot) Address() core.Address { return snapshotAddress }

// Persist writes the snapshot of this state into storage.
func (s *State) Persist(storage cas.ContentAddressableStorage) error {
	snap := &Snapshot{Status: s.Status}
	for _, pv := range s.PendingValidations {
		snap.PendingValidations = append(snap.PendingValidations, pv)
	}
	return storage.Add(snap)
}

// LoadState restores the persisted nucleus slice. The DNA is not part of
// the snapshot; callers re-load it and dispatch initialization as usual.
func LoadState(storage cas.ContentAddressableStorage) (*State, error) {
	content, found, err := storage.Fetch(snapshotAddress)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.NewHcError(common.ErrIO, "no nucleus state snapshot in storage")
	}
	snap := new(Snapshot)
	dec := codec.NewDecoderBytes([]byte(content), new(codec.JsonHandle))
	if err := dec.Decode(snap); err != nil {
		return nil, common.NewHcError(common.ErrSerialization, err.Error())
	}

	st := NewState()
	st.Status = snap.Status
	for _, pv := range snap.PendingValidations {
		key := PendingKey{
			Address:  pv.EntryWithHeader.Entry.Address(),
			Workflow: pv.Workflow,
		}
		st.PendingValidations[key] = pv
	}
	return st, nil
}
