package agent

import (
	"github.com/ugorji/go/codec"

	"github.com/dynaput247/holochain-sub000/src/cas"
	"github.com/dynaput247/holochain-sub000/src/chain"
	"github.com/dynaput247/holochain-sub000/src/common"
	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/state"
)

// CommitAction asks the agent reducer to sign an entry and append it to the
// source chain. LinkUpdateDelete is NilAddress for plain commits. Extra
// provenances, when present, are recorded in the header after the agent's
// own signature.
type CommitAction struct {
	Entry            *core.Entry
	LinkUpdateDelete core.Address
	ExtraProvenances []core.Provenance
}

// ActionName implements state.Action.
func (CommitAction) ActionName() string { return "agent/commit" }

// CommitResult records the outcome of one commit action.
type CommitResult struct {
	Header *core.ChainHeader
	Err    error
}

// resultRetention bounds the commit outcome map. Committers read their
// result right after the reduce, so only the recent tail matters.
const resultRetention = 256

// State is the agent slice of the instance state: the identity, the source
// chain, and the outcomes of processed commit actions keyed by action id.
type State struct {
	agent   *Agent
	chain   *chain.SourceChain
	Results map[int64]CommitResult

	resultOrder []int64
}

// NewState starts an agent state over a fresh chain.
func NewState(a *Agent, c *chain.SourceChain) *State {
	return &State{
		agent:   a,
		chain:   c,
		Results: make(map[int64]CommitResult),
	}
}

// Agent returns the identity this state commits under.
func (s *State) Agent() *Agent { return s.agent }

// Chain returns the underlying source chain.
func (s *State) Chain() *chain.SourceChain { return s.chain }

// clone copies the snapshot-level fields. The chain and agent are shared
// handles; only the result map is state proper.
func (s *State) clone() *State {
	next := &State{
		agent:       s.agent,
		chain:       s.chain,
		Results:     make(map[int64]CommitResult, len(s.Results)+1),
		resultOrder: make([]int64, len(s.resultOrder), len(s.resultOrder)+1),
	}
	for id, res := range s.Results {
		next.Results[id] = res
	}
	copy(next.resultOrder, s.resultOrder)
	return next
}

// recordResult stores one commit outcome, evicting the oldest once the
// retention bound is reached. Only ever called on a fresh clone.
func (s *State) recordResult(id int64, res CommitResult) {
	if _, ok := s.Results[id]; !ok {
		s.resultOrder = append(s.resultOrder, id)
		if len(s.resultOrder) > resultRetention {
			delete(s.Results, s.resultOrder[0])
			s.resultOrder = s.resultOrder[1:]
		}
	}
	s.Results[id] = res
}

// Reduce applies agent actions. Unknown actions return prev unchanged.
func Reduce(prev *State, aw state.ActionWrapper) *State {
	action, ok := aw.Action.(CommitAction)
	if !ok {
		return prev
	}

	next := prev.clone()
	prov, err := prev.agent.Provenance([]byte(action.Entry.Content()))
	if err != nil {
		next.recordResult(aw.ID, CommitResult{Err: err})
		return next
	}
	provenances := append([]core.Provenance{prov}, action.ExtraProvenances...)
	header, err := prev.chain.PushEntry(action.Entry, provenances, action.LinkUpdateDelete)
	next.recordResult(aw.ID, CommitResult{Header: header, Err: err})
	return next
}

const snapshotAddress = core.Address("AgentState")

// Snapshot is the persisted form of the agent state: just the chain tip,
// since the chain itself lives in content-addressed storage. It is stored
// under a fixed address so restarts can find it without an index.
type Snapshot struct {
	TopHeaderAddress core.Address `json:"top_header_address"`
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

// Persist writes the current chain tip into storage.
func (s *State) Persist(storage cas.ContentAddressableStorage) error {
	snap := &Snapshot{TopHeaderAddress: s.chain.Top()}
	return storage.Add(snap)
}

// LoadState restores an agent state from a persisted snapshot, resuming the
// chain at the recorded tip.
func LoadState(a *Agent, storage cas.ContentAddressableStorage) (*State, error) {
	content, found, err := storage.Fetch(snapshotAddress)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.NewHcError(common.ErrIO, "no agent state snapshot in storage")
	}
	snap := new(Snapshot)
	dec := codec.NewDecoderBytes([]byte(content), new(codec.JsonHandle))
	if err := dec.Decode(snap); err != nil {
		return nil, common.NewHcError(common.ErrSerialization, err.Error())
	}
	resumed, err := chain.LoadSourceChain(storage, snap.TopHeaderAddress)
	if err != nil {
		return nil, err
	}
	return NewState(a, resumed), nil
}
