// Package instance assembles one running application instance: the root
// state composed of the agent, nucleus, DHT, and network slices, the
// dispatch store over it, and the ribosome executing its zomes.
package instance

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dynaput247/holochain-sub000/src/agent"
	"github.com/dynaput247/holochain-sub000/src/cas"
	"github.com/dynaput247/holochain-sub000/src/chain"
	"github.com/dynaput247/holochain-sub000/src/dht"
	"github.com/dynaput247/holochain-sub000/src/eav"
	"github.com/dynaput247/holochain-sub000/src/network"
	"github.com/dynaput247/holochain-sub000/src/nucleus"
	"github.com/dynaput247/holochain-sub000/src/nucleus/ribosome"
	"github.com/dynaput247/holochain-sub000/src/nucleus/validation"
	"github.com/dynaput247/holochain-sub000/src/state"
)

// DefaultActionTimeout bounds waits on dispatched actions.
const DefaultActionTimeout = 10 * time.Second

// RootState is the full immutable state tree.
type RootState struct {
	Agent   *agent.State
	Nucleus *nucleus.State
	Dht     *dht.Store
	Network *network.State
}

// reduceRoot composes the four slice reducers. When every slice is
// untouched the previous root is returned unchanged, preserving reference
// equality for no-ops.
func reduceRoot(prev interface{}, aw state.ActionWrapper) interface{} {
	old := prev.(*RootState)
	a := agent.Reduce(old.Agent, aw)
	n := nucleus.Reduce(old.Nucleus, aw)
	d := dht.Reduce(old.Dht, aw)
	nw := network.Reduce(old.Network, aw)
	if a == old.Agent && n == old.Nucleus && d == old.Dht && nw == old.Network {
		return prev
	}
	return &RootState{Agent: a, Nucleus: n, Dht: d, Network: nw}
}

// Instance owns the store and the ribosome for one agent in one DNA.
type Instance struct {
	store      *state.Store
	content    cas.ContentAddressableStorage
	ribosome   *ribosome.Ribosome
	runner     validation.CallbackRunner
	pkgBuilder *validation.PackageBuilder
	logger     *logrus.Entry
}

// NewInstance boots an instance over shared storage backends. The source
// chain and the DHT shard share the content store, so holding an entry the
// local agent authored costs nothing extra.
func NewInstance(a *agent.Agent, content cas.ContentAddressableStorage, meta eav.EntityAttributeValueStorage, logger *logrus.Entry) *Instance {
	root := &RootState{
		Agent:   agent.NewState(a, chain.NewSourceChain(content)),
		Nucleus: nucleus.NewState(),
		Dht:     dht.NewStore(content, meta),
		Network: network.NewState(),
	}
	return newInstance(root, content, logger)
}

// LoadInstance resumes an instance from the snapshots a previous run
// persisted into the content store. The agent slice resumes the chain at
// the recorded tip; the nucleus slice recovers its status and parked
// validations. The DHT and network slices rebuild from the backends and
// the relay respectively.
func LoadInstance(a *agent.Agent, content cas.ContentAddressableStorage, meta eav.EntityAttributeValueStorage, logger *logrus.Entry) (*Instance, error) {
	agentState, err := agent.LoadState(a, content)
	if err != nil {
		return nil, err
	}
	nucleusState, err := nucleus.LoadState(content)
	if err != nil {
		return nil, err
	}
	root := &RootState{
		Agent:   agentState,
		Nucleus: nucleusState,
		Dht:     dht.NewStore(content, meta),
		Network: network.NewState(),
	}
	return newInstance(root, content, logger), nil
}

func newInstance(root *RootState, content cas.ContentAddressableStorage, logger *logrus.Entry) *Instance {
	return &Instance{
		store:   state.NewStore(root, reduceRoot, logger),
		content: content,
		pkgBuilder: validation.NewPackageBuilder(
			root.Agent.Agent().Identity,
			root.Agent.Chain(),
			nil,
			root.Dht,
			logger,
		),
		logger: logger,
	}
}

// Persist writes the agent and nucleus snapshots into the content store so
// a later LoadInstance can resume them.
func (i *Instance) Persist() error {
	root := i.State()
	if err := root.Agent.Persist(i.content); err != nil {
		return err
	}
	return root.Nucleus.Persist(i.content)
}

// State snapshots the current root state.
func (i *Instance) State() *RootState {
	return i.store.State().(*RootState)
}

// Store exposes the dispatch store.
func (i *Instance) Store() *state.Store { return i.store }

// Logger returns the instance logger.
func (i *Instance) Logger() *logrus.Entry { return i.logger }

// Agent returns the identity this instance runs as.
func (i *Instance) Agent() *agent.Agent { return i.State().Agent.Agent() }

// Chain returns the local source chain.
func (i *Instance) Chain() *chain.SourceChain { return i.State().Agent.Chain() }

// DhtStore returns the current DHT slice.
func (i *Instance) DhtStore() *dht.Store { return i.State().Dht }

// Ribosome returns the WASM engine, nil until SetRibosome.
func (i *Instance) Ribosome() *ribosome.Ribosome { return i.ribosome }

// SetRibosome attaches the WASM engine. Done after construction because
// the ribosome's host functions need a handle on the instance. The
// ribosome doubles as the validation callback runner.
func (i *Instance) SetRibosome(r *ribosome.Ribosome) {
	i.ribosome = r
	i.runner = r
}

// SetValidationRunner overrides the validation callback runner; tests use
// this to validate without a compiled zome.
func (i *Instance) SetValidationRunner(runner validation.CallbackRunner) { i.runner = runner }

// ValidationRunner returns the active callback runner, nil when none is
// attached.
func (i *Instance) ValidationRunner() validation.CallbackRunner { return i.runner }

// PackageBuilder returns the instance's validation package builder. It is
// built once so its package cache survives across validations; the chain
// and storage handles it closes over are stable for the instance lifetime.
func (i *Instance) PackageBuilder() *validation.PackageBuilder { return i.pkgBuilder }

// Dispatch queues an action.
func (i *Instance) Dispatch(action state.Action) state.ActionWrapper {
	return i.store.Dispatch(action)
}

// DispatchAndWait queues an action and waits for it to be reduced.
func (i *Instance) DispatchAndWait(action state.Action) (state.ActionWrapper, error) {
	return i.store.DispatchAndWait(action, DefaultActionTimeout)
}

// WaitFor blocks until the sensor observes a satisfying root state.
func (i *Instance) WaitFor(sensor func(*RootState) bool, timeout time.Duration) error {
	return i.store.WaitFor(func(current interface{}) bool {
		return sensor(current.(*RootState))
	}, timeout)
}

// Shutdown stops the dispatch loop and closes the network connection.
func (i *Instance) Shutdown() {
	if conn := i.State().Network.Connection(); conn != nil {
		if err := conn.Close(); err != nil {
			i.logger.WithField("error", err.Error()).Debug("Closing network connection")
		}
	}
	i.store.Shutdown()
}
