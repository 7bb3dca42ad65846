package ribosome

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/dynaput247/holochain-sub000/src/common"
)

// checkoutRetryInterval is how long a caller sleeps between attempts to
// grab a free VM instance from a fully busy pool.
const checkoutRetryInterval = 10 * time.Millisecond

// DefaultPoolSize is the number of VM instances kept per zome.
const DefaultPoolSize = 2

// Ribosome compiles zome WASM and runs calls against a pool of sandboxed
// instances. Each instance serves one in-flight call at a time.
type Ribosome struct {
	engine *wasmer.Engine
	store  *wasmer.Store
	host   HostAPI
	logger *logrus.Entry

	mtx   sync.Mutex
	pools map[string][]*zomeInstance
}

// zomeInstance is one checked-out-able VM with its exchange page manager.
type zomeInstance struct {
	mu       sync.Mutex
	instance *wasmer.Instance
	pages    *SinglePageManager
}

// NewRibosome builds an empty ribosome bound to a host API.
func NewRibosome(host HostAPI, logger *logrus.Entry) *Ribosome {
	engine := wasmer.NewEngine()
	return &Ribosome{
		engine: engine,
		store:  wasmer.NewStore(engine),
		host:   host,
		logger: logger,
		pools:  make(map[string][]*zomeInstance),
	}
}

// LoadZome compiles wasmBytes and instantiates poolSize VM instances for
// the named zome. Loading the same name again replaces the pool.
func (r *Ribosome) LoadZome(name string, wasmBytes []byte, poolSize int) error {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	module, err := wasmer.NewModule(r.store, wasmBytes)
	if err != nil {
		return common.NewHcErrorf(common.ErrRibosomeFailed, "compiling zome %s: %v", name, err)
	}

	pool := make([]*zomeInstance, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		zi, err := r.instantiate(module)
		if err != nil {
			return err
		}
		pool = append(pool, zi)
	}

	r.mtx.Lock()
	r.pools[name] = pool
	r.mtx.Unlock()
	r.logger.WithFields(logrus.Fields{
		"zome": name,
		"pool": poolSize,
	}).Debug("Loaded zome")
	return nil
}

// instantiate wires one VM instance with the env import table. The host
// functions close over the instance so they can reach its exchange page.
func (r *Ribosome) instantiate(module *wasmer.Module) (*zomeInstance, error) {
	zi := &zomeInstance{}

	imports := wasmer.NewImportObject()
	imports.Register("env", map[string]wasmer.IntoExtern{
		"debug":                        r.hostFunc(zi, r.applyDebug),
		"print":                        r.hostFunc(zi, r.applyDebug),
		"commit_entry":                 r.hostFunc(zi, r.applyCommitEntry),
		"commit_entry_with_provenance": r.hostFunc(zi, r.applyCommitEntryWithProvenance),
		"get_entry":                    r.hostFunc(zi, r.applyGetEntry),
		"get_links":                    r.hostFunc(zi, r.applyGetLinks),
		"update_entry":                 r.hostFunc(zi, r.applyUpdateEntry),
		"init_globals":                 r.hostFunc(zi, r.applyInitGlobals),
	})

	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		return nil, common.NewHcErrorf(common.ErrRibosomeFailed, "instantiating zome: %v", err)
	}
	memory, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, common.NewHcError(common.ErrRibosomeFailed, "zome does not export its memory")
	}

	zi.instance = instance
	zi.pages = NewSinglePageManager(memory.Data)
	return zi, nil
}

// hostFunc adapts a host handler to the (i32) -> i32 allocation ABI.
func (r *Ribosome) hostFunc(zi *zomeInstance, apply func(zi *zomeInstance, input string) string) wasmer.IntoExtern {
	sig := wasmer.NewFunctionType(
		wasmer.NewValueTypes(wasmer.I32),
		wasmer.NewValueTypes(wasmer.I32),
	)
	return wasmer.NewFunction(r.store, sig, func(args []wasmer.Value) ([]wasmer.Value, error) {
		input := ""
		if encoded := args[0].I32(); encoded != 0 {
			var err error
			input, err = zi.pages.ReadString(DecodeAllocation(encoded))
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(int32(0))}, nil
			}
		}
		out := apply(zi, input)
		if out == "" {
			return []wasmer.Value{wasmer.NewI32(int32(0))}, nil
		}
		alloc, err := zi.pages.WriteString(out)
		if err != nil {
			// The guest sees a zero allocation and treats it as a host
			// fault.
			return []wasmer.Value{wasmer.NewI32(int32(0))}, nil
		}
		return []wasmer.Value{wasmer.NewI32(alloc.Encode())}, nil
	})
}

func (r *Ribosome) applyDebug(_ *zomeInstance, input string) string {
	r.logger.WithField("guest", true).Debug(input)
	r.host.Debug(input)
	return ""
}

func (r *Ribosome) applyCommitEntry(_ *zomeInstance, input string) string {
	return MarshalEnvelope(envelopeCall(func() (string, error) { return r.host.CommitEntry(input) }))
}

func (r *Ribosome) applyCommitEntryWithProvenance(_ *zomeInstance, input string) string {
	return MarshalEnvelope(envelopeCall(func() (string, error) { return r.host.CommitEntryWithProvenance(input) }))
}

func (r *Ribosome) applyGetEntry(_ *zomeInstance, input string) string {
	return MarshalEnvelope(envelopeCall(func() (string, error) { return r.host.GetEntry(input) }))
}

func (r *Ribosome) applyGetLinks(_ *zomeInstance, input string) string {
	return MarshalEnvelope(envelopeCall(func() (string, error) { return r.host.GetLinks(input) }))
}

func (r *Ribosome) applyUpdateEntry(_ *zomeInstance, input string) string {
	return MarshalEnvelope(envelopeCall(func() (string, error) { return r.host.UpdateEntry(input) }))
}

func (r *Ribosome) applyInitGlobals(_ *zomeInstance, _ string) string {
	return MarshalEnvelope(envelopeCall(r.host.InitGlobals))
}

// envelopeCall converts a handler panic into an error instead of crossing
// back into the VM and crashing the host.
func envelopeCall(fn func() (string, error)) (value string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = common.NewHcErrorf(common.ErrRibosomeFailed, "host function panicked: %v", rec)
		}
	}()
	return fn()
}

// checkout grabs a free instance for the zome, sleeping between rounds
// while the whole pool is busy. Callers bound the wait with their own
// timeouts.
func (r *Ribosome) checkout(zome string) (*zomeInstance, error) {
	r.mtx.Lock()
	pool, ok := r.pools[zome]
	r.mtx.Unlock()
	if !ok {
		return nil, common.NewHcErrorf(common.ErrRibosomeFailed, "zome %s is not loaded", zome)
	}
	for {
		for _, zi := range pool {
			if zi.mu.TryLock() {
				return zi, nil
			}
		}
		time.Sleep(checkoutRetryInterval)
	}
}

// CallZomeFunction runs `<function>_dispatch` in the named zome, passing
// params through the memory protocol and returning the guest's serialized
// result.
func (r *Ribosome) CallZomeFunction(zome, function, params string) (string, error) {
	return r.callExport(zome, function+"_dispatch", params)
}

func (r *Ribosome) callExport(zome, export, params string) (string, error) {
	zi, err := r.checkout(zome)
	if err != nil {
		return "", err
	}
	defer zi.mu.Unlock()
	zi.pages.Reset()

	fn, err := zi.instance.Exports.GetFunction(export)
	if err != nil {
		return "", common.NewHcErrorf(common.ErrRibosomeFailed, "zome %s does not export %s", zome, export)
	}

	encoded := int32(0)
	if params != "" {
		alloc, err := zi.pages.WriteString(params)
		if err != nil {
			return "", err
		}
		encoded = alloc.Encode()
	}

	raw, err := fn(encoded)
	if err != nil {
		return "", common.NewHcErrorf(common.ErrRibosomeFailed, "zome %s: %s failed: %v", zome, export, err)
	}
	out, ok := raw.(int32)
	if !ok {
		return "", common.NewHcErrorf(common.ErrRibosomeFailed, "zome %s: %s returned a malformed allocation", zome, export)
	}
	if out == 0 {
		return "", nil
	}
	result, err := zi.pages.ReadString(DecodeAllocation(out))
	if err != nil {
		return "", err
	}
	return result, nil
}

// ValidateAppEntry runs the zome's app-entry validation callback. A null
// JSON return passes; a JSON string return is the failure reason.
func (r *Ribosome) ValidateAppEntry(zome, argsJSON string) error {
	return r.validationCall(zome, "__hdk_validate_app_entry", argsJSON)
}

// ValidateLink runs the zome's link validation callback.
func (r *Ribosome) ValidateLink(zome, argsJSON string) error {
	return r.validationCall(zome, "__hdk_validate_link", argsJSON)
}

func (r *Ribosome) validationCall(zome, export, argsJSON string) error {
	result, err := r.callExport(zome, export, argsJSON)
	if err != nil {
		return err
	}
	if result == "" || result == "null" {
		return nil
	}
	var reason string
	if err := json.Unmarshal([]byte(result), &reason); err != nil {
		reason = result
	}
	return common.NewHcError(common.ErrValidationFailed, reason)
}

// LoadedZomes lists the zome names with a live pool.
func (r *Ribosome) LoadedZomes() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	return names
}
