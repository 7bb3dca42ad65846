package ribosome

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/dynaput247/holochain-sub000/src/common"
)

// testHost records host calls and serves entries from a map, standing in
// for the instance-backed adapter.
type testHost struct {
	mu      sync.Mutex
	entries map[string]string
	commits []string
	debug   []string
	seq     int
}

func newTestHost() *testHost {
	return &testHost{entries: make(map[string]string)}
}

func (h *testHost) Debug(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.debug = append(h.debug, msg)
}

func (h *testHost) CommitEntry(entryJSON string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	addr := fmt.Sprintf("0Xentry%d", h.seq)
	h.entries[addr] = entryJSON
	h.commits = append(h.commits, entryJSON)
	return addr, nil
}

func (h *testHost) CommitEntryWithProvenance(argsJSON string) (string, error) {
	return h.CommitEntry(argsJSON)
}

func (h *testHost) GetEntry(address string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	content, ok := h.entries[address]
	if !ok {
		return "", common.NewHcErrorf(common.ErrGeneric, "no entry at %s", address)
	}
	return content, nil
}

func (h *testHost) GetLinks(argsJSON string) (string, error) { return "[]", nil }

func (h *testHost) UpdateEntry(argsJSON string) (string, error) { return h.CommitEntry(argsJSON) }

func (h *testHost) InitGlobals() (string, error) { return `{"agent":"tester"}`, nil }

func loadTestZome(t *testing.T, host HostAPI) *Ribosome {
	t.Helper()
	wasm, err := os.ReadFile("testdata/test_zome.wasm")
	if err != nil {
		t.Fatal(err)
	}
	r := NewRibosome(host, common.NewTestEntry(t, "ribosome"))
	if err := r.LoadZome("fixture", wasm, 2); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestLoadZomeAndEcho(t *testing.T) {
	r := loadTestZome(t, newTestHost())

	if got := r.LoadedZomes(); len(got) != 1 || got[0] != "fixture" {
		t.Fatalf("expected the fixture zome to be loaded, got %v", got)
	}

	out, err := r.CallZomeFunction("fixture", "echo", `{"content":"hello"}`)
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"content":"hello"}` {
		t.Fatalf("echo should return its params, got %q", out)
	}

	// Empty params cross the boundary as the zero allocation.
	out, err = r.CallZomeFunction("fixture", "echo", "")
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Fatalf("empty params should echo empty, got %q", out)
	}
}

func TestCallErrors(t *testing.T) {
	r := loadTestZome(t, newTestHost())

	if _, err := r.CallZomeFunction("nope", "echo", ""); err == nil {
		t.Fatal("calling an unloaded zome should fail")
	}
	_, err := r.CallZomeFunction("fixture", "missing", "")
	if err == nil {
		t.Fatal("calling a missing export should fail")
	}
	if !common.IsKind(err, common.ErrRibosomeFailed) {
		t.Fatalf("expected a ribosome error, got %v", err)
	}
}

func TestCommitGetRoundTrip(t *testing.T) {
	host := newTestHost()
	r := loadTestZome(t, host)

	entryJSON := `{"entry_type":"post","value":"hello world"}`
	out, err := r.CallZomeFunction("fixture", "commit", entryJSON)
	if err != nil {
		t.Fatal(err)
	}
	env, err := ParseEnvelope(out)
	if err != nil {
		t.Fatal(err)
	}
	if !env.Ok || env.Value == "" {
		t.Fatalf("commit should succeed with an address, got %+v", env)
	}
	if len(host.commits) != 1 || host.commits[0] != entryJSON {
		t.Fatalf("host should see the entry byte for byte, got %v", host.commits)
	}

	out, err = r.CallZomeFunction("fixture", "get", env.Value)
	if err != nil {
		t.Fatal(err)
	}
	env, err = ParseEnvelope(out)
	if err != nil {
		t.Fatal(err)
	}
	if !env.Ok || env.Value != entryJSON {
		t.Fatalf("get should return the committed content, got %+v", env)
	}
}

func TestHostErrorReachesGuestAsEnvelope(t *testing.T) {
	r := loadTestZome(t, newTestHost())

	out, err := r.CallZomeFunction("fixture", "get", "0Xmissing")
	if err != nil {
		t.Fatal(err)
	}
	env, err := ParseEnvelope(out)
	if err != nil {
		t.Fatal(err)
	}
	if env.Ok || env.Error == "" {
		t.Fatalf("host failure should surface as a tagged error envelope, got %+v", env)
	}
}

func TestValidationCallbacks(t *testing.T) {
	r := loadTestZome(t, newTestHost())

	short := `{"entry_type":"post","entry":"short","validation_data":{}}`
	if err := r.ValidateAppEntry("fixture", short); err != nil {
		t.Fatalf("short args should pass validation, got %v", err)
	}

	long := `{"entry_type":"post","entry":"` + strings.Repeat("x", 5000) + `","validation_data":{}}`
	err := r.ValidateAppEntry("fixture", long)
	if err == nil {
		t.Fatal("oversized args should fail validation")
	}
	if !common.IsKind(err, common.ErrValidationFailed) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Content too long") {
		t.Fatalf("guest reason should survive the callback, got %v", err)
	}

	if err := r.ValidateLink("fixture", short); err != nil {
		t.Fatalf("link validation should pass, got %v", err)
	}
}

func TestPoolServesConcurrentCalls(t *testing.T) {
	r := loadTestZome(t, newTestHost())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			params := fmt.Sprintf(`{"call":%d}`, i)
			out, err := r.CallZomeFunction("fixture", "echo", params)
			if err != nil {
				errs <- err
				return
			}
			if out != params {
				errs <- fmt.Errorf("call %d echoed %q", i, out)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
