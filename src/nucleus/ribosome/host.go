package ribosome

import (
	"bytes"
	"encoding/json"
)

// HostAPI is the fixed table of capabilities the ribosome exposes to guest
// code. The instance layer implements it against the state store and
// workflows; the ribosome only shuttles serialized values across the
// memory protocol.
type HostAPI interface {
	// Debug forwards a guest log line to the host logger.
	Debug(msg string)
	// CommitEntry authors an entry from its serialized form and returns
	// the committed address.
	CommitEntry(entryJSON string) (string, error)
	// CommitEntryWithProvenance authors an entry carrying explicit
	// provenances.
	CommitEntryWithProvenance(argsJSON string) (string, error)
	// GetEntry resolves an address to serialized entry content.
	GetEntry(address string) (string, error)
	// GetLinks queries the link graph; argsJSON carries base and tag.
	GetLinks(argsJSON string) (string, error)
	// UpdateEntry replaces an existing entry; argsJSON carries the old
	// address and the replacement entry.
	UpdateEntry(argsJSON string) (string, error)
	// InitGlobals returns the serialized per-instance globals (agent
	// identity, DNA name and hash).
	InitGlobals() (string, error)
}

// Envelope is the tagged result returned to guests by every host function:
// {ok, value, error}. Guests never see a raw host error.
type Envelope struct {
	Ok    bool   `json:"ok"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// MarshalEnvelope serializes a host result for the guest.
func MarshalEnvelope(value string, err error) string {
	env := Envelope{Ok: err == nil, Value: value}
	if err != nil {
		env.Error = err.Error()
	}
	var b bytes.Buffer
	if encErr := json.NewEncoder(&b).Encode(env); encErr != nil {
		return `{"ok":false,"error":"could not serialize host result"}`
	}
	return string(bytes.TrimRight(b.Bytes(), "\n"))
}

// ParseEnvelope reads a host result envelope back, for native callers that
// route through the same protocol.
func ParseEnvelope(data string) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal([]byte(data), &env)
	return env, err
}
