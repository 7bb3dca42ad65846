// Package agent carries an instance's identity and the slice of state that
// tracks its source chain.
package agent

import (
	"crypto/ecdsa"

	"github.com/dynaput247/holochain-sub000/src/core"
	"github.com/dynaput247/holochain-sub000/src/crypto/keys"
)

// Agent is a keypair plus the public identity string derived from it.
type Agent struct {
	key      *ecdsa.PrivateKey
	Identity string
}

// NewAgent generates a fresh keypair.
func NewAgent() (*Agent, error) {
	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}
	return FromKey(key), nil
}

// FromKey wraps an existing keypair, as loaded from a keyfile.
func FromKey(key *ecdsa.PrivateKey) *Agent {
	return &Agent{
		key:      key,
		Identity: keys.PublicKeyHex(&key.PublicKey),
	}
}

// Sign produces the encoded signature of data under the agent's key.
func (a *Agent) Sign(data []byte) (string, error) {
	return keys.SignMessage(a.key, data)
}

// Provenance signs data and pairs the signature with the agent's identity.
func (a *Agent) Provenance(data []byte) (core.Provenance, error) {
	sig, err := a.Sign(data)
	if err != nil {
		return core.Provenance{}, err
	}
	return core.NewProvenance(a.Identity, sig), nil
}

// AgentEntry returns the agent-id entry committed during genesis.
func (a *Agent) AgentEntry() *core.Entry {
	return core.AgentIDEntry(a.Identity)
}
