package core

import "github.com/dynaput247/holochain-sub000/src/crypto/keys"

// Provenance ties a signature to the agent that produced it. Source is the
// agent's public identity string.
type Provenance struct {
	Source    string `json:"source"`
	Signature string `json:"signature"`
}

// NewProvenance pairs an agent identity with a signature.
func NewProvenance(source, signature string) Provenance {
	return Provenance{Source: source, Signature: signature}
}

// Verify checks the provenance's signature over message against its claimed
// source identity.
func (p Provenance) Verify(message []byte) bool {
	return keys.VerifyMessage(p.Source, message, p.Signature)
}
