package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/dynaput247/holochain-sub000/src/crypto"
)

// Sign signs the data with the private key and the built-in pseudo-random
// generator rand.Reader.
func Sign(priv *ecdsa.PrivateKey, data []byte) (r, s *big.Int, err error) {
	return ecdsa.Sign(rand.Reader, priv, data)
}

// Verify verifies that a signature represented by r and s values is a valid
// signature of the data by an owner of the private key associated with the
// provided public key.
func Verify(pub *ecdsa.PublicKey, data []byte, r, s *big.Int) bool {
	return ecdsa.Verify(pub, data, r, s)
}

// EncodeSignature returns a string representation of a signature.
func EncodeSignature(r, s *big.Int) string {
	return fmt.Sprintf("%s|%s", r.Text(36), s.Text(36))
}

// DecodeSignature parses a string representation of a signature as produced
// by EncodeSignature.
func DecodeSignature(sig string) (r, s *big.Int, err error) {
	values := strings.Split(sig, "|")
	if len(values) != 2 {
		return r, s, fmt.Errorf("wrong number of values in signature: got %d, want 2", len(values))
	}
	r, _ = new(big.Int).SetString(values[0], 36)
	s, _ = new(big.Int).SetString(values[1], 36)
	if r == nil || s == nil {
		return nil, nil, fmt.Errorf("could not parse signature values: %s", sig)
	}
	return r, s, nil
}

// SignMessage hashes the message and returns the encoded signature. It is
// the capability used by provenances and the relay's signed wire messages.
func SignMessage(priv *ecdsa.PrivateKey, message []byte) (string, error) {
	r, s, err := Sign(priv, crypto.SHA256(message))
	if err != nil {
		return "", err
	}
	return EncodeSignature(r, s), nil
}

// VerifyMessage checks an encoded signature of a message against the hex
// identity of the claimed signer.
func VerifyMessage(pubHex string, message []byte, sig string) bool {
	pub, err := PublicKeyFromHex(pubHex)
	if err != nil {
		return false
	}
	r, s, err := DecodeSignature(sig)
	if err != nil {
		return false
	}
	return Verify(pub, crypto.SHA256(message), r, s)
}
