package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 hash of the data. All content addresses are
// derived from it.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}
