package common

import (
	"encoding/hex"
	"fmt"
)

// EncodeToString returns the UPPERCASE hex representation of hashBytes with
// the 0X prefix. Content addresses and agent public keys are rendered this
// way everywhere they appear as strings.
func EncodeToString(hashBytes []byte) string {
	return fmt.Sprintf("0X%X", hashBytes)
}

// DecodeFromString converts a hex string with 0X prefix back to a byte slice.
func DecodeFromString(hexString string) ([]byte, error) {
	if len(hexString) < 2 {
		return nil, fmt.Errorf("hex string too short: %q", hexString)
	}
	return hex.DecodeString(hexString[2:])
}
