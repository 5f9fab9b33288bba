package chain

import (
	"encoding/hex"
	"errors"
)

var errInvalidSignatureLength = errors.New("chain: signature must be 65 bytes")

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
