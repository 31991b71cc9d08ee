package cosign

import (
	"crypto"
	"fmt"
)

// Flags returns the request flags for hash signing with the given digest.
func Flags(hash crypto.Hash) (uint32, error) {
	flag, ok := digestFlags[hash]
	if !ok {
		return 0, fmt.Errorf("%w: the used digest method is not supported by the CoSign API: %v", ErrUnsupportedAlgorithm, hash)
	}
	return FlagHashSigning | flag, nil
}
