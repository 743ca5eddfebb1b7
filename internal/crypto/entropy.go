package crypto

import (
	"crypto/rand"
)

// EntropySource is a source of true randomness that can be passed to
// RandomBytesFrom (e.g. an HSM). RandomBytes and RoundSeed always use
// crypto/rand.
type EntropySource interface {
	Read(data []byte) (n int, err error)
}

// RandomBytes reads n bytes of true randomness from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	return RandomBytesFrom(nil, n)
}

// RandomBytesFrom reads n bytes of true randomness from source, falling
// back to crypto/rand if source is nil or fails to fill the buffer.
func RandomBytesFrom(source EntropySource, n int) ([]byte, error) {
	if source == nil {
		source = rand.Reader
	}

	buf := make([]byte, n)
	read, err := source.Read(buf)
	if err != nil || read != n {
		// fall back to the stdlib generator if the custom source failed
		_, err := rand.Read(buf)
		return buf, err
	}
	return buf, nil
}

// RoundSeed produces the coordinator's published round seed s_r
// (spec.md §3): n bytes of true randomness, published at start_new_round.
func RoundSeed(n int) ([]byte, error) {
	return RandomBytes(n)
}
