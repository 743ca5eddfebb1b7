package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/xaynetwork/xaynet/common/key"
)

// Sign produces sig = sign(sk_s, msg), authenticating a message from a
// participant to the coordinator (spec.md §4.1) and, for role-eligibility
// messages, yielding sigma_role (spec.md §4.3).
//
// ed25519 is used rather than a randomized Schnorr scheme: RFC 8032 §5.1.6
// derives the signing nonce from a hash of the secret key and the message,
// never from a random stream, so the same (pair, msg) always produces the
// same sig.
// spec.md §4.3 defines sigma_role as a pure function of its inputs and §8
// lists that determinism as a testable property — a randomized nonce would
// let a participant re-sign the same role tag until selection.Score landed
// below threshold, defeating committee selection entirely.
func Sign(pair *key.Pair, msg []byte) ([]byte, error) {
	if len(pair.Secret) != ed25519.PrivateKeySize {
		return nil, errors.New("crypto: sign failed: invalid secret key")
	}
	return ed25519.Sign(pair.Secret, msg), nil
}

// Verify checks sig against msg for the given identity's public key.
// Returns a non-nil error (never a panic) on invalid signatures — failure
// here is fatal to the containing message only, never to the coordinator.
func Verify(pub *key.Identity, msg, sig []byte) error {
	if len(pub.Key) != ed25519.PublicKeySize {
		return errors.New("crypto: verify failed: invalid public key")
	}
	if !ed25519.Verify(pub.Key, msg, sig) {
		return fmt.Errorf("crypto: verify failed: signature mismatch")
	}
	return nil
}
