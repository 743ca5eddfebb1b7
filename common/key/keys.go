// Package key holds the participant identity types used by the PET
// protocol: a long-lived signing key pair and a per-round ephemeral
// encryption key pair.
package key

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/drand/kyber"
	"github.com/drand/kyber/group/edwards25519"
	"github.com/drand/kyber/util/random"
)

// Curve is the group used for ephemeral encryption keys (internal/crypto's
// sealed-box Diffie-Hellman exchange). Signing keys use ed25519 instead
// (see Pair below): the two key kinds serve different primitives and
// there is no reason to force them onto the same group.
var Curve = edwards25519.NewBlakeSHA256Ed25519()

// Pair is a participant's long-lived signing key pair, used to produce
// the role-eligibility signature sigma_role (spec.md §4.3). The coordinator
// never sees Secret; only Public ever crosses the wire.
//
// ed25519 rather than kyber's schnorr: a role signature must be
// deterministic for a fixed (sk_s, role_tag||r||s_r) — spec.md §4.3 defines
// sigma_role as a pure function of its inputs, and §8 lists that determinism
// as a testable property. ed25519 (RFC 8032) derives its nonce from the
// message and the secret key's hash rather than from a random stream, so
// the same inputs always produce the same signature; a randomized Schnorr
// nonce would let a participant re-sign until selection.Score happened to
// clear the eligibility threshold.
type Pair struct {
	Secret ed25519.PrivateKey
	Public *Identity
}

// Identity is the public half of a Pair: the long-lived signing key
// pk_s the coordinator knows a participant by.
type Identity struct {
	Key ed25519.PublicKey
}

// NewKeyPair generates a fresh signing key pair.
func NewKeyPair() (*Pair, error) {
	public, secret, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("key: generate signing key: %w", err)
	}
	return &Pair{
		Secret: secret,
		Public: &Identity{Key: public},
	}, nil
}

// String renders the identity as a hex-ish debug string.
func (i *Identity) String() string {
	return fmt.Sprintf("%x", []byte(i.Key))
}

// Equal reports whether two identities hold the same public key.
func (i *Identity) Equal(o *Identity) bool {
	if i == nil || o == nil {
		return i == o
	}
	return bytes.Equal(i.Key, o.Key)
}

// MarshalBinary serializes the identity's public key.
func (i *Identity) MarshalBinary() ([]byte, error) {
	return append([]byte{}, i.Key...), nil
}

// UnmarshalBinary restores an identity's public key.
func (i *Identity) UnmarshalBinary(data []byte) error {
	if len(data) != ed25519.PublicKeySize {
		return fmt.Errorf("key: invalid identity encoding: got %d bytes, want %d", len(data), ed25519.PublicKeySize)
	}
	i.Key = append(ed25519.PublicKey{}, data...)
	return nil
}

// EphemeralPair is a sum participant's per-round encryption key pair
// (pk_e / sk_e), used by update participants to seal mask-seed shares to
// this sum participant for the lifetime of one round only.
type EphemeralPair struct {
	Secret kyber.Scalar
	Public *EphemeralPublic
}

// EphemeralPublic is the public half of an EphemeralPair.
type EphemeralPublic struct {
	Key kyber.Point
}

// NewEphemeralPair generates a fresh per-round encryption key pair.
func NewEphemeralPair() (*EphemeralPair, error) {
	secret := Curve.Scalar().Pick(random.New())
	public := Curve.Point().Mul(secret, nil)
	return &EphemeralPair{
		Secret: secret,
		Public: &EphemeralPublic{Key: public},
	}, nil
}

// MarshalBinary serializes the ephemeral public key.
func (e *EphemeralPublic) MarshalBinary() ([]byte, error) {
	return e.Key.MarshalBinary()
}

// UnmarshalBinary restores an ephemeral public key.
func (e *EphemeralPublic) UnmarshalBinary(data []byte) error {
	p := Curve.Point()
	if err := p.UnmarshalBinary(data); err != nil {
		return err
	}
	e.Key = p
	return nil
}
