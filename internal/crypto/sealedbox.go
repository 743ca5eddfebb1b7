// Package crypto implements the PET protocol's cryptographic primitives
// (C1): participant signing, anonymous sealed-box encryption, the
// deterministic PRNG used to derive masks, and true-random round seeds.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"github.com/drand/kyber"
	"github.com/drand/kyber/util/random"
	"golang.org/x/crypto/hkdf"

	"github.com/xaynetwork/xaynet/common/key"
)

// DefaultHash is the hash used to derive the symmetric key from the
// Diffie-Hellman shared secret.
var DefaultHash = sha256.New

const symmetricKeyLen = 32
const nonceLen = 12

// SealedBox is the anonymous sealed-box ciphertext an update participant
// sends a sum participant: an ephemeral DH point, an AES-GCM nonce and
// the ciphertext itself. The sender is not authenticated on purpose —
// update participants never reveal which sum participant they are
// talking to beyond the recipient's own public key.
type SealedBox struct {
	Ephemeral  []byte
	Nonce      []byte
	Ciphertext []byte
}

// Seal performs an ephemeral-static Diffie-Hellman exchange against the
// recipient's ephemeral public key, derives a symmetric key with HKDF and
// encrypts msg with AES-GCM. This is the operation update participants
// use to encrypt a mask-seed share to a sum participant (spec.md §4.1).
func Seal(pub *key.EphemeralPublic, msg []byte) (*SealedBox, error) {
	return seal(key.Curve, DefaultHash, pub.Key, msg)
}

func seal(g kyber.Group, fn func() hash.Hash, public kyber.Point, msg []byte) (*SealedBox, error) {
	r := g.Scalar().Pick(random.New())
	eph := g.Point().Mul(r, nil)

	ephBuf, err := eph.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to marshal ephemeral point: %w", err)
	}

	dh := g.Point().Mul(r, public)
	dhBuf, err := dh.MarshalBinary()
	if err != nil {
		return nil, err
	}

	symKey, err := deriveKey(fn, dhBuf)
	if err != nil {
		return nil, err
	}

	nonce, err := RandomBytes(nonceLen)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(symKey)
	if err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, nonce, msg, nil)
	return &SealedBox{
		Ephemeral:  ephBuf,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Open decrypts a SealedBox with the recipient's ephemeral secret key.
// Failure here is fatal to the containing message only, never to the
// coordinator (spec.md §4.1).
func Open(priv *key.EphemeralPair, box *SealedBox) ([]byte, error) {
	return open(key.Curve, DefaultHash, priv.Secret, box)
}

func open(g kyber.Group, fn func() hash.Hash, priv kyber.Scalar, box *SealedBox) ([]byte, error) {
	eph := g.Point()
	if err := eph.UnmarshalBinary(box.Ephemeral); err != nil {
		return nil, fmt.Errorf("crypto: invalid ephemeral point: %w", err)
	}

	dh := g.Point().Mul(priv, eph)
	dhBuf, err := dh.MarshalBinary()
	if err != nil {
		return nil, err
	}

	symKey, err := deriveKey(fn, dhBuf)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(symKey)
	if err != nil {
		return nil, err
	}

	return aead.Open(nil, box.Nonce, box.Ciphertext, nil)
}

func deriveKey(fn func() hash.Hash, secret []byte) ([]byte, error) {
	reader := hkdf.New(fn, secret, nil, nil)
	symKey := make([]byte, symmetricKeyLen)
	n, err := reader.Read(symKey)
	if err != nil {
		return nil, err
	} else if n != symmetricKeyLen {
		return nil, errors.New("crypto: not enough bits from the shared secret")
	}
	return symKey, nil
}

func newAEAD(symKey []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(symKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
