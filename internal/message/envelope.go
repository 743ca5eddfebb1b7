// Package message implements the wire envelope for the three PET
// message kinds (C3, spec.md §4.6/§4.7) and multi-part reassembly for
// messages too large for a single frame. The transport layer itself
// (spec.md §1's external collaborator) is out of scope; this package
// only defines what crosses that boundary and how it is framed.
package message

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Kind tags which of the three message variants an Envelope carries.
type Kind int

const (
	KindSum Kind = iota
	KindUpdate
	KindSum2
)

func (k Kind) String() string {
	switch k {
	case KindSum:
		return "Sum"
	case KindUpdate:
		return "Update"
	case KindSum2:
		return "Sum2"
	default:
		return "Unknown"
	}
}

// SumMessage is a sum participant's Sum-phase submission (spec.md §4.6).
type SumMessage struct {
	PublicKey     []byte
	EphemeralKey  []byte
	RoleSignature []byte
}

// UpdateMessage is an update participant's Update-phase submission.
// LocalSeedDict maps a sum participant's public key (as a string, since
// gob map keys must be comparable) to the sealed-box ciphertext of the
// mask-seed share addressed to them.
type UpdateMessage struct {
	PublicKey     []byte
	RoleSignature []byte
	MaskedModel   []byte
	Scalar        float64
	LocalSeedDict map[string][]byte
}

// Sum2Message is a sum participant's Sum2-phase submission.
type Sum2Message struct {
	PublicKey         []byte
	RoleSignature     []byte
	ReconstructedMask []byte
}

// Envelope is the tagged union actually sent over the wire: exactly one
// of Sum/Update/Sum2 is populated, matching Kind.
type Envelope struct {
	Kind   Kind
	Sum    *SumMessage
	Update *UpdateMessage
	Sum2   *Sum2Message
}

// NewSumEnvelope wraps a SumMessage.
func NewSumEnvelope(m *SumMessage) *Envelope { return &Envelope{Kind: KindSum, Sum: m} }

// NewUpdateEnvelope wraps an UpdateMessage.
func NewUpdateEnvelope(m *UpdateMessage) *Envelope { return &Envelope{Kind: KindUpdate, Update: m} }

// NewSum2Envelope wraps a Sum2Message.
func NewSum2Envelope(m *Sum2Message) *Envelope { return &Envelope{Kind: KindSum2, Sum2: m} }

// Encode frames an Envelope with encoding/gob, the same framing the
// teacher reaches for whenever a wire format doesn't need cross-language
// interop (the gRPC/protobuf machinery the teacher uses elsewhere rides
// on a transport that is explicitly out of scope here).
func Encode(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("message: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode inverts Encode.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}
	return &e, nil
}
