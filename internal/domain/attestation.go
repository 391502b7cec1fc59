package domain

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ValidationSnapshot captures the position fields that drove a movement
// decision, so the attestation is auditable without the live record.
type ValidationSnapshot struct {
	LowerTick       int
	UpperTick       int
	LowerPrice      float64
	UpperPrice      float64
	IsRestaked      bool
	LastActiveAt    time.Time
	InactiveSeconds int64
}

// Attestation is the signed, independently verifiable record of one
// movement decision. It is immutable once signed: re-validating a position
// produces a new Attestation rather than updating this one.
type Attestation struct {
	ID                uuid.UUID
	PositionID        common.Hash
	Owner             common.Address
	Action            Action
	Timestamp         time.Time
	PriceAtValidation float64
	ValidatorAddress  common.Address
	ValidationDetails ValidationSnapshot

	// Signature is the 65-byte [R || S || V] recoverable signature over
	// the canonical digest, nil when no signing key was configured. An
	// unsigned attestation is provisional, not a proof.
	Signature []byte

	// ExternalValidation holds the raw response from the external
	// validation endpoint, nil when submission was skipped or failed.
	ExternalValidation json.RawMessage
}

// Signed reports whether a signature is attached.
func (a Attestation) Signed() bool {
	return len(a.Signature) > 0
}
