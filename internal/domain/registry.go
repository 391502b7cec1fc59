package domain

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// ValidatorRegistry answers whether an address is an approved attestation
// signer. Implementations may be on-chain, static, or caching decorators.
type ValidatorRegistry interface {
	IsApprovedValidator(ctx context.Context, addr common.Address) (bool, error)
}

// ValidationHook forwards finished attestations to an external validation
// service. Submission is best-effort: a failed submit never invalidates
// the attestation, it only leaves ExternalValidation empty.
type ValidationHook interface {
	Submit(ctx context.Context, att Attestation) (json.RawMessage, error)
}
