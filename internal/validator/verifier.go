package validator

import (
	"context"
	"fmt"
	"log/slog"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// Verifier checks stored attestations: it recomputes the canonical digest
// from the attestation's fields, recovers the signing address, and asks
// the registry whether that address is approved.
type Verifier struct {
	registry domain.ValidatorRegistry
	logger   *slog.Logger
}

// NewVerifier creates a Verifier backed by the given registry.
func NewVerifier(registry domain.ValidatorRegistry, logger *slog.Logger) *Verifier {
	return &Verifier{
		registry: registry,
		logger:   logger.With(slog.String("component", "verifier")),
	}
}

// VerifyAttestation returns the verdict on an attestation. Every
// verification outcome, including a missing or malformed signature, is
// reported in the result; the error return is used only when the registry
// itself cannot be reached.
//
// Recovery recomputes the digest from the stored fields, so any field
// tampered with after signing recovers a different address and the
// attestation fails the allow-list check.
func (v *Verifier) VerifyAttestation(ctx context.Context, att domain.Attestation) (domain.VerificationResult, error) {
	if !att.Signed() {
		return domain.VerificationResult{Reason: "attestation is unsigned"}, nil
	}
	if len(att.Signature) != 65 {
		return domain.VerificationResult{
			Reason: fmt.Sprintf("malformed signature: %d bytes, want 65", len(att.Signature)),
		}, nil
	}

	// Undo the 27/28 normalization applied at signing time; recovery
	// expects v in {0,1}.
	sig := make([]byte, 65)
	copy(sig, att.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(SigningHash(att), sig)
	if err != nil {
		v.logger.WarnContext(ctx, "signature recovery failed",
			slog.String("attestation_id", att.ID.String()),
			slog.String("error", err.Error()),
		)
		return domain.VerificationResult{
			Reason: fmt.Sprintf("signature recovery failed: %v", err),
		}, nil
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)

	approved, err := v.registry.IsApprovedValidator(ctx, recovered)
	if err != nil {
		return domain.VerificationResult{}, fmt.Errorf("validator: registry lookup: %w", err)
	}

	res := domain.VerificationResult{Valid: approved, Signer: &recovered}
	if !approved {
		res.Reason = "recovered signer is not an approved validator"
	}
	return res, nil
}
