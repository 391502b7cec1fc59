package validator

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/ticks"
)

// Signer builds, signs, and persists attestations. It owns each
// attestation only for the duration of construction; once stored, the
// record is immutable and re-validation produces a new one.
//
// The private key is optional. Without one the Signer still produces and
// stores attestations, just unsigned: callers must treat those as
// provisional, not proof.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	store   domain.AttestationStore
	hook    domain.ValidationHook // optional, best-effort
	logger  *slog.Logger
}

// NewSigner creates a Signer. key may be nil to disable signing. declared
// is the validator's configured address; when a key is present the
// derived address wins and a mismatching declared address is logged.
// hook may be nil when no external validation endpoint is configured.
func NewSigner(key *ecdsa.PrivateKey, declared common.Address, store domain.AttestationStore, hook domain.ValidationHook, logger *slog.Logger) *Signer {
	addr := declared
	if key != nil {
		addr = ethcrypto.PubkeyToAddress(key.PublicKey)
		if declared != (common.Address{}) && declared != addr {
			logger.Warn("declared validator address does not match signing key, using derived address",
				slog.String("declared", declared.Hex()),
				slog.String("derived", addr.Hex()),
			)
		}
	}
	return &Signer{
		key:     key,
		address: addr,
		store:   store,
		hook:    hook,
		logger:  logger.With(slog.String("component", "signer")),
	}
}

// Address returns the identity attached to produced attestations: the
// address derived from the signing key, or the declared one when unsigned.
func (s *Signer) Address() common.Address {
	return s.address
}

// Signing reports whether a signing key is configured.
func (s *Signer) Signing() bool {
	return s.key != nil
}

// GenerateAttestation builds the attestation record for an approved
// movement, signs it when a key is configured, submits it to the external
// validation endpoint (best-effort), and stores it.
//
// The store write is the one step that must succeed: an unstored
// attestation has no evidentiary value, so a persistence failure is
// returned as an error rather than folded into the record.
func (s *Signer) GenerateAttestation(ctx context.Context, pos domain.Position, action domain.Action, currentPrice float64) (domain.Attestation, error) {
	return s.GenerateAttestationAt(ctx, pos, action, currentPrice, time.Now())
}

// GenerateAttestationAt is GenerateAttestation with an explicit
// attestation time, for deterministic tests.
func (s *Signer) GenerateAttestationAt(ctx context.Context, pos domain.Position, action domain.Action, currentPrice float64, now time.Time) (domain.Attestation, error) {
	now = now.UTC()
	att := domain.Attestation{
		ID:                uuid.New(),
		PositionID:        pos.ID,
		Owner:             pos.Owner,
		Action:            action,
		Timestamp:         now,
		PriceAtValidation: currentPrice,
		ValidatorAddress:  s.address,
		ValidationDetails: domain.ValidationSnapshot{
			LowerTick:       pos.LowerTick,
			UpperTick:       pos.UpperTick,
			LowerPrice:      ticks.TickToPrice(pos.LowerTick),
			UpperPrice:      ticks.TickToPrice(pos.UpperTick),
			IsRestaked:      pos.IsRestaked,
			LastActiveAt:    pos.LastActiveAt,
			InactiveSeconds: int64(now.Sub(pos.LastActiveAt) / time.Second),
		},
	}

	if s.key != nil {
		sig, err := s.signAttestation(att)
		if err != nil {
			return domain.Attestation{}, fmt.Errorf("validator: %w: %v", domain.ErrSigningFailed, err)
		}
		att.Signature = sig
	} else {
		s.logger.WarnContext(ctx, "no signing key configured, producing unsigned attestation",
			slog.String("position_id", pos.ID.Hex()),
			slog.String("action", string(action)),
		)
	}

	if s.hook != nil {
		resp, err := s.hook.Submit(ctx, att)
		if err != nil {
			s.logger.WarnContext(ctx, "external validation submit failed",
				slog.String("attestation_id", att.ID.String()),
				slog.String("error", err.Error()),
			)
		} else {
			att.ExternalValidation = resp
		}
	}

	if err := s.store.Create(ctx, att); err != nil {
		return domain.Attestation{}, fmt.Errorf("validator: store attestation: %w", err)
	}

	s.logger.InfoContext(ctx, "attestation generated",
		slog.String("attestation_id", att.ID.String()),
		slog.String("position_id", pos.ID.Hex()),
		slog.String("action", string(action)),
		slog.Bool("signed", att.Signed()),
	)
	return att, nil
}

// signAttestation signs the canonical digest with the configured key and
// returns the 65-byte [R || S || V] signature with v normalized to 27/28.
func (s *Signer) signAttestation(att domain.Attestation) ([]byte, error) {
	sig, err := ethcrypto.Sign(SigningHash(att), s.key)
	if err != nil {
		return nil, err
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}
