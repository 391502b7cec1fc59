package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// AttestationStore defines the read side the attestation handler requires.
type AttestationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Attestation, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Attestation, error)
	ListByPosition(ctx context.Context, positionID common.Hash, opts domain.ListOpts) ([]domain.Attestation, error)
}

// AttestationVerifier checks a stored attestation against the validator
// allow-list.
type AttestationVerifier interface {
	VerifyAttestation(ctx context.Context, att domain.Attestation) (domain.VerificationResult, error)
}

// AttestationHandler serves attestation-related HTTP endpoints.
type AttestationHandler struct {
	attestations AttestationStore
	verifier     AttestationVerifier
	logger       *slog.Logger
}

// NewAttestationHandler creates an AttestationHandler.
func NewAttestationHandler(attestations AttestationStore, verifier AttestationVerifier, logger *slog.Logger) *AttestationHandler {
	return &AttestationHandler{
		attestations: attestations,
		verifier:     verifier,
		logger:       logger,
	}
}

// attestationResponse is the wire form of an attestation. The signature is
// 0x-hex; absent entirely for provisional (unsigned) records.
type attestationResponse struct {
	ID                string             `json:"id"`
	PositionID        string             `json:"position_id"`
	Owner             string             `json:"owner"`
	Action            string             `json:"action"`
	Timestamp         time.Time          `json:"timestamp"`
	PriceAtValidation float64            `json:"price_at_validation"`
	ValidatorAddress  string             `json:"validator_address"`
	Signature         string             `json:"signature,omitempty"`
	Signed            bool               `json:"signed"`
	ValidationDetails validationSnapshot `json:"validation_details"`
}

type validationSnapshot struct {
	LowerTick       int     `json:"lower_tick"`
	UpperTick       int     `json:"upper_tick"`
	LowerPrice      float64 `json:"lower_price"`
	UpperPrice      float64 `json:"upper_price"`
	IsRestaked      bool    `json:"is_restaked"`
	LastActiveAt    int64   `json:"last_active_at"`
	InactiveSeconds int64   `json:"inactive_seconds"`
}

func toAttestationResponse(att domain.Attestation) attestationResponse {
	out := attestationResponse{
		ID:                att.ID.String(),
		PositionID:        att.PositionID.Hex(),
		Owner:             att.Owner.Hex(),
		Action:            string(att.Action),
		Timestamp:         att.Timestamp.UTC(),
		PriceAtValidation: att.PriceAtValidation,
		ValidatorAddress:  att.ValidatorAddress.Hex(),
		Signed:            att.Signed(),
		ValidationDetails: validationSnapshot{
			LowerTick:       att.ValidationDetails.LowerTick,
			UpperTick:       att.ValidationDetails.UpperTick,
			LowerPrice:      att.ValidationDetails.LowerPrice,
			UpperPrice:      att.ValidationDetails.UpperPrice,
			IsRestaked:      att.ValidationDetails.IsRestaked,
			LastActiveAt:    att.ValidationDetails.LastActiveAt.Unix(),
			InactiveSeconds: att.ValidationDetails.InactiveSeconds,
		},
	}
	if att.Signed() {
		out.Signature = hexutil.Encode(att.Signature)
	}
	return out
}

// listAttestationsResponse wraps the list attestations response.
type listAttestationsResponse struct {
	Attestations []attestationResponse `json:"attestations"`
}

// ListAttestations returns stored attestations, newest first, optionally
// filtered to one position.
// GET /api/attestations?position=0x...&limit=50&offset=0
func (h *AttestationHandler) ListAttestations(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		atts []domain.Attestation
		err  error
	)
	if p := r.URL.Query().Get("position"); p != "" {
		var id common.Hash
		id, err = parsePositionID(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		atts, err = h.attestations.ListByPosition(r.Context(), id, opts)
	} else {
		atts, err = h.attestations.List(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list attestations failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list attestations")
		return
	}

	out := make([]attestationResponse, 0, len(atts))
	for _, att := range atts {
		out = append(out, toAttestationResponse(att))
	}
	writeJSON(w, http.StatusOK, listAttestationsResponse{Attestations: out})
}

// GetAttestation returns one attestation by UUID.
// GET /api/attestations/{id}
func (h *AttestationHandler) GetAttestation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "attestation id must be a UUID")
		return
	}

	att, err := h.attestations.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attestation not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get attestation failed",
			slog.String("attestation_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get attestation")
		return
	}

	writeJSON(w, http.StatusOK, toAttestationResponse(att))
}

// verificationResponse is the wire form of a verification verdict.
type verificationResponse struct {
	Valid  bool   `json:"valid"`
	Signer string `json:"signer,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// VerifyAttestation re-checks a stored attestation: recovers the signer
// from the signature and confirms it is an approved validator.
// POST /api/attestations/{id}/verify
func (h *AttestationHandler) VerifyAttestation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "attestation id must be a UUID")
		return
	}

	att, err := h.attestations.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attestation not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: load attestation for verify failed",
			slog.String("attestation_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load attestation")
		return
	}

	verdict, err := h.verifier.VerifyAttestation(r.Context(), att)
	if err != nil {
		// Only a registry outage reaches here; a bad signature is a verdict.
		h.logger.ErrorContext(r.Context(), "handler: verification failed",
			slog.String("attestation_id", id.String()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "validator registry unavailable")
		return
	}

	out := verificationResponse{Valid: verdict.Valid, Reason: verdict.Reason}
	if verdict.Signer != nil {
		out.Signer = verdict.Signer.Hex()
	}
	writeJSON(w, http.StatusOK, out)
}
