package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// ValidationPipeline defines the methods that the validation handler
// requires from the orchestrator.
type ValidationPipeline interface {
	ValidatePositionMovement(ctx context.Context, pos domain.Position, action domain.Action, currentPrice float64) (domain.MovementResult, error)
	ValidateMultiplePrices(ctx context.Context) domain.PriceCheckResult
}

// ValidationHandler serves the manual validation trigger and the standalone
// price check.
type ValidationHandler struct {
	pipeline  ValidationPipeline
	positions PositionStore
	source    domain.PriceSource
	logger    *slog.Logger
}

// NewValidationHandler creates a ValidationHandler. source supplies the
// current price when the request does not carry one.
func NewValidationHandler(pipeline ValidationPipeline, positions PositionStore, source domain.PriceSource, logger *slog.Logger) *ValidationHandler {
	return &ValidationHandler{
		pipeline:  pipeline,
		positions: positions,
		source:    source,
		logger:    logger,
	}
}

// validateRequest is the body for a manual movement validation.
// current_price is optional: zero or absent means "fetch it".
type validateRequest struct {
	PositionID   string  `json:"position_id"`
	Action       string  `json:"action"`
	CurrentPrice float64 `json:"current_price"`
}

// movementResponse is the wire form of a movement validation outcome.
type movementResponse struct {
	Success     bool                 `json:"success"`
	Reason      string               `json:"reason,omitempty"`
	Details     map[string]any       `json:"details,omitempty"`
	Attestation *attestationResponse `json:"attestation,omitempty"`
}

// ValidatePosition runs the full validation chain for one position and
// action. Collaborator failures come back as failed results with HTTP 200;
// only a lost attestation write is a 500.
// POST /api/validate
func (h *ValidationHandler) ValidatePosition(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := parsePositionID(req.PositionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, `action must be "Restake" or "ReturnToPool"`)
		return
	}
	if req.CurrentPrice < 0 {
		writeError(w, http.StatusBadRequest, "current_price must not be negative")
		return
	}

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: load position for validation failed",
			slog.String("position_id", id.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load position")
		return
	}

	price := req.CurrentPrice
	if price == 0 {
		quote, err := h.source.Quote(r.Context())
		if err != nil {
			// Same caller-safe shape the orchestrator uses for a dead
			// collaborator.
			h.logger.WarnContext(r.Context(), "handler: price fetch for validation failed",
				slog.String("position_id", id.Hex()),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusOK, movementResponse{
				Reason:  "Validation error",
				Details: map[string]any{"error": err.Error()},
			})
			return
		}
		price = quote.Value
	}

	res, err := h.pipeline.ValidatePositionMovement(r.Context(), pos, action, price)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: validation failed",
			slog.String("position_id", id.Hex()),
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to persist attestation")
		return
	}

	out := movementResponse{
		Success: res.Success,
		Reason:  res.Reason,
		Details: res.Details,
	}
	if res.Attestation != nil {
		att := toAttestationResponse(*res.Attestation)
		out.Attestation = &att
	}
	writeJSON(w, http.StatusOK, out)
}

// priceCheckResponse is the wire form of a standalone two-source check.
// Prices are zero when the corresponding fetch failed.
type priceCheckResponse struct {
	Success        bool           `json:"success"`
	Reason         string         `json:"reason,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	PrimaryPrice   float64        `json:"primary_price"`
	SecondaryPrice float64        `json:"secondary_price"`
	AveragePrice   float64        `json:"average_price"`
}

// CheckPrices fetches both sources and reconciles them.
// GET /api/prices/check
func (h *ValidationHandler) CheckPrices(w http.ResponseWriter, r *http.Request) {
	res := h.pipeline.ValidateMultiplePrices(r.Context())
	writeJSON(w, http.StatusOK, priceCheckResponse{
		Success:        res.Success,
		Reason:         res.Reason,
		Details:        res.Details,
		PrimaryPrice:   res.PrimaryPrice,
		SecondaryPrice: res.SecondaryPrice,
		AveragePrice:   res.AveragePrice,
	})
}
