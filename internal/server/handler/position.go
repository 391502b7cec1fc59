package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/ticks"
)

// PositionStore defines the methods that the position handler requires.
type PositionStore interface {
	Upsert(ctx context.Context, pos domain.Position) error
	GetByID(ctx context.Context, id common.Hash) (domain.Position, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionStore
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given store and logger.
func NewPositionHandler(positions PositionStore, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// positionResponse is the wire form of a position. last_active_at travels
// as Unix seconds, matching the upsert request; the price bounds are
// derived from the ticks so callers need not convert themselves.
type positionResponse struct {
	ID           string  `json:"id"`
	Owner        string  `json:"owner"`
	LowerTick    int     `json:"lower_tick"`
	UpperTick    int     `json:"upper_tick"`
	LowerPrice   float64 `json:"lower_price"`
	UpperPrice   float64 `json:"upper_price"`
	IsRestaked   bool    `json:"is_restaked"`
	LastActiveAt int64   `json:"last_active_at"`
}

func toPositionResponse(pos domain.Position) positionResponse {
	return positionResponse{
		ID:           pos.ID.Hex(),
		Owner:        pos.Owner.Hex(),
		LowerTick:    pos.LowerTick,
		UpperTick:    pos.UpperTick,
		LowerPrice:   ticks.TickToPrice(pos.LowerTick),
		UpperPrice:   ticks.TickToPrice(pos.UpperTick),
		IsRestaked:   pos.IsRestaked,
		LastActiveAt: pos.LastActiveAt.Unix(),
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []positionResponse `json:"positions"`
}

// ListPositions returns tracked positions, paginated.
// GET /api/positions?limit=50&offset=0
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	positions, err := h.positions.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, pos := range positions {
		out = append(out, toPositionResponse(pos))
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out})
}

// GetPosition returns one position by its hash ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := parsePositionID(pathParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("position_id", id.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

// upsertPositionRequest is the body for creating or replacing a tracked
// position. last_active_at is Unix seconds; zero means "now".
type upsertPositionRequest struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	LowerTick    int    `json:"lower_tick"`
	UpperTick    int    `json:"upper_tick"`
	IsRestaked   bool   `json:"is_restaked"`
	LastActiveAt int64  `json:"last_active_at"`
}

// UpsertPosition inserts or replaces a tracked position.
// POST /api/positions
func (h *PositionHandler) UpsertPosition(w http.ResponseWriter, r *http.Request) {
	var req upsertPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	id, err := parsePositionID(req.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !common.IsHexAddress(req.Owner) {
		writeError(w, http.StatusBadRequest, "owner must be a hex address")
		return
	}
	if req.LowerTick >= req.UpperTick {
		writeError(w, http.StatusBadRequest, "lower_tick must be below upper_tick")
		return
	}

	pos := domain.Position{
		ID:           id,
		Owner:        common.HexToAddress(req.Owner),
		LowerTick:    req.LowerTick,
		UpperTick:    req.UpperTick,
		IsRestaked:   req.IsRestaked,
		LastActiveAt: time.Unix(req.LastActiveAt, 0).UTC(),
	}
	if req.LastActiveAt == 0 {
		pos.LastActiveAt = time.Now().UTC()
	}

	if err := h.positions.Upsert(r.Context(), pos); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: upsert position failed",
			slog.String("position_id", id.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store position")
		return
	}

	writeJSON(w, http.StatusCreated, toPositionResponse(pos))
}
