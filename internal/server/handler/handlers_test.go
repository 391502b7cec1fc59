package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/server/handler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// --- fakes -----------------------------------------------------------------

type fakePositions struct {
	byID    map[common.Hash]domain.Position
	list    []domain.Position
	upserts []domain.Position
	err     error
}

func (f *fakePositions) Upsert(_ context.Context, pos domain.Position) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, pos)
	return nil
}

func (f *fakePositions) GetByID(_ context.Context, id common.Hash) (domain.Position, error) {
	if f.err != nil {
		return domain.Position{}, f.err
	}
	pos, ok := f.byID[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (f *fakePositions) List(_ context.Context, _ domain.ListOpts) ([]domain.Position, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

type fakeAttestations struct {
	byID map[uuid.UUID]domain.Attestation
	list []domain.Attestation

	lastPositionFilter *common.Hash
}

func (f *fakeAttestations) GetByID(_ context.Context, id uuid.UUID) (domain.Attestation, error) {
	att, ok := f.byID[id]
	if !ok {
		return domain.Attestation{}, domain.ErrNotFound
	}
	return att, nil
}

func (f *fakeAttestations) List(_ context.Context, _ domain.ListOpts) ([]domain.Attestation, error) {
	return f.list, nil
}

func (f *fakeAttestations) ListByPosition(_ context.Context, positionID common.Hash, _ domain.ListOpts) ([]domain.Attestation, error) {
	f.lastPositionFilter = &positionID
	var out []domain.Attestation
	for _, att := range f.list {
		if att.PositionID == positionID {
			out = append(out, att)
		}
	}
	return out, nil
}

type fakeVerifier struct {
	result domain.VerificationResult
	err    error
}

func (f *fakeVerifier) VerifyAttestation(_ context.Context, _ domain.Attestation) (domain.VerificationResult, error) {
	return f.result, f.err
}

type fakePipeline struct {
	movement domain.MovementResult
	moveErr  error
	check    domain.PriceCheckResult

	gotAction domain.Action
	gotPrice  float64
}

func (f *fakePipeline) ValidatePositionMovement(_ context.Context, _ domain.Position, action domain.Action, currentPrice float64) (domain.MovementResult, error) {
	f.gotAction = action
	f.gotPrice = currentPrice
	return f.movement, f.moveErr
}

func (f *fakePipeline) ValidateMultiplePrices(_ context.Context) domain.PriceCheckResult {
	return f.check
}

type stubSource struct {
	value float64
	err   error
}

func (s *stubSource) Quote(_ context.Context) (domain.PriceQuote, error) {
	if s.err != nil {
		return domain.PriceQuote{}, s.err
	}
	return domain.PriceQuote{Value: s.value, Source: domain.SourcePrimary, ObservedAt: time.Now()}, nil
}

// --- helpers ----------------------------------------------------------------

var (
	posID  = common.HexToHash("0x01")
	owner  = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
	valAdr = common.HexToAddress("0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65")
)

func samplePosition() domain.Position {
	return domain.Position{
		ID:           posID,
		Owner:        owner,
		LowerTick:    100,
		UpperTick:    200,
		IsRestaked:   false,
		LastActiveAt: time.Unix(1700000000, 0).UTC(),
	}
}

func sampleAttestation() domain.Attestation {
	return domain.Attestation{
		ID:                uuid.MustParse("a2a8c5e1-0a1e-4a7b-9a5e-000000000001"),
		PositionID:        posID,
		Owner:             owner,
		Action:            domain.ActionRestake,
		Timestamp:         time.Unix(1700000000, 0).UTC(),
		PriceAtValidation: 1234.5,
		ValidatorAddress:  valAdr,
		Signature:         make([]byte, 65),
	}
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("response is not a JSON object: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, out
}

// --- tests -------------------------------------------------------------------

func TestHealthCheck(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handler.NewHealthHandler(true, testLogger()).HealthCheck)

	rec, body := doJSON(t, mux, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf(`status field = %v, want "ok"`, body["status"])
	}
	if body["signing"] != true {
		t.Errorf("signing = %v, want true", body["signing"])
	}
}

func newPositionMux(store *fakePositions) *http.ServeMux {
	h := handler.NewPositionHandler(store, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/positions", h.ListPositions)
	mux.HandleFunc("POST /api/positions", h.UpsertPosition)
	mux.HandleFunc("GET /api/positions/{id}", h.GetPosition)
	return mux
}

func TestListPositions(t *testing.T) {
	store := &fakePositions{list: []domain.Position{samplePosition()}}
	rec, body := doJSON(t, newPositionMux(store), http.MethodGet, "/api/positions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	items, _ := body["positions"].([]any)
	if len(items) != 1 {
		t.Fatalf("positions = %v", body["positions"])
	}
	first, _ := items[0].(map[string]any)
	if first["id"] != posID.Hex() {
		t.Errorf("id = %v, want %s", first["id"], posID.Hex())
	}
	if first["last_active_at"] != float64(1700000000) {
		t.Errorf("last_active_at = %v, want unix seconds", first["last_active_at"])
	}
	lower, _ := first["lower_price"].(float64)
	upper, _ := first["upper_price"].(float64)
	if !(lower > 1.0 && upper > lower) {
		t.Errorf("derived price bounds (%v, %v) look wrong", lower, upper)
	}
}

func TestGetPosition(t *testing.T) {
	store := &fakePositions{byID: map[common.Hash]domain.Position{posID: samplePosition()}}
	mux := newPositionMux(store)

	rec, body := doJSON(t, mux, http.MethodGet, "/api/positions/"+posID.Hex(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	if body["owner"] != owner.Hex() {
		t.Errorf("owner = %v", body["owner"])
	}

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/positions/"+common.HexToHash("0xff").Hex(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing position: status = %d, want 404", rec.Code)
	}

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/positions/not-a-hash", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: status = %d, want 400", rec.Code)
	}
}

func TestUpsertPosition(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		store := &fakePositions{}
		body := `{"id":"` + posID.Hex() + `","owner":"` + owner.Hex() + `","lower_tick":100,"upper_tick":200,"is_restaked":true,"last_active_at":1700000000}`
		rec, resp := doJSON(t, newPositionMux(store), http.MethodPost, "/api/positions", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %v", rec.Code, resp)
		}
		if len(store.upserts) != 1 {
			t.Fatal("position not stored")
		}
		got := store.upserts[0]
		if !got.IsRestaked || got.LowerTick != 100 || got.UpperTick != 200 {
			t.Errorf("stored position = %+v", got)
		}
		if got.LastActiveAt.Unix() != 1700000000 {
			t.Errorf("LastActiveAt = %v", got.LastActiveAt)
		}
	})

	t.Run("zero last_active_at defaults to now", func(t *testing.T) {
		store := &fakePositions{}
		body := `{"id":"` + posID.Hex() + `","owner":"` + owner.Hex() + `","lower_tick":-50,"upper_tick":50}`
		rec, _ := doJSON(t, newPositionMux(store), http.MethodPost, "/api/positions", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d", rec.Code)
		}
		if age := time.Since(store.upserts[0].LastActiveAt); age < 0 || age > time.Minute {
			t.Errorf("LastActiveAt = %v, want roughly now", store.upserts[0].LastActiveAt)
		}
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		cases := map[string]string{
			"bad json":       `{`,
			"bad id":         `{"id":"123","owner":"` + owner.Hex() + `","lower_tick":1,"upper_tick":2}`,
			"bad owner":      `{"id":"` + posID.Hex() + `","owner":"bob","lower_tick":1,"upper_tick":2}`,
			"inverted range": `{"id":"` + posID.Hex() + `","owner":"` + owner.Hex() + `","lower_tick":2,"upper_tick":1}`,
		}
		for name, body := range cases {
			t.Run(name, func(t *testing.T) {
				store := &fakePositions{}
				rec, _ := doJSON(t, newPositionMux(store), http.MethodPost, "/api/positions", body)
				if rec.Code != http.StatusBadRequest {
					t.Errorf("status = %d, want 400", rec.Code)
				}
				if len(store.upserts) != 0 {
					t.Error("malformed input reached the store")
				}
			})
		}
	})
}

func newAttestationMux(store *fakeAttestations, verifier *fakeVerifier) *http.ServeMux {
	h := handler.NewAttestationHandler(store, verifier, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/attestations", h.ListAttestations)
	mux.HandleFunc("GET /api/attestations/{id}", h.GetAttestation)
	mux.HandleFunc("POST /api/attestations/{id}/verify", h.VerifyAttestation)
	return mux
}

func TestListAttestations(t *testing.T) {
	att := sampleAttestation()
	other := sampleAttestation()
	other.ID = uuid.MustParse("a2a8c5e1-0a1e-4a7b-9a5e-000000000002")
	other.PositionID = common.HexToHash("0x02")
	store := &fakeAttestations{list: []domain.Attestation{att, other}}
	mux := newAttestationMux(store, &fakeVerifier{})

	rec, body := doJSON(t, mux, http.MethodGet, "/api/attestations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if items, _ := body["attestations"].([]any); len(items) != 2 {
		t.Errorf("attestations = %v", body["attestations"])
	}

	rec, body = doJSON(t, mux, http.MethodGet, "/api/attestations?position="+posID.Hex(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("filtered status = %d", rec.Code)
	}
	items, _ := body["attestations"].([]any)
	if len(items) != 1 {
		t.Fatalf("filtered attestations = %v", body["attestations"])
	}
	if store.lastPositionFilter == nil || *store.lastPositionFilter != posID {
		t.Error("position filter not forwarded to the store")
	}

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/attestations?position=zzz", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad filter: status = %d, want 400", rec.Code)
	}
}

func TestGetAttestation(t *testing.T) {
	att := sampleAttestation()
	store := &fakeAttestations{byID: map[uuid.UUID]domain.Attestation{att.ID: att}}
	mux := newAttestationMux(store, &fakeVerifier{})

	rec, body := doJSON(t, mux, http.MethodGet, "/api/attestations/"+att.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["signed"] != true {
		t.Error("signed attestation reported unsigned")
	}
	sig, _ := body["signature"].(string)
	if !strings.HasPrefix(sig, "0x") || len(sig) != 2+65*2 {
		t.Errorf("signature = %q, want 65-byte hex", sig)
	}

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/attestations/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing attestation: status = %d, want 404", rec.Code)
	}

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/attestations/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed id: status = %d, want 400", rec.Code)
	}
}

func TestVerifyAttestation(t *testing.T) {
	att := sampleAttestation()
	store := &fakeAttestations{byID: map[uuid.UUID]domain.Attestation{att.ID: att}}

	t.Run("verdict passthrough", func(t *testing.T) {
		verifier := &fakeVerifier{result: domain.VerificationResult{Valid: true, Signer: &valAdr}}
		mux := newAttestationMux(store, verifier)
		rec, body := doJSON(t, mux, http.MethodPost, "/api/attestations/"+att.ID.String()+"/verify", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if body["valid"] != true {
			t.Error("verdict not forwarded")
		}
		if body["signer"] != valAdr.Hex() {
			t.Errorf("signer = %v", body["signer"])
		}
	})

	t.Run("invalid verdict is still 200", func(t *testing.T) {
		verifier := &fakeVerifier{result: domain.VerificationResult{Valid: false, Reason: "attestation is not signed"}}
		mux := newAttestationMux(store, verifier)
		rec, body := doJSON(t, mux, http.MethodPost, "/api/attestations/"+att.ID.String()+"/verify", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if body["valid"] != false || body["reason"] != "attestation is not signed" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("registry outage is 503", func(t *testing.T) {
		verifier := &fakeVerifier{err: domain.ErrSourceUnavailable}
		mux := newAttestationMux(store, verifier)
		rec, _ := doJSON(t, mux, http.MethodPost, "/api/attestations/"+att.ID.String()+"/verify", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func newValidationMux(pipeline *fakePipeline, store *fakePositions, source *stubSource) *http.ServeMux {
	h := handler.NewValidationHandler(pipeline, store, source, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/validate", h.ValidatePosition)
	mux.HandleFunc("GET /api/prices/check", h.CheckPrices)
	return mux
}

func TestValidatePosition(t *testing.T) {
	store := &fakePositions{byID: map[common.Hash]domain.Position{posID: samplePosition()}}

	t.Run("success carries the attestation", func(t *testing.T) {
		att := sampleAttestation()
		pipeline := &fakePipeline{movement: domain.MovementResult{ValidationResult: domain.OK(), Attestation: &att}}
		mux := newValidationMux(pipeline, store, &stubSource{value: 999})

		body := `{"position_id":"` + posID.Hex() + `","action":"Restake","current_price":1000}`
		rec, resp := doJSON(t, mux, http.MethodPost, "/api/validate", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %v", rec.Code, resp)
		}
		if resp["success"] != true {
			t.Fatalf("success = %v", resp["success"])
		}
		if pipeline.gotAction != domain.ActionRestake || pipeline.gotPrice != 1000 {
			t.Errorf("pipeline saw (%v, %v)", pipeline.gotAction, pipeline.gotPrice)
		}
		attBody, _ := resp["attestation"].(map[string]any)
		if attBody == nil || attBody["action"] != "Restake" {
			t.Errorf("attestation = %v", resp["attestation"])
		}
	})

	t.Run("price fetched when omitted", func(t *testing.T) {
		pipeline := &fakePipeline{movement: domain.MovementResult{ValidationResult: domain.OK()}}
		mux := newValidationMux(pipeline, store, &stubSource{value: 2345})

		body := `{"position_id":"` + posID.Hex() + `","action":"Restake"}`
		rec, _ := doJSON(t, mux, http.MethodPost, "/api/validate", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if pipeline.gotPrice != 2345 {
			t.Errorf("pipeline price = %v, want the fetched quote", pipeline.gotPrice)
		}
	})

	t.Run("dead source is a failed result, not a 5xx", func(t *testing.T) {
		pipeline := &fakePipeline{}
		mux := newValidationMux(pipeline, store, &stubSource{err: domain.ErrSourceUnavailable})

		body := `{"position_id":"` + posID.Hex() + `","action":"Restake"}`
		rec, resp := doJSON(t, mux, http.MethodPost, "/api/validate", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if resp["success"] != false || resp["reason"] != "Validation error" {
			t.Errorf("body = %v", resp)
		}
	})

	t.Run("unknown position is 404", func(t *testing.T) {
		mux := newValidationMux(&fakePipeline{}, store, &stubSource{value: 1})
		body := `{"position_id":"` + common.HexToHash("0xff").Hex() + `","action":"Restake","current_price":1}`
		rec, _ := doJSON(t, mux, http.MethodPost, "/api/validate", body)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("unknown action is 400", func(t *testing.T) {
		mux := newValidationMux(&fakePipeline{}, store, &stubSource{value: 1})
		body := `{"position_id":"` + posID.Hex() + `","action":"Withdraw","current_price":1}`
		rec, _ := doJSON(t, mux, http.MethodPost, "/api/validate", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("lost attestation write is 500", func(t *testing.T) {
		pipeline := &fakePipeline{moveErr: domain.ErrSigningFailed}
		mux := newValidationMux(pipeline, store, &stubSource{value: 1})
		body := `{"position_id":"` + posID.Hex() + `","action":"Restake","current_price":1}`
		rec, _ := doJSON(t, mux, http.MethodPost, "/api/validate", body)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestCheckPrices(t *testing.T) {
	pipeline := &fakePipeline{check: domain.PriceCheckResult{
		ValidationResult: domain.OK(),
		PrimaryPrice:     2500,
		SecondaryPrice:   2450,
		AveragePrice:     2475,
	}}
	mux := newValidationMux(pipeline, &fakePositions{}, &stubSource{value: 1})

	rec, body := doJSON(t, mux, http.MethodGet, "/api/prices/check", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["success"] != true {
		t.Error("success not forwarded")
	}
	if body["primary_price"] != 2500.0 || body["secondary_price"] != 2450.0 || body["average_price"] != 2475.0 {
		t.Errorf("prices = %v / %v / %v", body["primary_price"], body["secondary_price"], body["average_price"])
	}
}
