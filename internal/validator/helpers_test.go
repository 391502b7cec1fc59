package validator_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// stubSource returns a fixed quote or error.
type stubSource struct {
	value float64
	id    domain.PriceSourceID
	err   error
}

func (s *stubSource) Quote(ctx context.Context) (domain.PriceQuote, error) {
	if s.err != nil {
		return domain.PriceQuote{}, s.err
	}
	return domain.PriceQuote{Value: s.value, Source: s.id, ObservedAt: time.Now()}, nil
}

// memStore is an in-memory AttestationStore. createErr, when set, makes
// Create fail.
type memStore struct {
	mu        sync.Mutex
	atts      []domain.Attestation
	createErr error
}

var _ domain.AttestationStore = (*memStore)(nil)

func (m *memStore) Create(ctx context.Context, att domain.Attestation) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.atts = append(m.atts, att)
	return nil
}

func (m *memStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Attestation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.atts {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Attestation{}, domain.ErrNotFound
}

func (m *memStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Attestation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Attestation, len(m.atts))
	copy(out, m.atts)
	return out, nil
}

func (m *memStore) ListByPosition(ctx context.Context, positionID common.Hash, opts domain.ListOpts) ([]domain.Attestation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Attestation
	for _, a := range m.atts {
		if a.PositionID == positionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) ListOlderThan(ctx context.Context, before time.Time, limit int) ([]domain.Attestation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Attestation
	for _, a := range m.atts {
		if a.Timestamp.Before(before) {
			out = append(out, a)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.Attestation
	var n int64
	for _, a := range m.atts {
		if a.Timestamp.Before(before) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.atts = kept
	return n, nil
}

func (m *memStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.atts)), nil
}

func (m *memStore) stored() []domain.Attestation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Attestation, len(m.atts))
	copy(out, m.atts)
	return out
}

// staticRegistry approves a fixed set of addresses. lookupErr, when set,
// makes every lookup fail. calls counts lookups.
type staticRegistry struct {
	approved  map[common.Address]bool
	lookupErr error
	calls     int
}

var _ domain.ValidatorRegistry = (*staticRegistry)(nil)

func (r *staticRegistry) IsApprovedValidator(ctx context.Context, addr common.Address) (bool, error) {
	r.calls++
	if r.lookupErr != nil {
		return false, r.lookupErr
	}
	return r.approved[addr], nil
}

// stubHook records the submitted attestation and returns a fixed response
// or error.
type stubHook struct {
	resp    json.RawMessage
	err     error
	submits int
}

var _ domain.ValidationHook = (*stubHook)(nil)

func (h *stubHook) Submit(ctx context.Context, att domain.Attestation) (json.RawMessage, error) {
	h.submits++
	if h.err != nil {
		return nil, h.err
	}
	return h.resp, nil
}
