package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// AttestationStore persists finished attestations. A validation is not
// complete until the write succeeds: an unstored attestation has no
// evidentiary value, so callers treat Create failures as fatal.
type AttestationStore interface {
	Create(ctx context.Context, att Attestation) error
	GetByID(ctx context.Context, id uuid.UUID) (Attestation, error)
	List(ctx context.Context, opts ListOpts) ([]Attestation, error)
	ListByPosition(ctx context.Context, positionID common.Hash, opts ListOpts) ([]Attestation, error)
	ListOlderThan(ctx context.Context, before time.Time, limit int) ([]Attestation, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// PositionStore tracks the liquidity positions under management. It is
// the collaborator that owns position state; the validation core never
// mutates a position itself.
type PositionStore interface {
	Upsert(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id common.Hash) (Position, error)
	List(ctx context.Context, opts ListOpts) ([]Position, error)
	SetRestaked(ctx context.Context, id common.Hash, restaked bool) error
	MarkActive(ctx context.Context, id common.Hash, at time.Time) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
