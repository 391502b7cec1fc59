package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// AttestationStore implements domain.AttestationStore using PostgreSQL.
type AttestationStore struct {
	pool *pgxpool.Pool
}

var _ domain.AttestationStore = (*AttestationStore)(nil)

// NewAttestationStore creates a new AttestationStore backed by the given
// connection pool.
func NewAttestationStore(pool *pgxpool.Pool) *AttestationStore {
	return &AttestationStore{pool: pool}
}

const attestationSelectCols = `id, position_id, owner, action, attested_at,
	price_at_validation, validator_address, validation_details,
	signature, external_validation`

func scanAttestationRow(row pgx.Row) (domain.Attestation, error) {
	var a domain.Attestation
	var positionID, owner, validatorAddr []byte
	var action string
	var detailsJSON, externalJSON []byte

	err := row.Scan(
		&a.ID, &positionID, &owner, &action, &a.Timestamp,
		&a.PriceAtValidation, &validatorAddr, &detailsJSON,
		&a.Signature, &externalJSON,
	)
	if err != nil {
		return domain.Attestation{}, err
	}

	a.PositionID = common.BytesToHash(positionID)
	a.Owner = common.BytesToAddress(owner)
	a.Action = domain.Action(action)
	a.ValidatorAddress = common.BytesToAddress(validatorAddr)
	if err := json.Unmarshal(detailsJSON, &a.ValidationDetails); err != nil {
		return domain.Attestation{}, fmt.Errorf("unmarshal validation details: %w", err)
	}
	if externalJSON != nil {
		a.ExternalValidation = json.RawMessage(externalJSON)
	}
	return a, nil
}

func scanAttestationRows(rows pgx.Rows) ([]domain.Attestation, error) {
	var atts []domain.Attestation
	for rows.Next() {
		a, err := scanAttestationRow(rows)
		if err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

// Create inserts a finished attestation.
func (s *AttestationStore) Create(ctx context.Context, att domain.Attestation) error {
	detailsJSON, err := json.Marshal(att.ValidationDetails)
	if err != nil {
		return fmt.Errorf("postgres: marshal validation details: %w", err)
	}

	const query = `
		INSERT INTO attestations (
			id, position_id, owner, action, attested_at,
			price_at_validation, validator_address, validation_details,
			signature, external_validation
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10
		)`

	_, err = s.pool.Exec(ctx, query,
		att.ID, att.PositionID.Bytes(), att.Owner.Bytes(), string(att.Action), att.Timestamp,
		att.PriceAtValidation, att.ValidatorAddress.Bytes(), detailsJSON,
		att.Signature, []byte(att.ExternalValidation),
	)
	if err != nil {
		return fmt.Errorf("postgres: create attestation %s: %w", att.ID, err)
	}
	return nil
}

// GetByID retrieves a single attestation by its ID.
func (s *AttestationStore) GetByID(ctx context.Context, id uuid.UUID) (domain.Attestation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+attestationSelectCols+` FROM attestations WHERE id = $1`, id)

	a, err := scanAttestationRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Attestation{}, domain.ErrNotFound
		}
		return domain.Attestation{}, fmt.Errorf("postgres: get attestation %s: %w", id, err)
	}
	return a, nil
}

// List returns attestations ordered newest first, with pagination.
func (s *AttestationStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Attestation, error) {
	query := `SELECT ` + attestationSelectCols + ` FROM attestations ORDER BY attested_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attestations: %w", err)
	}
	defer rows.Close()

	atts, err := scanAttestationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan attestations: %w", err)
	}
	return atts, nil
}

// ListByPosition returns attestations for one position, newest first.
func (s *AttestationStore) ListByPosition(ctx context.Context, positionID common.Hash, opts domain.ListOpts) ([]domain.Attestation, error) {
	query := `SELECT ` + attestationSelectCols + ` FROM attestations
		WHERE position_id = $1 ORDER BY attested_at DESC`
	args := []any{positionID.Bytes()}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attestations for position: %w", err)
	}
	defer rows.Close()

	atts, err := scanAttestationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan attestations for position: %w", err)
	}
	return atts, nil
}

// ListOlderThan returns up to limit attestations older than before,
// oldest first. The archiver drains batches with it.
func (s *AttestationStore) ListOlderThan(ctx context.Context, before time.Time, limit int) ([]domain.Attestation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attestationSelectCols+` FROM attestations
		 WHERE attested_at < $1 ORDER BY attested_at ASC LIMIT $2`,
		before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list attestations older than %s: %w", before, err)
	}
	defer rows.Close()

	atts, err := scanAttestationRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan old attestations: %w", err)
	}
	return atts, nil
}

// DeleteOlderThan removes attestations older than before and reports how
// many rows went away.
func (s *AttestationStore) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM attestations WHERE attested_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete attestations older than %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored attestations.
func (s *AttestationStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attestations`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count attestations: %w", err)
	}
	return n, nil
}
