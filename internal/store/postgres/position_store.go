package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PositionStore backed by the given
// connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, owner, lower_tick, upper_tick, is_restaked, last_active_at`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var id, owner []byte

	err := row.Scan(&id, &owner, &p.LowerTick, &p.UpperTick, &p.IsRestaked, &p.LastActiveAt)
	if err != nil {
		return domain.Position{}, err
	}
	p.ID = common.BytesToHash(id)
	p.Owner = common.BytesToAddress(owner)
	return p, nil
}

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Upsert inserts a position or replaces its mutable fields when the id
// already exists.
func (s *PositionStore) Upsert(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, owner, lower_tick, upper_tick, is_restaked, last_active_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			owner          = EXCLUDED.owner,
			lower_tick     = EXCLUDED.lower_tick,
			upper_tick     = EXCLUDED.upper_tick,
			is_restaked    = EXCLUDED.is_restaked,
			last_active_at = EXCLUDED.last_active_at,
			updated_at     = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ID.Bytes(), p.Owner.Bytes(), p.LowerTick, p.UpperTick, p.IsRestaked, p.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", p.ID.Hex(), err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id common.Hash) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id.Bytes())

	p, err := scanPositionRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id.Hex(), err)
	}
	return p, nil
}

// List returns positions ordered by most recent activity, with pagination.
func (s *PositionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions ORDER BY last_active_at DESC`
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
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions: %w", err)
	}
	return positions, nil
}

// SetRestaked flips the restaked flag after an approved movement.
func (s *PositionStore) SetRestaked(ctx context.Context, id common.Hash, restaked bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions SET is_restaked = $2, updated_at = NOW() WHERE id = $1`,
		id.Bytes(), restaked)
	if err != nil {
		return fmt.Errorf("postgres: set restaked on position %s: %w", id.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkActive records that the position was observed in range at the given
// time. The inactivity clock restarts from it.
func (s *PositionStore) MarkActive(ctx context.Context, id common.Hash, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions SET last_active_at = $2, updated_at = NOW() WHERE id = $1`,
		id.Bytes(), at)
	if err != nil {
		return fmt.Errorf("postgres: mark position %s active: %w", id.Hex(), err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
