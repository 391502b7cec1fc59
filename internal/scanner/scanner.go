// Package scanner drives validation from observed prices. It sweeps the
// tracked positions on an interval, keeps their activity clocks honest,
// and submits movement candidates to the validation pipeline.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// MovementValidator is the slice of the validation pipeline the scanner
// needs: decide one movement and attest it when approved.
type MovementValidator interface {
	ValidatePositionMovement(ctx context.Context, pos domain.Position, action domain.Action, currentPrice float64) (domain.MovementResult, error)
}

// Config tunes the scan loop.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// LockTTL bounds how long a per-position lock may outlive its holder.
	LockTTL time.Duration
	// PageSize is the position page size per store query.
	PageSize int
	// InactivityThreshold mirrors the evaluator's restake threshold; the
	// scanner skips positions that obviously fail it instead of running
	// the full pipeline every sweep.
	InactivityThreshold time.Duration
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = time.Minute
	}
	if c.PageSize <= 0 {
		c.PageSize = 200
	}
}

// Scanner owns the sweep loop. Position state changes go through the
// store only after an approved validation, and every candidate runs under
// a distributed per-position lock so replicas never double-attest.
type Scanner struct {
	positions domain.PositionStore
	source    domain.PriceSource
	pipeline  MovementValidator
	locks     domain.LockManager
	cfg       Config
	logger    *slog.Logger
}

// New creates a Scanner.
func New(positions domain.PositionStore, source domain.PriceSource, pipeline MovementValidator, locks domain.LockManager, cfg Config, logger *slog.Logger) *Scanner {
	cfg.applyDefaults()
	return &Scanner{
		positions: positions,
		source:    source,
		pipeline:  pipeline,
		locks:     locks,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "scanner")),
	}
}

// Run sweeps on the configured interval until ctx is cancelled. Sweep
// failures are logged, not fatal: the next tick retries from scratch.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "scanner started", slog.Duration("interval", s.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.ScanOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// sweepStats aggregates one sweep for the summary log line.
type sweepStats struct {
	scanned     int
	skipped     int
	markedUp    int
	validated   int
	approved    int
	failed      int
	errNotFatal int
}

// ScanOnce performs a single sweep over every tracked position at the
// current price.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	quote, err := s.source.Quote(ctx)
	if err != nil {
		return fmt.Errorf("scanner: price quote: %w", err)
	}

	var stats sweepStats
	offset := 0
	for {
		page, err := s.positions.List(ctx, domain.ListOpts{Limit: s.cfg.PageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("scanner: list positions: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, pos := range page {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stats.scanned++
			if err := s.scanPosition(ctx, pos, quote.Value, &stats); err != nil {
				stats.errNotFatal++
				s.logger.WarnContext(ctx, "position sweep failed",
					slog.String("position", pos.ID.Hex()),
					slog.String("error", err.Error()))
			}
		}

		if len(page) < s.cfg.PageSize {
			break
		}
		offset += len(page)
	}

	s.logger.InfoContext(ctx, "sweep complete",
		slog.Float64("price", quote.Value),
		slog.Int("scanned", stats.scanned),
		slog.Int("skipped", stats.skipped),
		slog.Int("marked_active", stats.markedUp),
		slog.Int("validated", stats.validated),
		slog.Int("approved", stats.approved),
		slog.Int("rejected", stats.failed),
		slog.Int("errors", stats.errNotFatal))

	return nil
}

func (s *Scanner) scanPosition(ctx context.Context, pos domain.Position, price float64, stats *sweepStats) error {
	unlock, err := s.locks.Acquire(ctx, "position:"+pos.ID.Hex(), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			stats.skipped++
			return nil
		}
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer unlock()

	inRange := pos.InRange(price)

	if inRange {
		if err := s.positions.MarkActive(ctx, pos.ID, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark active: %w", err)
		}
		stats.markedUp++
	}

	action, ok := s.candidate(pos, inRange)
	if !ok {
		return nil
	}

	stats.validated++
	result, err := s.pipeline.ValidatePositionMovement(ctx, pos, action, price)
	if err != nil {
		return fmt.Errorf("validate %s: %w", action, err)
	}
	if !result.Success {
		stats.failed++
		s.logger.DebugContext(ctx, "movement rejected",
			slog.String("position", pos.ID.Hex()),
			slog.String("action", string(action)),
			slog.String("reason", result.Reason))
		return nil
	}

	restaked := action == domain.ActionRestake
	if err := s.positions.SetRestaked(ctx, pos.ID, restaked); err != nil {
		return fmt.Errorf("set restaked after %s: %w", action, err)
	}
	stats.approved++

	s.logger.InfoContext(ctx, "movement approved",
		slog.String("position", pos.ID.Hex()),
		slog.String("action", string(action)),
		slog.Float64("price", price))

	return nil
}

// candidate picks the movement worth validating for a position, if any.
// The pipeline re-checks every precondition; this is only a cheap filter
// so sweeps do not hammer the price sources for hopeless candidates.
func (s *Scanner) candidate(pos domain.Position, inRange bool) (domain.Action, bool) {
	switch {
	case inRange && pos.IsRestaked:
		return domain.ActionReturnToPool, true
	case !inRange && !pos.IsRestaked:
		if s.cfg.InactivityThreshold > 0 && time.Since(pos.LastActiveAt) < s.cfg.InactivityThreshold {
			return "", false
		}
		return domain.ActionRestake, true
	default:
		return "", false
	}
}
