package validator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// Orchestrator composes price reconciliation, state evaluation, and
// attestation into the public validation entry points. It is the single
// boundary where collaborator failures become caller-safe results: apart
// from attestation persistence, nothing below it surfaces an error to the
// caller.
type Orchestrator struct {
	primary   domain.PriceSource
	secondary domain.PriceSource
	evaluator *Evaluator
	signer    *Signer
	tolerance float64
	logger    *slog.Logger
}

// NewOrchestrator wires the validation pipeline. tolerance is the maximum
// relative disagreement accepted between the two price sources. signer may
// be nil in price-check-only wirings; movement validation then reports the
// uniform validation-error result instead of attesting.
func NewOrchestrator(primary, secondary domain.PriceSource, evaluator *Evaluator, signer *Signer, tolerance float64, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		primary:   primary,
		secondary: secondary,
		evaluator: evaluator,
		signer:    signer,
		tolerance: tolerance,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// ValidatePositionMovement runs the full decision chain for one position
// and action: certify the caller's price against the secondary source,
// evaluate the movement state machine, then generate the attestation.
// Each step short-circuits with its own reason and details surfaced
// verbatim.
//
// The error return is non-nil only when a validated decision could not be
// persisted; every other failure, including an unreachable price source,
// comes back as a failed result.
func (o *Orchestrator) ValidatePositionMovement(ctx context.Context, pos domain.Position, action domain.Action, currentPrice float64) (domain.MovementResult, error) {
	quote, err := o.secondary.Quote(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "secondary price fetch failed",
			slog.String("position_id", pos.ID.Hex()),
			slog.String("error", err.Error()),
		)
		return errorMovementResult(err), nil
	}

	if res := ReconcilePrices(currentPrice, quote.Value, o.tolerance); !res.Success {
		o.logger.InfoContext(ctx, "price reconciliation failed",
			slog.String("position_id", pos.ID.Hex()),
			slog.Float64("primary", currentPrice),
			slog.Float64("secondary", quote.Value),
		)
		return domain.MovementResult{ValidationResult: res}, nil
	}

	if res := o.evaluator.Evaluate(pos, action, currentPrice); !res.Success {
		o.logger.InfoContext(ctx, "position not eligible",
			slog.String("position_id", pos.ID.Hex()),
			slog.String("action", string(action)),
			slog.String("reason", res.Reason),
		)
		return domain.MovementResult{ValidationResult: res}, nil
	}

	if o.signer == nil {
		return errorMovementResult(errors.New("attestation signer not configured")), nil
	}

	att, err := o.signer.GenerateAttestation(ctx, pos, action, currentPrice)
	if err != nil {
		return domain.MovementResult{}, fmt.Errorf("validator: validate position movement: %w", err)
	}

	o.logger.InfoContext(ctx, "position movement validated",
		slog.String("position_id", pos.ID.Hex()),
		slog.String("action", string(action)),
		slog.String("attestation_id", att.ID.String()),
	)
	return domain.MovementResult{
		ValidationResult: domain.OK(),
		Attestation:      &att,
	}, nil
}

// ValidateMultiplePrices fetches both price sources concurrently and
// reconciles them, independent of any position. Fetch failures are
// reported in the result, never as an error; the result always carries
// both observations and their arithmetic mean when both fetches succeed.
func (o *Orchestrator) ValidateMultiplePrices(ctx context.Context) domain.PriceCheckResult {
	var primary, secondary domain.PriceQuote

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := o.primary.Quote(gctx)
		if err != nil {
			return fmt.Errorf("primary source: %w", err)
		}
		primary = q
		return nil
	})
	g.Go(func() error {
		q, err := o.secondary.Quote(gctx)
		if err != nil {
			return fmt.Errorf("secondary source: %w", err)
		}
		secondary = q
		return nil
	})
	if err := g.Wait(); err != nil {
		o.logger.WarnContext(ctx, "price check fetch failed", slog.String("error", err.Error()))
		return domain.PriceCheckResult{ValidationResult: errorResult(err)}
	}

	res := ReconcilePrices(primary.Value, secondary.Value, o.tolerance)
	return domain.PriceCheckResult{
		ValidationResult: res,
		PrimaryPrice:     primary.Value,
		SecondaryPrice:   secondary.Value,
		AveragePrice:     (primary.Value + secondary.Value) / 2,
	}
}

// errorResult is the uniform caller-safe shape for unexpected collaborator
// failures.
func errorResult(err error) domain.ValidationResult {
	return domain.Fail("Validation error", map[string]any{"error": err.Error()})
}

func errorMovementResult(err error) domain.MovementResult {
	return domain.MovementResult{ValidationResult: errorResult(err)}
}
