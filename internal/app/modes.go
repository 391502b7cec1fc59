package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/feed"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/scanner"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/server/handler"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/server/middleware"
)

// ServeMode runs the HTTP API alone: no sweeping, no archival. Positions
// move only through manual validation requests.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, but serve mode always runs the HTTP API")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ScanMode runs the position sweep loop and the attestation archive
// ticker without the HTTP API.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scan mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScanner(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// FullMode starts all subsystems: the sweep loop, the archive ticker, and
// the HTTP API.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScanner(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	return g.Wait()
}

// priceCheckOutput is the stdout shape of a one-shot price check. It
// matches the GET /api/prices/check response.
type priceCheckOutput struct {
	Success        bool           `json:"success"`
	Reason         string         `json:"reason,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	PrimaryPrice   float64        `json:"primary_price"`
	SecondaryPrice float64        `json:"secondary_price"`
	AveragePrice   float64        `json:"average_price"`
}

// CheckMode performs a single dual-source price check, prints the result
// as JSON on stdout, and returns. The process exits cleanly whatever the
// verdict; the output carries it.
func (a *App) CheckMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "running one-shot price check")

	res := deps.Orchestrator.ValidateMultiplePrices(ctx)

	out := priceCheckOutput{
		Success:        res.Success,
		Reason:         res.Reason,
		Details:        res.Details,
		PrimaryPrice:   res.PrimaryPrice,
		SecondaryPrice: res.SecondaryPrice,
		AveragePrice:   res.AveragePrice,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("check mode: encode result: %w", err)
	}
	return nil
}

// startScanner adds the sweep loop to the errgroup. When the live feed is
// enabled the scanner reads from it and falls back to the REST source
// while the stream is stale or still connecting.
func (a *App) startScanner(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	source := deps.PrimarySource
	if a.cfg.Feed.Enabled {
		wsFeed := feed.NewBinanceWSFeed(
			a.cfg.Feed.StreamURL,
			a.cfg.Primary.Symbol,
			a.cfg.Feed.MaxAge.Duration,
			a.logger,
		)
		g.Go(func() error {
			defer wsFeed.Close()
			return wsFeed.Run(ctx)
		})
		source = feed.NewFallbackSource(wsFeed, deps.PrimarySource, a.logger)
	}

	sc := scanner.New(deps.PositionStore, source, deps.Orchestrator, deps.LockManager, scanner.Config{
		Interval:            a.cfg.Scanner.Interval.Duration,
		LockTTL:             a.cfg.Scanner.LockTTL.Duration,
		PageSize:            a.cfg.Scanner.PageSize,
		InactivityThreshold: a.cfg.InactivityThreshold(),
	}, a.logger)

	g.Go(func() error {
		return sc.Run(ctx)
	})
}

// startArchiver adds the attestation archive ticker to the errgroup.
// Archive runs are best effort: a failed run is logged and retried on the
// next tick.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		a.logger.WarnContext(ctx, "archiver not wired, attestation archival disabled")
		return
	}

	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	interval := a.cfg.Archive.Interval.Duration

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		a.logger.InfoContext(ctx, "archiver started",
			slog.Duration("interval", interval),
			slog.Int("retention_days", a.cfg.Archive.RetentionDays),
		)

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				archived, err := deps.Archiver.ArchiveAttestations(ctx, time.Now().UTC().Add(-retention))
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
					continue
				}
				if archived > 0 {
					a.logger.InfoContext(ctx, "archive run complete", slog.Int64("archived", archived))
				}
			}
		}
	})
}

// startHTTPServer adds an HTTP server goroutine to the given errgroup. It
// registers the REST handlers and shuts the server down gracefully when
// the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)

	mux := http.NewServeMux()

	signing := deps.Signer != nil && deps.Signer.Signing()
	health := handler.NewHealthHandler(signing, a.logger)
	mux.HandleFunc("GET /api/health", health.HealthCheck)

	ph := handler.NewPositionHandler(deps.PositionStore, a.logger)
	mux.HandleFunc("GET /api/positions", ph.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", ph.GetPosition)
	mux.HandleFunc("POST /api/positions", ph.UpsertPosition)

	ah := handler.NewAttestationHandler(deps.AttestationStore, deps.Verifier, a.logger)
	mux.HandleFunc("GET /api/attestations", ah.ListAttestations)
	mux.HandleFunc("GET /api/attestations/{id}", ah.GetAttestation)
	mux.HandleFunc("POST /api/attestations/{id}/verify", ah.VerifyAttestation)

	vh := handler.NewValidationHandler(deps.Orchestrator, deps.PositionStore, deps.PrimarySource, a.logger)
	mux.HandleFunc("POST /api/validate", vh.ValidatePosition)
	mux.HandleFunc("GET /api/prices/check", vh.CheckPrices)

	// Middleware chain: CORS then logging.
	var h http.Handler = mux
	if len(a.cfg.Server.CORSOrigins) > 0 {
		h = middleware.CORS(a.cfg.Server.CORSOrigins)(h)
	}
	h = middleware.Logging(a.logger)(h)

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.String("addr", addr),
			slog.Int("port", a.cfg.Server.Port),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.InfoContext(ctx, "HTTP server shutting down")
		return srv.Shutdown(shutCtx)
	})
}
