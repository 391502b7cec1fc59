package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

// FallbackSource serves quotes from a preferred source and falls back to a
// second one when the preferred source cannot produce a fresh quote. The
// usual pairing is the websocket ticker backed by the REST client, so a
// stream hiccup degrades to a slower poll instead of failing validation.
type FallbackSource struct {
	preferred domain.PriceSource
	fallback  domain.PriceSource
	logger    *slog.Logger
}

var _ domain.PriceSource = (*FallbackSource)(nil)

func NewFallbackSource(preferred, fallback domain.PriceSource, logger *slog.Logger) *FallbackSource {
	return &FallbackSource{
		preferred: preferred,
		fallback:  fallback,
		logger:    logger.With(slog.String("component", "price_feed")),
	}
}

func (f *FallbackSource) Quote(ctx context.Context) (domain.PriceQuote, error) {
	quote, err := f.preferred.Quote(ctx)
	if err == nil {
		return quote, nil
	}

	f.logger.WarnContext(ctx, "preferred price source failed, using fallback",
		slog.String("error", err.Error()))

	quote, fbErr := f.fallback.Quote(ctx)
	if fbErr != nil {
		return domain.PriceQuote{}, fmt.Errorf("feed: both sources failed: %w (preferred: %v)", fbErr, err)
	}
	return quote, nil
}
