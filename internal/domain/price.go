package domain

import (
	"context"
	"time"
)

// PriceSourceID identifies which independent observer produced a quote.
type PriceSourceID string

const (
	SourcePrimary   PriceSourceID = "primary"
	SourceSecondary PriceSourceID = "secondary"
)

// PriceQuote is a single spot price observation. Quotes are fetched fresh
// for every validation and are never persisted.
type PriceQuote struct {
	Value      float64
	Source     PriceSourceID
	ObservedAt time.Time
}

// PriceSource produces the latest quote for the instrument it is bound to.
type PriceSource interface {
	Quote(ctx context.Context) (PriceQuote, error)
}
