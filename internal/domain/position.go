package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/ticks"
)

// Action identifies a position movement this service can decide and attest.
type Action string

const (
	// ActionRestake moves an inactive in-pool position into restaking.
	ActionRestake Action = "Restake"
	// ActionReturnToPool moves a restaked position back into the pool.
	ActionReturnToPool Action = "ReturnToPool"
)

// ParseAction converts a wire string into a known Action.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionRestake:
		return ActionRestake, nil
	case ActionReturnToPool:
		return ActionReturnToPool, nil
	default:
		return "", fmt.Errorf("domain: unknown action %q", s)
	}
}

// Position is a liquidity position in a tick-bounded price range. A
// position is conceptually in exactly one of two states: active in the
// pool, or restaked out of it. This service only reads positions and
// attests to movement decisions; the tracker that owns the record applies
// the actual state change.
type Position struct {
	ID           common.Hash
	Owner        common.Address
	LowerTick    int // range lower bound, price = 1.0001^tick
	UpperTick    int // range upper bound, must be > LowerTick
	IsRestaked   bool
	LastActiveAt time.Time // last observed transition into the active range
}

// InRange reports whether price falls inside the position's tick range,
// bounds included.
func (p Position) InRange(price float64) bool {
	return ticks.TickToPrice(p.LowerTick) <= price && price <= ticks.TickToPrice(p.UpperTick)
}
