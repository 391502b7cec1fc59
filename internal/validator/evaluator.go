package validator

import (
	"fmt"
	"sync"
	"time"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/ticks"
)

// State carries the derived values that movement preconditions are
// evaluated against. It is computed once per evaluation from the position
// record and the certified current price.
type State struct {
	IsActive    bool
	IsRestaked  bool
	InactiveFor time.Duration
	Threshold   time.Duration

	CurrentPrice float64
	LowerPrice   float64
	UpperPrice   float64
}

// Precondition is one named eligibility check for a movement action.
// Checks run in registration order and the first unmet one decides the
// result, so order the most diagnostic checks first.
type Precondition struct {
	Name string
	// Met reports whether the check passes for the given state.
	Met func(s State) bool
	// Explain returns the failure reason and diagnostic details used when
	// Met reports false.
	Explain func(s State) (string, map[string]any)
}

// Evaluator applies the movement state machine to positions. Actions are
// registered as ordered precondition lists over the derived State, so new
// movements can be added without touching the evaluation loop. It is safe
// for concurrent use.
type Evaluator struct {
	threshold time.Duration

	mu      sync.RWMutex
	actions map[domain.Action][]Precondition
}

// NewEvaluator returns an Evaluator with the two built-in actions
// registered: Restake and ReturnToPool. inactivityThreshold is the
// minimum time spent out of range before a position may be restaked.
func NewEvaluator(inactivityThreshold time.Duration) *Evaluator {
	e := &Evaluator{
		threshold: inactivityThreshold,
		actions:   make(map[domain.Action][]Precondition),
	}
	e.RegisterAction(domain.ActionRestake, restakePreconditions())
	e.RegisterAction(domain.ActionReturnToPool, returnToPoolPreconditions())
	return e
}

// RegisterAction adds or replaces the precondition list for an action.
func (e *Evaluator) RegisterAction(action domain.Action, preconditions []Precondition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions[action] = preconditions
}

// Evaluate checks whether the position is eligible for the requested
// action at the given certified price.
func (e *Evaluator) Evaluate(pos domain.Position, action domain.Action, currentPrice float64) domain.ValidationResult {
	return e.EvaluateAt(pos, action, currentPrice, time.Now())
}

// EvaluateAt is Evaluate with an explicit evaluation time, for
// deterministic tests. Preconditions are checked in order; the first
// unmet one returns a failing result identifying exactly which check
// failed, and later checks never run.
func (e *Evaluator) EvaluateAt(pos domain.Position, action domain.Action, currentPrice float64, now time.Time) domain.ValidationResult {
	e.mu.RLock()
	preconditions, ok := e.actions[action]
	e.mu.RUnlock()
	if !ok {
		return domain.Fail(fmt.Sprintf("unknown action %q", action), map[string]any{
			"action": string(action),
		})
	}

	if pos.LowerTick >= pos.UpperTick {
		return domain.Fail("position tick range is invalid", map[string]any{
			"lower_tick": pos.LowerTick,
			"upper_tick": pos.UpperTick,
		})
	}

	s := e.StateAt(pos, currentPrice, now)
	for _, p := range preconditions {
		if !p.Met(s) {
			reason, details := p.Explain(s)
			return domain.Fail(reason, details)
		}
	}
	return domain.OK()
}

// StateAt derives the evaluation state for a position at a price and time.
func (e *Evaluator) StateAt(pos domain.Position, currentPrice float64, now time.Time) State {
	lower := ticks.TickToPrice(pos.LowerTick)
	upper := ticks.TickToPrice(pos.UpperTick)
	return State{
		IsActive:     lower <= currentPrice && currentPrice <= upper,
		IsRestaked:   pos.IsRestaked,
		InactiveFor:  now.Sub(pos.LastActiveAt),
		Threshold:    e.threshold,
		CurrentPrice: currentPrice,
		LowerPrice:   lower,
		UpperPrice:   upper,
	}
}

func restakePreconditions() []Precondition {
	return []Precondition{
		{
			Name: "price out of range",
			Met:  func(s State) bool { return !s.IsActive },
			Explain: func(s State) (string, map[string]any) {
				return "position is currently active", map[string]any{
					"current_price": s.CurrentPrice,
					"lower_price":   s.LowerPrice,
					"upper_price":   s.UpperPrice,
				}
			},
		},
		{
			Name: "inactivity window elapsed",
			Met:  func(s State) bool { return s.InactiveFor >= s.Threshold },
			Explain: func(s State) (string, map[string]any) {
				return "position has not been inactive long enough", map[string]any{
					"inactive_seconds":  int64(s.InactiveFor / time.Second),
					"threshold_seconds": int64(s.Threshold / time.Second),
				}
			},
		},
		{
			Name: "not already restaked",
			Met:  func(s State) bool { return !s.IsRestaked },
			Explain: func(s State) (string, map[string]any) {
				return "position is already restaked", map[string]any{
					"is_restaked": s.IsRestaked,
				}
			},
		},
	}
}

func returnToPoolPreconditions() []Precondition {
	return []Precondition{
		{
			Name: "price in range",
			Met:  func(s State) bool { return s.IsActive },
			Explain: func(s State) (string, map[string]any) {
				return "position is not active in its range", map[string]any{
					"current_price": s.CurrentPrice,
					"lower_price":   s.LowerPrice,
					"upper_price":   s.UpperPrice,
				}
			},
		},
		{
			Name: "currently restaked",
			Met:  func(s State) bool { return s.IsRestaked },
			Explain: func(s State) (string, map[string]any) {
				return "position is not restaked", map[string]any{
					"is_restaked": s.IsRestaked,
				}
			},
		},
	}
}
