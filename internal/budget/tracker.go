// Package budget accounts token usage and cost of completion calls.
package budget

import (
	"errors"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
)

// ErrExhausted is returned by Check once the spend limit is reached.
var ErrExhausted = errors.New("budget: spend limit reached")

// Usage holds token counts for a single completion.
type Usage struct {
	InputTokens              int
	OutputTokens             int
	CacheReadInputTokens     int
	CacheCreationInputTokens int
}

// TotalInput sums every input token category.
func (u Usage) TotalInput() int {
	return u.InputTokens + u.CacheReadInputTokens + u.CacheCreationInputTokens
}

func (u Usage) add(o Usage) Usage {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheReadInputTokens += o.CacheReadInputTokens
	u.CacheCreationInputTokens += o.CacheCreationInputTokens
	return u
}

// ModelTotals aggregates the calls made against one model.
type ModelTotals struct {
	Calls int
	Usage Usage
	Cost  decimal.Decimal
}

// Tracker accumulates usage and cost across completions. It is safe for
// concurrent use.
type Tracker struct {
	mu       sync.Mutex
	limit    decimal.Decimal // zero means unlimited
	pricing  map[anthropic.Model]ModelPricing
	total    ModelTotals
	perModel map[anthropic.Model]ModelTotals
}

// NewTracker creates a tracker. A zero limit means unlimited; nil pricing
// uses DefaultPricing.
func NewTracker(limit decimal.Decimal, pricing map[anthropic.Model]ModelPricing) *Tracker {
	if pricing == nil {
		pricing = DefaultPricing
	}
	return &Tracker{
		limit:    limit,
		pricing:  pricing,
		total:    ModelTotals{Cost: decimal.Zero},
		perModel: make(map[anthropic.Model]ModelTotals),
	}
}

// Record adds one completion's usage and returns its cost. Models without
// pricing are counted at zero cost.
func (t *Tracker) Record(model anthropic.Model, u Usage) decimal.Decimal {
	cost := decimal.Zero
	if p, ok := Lookup(t.pricing, model); ok {
		cost = p.Cost(u)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.total.Calls++
	t.total.Usage = t.total.Usage.add(u)
	t.total.Cost = t.total.Cost.Add(cost)

	m := t.perModel[model]
	m.Calls++
	m.Usage = m.Usage.add(u)
	m.Cost = m.Cost.Add(cost)
	t.perModel[model] = m
	return cost
}

// Totals returns the cumulative totals.
func (t *Tracker) Totals() ModelTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// ByModel returns a copy of the per-model totals.
func (t *Tracker) ByModel() map[anthropic.Model]ModelTotals {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[anthropic.Model]ModelTotals, len(t.perModel))
	for k, v := range t.perModel {
		out[k] = v
	}
	return out
}

// Remaining returns the unspent budget, or false when unlimited.
func (t *Tracker) Remaining() (decimal.Decimal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.limit.IsZero() {
		return decimal.Zero, false
	}
	return t.limit.Sub(t.total.Cost), true
}

// Exhausted reports whether spend has reached the limit.
func (t *Tracker) Exhausted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.limit.IsZero() && t.total.Cost.GreaterThanOrEqual(t.limit)
}

// Check returns ErrExhausted when no budget remains.
func (t *Tracker) Check() error {
	if t.Exhausted() {
		return ErrExhausted
	}
	return nil
}
