package budget

import (
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDecimal(t *testing.T, want float64, got decimal.Decimal) {
	t.Helper()
	expected := decimal.NewFromFloat(want)
	assert.True(t, expected.Equal(got), "expected %s, got %s", expected, got)
}

func TestCost_Standard(t *testing.T) {
	p := DefaultPricing[anthropic.ModelClaudeOpus4_6]

	// 1000 in at $5 + 500 out at $25
	assertDecimal(t, 0.0175, p.Cost(Usage{InputTokens: 1000, OutputTokens: 500}))
}

func TestCost_LongContext(t *testing.T) {
	p := DefaultPricing[anthropic.ModelClaudeOpus4_6]

	// 250K input crosses the threshold: $10 in, $37.50 out
	assertDecimal(t, 2.5375, p.Cost(Usage{InputTokens: 250_000, OutputTokens: 1000}))
}

func TestCost_CacheTokens(t *testing.T) {
	p := DefaultPricing[anthropic.ModelClaudeOpus4_6]

	// 500*$5 + 200*$0.50 + 300*$6.25 per MTok
	got := p.Cost(Usage{InputTokens: 500, CacheReadInputTokens: 200, CacheCreationInputTokens: 300})
	assertDecimal(t, 0.004475, got)
}

func TestCost_HaikuNeverLong(t *testing.T) {
	p := DefaultPricing[anthropic.ModelClaudeHaiku4_5]
	assertDecimal(t, 0.5, p.Cost(Usage{InputTokens: 500_000}))
}

func TestLookup(t *testing.T) {
	tests := []struct {
		model anthropic.Model
		ok    bool
	}{
		{anthropic.ModelClaudeHaiku4_5, true},
		{"claude-haiku-4-5-20251001", true},
		{"claude-sonnet-4-5-20250929", true},
		{"gpt-4o", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			_, ok := Lookup(DefaultPricing, tt.model)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLookup_LongestAliasWins(t *testing.T) {
	pricing := map[anthropic.Model]ModelPricing{
		"claude":       {InputPerMTok: decimal.NewFromInt(1)},
		"claude-haiku": {InputPerMTok: decimal.NewFromInt(2)},
	}
	p, ok := Lookup(pricing, "claude-haiku-9")
	require.True(t, ok)
	assert.True(t, p.InputPerMTok.Equal(decimal.NewFromInt(2)))
}

func TestRecord_Cumulative(t *testing.T) {
	tr := NewTracker(decimal.Zero, nil)

	cost := tr.Record(anthropic.ModelClaudeHaiku4_5, Usage{InputTokens: 1000, OutputTokens: 100})
	assertDecimal(t, 0.0015, cost)
	tr.Record(anthropic.ModelClaudeHaiku4_5, Usage{InputTokens: 1000, OutputTokens: 100})
	tr.Record(anthropic.ModelClaudeOpus4_6, Usage{InputTokens: 1000})

	totals := tr.Totals()
	assert.Equal(t, 3, totals.Calls)
	assert.Equal(t, 3000, totals.Usage.InputTokens)
	assert.Equal(t, 200, totals.Usage.OutputTokens)
	assertDecimal(t, 0.008, totals.Cost)

	byModel := tr.ByModel()
	require.Len(t, byModel, 2)
	assert.Equal(t, 2, byModel[anthropic.ModelClaudeHaiku4_5].Calls)
	assertDecimal(t, 0.005, byModel[anthropic.ModelClaudeOpus4_6].Cost)
}

func TestRecord_UnknownModel(t *testing.T) {
	tr := NewTracker(decimal.Zero, nil)

	cost := tr.Record("unknown-model", Usage{InputTokens: 1000, OutputTokens: 500})
	assert.True(t, cost.IsZero())
	assert.Equal(t, 1000, tr.Totals().Usage.InputTokens)
	assert.True(t, tr.Totals().Cost.IsZero())
}

func TestUnlimited(t *testing.T) {
	tr := NewTracker(decimal.Zero, nil)
	tr.Record(anthropic.ModelClaudeOpus4_6, Usage{InputTokens: 10_000_000})

	assert.False(t, tr.Exhausted())
	assert.NoError(t, tr.Check())
	_, limited := tr.Remaining()
	assert.False(t, limited)
}

func TestExhaustion(t *testing.T) {
	tr := NewTracker(decimal.NewFromFloat(0.01), nil)

	tr.Record(anthropic.ModelClaudeOpus4_6, Usage{InputTokens: 1000}) // $0.005
	assert.False(t, tr.Exhausted())
	remaining, limited := tr.Remaining()
	require.True(t, limited)
	assertDecimal(t, 0.005, remaining)

	tr.Record(anthropic.ModelClaudeOpus4_6, Usage{InputTokens: 1000}) // exactly the limit
	assert.True(t, tr.Exhausted())
	assert.ErrorIs(t, tr.Check(), ErrExhausted)
}

func TestConcurrentRecord(t *testing.T) {
	tr := NewTracker(decimal.Zero, nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record(anthropic.ModelClaudeHaiku4_5, Usage{InputTokens: 10, OutputTokens: 1})
		}()
	}
	wg.Wait()

	totals := tr.Totals()
	assert.Equal(t, 50, totals.Calls)
	assert.Equal(t, 500, totals.Usage.InputTokens)
	assert.Equal(t, 50, tr.ByModel()[anthropic.ModelClaudeHaiku4_5].Usage.OutputTokens)
}
