package budget

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/shopspring/decimal"
)

// ModelPricing holds per-model token prices in USD per million tokens.
type ModelPricing struct {
	InputPerMTok      decimal.Decimal
	OutputPerMTok     decimal.Decimal
	LongInputPerMTok  decimal.Decimal // applies when total input exceeds LongContextThreshold
	LongOutputPerMTok decimal.Decimal
	CacheWritePerMTok decimal.Decimal
	CacheReadPerMTok  decimal.Decimal

	// LongContextThreshold is the input size that switches to long-context
	// rates. 0 disables long-context pricing.
	LongContextThreshold int
}

var million = decimal.NewFromInt(1_000_000)

func (p ModelPricing) long(totalInput int) bool {
	return p.LongContextThreshold > 0 && totalInput > p.LongContextThreshold
}

// Cost prices one completion.
func (p ModelPricing) Cost(u Usage) decimal.Decimal {
	total := u.TotalInput()
	in, out := p.InputPerMTok, p.OutputPerMTok
	if p.long(total) {
		in, out = p.LongInputPerMTok, p.LongOutputPerMTok
	}
	cost := perMTok(u.InputTokens, in)
	cost = cost.Add(perMTok(u.CacheReadInputTokens, p.CacheReadPerMTok))
	cost = cost.Add(perMTok(u.CacheCreationInputTokens, p.CacheWritePerMTok))
	return cost.Add(perMTok(u.OutputTokens, out))
}

func perMTok(tokens int, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(tokens)).Mul(rate).Div(million)
}

// DefaultPricing contains built-in prices for the models the host is
// normally configured with.
var DefaultPricing = map[anthropic.Model]ModelPricing{
	anthropic.ModelClaudeOpus4_6: {
		InputPerMTok:         decimal.NewFromFloat(5),
		OutputPerMTok:        decimal.NewFromFloat(25),
		LongInputPerMTok:     decimal.NewFromFloat(10),
		LongOutputPerMTok:    decimal.NewFromFloat(37.5),
		CacheWritePerMTok:    decimal.NewFromFloat(6.25),
		CacheReadPerMTok:     decimal.NewFromFloat(0.5),
		LongContextThreshold: 200_000,
	},
	anthropic.ModelClaudeSonnet4_5: {
		InputPerMTok:         decimal.NewFromFloat(3),
		OutputPerMTok:        decimal.NewFromFloat(15),
		LongInputPerMTok:     decimal.NewFromFloat(6),
		LongOutputPerMTok:    decimal.NewFromFloat(22.5),
		CacheWritePerMTok:    decimal.NewFromFloat(3.75),
		CacheReadPerMTok:     decimal.NewFromFloat(0.3),
		LongContextThreshold: 200_000,
	},
	anthropic.ModelClaudeHaiku4_5: {
		InputPerMTok:      decimal.NewFromFloat(1),
		OutputPerMTok:     decimal.NewFromFloat(5),
		CacheWritePerMTok: decimal.NewFromFloat(1.25),
		CacheReadPerMTok:  decimal.NewFromFloat(0.1),
	},
}

// Lookup finds the pricing for model. Dated snapshot ids such as
// "claude-haiku-4-5-20251001" match the alias they start with; the longest
// matching alias wins.
func Lookup(pricing map[anthropic.Model]ModelPricing, model anthropic.Model) (ModelPricing, bool) {
	if p, ok := pricing[model]; ok {
		return p, true
	}
	var (
		best    ModelPricing
		bestLen int
	)
	for alias, p := range pricing {
		if strings.HasPrefix(string(model), string(alias)) && len(alias) > bestLen {
			best, bestLen = p, len(alias)
		}
	}
	return best, bestLen > 0
}
