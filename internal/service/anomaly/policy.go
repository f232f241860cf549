package anomaly

import "github.com/shopspring/decimal"

// Policy holds the plausibility thresholds. Rate bounds are on the percent scale.
type Policy struct {
	YieldMinPct       decimal.Decimal
	YieldMaxPct       decimal.Decimal
	CorrectionDivisor decimal.Decimal

	PEAdvisoryMax decimal.Decimal
	PBMax         decimal.Decimal

	RateMinPct decimal.Decimal // ROE and margins
	RateMaxPct decimal.Decimal

	MarketCapTolerance decimal.Decimal // relative deviation of price*shares from market cap
	TurnoverSpike      decimal.Decimal // multiple of the average turnover
}

func DefaultPolicy() Policy {
	return Policy{
		YieldMinPct:        decimal.Zero,
		YieldMaxPct:        decimal.NewFromInt(50),
		CorrectionDivisor:  decimal.NewFromInt(100),
		PEAdvisoryMax:      decimal.NewFromInt(1000),
		PBMax:              decimal.NewFromInt(50),
		RateMinPct:         decimal.NewFromInt(-100),
		RateMaxPct:         decimal.NewFromInt(100),
		MarketCapTolerance: decimal.RequireFromString("0.10"),
		TurnoverSpike:      decimal.NewFromInt(5),
	}
}

// Config is the float form of Policy as it appears in YAML.
type Config struct {
	YieldMinPct        float64
	YieldMaxPct        float64
	CorrectionDivisor  float64
	PEAdvisoryMax      float64
	PBMax              float64
	RateMinPct         float64
	RateMaxPct         float64
	MarketCapTolerance float64
	TurnoverSpike      float64
}

// PolicyFromConfig overlays non-zero config values on DefaultPolicy.
// YieldMinPct and RateMinPct are taken as-is since zero and negatives are meaningful.
func PolicyFromConfig(c Config) Policy {
	p := DefaultPolicy()
	p.YieldMinPct = decimal.NewFromFloat(c.YieldMinPct)
	p.RateMinPct = decimal.NewFromFloat(c.RateMinPct)
	set := func(dst *decimal.Decimal, v float64) {
		if v > 0 {
			*dst = decimal.NewFromFloat(v)
		}
	}
	set(&p.YieldMaxPct, c.YieldMaxPct)
	set(&p.CorrectionDivisor, c.CorrectionDivisor)
	set(&p.PEAdvisoryMax, c.PEAdvisoryMax)
	set(&p.PBMax, c.PBMax)
	set(&p.RateMaxPct, c.RateMaxPct)
	set(&p.MarketCapTolerance, c.MarketCapTolerance)
	set(&p.TurnoverSpike, c.TurnoverSpike)
	return p
}
