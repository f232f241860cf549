package anomaly

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"StockWatchdog/internal/domain/models"
)

// rule inspects the working values of one pass. Rules never stop the pass;
// each one only touches the fields it owns.
type rule func(p Policy, s *pass)

// defaultRules run in this order; cross-field checks come last so they see corrected values.
var defaultRules = []rule{
	checkDividendYield,
	checkPE,
	checkPB,
	checkSignedRate(models.FieldROE),
	checkSignedRate(models.FieldProfitMargins),
	checkSignedRate(models.FieldOperatingMargins),
	checkCurrentPrice,
	checkNonNegative(models.FieldMarketCap),
	checkPositive(models.FieldSharesOutstanding),
	checkNonNegative(models.FieldDividendRate),
	checkMarketCapConsistency,
	checkTurnover,
}

type pass struct {
	values   map[string]models.NormalizedMetric
	warnings []models.Warning
}

func (s *pass) get(field string) (decimal.Decimal, bool) {
	m, ok := s.values[field]
	if !ok || !m.Value.Valid {
		return decimal.Zero, false
	}
	return m.Value.Decimal, true
}

func (s *pass) set(field string, v decimal.NullDecimal, st models.MetricStatus) {
	s.values[field] = models.NormalizedMetric{Value: v, Status: st}
}

func (s *pass) warn(sev models.Severity, field, msg string, orig, corrected decimal.NullDecimal) {
	s.warnings = append(s.warnings, models.Warning{
		Severity:  sev,
		Field:     field,
		Message:   msg,
		Original:  orig,
		Corrected: corrected,
	})
}

// drop nulls field and records why.
func (s *pass) drop(sev models.Severity, field, msg string, orig decimal.Decimal) {
	s.set(field, decimal.NullDecimal{}, models.StatusNulled)
	s.warn(sev, field, msg, some(orig), decimal.NullDecimal{})
}

func checkDividendYield(p Policy, s *pass) {
	f := models.FieldDividendYield
	v, ok := s.get(f)
	if !ok {
		return
	}
	pct := v.Shift(2)
	switch {
	case pct.GreaterThan(p.YieldMaxPct):
		fixed := pct.Div(p.CorrectionDivisor)
		if !inRange(fixed, p.YieldMinPct, p.YieldMaxPct) {
			s.set(f, decimal.NullDecimal{}, models.StatusNulled)
			s.warn(models.SeverityCritical, f,
				fmt.Sprintf("dividend yield %s → %s still outside %s–%s%%, dropped", num(pct), num(fixed), num(p.YieldMinPct), num(p.YieldMaxPct)),
				some(pct), decimal.NullDecimal{})
			return
		}
		s.set(f, some(fixed.Shift(-2)), models.StatusCorrected)
		s.warn(models.SeverityCritical, f,
			fmt.Sprintf("dividend yield %s → %s (unit mis-scale corrected)", num(pct), num(fixed)),
			some(pct), some(fixed))
	case pct.LessThan(p.YieldMinPct):
		s.drop(models.SeverityWarning, f, fmt.Sprintf("dividend yield %s%% below %s%%, dropped", num(pct), num(p.YieldMinPct)), pct)
	}
}

func checkPE(p Policy, s *pass) {
	f := models.FieldPERatio
	v, ok := s.get(f)
	if !ok {
		return
	}
	if !v.IsPositive() {
		s.drop(models.SeverityWarning, f, fmt.Sprintf("PE ratio %s is not positive, dropped", num(v)), v)
		return
	}
	if v.GreaterThan(p.PEAdvisoryMax) {
		s.warn(models.SeverityMinor, f, fmt.Sprintf("PE ratio %s unusually high, check source", num(v)), some(v), some(v))
	}
}

func checkPB(p Policy, s *pass) {
	f := models.FieldPBRatio
	v, ok := s.get(f)
	if !ok {
		return
	}
	if !inRange(v, decimal.Zero, p.PBMax) {
		s.drop(models.SeverityWarning, f, fmt.Sprintf("PB ratio %s outside 0–%s, dropped", num(v), num(p.PBMax)), v)
	}
}

func checkSignedRate(field string) rule {
	return func(p Policy, s *pass) {
		v, ok := s.get(field)
		if !ok {
			return
		}
		pct := v.Shift(2)
		if !inRange(pct, p.RateMinPct, p.RateMaxPct) {
			s.drop(models.SeverityWarning, field,
				fmt.Sprintf("%s %s%% outside %s–%s%%, dropped", field, num(pct), num(p.RateMinPct), num(p.RateMaxPct)), pct)
		}
	}
}

func checkCurrentPrice(_ Policy, s *pass) {
	f := models.FieldCurrentPrice
	if v, ok := s.get(f); ok && !v.IsPositive() {
		s.drop(models.SeverityCritical, f, fmt.Sprintf("current price %s is not positive, dropped", num(v)), v)
	}
}

func checkNonNegative(field string) rule {
	return func(_ Policy, s *pass) {
		if v, ok := s.get(field); ok && v.IsNegative() {
			s.drop(models.SeverityWarning, field, fmt.Sprintf("%s %s is negative, dropped", field, num(v)), v)
		}
	}
}

func checkPositive(field string) rule {
	return func(_ Policy, s *pass) {
		if v, ok := s.get(field); ok && !v.IsPositive() {
			s.drop(models.SeverityWarning, field, fmt.Sprintf("%s %s is not positive, dropped", field, num(v)), v)
		}
	}
}

func checkMarketCapConsistency(p Policy, s *pass) {
	price, ok1 := s.get(models.FieldCurrentPrice)
	shares, ok2 := s.get(models.FieldSharesOutstanding)
	mcap, ok3 := s.get(models.FieldMarketCap)
	if !ok1 || !ok2 || !ok3 || !mcap.IsPositive() {
		return
	}
	implied := price.Mul(shares)
	dev := implied.Sub(mcap).Abs().Div(mcap)
	if dev.GreaterThan(p.MarketCapTolerance) {
		s.warn(models.SeverityWarning, models.FieldMarketCap,
			fmt.Sprintf("market cap %s deviates %s%% from price × shares %s", num(mcap), num(dev.Shift(2).Round(1)), num(implied)),
			some(mcap), some(implied))
	}
}

func checkTurnover(p Policy, s *pass) {
	f := models.FieldTurnoverRatio
	cur, ok1 := s.get(f)
	avg, ok2 := s.get(models.FieldAvgTurnoverRatio)
	if !ok1 || !ok2 || !avg.IsPositive() {
		return
	}
	switch {
	case cur.IsZero():
		s.warn(models.SeverityMinor, f, "turnover is zero against a positive average, possible trading halt", some(cur), some(cur))
	case cur.GreaterThan(avg.Mul(p.TurnoverSpike)):
		s.warn(models.SeverityMinor, f,
			fmt.Sprintf("turnover %s exceeds %s× average %s, possible spike", num(cur), num(p.TurnoverSpike), num(avg)),
			some(cur), some(cur))
	}
}

func inRange(v, lo, hi decimal.Decimal) bool {
	return !v.LessThan(lo) && !v.GreaterThan(hi)
}

func some(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// num renders d with at least one decimal place, so 70 prints as 70.0.
func num(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
