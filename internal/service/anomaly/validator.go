package anomaly

import "StockWatchdog/internal/domain/models"

// Validator applies the plausibility rules to a normalized value map.
// It keeps no state between calls.
type Validator struct {
	policy Policy
	rules  []rule
}

func New(p Policy) *Validator {
	return &Validator{policy: p, rules: defaultRules}
}

func (v *Validator) Policy() Policy { return v.policy }

// Validate returns a corrected copy of in plus the warnings raised, in rule order.
// Every value in the result is either null or inside its plausible range.
func (v *Validator) Validate(in map[string]models.NormalizedMetric) (map[string]models.NormalizedMetric, []models.Warning) {
	s := &pass{values: make(map[string]models.NormalizedMetric, len(in))}
	for k, m := range in {
		s.values[k] = m
	}
	for _, r := range v.rules {
		r(v.policy, s)
	}
	return s.values, s.warnings
}
