package anomaly

import "StockWatchdog/internal/domain/models"

// Summary aggregates warnings over a batch of records.
type Summary struct {
	TotalSymbols        int                     `json:"total_symbols"`
	SymbolsWithWarnings int                     `json:"symbols_with_warnings"`
	TotalWarnings       int                     `json:"total_warnings"`
	WarningRate         float64                 `json:"warning_rate"`
	BySeverity          map[models.Severity]int `json:"by_severity"`
	ByField             map[string]int          `json:"by_field"`
}

func Summarize(records []*models.DualTruthRecord) Summary {
	sum := Summary{
		BySeverity: make(map[models.Severity]int),
		ByField:    make(map[string]int),
	}
	for _, r := range records {
		if r == nil {
			continue
		}
		sum.TotalSymbols++
		ws := r.Warnings()
		if len(ws) > 0 {
			sum.SymbolsWithWarnings++
		}
		for _, w := range ws {
			sum.TotalWarnings++
			sum.BySeverity[w.Severity]++
			sum.ByField[w.Field]++
		}
	}
	if sum.TotalSymbols > 0 {
		sum.WarningRate = float64(sum.SymbolsWithWarnings) / float64(sum.TotalSymbols)
	}
	return sum
}
