package models

// NormalizeRequest is the HTTP body for POST /api/normalize.
type NormalizeRequest struct {
	Symbol    string              `json:"symbol" validate:"required"`
	Source    string              `json:"source" default:"manual" validate:"required"`
	FetchedAt string              `json:"fetched_at"`
	Fields    map[string]RawField `json:"fields" validate:"required"`
}

// FetchRequest asks the coordinator to fetch and normalize one or more symbols.
type FetchRequest struct {
	Symbols  []string `json:"symbols" validate:"required,min=1,max=100,dive,required"`
	Priority string   `json:"priority" default:"normal" validate:"oneof=low normal high critical"`
	Refresh  bool     `json:"refresh"`
}

type AdmitRequest struct {
	API      string `json:"api" validate:"required"`
	Priority string `json:"priority" default:"normal" validate:"oneof=low normal high critical"`
}

// FeedbackRequest reports the outcome of an admitted call. Status 0 means a
// transport failure with no HTTP response.
type FeedbackRequest struct {
	API       string `json:"api" validate:"required"`
	Success   bool   `json:"success"`
	Status    int    `json:"status" validate:"gte=0,lte=599"`
	Symbol    string `json:"symbol"`
	LatencyMs int64  `json:"latency_ms" validate:"gte=0"`
}

// FetchResult is one symbol's outcome in a batch fetch.
type FetchResult struct {
	Symbol   string           `json:"symbol"`
	Record   *DualTruthRecord `json:"record,omitempty"`
	Cached   bool             `json:"cached"`
	Decision *Decision        `json:"decision,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// UsageEntry is one line of the upstream API usage log.
type UsageEntry struct {
	API       string `json:"api"`
	Symbol    string `json:"symbol"`
	Status    int    `json:"status"`
	Success   bool   `json:"success"`
	LatencyMs int64  `json:"latency_ms"`
	Timestamp int64  `json:"ts"`
}
