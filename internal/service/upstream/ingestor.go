package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/domain/repository"
	xhttp "StockWatchdog/pkg/http"
)

// FieldMapping binds a provider key to a canonical field and the unit the provider uses for it.
type FieldMapping struct {
	Field  string
	Format models.FormatTag
}

// YahooMapping is the key table for the Yahoo Finance style quote summary.
// The provider reports dividend yield in percent but ROE and margins as fractions.
func YahooMapping() map[string]FieldMapping {
	return map[string]FieldMapping{
		"currentPrice":      {models.FieldCurrentPrice, models.FormatCurrency},
		"marketCap":         {models.FieldMarketCap, models.FormatCurrency},
		"sharesOutstanding": {models.FieldSharesOutstanding, models.FormatCount},
		"dividendYield":     {models.FieldDividendYield, models.FormatPercent},
		"dividendRate":      {models.FieldDividendRate, models.FormatCurrency},
		"trailingPE":        {models.FieldPERatio, models.FormatRatio},
		"priceToBook":       {models.FieldPBRatio, models.FormatRatio},
		"returnOnEquity":    {models.FieldROE, models.FormatDecimalFraction},
		"profitMargins":     {models.FieldProfitMargins, models.FormatDecimalFraction},
		"operatingMargins":  {models.FieldOperatingMargins, models.FormatDecimalFraction},
		"turnoverRatio":     {models.FieldTurnoverRatio, models.FormatRatio},
		"avgTurnoverRatio":  {models.FieldAvgTurnoverRatio, models.FormatRatio},
	}
}

// SymbolMapper turns a canonical code into the provider's ticker.
type SymbolMapper interface {
	ToProviderSymbol(raw string) (string, error)
}

// HTTPIngestor fetches a quote summary over HTTP and hands back raw field triples untouched.
type HTTPIngestor struct {
	name    string
	baseURL string
	apiKey  string
	client  *xhttp.Client
	symbols SymbolMapper
	mapping map[string]FieldMapping
	extras  map[string]struct{}
	root    string
	now     func() time.Time
}

type Option func(*HTTPIngestor)

func WithClient(c *xhttp.Client) Option {
	return func(i *HTTPIngestor) { i.client = c }
}

func WithAPIKey(key string) Option {
	return func(i *HTTPIngestor) { i.apiKey = key }
}

func WithMapping(m map[string]FieldMapping) Option {
	return func(i *HTTPIngestor) { i.mapping = m }
}

// WithExtras passes the named provider keys through as untagged raw fields.
func WithExtras(keys ...string) Option {
	return func(i *HTTPIngestor) {
		for _, k := range keys {
			i.extras[k] = struct{}{}
		}
	}
}

// WithRoot sets a JSONPath selecting the quote object inside the response,
// e.g. $.quoteSummary.result[0]. Empty means the body itself is the quote.
func WithRoot(path string) Option {
	return func(i *HTTPIngestor) { i.root = path }
}

func WithClock(now func() time.Time) Option {
	return func(i *HTTPIngestor) { i.now = now }
}

func NewHTTPIngestor(name, baseURL string, symbols SymbolMapper, opts ...Option) *HTTPIngestor {
	i := &HTTPIngestor{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  xhttp.NewClient(),
		symbols: symbols,
		mapping: YahooMapping(),
		extras:  map[string]struct{}{"longName": {}, "sector": {}, "currency": {}},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *HTTPIngestor) Name() string { return i.name }

// Fetch performs one upstream call. Non-2xx responses surface as *xhttp.StatusError
// so callers can report the status back to the rate gate.
func (i *HTTPIngestor) Fetch(ctx context.Context, symbol string) (models.RawPayload, error) {
	ticker, err := i.symbols.ToProviderSymbol(symbol)
	if err != nil {
		return models.RawPayload{}, err
	}

	headers := map[string]string{"Accept": "application/json"}
	if i.apiKey != "" {
		headers["X-API-Key"] = i.apiKey
	}
	var body []byte
	err = i.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         i.baseURL + "/v1/quote",
		Headers:     headers,
		QueryParams: url.Values{"symbol": {ticker}},
	}, &body)
	if err != nil {
		return models.RawPayload{}, fmt.Errorf("%s fetch %s: %w", i.name, ticker, err)
	}

	fields, err := i.decode(body)
	if err != nil {
		return models.RawPayload{}, fmt.Errorf("%s decode %s: %w", i.name, ticker, err)
	}
	return models.RawPayload{
		Symbol:    symbol,
		Source:    i.name,
		FetchedAt: i.now().UTC(),
		Fields:    fields,
	}, nil
}

// decode reads the quote object, keeping every number as its literal text.
// Nested objects and arrays under a mapped key are skipped.
func (i *HTTPIngestor) decode(body []byte) (map[string]models.RawField, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if i.root != "" {
		v, err := jsonpath.Get(i.root, doc)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", i.root, err)
		}
		// a filter expression yields a list; keep the first match
		if list, ok := v.([]interface{}); ok && len(list) > 0 {
			v = list[0]
		}
		doc = v
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("quote is %T, want object", doc)
	}

	fields := make(map[string]models.RawField, len(obj))
	for key, val := range obj {
		m, mapped := i.mapping[key]
		_, extra := i.extras[key]
		if !mapped && !extra {
			continue
		}
		var v models.RawValue
		switch x := val.(type) {
		case nil:
		case json.Number:
			v = models.RawValue(x.String())
		case string:
			v = models.RawValue(x)
		case bool:
			v = models.RawValue(fmt.Sprint(x))
		default:
			continue
		}
		if mapped {
			fields[m.Field] = models.RawField{Value: v, Format: m.Format}
		} else {
			fields[key] = models.RawField{Value: v}
		}
	}
	return fields, nil
}

var _ repository.Ingestor = (*HTTPIngestor)(nil)
