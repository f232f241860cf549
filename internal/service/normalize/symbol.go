package normalize

import (
	"fmt"
	"strings"

	"StockWatchdog/internal/domain/models"
)

const (
	DefaultCodeLength     = 4
	DefaultProviderSuffix = ".T"
)

// UnitNormalizer canonicalizes symbols and converts raw values into canonical units.
// It holds configuration only and is safe for concurrent use.
type UnitNormalizer struct {
	suffixes       []string
	codeLength     int
	providerSuffix string
}

type Option func(*UnitNormalizer)

// WithSuffixes sets the exchange suffixes stripped from raw symbols.
func WithSuffixes(s ...string) Option {
	return func(n *UnitNormalizer) {
		if len(s) > 0 {
			n.suffixes = append([]string(nil), s...)
		}
	}
}

func WithCodeLength(l int) Option {
	return func(n *UnitNormalizer) {
		if l > 0 {
			n.codeLength = l
		}
	}
}

// WithProviderSuffix sets the suffix ToProviderSymbol appends.
func WithProviderSuffix(s string) Option {
	return func(n *UnitNormalizer) { n.providerSuffix = s }
}

func New(opts ...Option) *UnitNormalizer {
	n := &UnitNormalizer{
		suffixes:       []string{DefaultProviderSuffix},
		codeLength:     DefaultCodeLength,
		providerSuffix: DefaultProviderSuffix,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// NormalizeSymbol reduces a raw identifier such as `"9432"`, `9432.T` or
// `8316 三井住友` to its bare numeric code. Canonical input is returned unchanged.
func (n *UnitNormalizer) NormalizeSymbol(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(strings.Trim(s, "\"'`"))

	// trailing descriptive text
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	} else {
		s = ""
	}
	s = strings.Trim(s, "\"'`")

	for _, suf := range n.suffixes {
		if len(s) > len(suf) && strings.EqualFold(s[len(s)-len(suf):], suf) {
			s = s[:len(s)-len(suf)]
			break
		}
	}

	if !n.wellFormed(s) {
		return "", &models.InvalidSymbolError{Raw: raw, Residual: s}
	}
	return s, nil
}

func (n *UnitNormalizer) wellFormed(s string) bool {
	if len(s) != n.codeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ToProviderSymbol converts a raw or canonical symbol to the upstream form, e.g. 9432 -> 9432.T.
func (n *UnitNormalizer) ToProviderSymbol(raw string) (string, error) {
	s, err := n.NormalizeSymbol(raw)
	if err != nil {
		return "", fmt.Errorf("provider symbol: %w", err)
	}
	return s + n.providerSuffix, nil
}
