package cache

import "strings"

// GenerateKey joins parts with ':' into a cache key, e.g. record:9432:yahoo_finance.
func GenerateKey(prefix string, parts ...string) string {
	return strings.Join(append([]string{prefix}, parts...), ":")
}
