package http

import (
	"time"

	xutil "StockWatchdog/pkg/util"
)

// ParseTimeDefault accepts whatever util.ParseTime does and falls back to def.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }
