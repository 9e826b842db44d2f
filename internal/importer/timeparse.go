package importer

import (
	"strconv"
	"strings"
	"time"
)

// SupportedLayouts is the ordered list of accepted date-time shapes.
// The first layout that parses the whole value wins. Layouts without an
// offset are interpreted in local time.
var SupportedLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02 15:04:05",
	"2006.01.02 15:04",
	"2006.01.02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
	"01/02/2006 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 03:04 PM",
	"2006-01-02 03:04 PM",
	"2006/01/02 03:04 PM",
	"2006年01月02日 15:04",
	"2006年01月02日15:04",
	"20060102 1504",
	"200601021504",
}

// ParseScheduledAt resolves a raw time cell to epoch milliseconds.
// Exactly 13 digits is epoch millis as-is, exactly 10 digits is epoch
// seconds; anything else is tried against SupportedLayouts in order.
func ParseScheduledAt(raw string) (int64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false
	}

	if allDigits(trimmed) {
		switch len(trimmed) {
		case 13:
			millis, err := strconv.ParseInt(trimmed, 10, 64)
			return millis, err == nil
		case 10:
			secs, err := strconv.ParseInt(trimmed, 10, 64)
			if err != nil {
				return 0, false
			}
			return secs * 1000, true
		}
	}

	for _, layout := range SupportedLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
