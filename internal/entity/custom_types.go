package entity

import (
	"fmt"
	"strings"
	"time"
)

// clientTimeLayouts are the formats the web client sends: ISO strings from
// Date.toISOString and the zone-less values of datetime-local and date inputs.
var clientTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseClientTime parses a date sent by the client. Values without a zone
// are read as UTC.
func ParseClientTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range clientTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", value)
}
