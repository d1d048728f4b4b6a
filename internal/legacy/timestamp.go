package legacy

import (
	"strings"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// zoneOffsets resolves the zone abbreviations the legacy system emits. Go's
// time.Parse only knows abbreviations of the local zone and silently assigns
// a zero offset to the rest, so the table is explicit. Ambiguous names take
// their North American or Indian reading: CST is Central, IST is India.
var zoneOffsets = map[string]int{
	"UTC": 0,
	"GMT": 0,
	"Z":   0,

	// North America
	"NST":  -(3*3600 + 1800),
	"NDT":  -(2*3600 + 1800),
	"AST":  -4 * 3600,
	"ADT":  -3 * 3600,
	"EST":  -5 * 3600,
	"EDT":  -4 * 3600,
	"CST":  -6 * 3600,
	"CDT":  -5 * 3600,
	"MST":  -7 * 3600,
	"MDT":  -6 * 3600,
	"PST":  -8 * 3600,
	"PDT":  -7 * 3600,
	"AKST": -9 * 3600,
	"AKDT": -8 * 3600,
	"HST":  -10 * 3600,

	// Europe and Africa
	"WET":  0,
	"WEST": 1 * 3600,
	"BST":  1 * 3600,
	"CET":  1 * 3600,
	"CEST": 2 * 3600,
	"MET":  1 * 3600,
	"MEST": 2 * 3600,
	"EET":  2 * 3600,
	"EEST": 3 * 3600,
	"SAST": 2 * 3600,
	"MSK":  3 * 3600,

	// Asia and Oceania
	"PKT":  5 * 3600,
	"IST":  5*3600 + 1800,
	"ICT":  7 * 3600,
	"WIB":  7 * 3600,
	"HKT":  8 * 3600,
	"SGT":  8 * 3600,
	"PHT":  8 * 3600,
	"AWST": 8 * 3600,
	"KST":  9 * 3600,
	"JST":  9 * 3600,
	"ACST": 9*3600 + 1800,
	"ACDT": 10*3600 + 1800,
	"AEST": 10 * 3600,
	"AEDT": 11 * 3600,
	"NZST": 12 * 3600,
	"NZDT": 13 * 3600,
}

// ParseTimestamp normalizes a legacy timestamp to UTC. It accepts
// "2006-01-02 15:04:05" (taken as UTC) and "2006-01-02 15:04:05 CDT". A blank
// input yields ok == false and no error.
func ParseTimestamp(raw string) (t time.Time, ok bool, err error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false, nil
	}

	if t, ok := parseZoned(value); ok {
		return t, true, nil
	}

	t, err = time.ParseInLocation(timestampLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, false, &ParseError{Value: raw, Err: err}
	}
	return t, true, nil
}

func parseZoned(value string) (time.Time, bool) {
	idx := strings.LastIndexByte(value, ' ')
	if idx < 0 {
		return time.Time{}, false
	}
	abbrev := strings.ToUpper(value[idx+1:])
	offset, known := zoneOffsets[abbrev]
	if !known {
		return time.Time{}, false
	}
	loc := time.FixedZone(abbrev, offset)
	t, err := time.ParseInLocation(timestampLayout, strings.TrimSpace(value[:idx]), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
