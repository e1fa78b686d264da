package kpi

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidPeriod indicates a period token could not be parsed.
var ErrInvalidPeriod = errors.New("invalid period")

const periodLayout = "Jan-06"

var periodLayouts = []string{
	periodLayout,
	"Jan-2006",
	"January-06",
	"January-2006",
	"Jan 06",
	"Jan 2006",
	"January 2006",
	"2006-01",
	"01/2006",
}

// NormalizePeriod converts accepted period spellings to the canonical "Oct-25" form.
func NormalizePeriod(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", ErrInvalidPeriod
	}
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(periodLayout), nil
		}
	}
	return "", ErrInvalidPeriod
}
