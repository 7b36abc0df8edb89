package classify

import (
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// NotAvailable is rendered in place of any field TMDB left empty.
const NotAvailable = "Not available"

const (
	LabelOkOk       = "Ok ok"
	LabelGoodToGo   = "Good to go"
	LabelWatchIt    = "Watch it!!!"
	LabelExcellent  = "Excellent!!!"
	LabelUnreleased = "Not Released Yet"

	ReleaseDateLabel   = "Release Date"
	ReleasingDateLabel = "Releasing Date"
)

const dateLayout = "2006-01-02"

// PopularityLabel maps a popularity score onto its qualitative label.
// Upper bounds are inclusive: 20 is "Ok ok", 45 is "Good to go", 70 is "Watch it!!!".
func PopularityLabel(p float64) string {
	switch {
	case p <= 20:
		return LabelOkOk
	case p <= 45:
		return LabelGoodToGo
	case p <= 70:
		return LabelWatchIt
	default:
		return LabelExcellent
	}
}

// ParseReleaseDate parses a TMDB YYYY-MM-DD date. Longer timestamps are cut to the date part.
func ParseReleaseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if len(value) > len(dateLayout) {
		value = value[:len(dateLayout)]
	}
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsFutureRelease reports whether the release date falls strictly after the
// calendar day of now. Time of day is ignored and an unknown date is never future.
func IsFutureRelease(releaseDate string, now time.Time) bool {
	release, ok := ParseReleaseDate(releaseDate)
	if !ok {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return release.After(today)
}

// ReleaseLabel returns the field label for the release date.
func ReleaseLabel(releaseDate string, now time.Time) string {
	if IsFutureRelease(releaseDate, now) {
		return ReleasingDateLabel
	}
	return ReleaseDateLabel
}

// PopularityVerdict is the label shown next to the popularity score. Future
// releases are never rated and a missing score yields the placeholder.
func PopularityVerdict(popularity *float64, releaseDate string, now time.Time) string {
	if popularity == nil {
		return NotAvailable
	}
	if IsFutureRelease(releaseDate, now) {
		return LabelUnreleased
	}
	return PopularityLabel(*popularity)
}

// OrNotAvailable returns value, or the placeholder when it is blank.
func OrNotAvailable(value string) string {
	if strings.TrimSpace(value) == "" {
		return NotAvailable
	}
	return value
}

// JoinOrNotAvailable joins values with ", ", or returns the placeholder for an empty list.
func JoinOrNotAvailable(values []string) string {
	if len(values) == 0 {
		return NotAvailable
	}
	return strings.Join(values, ", ")
}

// LanguageName renders an ISO 639-1 code as its English name ("fr" -> "French").
// Codes x/text cannot name are returned verbatim.
func LanguageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return NotAvailable
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}
