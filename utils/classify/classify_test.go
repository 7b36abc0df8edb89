package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPopularityLabelBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0, LabelOkOk},
		{20.0, LabelOkOk},
		{20.01, LabelGoodToGo},
		{45.0, LabelGoodToGo},
		{45.5, LabelWatchIt},
		{70.0, LabelWatchIt},
		{70.01, LabelExcellent},
		{512.3, LabelExcellent},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PopularityLabel(tc.score), "score %v", tc.score)
	}
}

func TestIsFutureReleaseIsStrictlyAfterToday(t *testing.T) {
	now := time.Date(2025, time.March, 10, 23, 59, 0, 0, time.Local)

	assert.True(t, IsFutureRelease("2025-03-11", now))
	assert.False(t, IsFutureRelease("2025-03-10", now))
	assert.False(t, IsFutureRelease("2025-03-09", now))
	assert.False(t, IsFutureRelease("", now))
	assert.False(t, IsFutureRelease("soon", now))
	assert.True(t, IsFutureRelease("2025-03-11T00:00:00Z", now))
}

func TestReleaseLabelAndVerdict(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.Local)
	score := 88.0

	assert.Equal(t, ReleasingDateLabel, ReleaseLabel("2025-03-11", now))
	assert.Equal(t, ReleaseDateLabel, ReleaseLabel("2025-03-10", now))

	assert.Equal(t, LabelUnreleased, PopularityVerdict(&score, "2025-03-11", now))
	assert.Equal(t, LabelExcellent, PopularityVerdict(&score, "2025-03-10", now))
	assert.Equal(t, NotAvailable, PopularityVerdict(nil, "2025-03-10", now))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, NotAvailable, OrNotAvailable("   "))
	assert.Equal(t, "plot", OrNotAvailable("plot"))
	assert.Equal(t, NotAvailable, JoinOrNotAvailable(nil))
	assert.Equal(t, "Action, Drama", JoinOrNotAvailable([]string{"Action", "Drama"}))
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "English", LanguageName("en"))
	assert.Equal(t, "Japanese", LanguageName("ja"))
	assert.Equal(t, NotAvailable, LanguageName(""))
	assert.Equal(t, "not a tag!", LanguageName("not a tag!"))
}
