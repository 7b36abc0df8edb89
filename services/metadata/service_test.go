package metadata

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cineverse/models"
)

func TestBestMatchPrefersFirstOfEqualPopularity(t *testing.T) {
	candidates := []models.Title{
		{TMDBID: 10, Popularity: floatPtr(5)},
		{TMDBID: 11, Popularity: floatPtr(9)},
		{TMDBID: 12, Popularity: floatPtr(9)},
		{TMDBID: 13, Popularity: floatPtr(2)},
	}
	best, ok := BestMatch(candidates)
	require.True(t, ok)
	assert.Equal(t, int64(11), best.TMDBID)
}

func TestBestMatchTreatsMissingPopularityAsZero(t *testing.T) {
	best, ok := BestMatch([]models.Title{{TMDBID: 1}, {TMDBID: 2, Popularity: floatPtr(0.5)}})
	require.True(t, ok)
	assert.Equal(t, int64(2), best.TMDBID)

	_, ok = BestMatch(nil)
	assert.False(t, ok)
}

func TestSearchSelectsMostPopularCandidate(t *testing.T) {
	fake := newFakeTMDB(0)
	fake.handle("/3/search/movie", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"page":        1,
			"total_pages": 1,
			"results": []fakeItem{
				{ID: 1, Title: "Dune (1984)", Popularity: floatPtr(12.5), ReleaseDate: "1984-12-14", PosterPath: strPtr("/old.jpg")},
				{ID: 2, Title: "Dune", Popularity: floatPtr(88.1), ReleaseDate: "2021-09-15", PosterPath: strPtr("/new.jpg"), GenreIDs: []int{878, 12}},
			},
		})
	})
	svc := newTestService(t, fake, 1)

	got, err := svc.Search(context.Background(), "  dune ")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TMDBID)
	assert.Equal(t, "Dune", got.Name)
	assert.Equal(t, "tmdb:movie:2", got.ID)
	assert.Equal(t, 2021, got.Year)
	require.NotNil(t, got.Poster)
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/new.jpg", got.Poster.URL)
	assert.Equal(t, "dune", fake.lastQuery().Get("query"))
}

func TestSearchEmptyCandidatesIsNotFound(t *testing.T) {
	fake := newFakeTMDB(0)
	fake.handle("/3/search/movie", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"page": 1, "total_pages": 0, "results": []fakeItem{}})
	})
	svc := newTestService(t, fake, 1)

	got, err := svc.Search(context.Background(), "qwertyuiop")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestSearchBlankQueryMakesNoRequest(t *testing.T) {
	fake := newFakeTMDB(0)
	svc := newTestService(t, fake, 1)

	_, err := svc.Search(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.SearchMulti(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, fake.requestCount())
}

func TestSearchMultiSkipsPeople(t *testing.T) {
	fake := newFakeTMDB(0)
	fake.handle("/3/search/multi", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"page": 1,
			"results": []fakeItem{
				{ID: 5, Name: "Famous Person", Popularity: floatPtr(300), MediaType: "person"},
				{ID: 6, Name: "Dark", Popularity: floatPtr(60), MediaType: "tv", ReleaseDate: ""},
				{ID: 7, Title: "Dark Water", Popularity: floatPtr(20), MediaType: "movie"},
			},
		})
	})
	svc := newTestService(t, fake, 1)

	got, err := svc.SearchMulti(context.Background(), "dark")
	require.NoError(t, err)
	assert.Equal(t, int64(6), got.TMDBID)
	assert.Equal(t, models.MediaTypeTV, got.MediaType)
	assert.Equal(t, "Dark", got.Name)
	assert.Nil(t, got.Poster)
}

func TestShowcaseKeepsGenreOrder(t *testing.T) {
	fake := newFakeTMDB(60)
	svc := newTestService(t, fake, 1)

	ids := []int{28, 35, 9648, 878}
	rows, err := svc.Showcase(context.Background(), ids, 5, 500)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	for i, row := range rows {
		assert.Equal(t, ids[i], row.Genre.ID)
		assert.Len(t, row.Titles, 5)
	}
	assert.Equal(t, "Science Fiction", rows[3].Genre.Name)
}

func TestShowcaseFailsWhenAnyRowFails(t *testing.T) {
	fake := newFakeTMDB(60)
	svc := newTestService(t, fake, 1)

	_, err := svc.Showcase(context.Background(), []int{28, 4242}, 5, 500)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, fake.requestCount())
}

func TestShowcaseFailingRowCancelsSiblings(t *testing.T) {
	fake := newFakeTMDB(60)
	fake.handle("/3/discover/movie", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("with_genres") == "35" {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			fake.serveDiscover(w, r)
		}
	})
	svc := newTestService(t, fake, 1)

	start := time.Now()
	_, err := svc.Showcase(context.Background(), []int{28, 35, 9648, 878}, 5, 500)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "Comedy")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestPopularValidatesPage(t *testing.T) {
	fake := newFakeTMDB(0)
	fake.handle("/3/movie/popular", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"page":        2,
			"total_pages": 9,
			"results":     []fakeItem{{ID: 3, Title: "Popular", Popularity: floatPtr(99), PosterPath: nil}},
		})
	})
	svc := newTestService(t, fake, 1)

	_, err := svc.Popular(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	page, err := svc.Popular(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 9, page.TotalPages)
	require.Len(t, page.Results, 1)
	assert.Empty(t, page.Results[0].PosterPath)
	assert.Nil(t, page.Results[0].Poster)
	assert.Equal(t, "2", fake.lastQuery().Get("page"))
}

func TestTVDetailsAndSeason(t *testing.T) {
	fake := newFakeTMDB(0)
	fake.handle("/3/tv/1399", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":1399,"name":"Game of Thrones","number_of_seasons":8,
			"seasons":[{"season_number":0,"name":"Specials","episode_count":14},{"season_number":1,"name":"Season 1","episode_count":10}]}`))
	})
	fake.handle("/3/tv/1399/season/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"season_number":1,"name":"Season 1","episodes":[{"episode_number":1,"name":"Winter Is Coming"},{"episode_number":2,"name":"The Kingsroad"}]}`))
	})
	svc := newTestService(t, fake, 1)

	details, err := svc.TVDetails(context.Background(), 1399)
	require.NoError(t, err)
	assert.Equal(t, 8, details.NumberOfSeasons)
	assert.Equal(t, 10, details.EpisodeCount(1))
	assert.Equal(t, 0, details.EpisodeCount(5))

	season, err := svc.TVSeason(context.Background(), 1399, 1)
	require.NoError(t, err)
	require.Len(t, season.Episodes, 2)
	assert.Equal(t, "The Kingsroad", season.Episodes[1].Name)

	_, err = svc.TVDetails(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestImageURL(t *testing.T) {
	svc := NewService(Config{APIKey: "k"})
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/a.jpg", svc.ImageURL("/a.jpg", ""))
	assert.Equal(t, "https://image.tmdb.org/t/p/w185/a.jpg", svc.ImageURL("a.jpg", "w185"))
	assert.Empty(t, svc.ImageURL("", "w500"))
}
