package handlers

import (
	"context"
	"strings"
	"sync"

	"cineverse/models"
)

type genreCall struct {
	genreID  int
	k        int
	byRating bool
	minVotes int
}

type fakeMetadataService struct {
	mu sync.Mutex

	searchResp   *models.Title
	searchErr    error
	multiResp    *models.Title
	multiErr     error
	topNResp     []models.Title
	topNErr      error
	genreResp    []models.Title
	genreErr     error
	trendingResp []models.Title
	trendingErr  error
	showcaseResp []models.GenreRow
	showcaseErr  error
	popularResp  models.ListPage
	popularErr   error
	tvResp       *models.TVDetails
	tvErr        error
	seasonResp   map[int]*models.Season
	seasonErr    error

	searchCalls       int
	lastSearchQuery   string
	lastDiscover      models.DiscoverQuery
	lastGenreCall     genreCall
	lastTrendingCount int
	lastShowcase      []int
	lastPerGenre      int
	lastPopularPage   int
	lastSeason        int
	seasonCalls       int
}

func (f *fakeMetadataService) Search(_ context.Context, query string) (*models.Title, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastSearchQuery = query
	return f.searchResp, f.searchErr
}

func (f *fakeMetadataService) SearchMulti(_ context.Context, query string) (*models.Title, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	f.lastSearchQuery = query
	return f.multiResp, f.multiErr
}

func (f *fakeMetadataService) TopN(_ context.Context, q models.DiscoverQuery) ([]models.Title, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDiscover = q
	return f.topNResp, f.topNErr
}

func (f *fakeMetadataService) TopByGenre(_ context.Context, genreID, k int, byRating bool, minVotes int) ([]models.Title, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGenreCall = genreCall{genreID: genreID, k: k, byRating: byRating, minVotes: minVotes}
	return f.genreResp, f.genreErr
}

func (f *fakeMetadataService) TopTrending(_ context.Context, k int) ([]models.Title, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTrendingCount = k
	return f.trendingResp, f.trendingErr
}

func (f *fakeMetadataService) Showcase(_ context.Context, genreIDs []int, perGenre, _ int) ([]models.GenreRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastShowcase = genreIDs
	f.lastPerGenre = perGenre
	return f.showcaseResp, f.showcaseErr
}

func (f *fakeMetadataService) Popular(_ context.Context, page int) (models.ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPopularPage = page
	return f.popularResp, f.popularErr
}

func (f *fakeMetadataService) TVDetails(_ context.Context, _ int64) (*models.TVDetails, error) {
	return f.tvResp, f.tvErr
}

func (f *fakeMetadataService) TVSeason(_ context.Context, _ int64, season int) (*models.Season, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeason = season
	f.seasonCalls++
	if f.seasonErr != nil {
		return nil, f.seasonErr
	}
	if s, ok := f.seasonResp[season]; ok {
		return s, nil
	}
	return &models.Season{SeasonNumber: season}, nil
}

func (f *fakeMetadataService) ImageURL(imagePath, size string) string {
	if imagePath == "" {
		return ""
	}
	return "https://img.test/" + size + "/" + strings.TrimPrefix(imagePath, "/")
}

func movie(id int64, name string, popularity float64, posterPath string) models.Title {
	t := models.Title{
		TMDBID:     id,
		Name:       name,
		Popularity: &popularity,
		MediaType:  models.MediaTypeMovie,
		PosterPath: posterPath,
	}
	if posterPath != "" {
		t.Poster = &models.Image{URL: "https://image.tmdb.org/t/p/w500" + posterPath, Type: "poster", Size: "w500"}
	}
	return t
}

func season(n, episodes int) *models.Season {
	s := &models.Season{SeasonNumber: n}
	for i := 1; i <= episodes; i++ {
		s.Episodes = append(s.Episodes, models.Episode{EpisodeNumber: i})
	}
	return s
}
