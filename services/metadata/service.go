package metadata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"cineverse/models"
)

// Config holds the TMDB connection settings for a Service.
type Config struct {
	APIKey        string
	Language      string
	BaseURL       string
	ImageBaseURL  string
	PosterSize    string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	Cache         *ResponseCache
}

// Service answers every metadata question the views ask. It holds no
// per-request state.
type Service struct {
	tmdb  *tmdbClient
	cache *ResponseCache
}

func NewService(cfg Config) *Service {
	return newServiceWithClient(cfg, nil)
}

func newServiceWithClient(cfg Config, httpc *http.Client) *Service {
	return &Service{
		tmdb:  newTMDBClient(cfg, httpc),
		cache: cfg.Cache,
	}
}

// ClearCache removes all cached TMDB responses.
func (s *Service) ClearCache() error {
	return s.cache.Clear()
}

// ImageURL builds a CDN URL for a relative TMDB image path at the given size.
// It returns "" when the path is empty.
func (s *Service) ImageURL(imagePath, size string) string {
	if size == "" {
		size = s.tmdb.posterSize
	}
	if img := buildTMDBImage(s.tmdb.imageBaseURL, imagePath, size, "poster"); img != nil {
		return img.URL
	}
	return ""
}

// BestMatch returns the candidate with the highest popularity. Ties keep the
// earliest candidate so the remote relevance order decides.
func BestMatch(candidates []models.Title) (models.Title, bool) {
	if len(candidates) == 0 {
		return models.Title{}, false
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].PopularityValue() > candidates[best].PopularityValue() {
			best = i
		}
	}
	return candidates[best], true
}

// Search returns the most popular movie matching query, or ErrNotFound.
func (s *Service) Search(ctx context.Context, query string) (*models.Title, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidInput("search query is empty")
	}
	candidates, err := s.tmdb.searchMovie(ctx, query)
	if err != nil {
		return nil, err
	}
	best, ok := BestMatch(candidates)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	return &best, nil
}

// SearchMulti is Search over movies and TV series together.
func (s *Service) SearchMulti(ctx context.Context, query string) (*models.Title, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidInput("search query is empty")
	}
	candidates, err := s.tmdb.searchMulti(ctx, query)
	if err != nil {
		return nil, err
	}
	best, ok := BestMatch(candidates)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, query)
	}
	return &best, nil
}

// Popular returns one page of TMDB's popular movie list.
func (s *Service) Popular(ctx context.Context, page int) (models.ListPage, error) {
	if page < 1 || page > tmdbMaxPage {
		return models.ListPage{}, invalidInput("page must be between 1 and %d, got %d", tmdbMaxPage, page)
	}
	return s.tmdb.popularPage(ctx, page)
}

// Showcase builds one rating-ranked row per genre, fetching the rows
// concurrently. The first failing row cancels the others and fails the whole
// showcase.
func (s *Service) Showcase(ctx context.Context, genreIDs []int, perGenre, minVotes int) ([]models.GenreRow, error) {
	genres := make([]models.Genre, len(genreIDs))
	for i, id := range genreIDs {
		genre, ok := models.GenreByID(id)
		if !ok {
			return nil, invalidInput("unknown genre id %d", id)
		}
		genres[i] = genre
	}

	rows := make([]models.GenreRow, len(genres))
	errs := make([]error, len(genres))
	p := pool.New().WithContext(ctx).WithCancelOnError()
	for i, genre := range genres {
		p.Go(func(ctx context.Context) error {
			titles, err := s.TopByGenre(ctx, genre.ID, perGenre, true, minVotes)
			if err != nil {
				errs[i] = fmt.Errorf("showcase %s: %w", genre.Name, err)
				return errs[i]
			}
			rows[i] = models.GenreRow{Genre: genre, Titles: titles}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, showcaseCause(ctx, errs, err)
	}
	return rows, nil
}

// showcaseCause prefers the row error that triggered cancellation over the
// context errors of the rows it cancelled.
func showcaseCause(ctx context.Context, errs []error, fallback error) error {
	if ctx.Err() == nil {
		for _, err := range errs {
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return fallback
}

// TVDetails returns the season layout of a series.
func (s *Service) TVDetails(ctx context.Context, tmdbID int64) (*models.TVDetails, error) {
	if tmdbID <= 0 {
		return nil, invalidInput("tv id must be positive, got %d", tmdbID)
	}
	return s.tmdb.tvDetails(ctx, tmdbID)
}

// TVSeason returns the episodes of one season of a series.
func (s *Service) TVSeason(ctx context.Context, tmdbID int64, seasonNumber int) (*models.Season, error) {
	if tmdbID <= 0 {
		return nil, invalidInput("tv id must be positive, got %d", tmdbID)
	}
	if seasonNumber < 0 {
		return nil, invalidInput("season must not be negative, got %d", seasonNumber)
	}
	season, err := s.tmdb.tvSeason(ctx, tmdbID, seasonNumber)
	if err != nil {
		return nil, err
	}
	log.Printf("[metadata] tv %d season %d has %d episodes", tmdbID, seasonNumber, len(season.Episodes))
	return season, nil
}
