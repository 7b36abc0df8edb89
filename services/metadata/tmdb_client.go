package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/text/language"

	"cineverse/models"
)

const (
	tmdbBaseURL      = "https://api.themoviedb.org/3"
	tmdbImageBaseURL = "https://image.tmdb.org/t/p"
	tmdbPosterSize   = "w500"

	// TMDB refuses page numbers above this.
	tmdbMaxPage = 500
)

type tmdbClient struct {
	apiKey       string
	language     string
	baseURL      string
	imageBaseURL string
	posterSize   string
	httpc        *http.Client
	cache        *ResponseCache

	attempts uint
	backoff  time.Duration

	// Rate limiting
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newTMDBClient(cfg Config, httpc *http.Client) *tmdbClient {
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &tmdbClient{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		language:     cfg.Language,
		baseURL:      strings.TrimRight(firstNonEmpty(cfg.BaseURL, tmdbBaseURL), "/"),
		imageBaseURL: strings.TrimRight(firstNonEmpty(cfg.ImageBaseURL, tmdbImageBaseURL), "/"),
		posterSize:   firstNonEmpty(cfg.PosterSize, tmdbPosterSize),
		httpc:        httpc,
		cache:        cfg.Cache,
		attempts:     uint(attempts),
		backoff:      cfg.RetryDelay,
		minInterval:  20 * time.Millisecond, // TMDB has generous rate limits
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

func (c *tmdbClient) throttle() {
	c.throttleMu.Lock()
	defer c.throttleMu.Unlock()
	since := time.Since(c.lastRequest)
	if since < c.minInterval {
		time.Sleep(c.minInterval - since)
	}
	c.lastRequest = time.Now()
}

// doGET fetches endpoint (relative to the API base) with params and decodes the
// JSON body into v. Transport failures, 429 and 5xx are retried with backoff.
func (c *tmdbClient) doGET(ctx context.Context, endpoint string, params url.Values, v any) error {
	if !c.isConfigured() {
		return ErrNotConfigured
	}

	query := url.Values{}
	for k, vals := range params {
		query[k] = append([]string(nil), vals...)
	}
	key := cacheKey(endpoint, query.Encode())
	if body, ok := c.cache.get(key); ok {
		if err := json.Unmarshal(body, v); err == nil {
			return nil
		}
	}

	fullURL, err := url.JoinPath(c.baseURL, endpoint)
	if err != nil {
		return invalidInput("endpoint %q: %v", endpoint, err)
	}
	query.Set("api_key", c.apiKey)
	fullURL += "?" + query.Encode()

	var body []byte
	err = retry.Do(
		func() error {
			c.throttle()
			var fetchErr error
			body, fetchErr = c.fetch(ctx, endpoint, fullURL)
			return fetchErr
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("[tmdb] %s failed (attempt %d/%d): %v", endpoint, n+1, c.attempts, err)
		}),
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &MalformedResponseError{Endpoint: endpoint, Err: err}
	}
	c.cache.set(key, body)
	return nil
}

func (c *tmdbClient) fetch(ctx context.Context, endpoint, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, invalidInput("build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: stripAPIKey(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	return body, nil
}

// stripAPIKey drops the request URL from *url.Error so the key never reaches logs.
func stripAPIKey(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func (c *tmdbClient) languageParam() string {
	if lang := strings.TrimSpace(c.language); lang != "" {
		return normalizeLanguage(lang)
	}
	return "en-US"
}

type tmdbListResponse struct {
	Page         int          `json:"page"`
	TotalPages   int          `json:"total_pages"`
	TotalResults int          `json:"total_results"`
	Results      []tmdbResult `json:"results"`
}

type tmdbResult struct {
	ID               int64    `json:"id"`
	Title            string   `json:"title"`
	Name             string   `json:"name"`
	Overview         string   `json:"overview"`
	ReleaseDate      string   `json:"release_date"`
	FirstAirDate     string   `json:"first_air_date"`
	Popularity       *float64 `json:"popularity"`
	VoteCount        int      `json:"vote_count"`
	VoteAverage      float64  `json:"vote_average"`
	GenreIDs         []int    `json:"genre_ids"`
	PosterPath       *string  `json:"poster_path"`
	OriginalLanguage string   `json:"original_language"`
	MediaType        string   `json:"media_type"`
}

func (c *tmdbClient) searchMovie(ctx context.Context, query string) ([]models.Title, error) {
	var payload tmdbListResponse
	if err := c.doGET(ctx, "search/movie", url.Values{"query": {query}}, &payload); err != nil {
		return nil, err
	}
	return c.toTitles(models.MediaTypeMovie, payload.Results), nil
}

// searchMulti searches movies and TV together. People are dropped.
func (c *tmdbClient) searchMulti(ctx context.Context, query string) ([]models.Title, error) {
	var payload tmdbListResponse
	if err := c.doGET(ctx, "search/multi", url.Values{"query": {query}}, &payload); err != nil {
		return nil, err
	}
	titles := make([]models.Title, 0, len(payload.Results))
	for _, r := range payload.Results {
		switch r.MediaType {
		case models.MediaTypeMovie, models.MediaTypeTV:
			titles = append(titles, c.toTitle(r.MediaType, r))
		}
	}
	return titles, nil
}

func (c *tmdbClient) discoverPage(ctx context.Context, q models.DiscoverQuery, page int) (models.ListPage, error) {
	params := url.Values{
		"language": {c.languageParam()},
		"sort_by":  {q.Mode.SortParam()},
		"page":     {strconv.Itoa(page)},
	}
	if q.GenreID > 0 {
		params.Set("with_genres", strconv.Itoa(q.GenreID))
	}
	// Ratings over a handful of votes are noise; popularity already weighs volume.
	if q.Mode == models.RankByRating {
		params.Set("vote_count.gte", strconv.Itoa(q.MinVotes))
	}

	var payload tmdbListResponse
	if err := c.doGET(ctx, "discover/movie", params, &payload); err != nil {
		return models.ListPage{}, err
	}
	return c.toListPage(models.MediaTypeMovie, payload), nil
}

func (c *tmdbClient) popularPage(ctx context.Context, page int) (models.ListPage, error) {
	params := url.Values{
		"language": {c.languageParam()},
		"page":     {strconv.Itoa(page)},
	}
	var payload tmdbListResponse
	if err := c.doGET(ctx, "movie/popular", params, &payload); err != nil {
		return models.ListPage{}, err
	}
	return c.toListPage(models.MediaTypeMovie, payload), nil
}

func (c *tmdbClient) tvDetails(ctx context.Context, tmdbID int64) (*models.TVDetails, error) {
	var payload struct {
		ID              int64  `json:"id"`
		Name            string `json:"name"`
		NumberOfSeasons int    `json:"number_of_seasons"`
		Seasons         []struct {
			SeasonNumber int    `json:"season_number"`
			Name         string `json:"name"`
			EpisodeCount int    `json:"episode_count"`
		} `json:"seasons"`
	}
	if err := c.doGET(ctx, path.Join("tv", strconv.FormatInt(tmdbID, 10)), nil, &payload); err != nil {
		return nil, err
	}

	details := &models.TVDetails{
		TMDBID:          payload.ID,
		Name:            payload.Name,
		NumberOfSeasons: payload.NumberOfSeasons,
		Seasons:         make([]models.SeasonSummary, 0, len(payload.Seasons)),
	}
	for _, s := range payload.Seasons {
		details.Seasons = append(details.Seasons, models.SeasonSummary{
			SeasonNumber: s.SeasonNumber,
			Name:         s.Name,
			EpisodeCount: s.EpisodeCount,
		})
	}
	return details, nil
}

func (c *tmdbClient) tvSeason(ctx context.Context, tmdbID int64, seasonNumber int) (*models.Season, error) {
	var payload struct {
		SeasonNumber int    `json:"season_number"`
		Name         string `json:"name"`
		Episodes     []struct {
			EpisodeNumber int    `json:"episode_number"`
			Name          string `json:"name"`
			AirDate       string `json:"air_date"`
		} `json:"episodes"`
	}
	endpoint := path.Join("tv", strconv.FormatInt(tmdbID, 10), "season", strconv.Itoa(seasonNumber))
	if err := c.doGET(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}

	season := &models.Season{
		SeasonNumber: payload.SeasonNumber,
		Name:         payload.Name,
		Episodes:     make([]models.Episode, 0, len(payload.Episodes)),
	}
	for _, e := range payload.Episodes {
		season.Episodes = append(season.Episodes, models.Episode{
			EpisodeNumber: e.EpisodeNumber,
			Name:          e.Name,
			AirDate:       e.AirDate,
		})
	}
	return season, nil
}

func (c *tmdbClient) toListPage(mediaType string, payload tmdbListResponse) models.ListPage {
	return models.ListPage{
		Page:       payload.Page,
		TotalPages: payload.TotalPages,
		Results:    c.toTitles(mediaType, payload.Results),
	}
}

func (c *tmdbClient) toTitles(mediaType string, results []tmdbResult) []models.Title {
	titles := make([]models.Title, 0, len(results))
	for _, r := range results {
		titles = append(titles, c.toTitle(mediaType, r))
	}
	return titles
}

func (c *tmdbClient) toTitle(mediaType string, r tmdbResult) models.Title {
	title := models.Title{
		ID:          fmt.Sprintf("tmdb:%s:%d", mediaType, r.ID),
		TMDBID:      r.ID,
		Name:        pickTMDBName(mediaType, r.Name, r.Title),
		Overview:    r.Overview,
		ReleaseDate: firstNonEmpty(r.ReleaseDate, r.FirstAirDate),
		Popularity:  r.Popularity,
		VoteCount:   r.VoteCount,
		VoteAverage: r.VoteAverage,
		GenreIDs:    r.GenreIDs,
		Language:    r.OriginalLanguage,
		MediaType:   mediaType,
	}
	if year := parseTMDBYear(r.ReleaseDate, r.FirstAirDate); year != 0 {
		title.Year = year
	}
	if r.PosterPath != nil {
		title.PosterPath = strings.TrimSpace(*r.PosterPath)
	}
	if poster := buildTMDBImage(c.imageBaseURL, title.PosterPath, c.posterSize, "poster"); poster != nil {
		title.Poster = poster
	}
	return title
}

func pickTMDBName(mediaType, seriesName, movieTitle string) string {
	if mediaType == models.MediaTypeMovie && movieTitle != "" {
		return movieTitle
	}
	if seriesName != "" {
		return seriesName
	}
	return movieTitle
}

func parseTMDBYear(movieDate, seriesDate string) int {
	date := movieDate
	if date == "" {
		date = seriesDate
	}
	if date == "" {
		return 0
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Year()
	}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y
		}
	}
	return 0
}

// buildTMDBImage prefixes a relative TMDB image path with the CDN base and size.
func buildTMDBImage(baseURL, imagePath, size, imageType string) *models.Image {
	trimmed := strings.TrimSpace(imagePath)
	if trimmed == "" {
		return nil
	}
	fullPath := path.Join(size, strings.TrimPrefix(trimmed, "/"))
	return &models.Image{
		URL:  fmt.Sprintf("%s/%s", baseURL, fullPath),
		Type: imageType,
		Size: size,
	}
}

// normalizeLanguage reduces a BCP 47 tag to TMDB's language-REGION form.
// Scripts are dropped and a missing region defaults to US.
func normalizeLanguage(lang string) string {
	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return "en-US"
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "en-US"
	}
	region := "US"
	if r, conf := tag.Region(); conf == language.Exact {
		region = r.String()
	}
	return base.String() + "-" + region
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
