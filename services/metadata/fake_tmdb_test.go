package metadata

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

const fakePageSize = 20

type fakeItem struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title,omitempty"`
	Name        string   `json:"name,omitempty"`
	Overview    string   `json:"overview"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Popularity  *float64 `json:"popularity,omitempty"`
	VoteCount   int      `json:"vote_count"`
	VoteAverage float64  `json:"vote_average"`
	GenreIDs    []int    `json:"genre_ids"`
	PosterPath  *string  `json:"poster_path"`
	MediaType   string   `json:"media_type,omitempty"`
}

// fakeTMDB serves a deterministic discover universe and records every request.
type fakeTMDB struct {
	mu       sync.Mutex
	requests []url.Values
	paths    []string

	universe []fakeItem
	routes   map[string]http.HandlerFunc
}

func newFakeTMDB(total int) *fakeTMDB {
	f := &fakeTMDB{routes: make(map[string]http.HandlerFunc)}
	for i := 0; i < total; i++ {
		pop := float64(1000 - i)
		poster := fmt.Sprintf("/poster-%d.jpg", i+1)
		f.universe = append(f.universe, fakeItem{
			ID:          int64(i + 1),
			Title:       fmt.Sprintf("Movie %d", i+1),
			Popularity:  &pop,
			VoteCount:   (i * 137) % 2000,
			VoteAverage: 9.9 - float64(i)/100,
			GenreIDs:    []int{28},
			PosterPath:  &poster,
		})
	}
	return f
}

func (f *fakeTMDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.URL.Query())
	f.paths = append(f.paths, r.URL.Path)
	route := f.routes[r.URL.Path]
	f.mu.Unlock()

	if route != nil {
		route(w, r)
		return
	}
	if r.URL.Path == "/3/discover/movie" {
		f.serveDiscover(w, r)
		return
	}
	http.NotFound(w, r)
}

func (f *fakeTMDB) serveDiscover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	items := f.universe
	if gte := q.Get("vote_count.gte"); gte != "" {
		min, _ := strconv.Atoi(gte)
		filtered := make([]fakeItem, 0, len(items))
		for _, it := range items {
			if it.VoteCount >= min {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	totalPages := (len(items) + fakePageSize - 1) / fakePageSize
	start := (page - 1) * fakePageSize
	end := start + fakePageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	writeJSON(w, map[string]any{
		"page":          page,
		"total_pages":   totalPages,
		"total_results": len(items),
		"results":       items[start:end],
	})
}

func (f *fakeTMDB) handle(path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[path] = h
}

func (f *fakeTMDB) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTMDB) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeTMDB) allQueries() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.requests...)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// newTestService points a Service at the fake with throttling and retry delays disabled.
func newTestService(t *testing.T, fake *fakeTMDB, attempts int) *Service {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc := newServiceWithClient(Config{
		APIKey:        "test-key",
		Language:      "en",
		BaseURL:       srv.URL + "/3",
		RetryAttempts: attempts,
		RetryDelay:    time.Millisecond,
	}, srv.Client())
	svc.tmdb.minInterval = 0
	return svc
}

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }
