package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"cineverse/models"
	metadatapkg "cineverse/services/metadata"
	"cineverse/services/stream"
)

type metadataService interface {
	Search(context.Context, string) (*models.Title, error)
	SearchMulti(context.Context, string) (*models.Title, error)
	TopN(context.Context, models.DiscoverQuery) ([]models.Title, error)
	TopByGenre(ctx context.Context, genreID, k int, byRating bool, minVotes int) ([]models.Title, error)
	TopTrending(context.Context, int) ([]models.Title, error)
	Showcase(ctx context.Context, genreIDs []int, perGenre, minVotes int) ([]models.GenreRow, error)
	Popular(context.Context, int) (models.ListPage, error)
	TVDetails(context.Context, int64) (*models.TVDetails, error)
	TVSeason(context.Context, int64, int) (*models.Season, error)
	ImageURL(imagePath, size string) string
}

var _ metadataService = (*metadatapkg.Service)(nil)

const defaultDiscoverCount = 20

type MetadataHandler struct {
	Service       metadataService
	Embed         *stream.Builder
	TrendingCount int
	MinVotes      int
}

func NewMetadataHandler(s metadataService, embed *stream.Builder, trendingCount, minVotes int) *MetadataHandler {
	if trendingCount <= 0 {
		trendingCount = 50
	}
	return &MetadataHandler{Service: s, Embed: embed, TrendingCount: trendingCount, MinVotes: minVotes}
}

func (h *MetadataHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	mediaType := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type")))

	var (
		result *models.Title
		err    error
	)
	switch mediaType {
	case "", models.MediaTypeMovie:
		result, err = h.Service.Search(r.Context(), q)
	case "multi":
		result, err = h.Service.SearchMulti(r.Context(), q)
	default:
		writeJSONError(w, http.StatusBadRequest, "type must be movie or multi")
		return
	}
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	writeJSON(w, result)
}

func (h *MetadataHandler) Genres(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, models.Genres)
}

func (h *MetadataHandler) Discover(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	q := models.DiscoverQuery{Count: defaultDiscoverCount, Mode: models.RankByPopularity}
	if raw := strings.TrimSpace(query.Get("genre")); raw != "" {
		if id, err := strconv.Atoi(raw); err == nil {
			q.GenreID = id
		} else if genre, ok := models.GenreByName(raw); ok {
			q.GenreID = genre.ID
		} else {
			writeJSONError(w, http.StatusBadRequest, "unknown genre "+strconv.Quote(raw))
			return
		}
		if _, ok := models.GenreByID(q.GenreID); !ok {
			writeJSONError(w, http.StatusBadRequest, "unknown genre "+strconv.Quote(raw))
			return
		}
	}

	count, ok := intParam(w, query.Get("count"), "count", defaultDiscoverCount)
	if !ok {
		return
	}
	q.Count = count

	switch strings.ToLower(strings.TrimSpace(query.Get("sort"))) {
	case "", string(models.RankByPopularity):
	case string(models.RankByRating):
		q.Mode = models.RankByRating
		minVotes, ok := intParam(w, query.Get("minVotes"), "minVotes", h.MinVotes)
		if !ok {
			return
		}
		q.MinVotes = minVotes
	default:
		writeJSONError(w, http.StatusBadRequest, "sort must be popularity or rating")
		return
	}

	titles, err := h.Service.TopN(r.Context(), q)
	if err != nil {
		writeServiceError(w, "discover", err)
		return
	}
	writeJSON(w, titles)
}

func (h *MetadataHandler) Trending(w http.ResponseWriter, r *http.Request) {
	count, ok := intParam(w, r.URL.Query().Get("count"), "count", h.TrendingCount)
	if !ok {
		return
	}
	titles, err := h.Service.TopTrending(r.Context(), count)
	if err != nil {
		writeServiceError(w, "trending", err)
		return
	}
	writeJSON(w, titles)
}

func (h *MetadataHandler) Popular(w http.ResponseWriter, r *http.Request) {
	page, ok := intParam(w, r.URL.Query().Get("page"), "page", 1)
	if !ok {
		return
	}
	result, err := h.Service.Popular(r.Context(), page)
	if err != nil {
		writeServiceError(w, "popular", err)
		return
	}
	writeJSON(w, result)
}

func (h *MetadataHandler) TVDetails(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid tv id")
		return
	}
	details, err := h.Service.TVDetails(r.Context(), id)
	if err != nil {
		writeServiceError(w, "tv details", err)
		return
	}
	writeJSON(w, details)
}

func (h *MetadataHandler) TVSeason(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid tv id")
		return
	}
	season, err := strconv.Atoi(vars["season"])
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid season number")
		return
	}
	result, err := h.Service.TVSeason(r.Context(), id, season)
	if err != nil {
		writeServiceError(w, "tv season", err)
		return
	}
	writeJSON(w, result)
}

// StreamURL returns the embed URL for a title without touching TMDB.
func (h *MetadataHandler) StreamURL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	trimAndParseInt := func(value string) int {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0
		}
		return parsed
	}

	id, err := strconv.ParseInt(strings.TrimSpace(query.Get("id")), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid id")
		return
	}
	req := stream.EmbedRequest{
		MediaType: strings.ToLower(strings.TrimSpace(query.Get("type"))),
		TMDBID:    id,
		Season:    trimAndParseInt(query.Get("season")),
		Episode:   trimAndParseInt(query.Get("episode")),
	}
	if req.MediaType == "" {
		req.MediaType = models.MediaTypeMovie
	}
	if h.Embed == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "streaming is not configured")
		return
	}

	embedURL, err := h.Embed.BuildURL(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]string{"url": embedURL})
}

// Health reports liveness only; it does not call TMDB.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func intParam(w http.ResponseWriter, raw, name string, fallback int) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, name+" must be an integer")
		return 0, false
	}
	return v, true
}

// statusForError maps a metadata error onto the HTTP status the API returns.
func statusForError(err error) int {
	switch metadatapkg.Classify(err) {
	case metadatapkg.KindInvalidInput:
		return http.StatusBadRequest
	case metadatapkg.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func writeServiceError(w http.ResponseWriter, op string, err error) {
	status := statusForError(err)
	if status == http.StatusBadGateway {
		log.Printf("[api] %s failed (%s): %v", op, metadatapkg.Classify(err), err)
	}
	msg := err.Error()
	if errors.Is(err, metadatapkg.ErrNotConfigured) {
		msg = "metadata provider is not configured"
	}
	writeJSONError(w, status, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
