package handlers

import (
	"log"
	"net/http"
)

type cacheClearer interface {
	ClearCache() error
}

type sessionCounter interface {
	Len() int
}

// CacheHandler reports on and clears the TMDB response cache and the poster cache.
type CacheHandler struct {
	MetadataService cacheClearer
	Images          *ImageHandler // nil when posters are not proxied
	Sessions        sessionCounter
}

func NewCacheHandler(metadataService cacheClearer, images *ImageHandler, sessions sessionCounter) *CacheHandler {
	return &CacheHandler{MetadataService: metadataService, Images: images, Sessions: sessions}
}

// Stats returns poster cache usage and the number of live sessions
// GET /api/debug/cache
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"posterProxy": h.Images != nil}
	if h.Images != nil {
		count, size := h.Images.CacheStats()
		resp["posters"] = map[string]any{"count": count, "bytes": size}
	}
	if h.Sessions != nil {
		resp["sessions"] = h.Sessions.Len()
	}
	writeJSON(w, resp)
}

// ClearCache drops cached TMDB responses and cached posters
// POST /api/debug/cache/clear
func (h *CacheHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if h.MetadataService == nil {
		writeJSONError(w, http.StatusInternalServerError, "metadata service not available")
		return
	}
	if err := h.MetadataService.ClearCache(); err != nil {
		log.Printf("[cache] clear metadata cache: %v", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.Images != nil {
		if err := h.Images.ClearCache(); err != nil {
			log.Printf("[cache] clear poster cache: %v", err)
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	log.Printf("[cache] metadata and poster caches cleared by request")
	writeJSON(w, map[string]string{"status": "ok", "message": "Caches cleared"})
}
