package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"

	"cineverse/handlers"

	"github.com/gorilla/mux"
)

// localhostOnlyMiddleware restricts access to loopback peers. The Host header
// is client supplied, so only the connection's remote address counts.
func localhostOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLoopbackPeer(r.RemoteAddr) {
			http.Error(w, "Debug endpoints only accessible from localhost", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopbackPeer(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts the UI views, the JSON API and the poster proxy onto r.
// imageHandler may be nil when posters are linked straight to TMDB, tasksHandler
// when no maintenance scheduler runs and cacheHandler when caches are not exposed.
func Register(
	r *mux.Router,
	uiHandler *handlers.UIHandler,
	metadataHandler *handlers.MetadataHandler,
	imageHandler *handlers.ImageHandler,
	tasksHandler *handlers.ScheduledTasksHandler,
	cacheHandler *handlers.CacheHandler,
) {
	// Views
	r.HandleFunc("/", uiHandler.Home).Methods(http.MethodGet)
	r.HandleFunc("/genres", uiHandler.ByGenre).Methods(http.MethodGet)
	r.HandleFunc("/trending", uiHandler.Trending).Methods(http.MethodGet)
	r.HandleFunc("/watch", uiHandler.Watch).Methods(http.MethodGet)
	r.HandleFunc("/watch/search", uiHandler.WatchSearch).Methods(http.MethodPost)
	r.HandleFunc("/watch/play", uiHandler.WatchPlay).Methods(http.MethodPost)

	r.HandleFunc("/healthz", handlers.Health).Methods(http.MethodGet)

	if imageHandler != nil {
		r.HandleFunc("/images/{size}/{file}", imageHandler.Proxy).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/search", metadataHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/search", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/genres", metadataHandler.Genres).Methods(http.MethodGet)
	api.HandleFunc("/genres", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/discover", metadataHandler.Discover).Methods(http.MethodGet)
	api.HandleFunc("/discover", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/trending", metadataHandler.Trending).Methods(http.MethodGet)
	api.HandleFunc("/trending", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/popular", metadataHandler.Popular).Methods(http.MethodGet)
	api.HandleFunc("/popular", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/tv/{id}", metadataHandler.TVDetails).Methods(http.MethodGet)
	api.HandleFunc("/tv/{id}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/tv/{id}/season/{season}", metadataHandler.TVSeason).Methods(http.MethodGet)
	api.HandleFunc("/tv/{id}/season/{season}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/stream-url", metadataHandler.StreamURL).Methods(http.MethodGet)
	api.HandleFunc("/stream-url", handleOptions).Methods(http.MethodOptions)

	// Pprof debug endpoints for profiling (localhost only)
	pprofRouter := api.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.Use(localhostOnlyMiddleware)
	pprofRouter.HandleFunc("/", pprof.Index)
	pprofRouter.HandleFunc("/cmdline", pprof.Cmdline)
	pprofRouter.HandleFunc("/profile", pprof.Profile)
	pprofRouter.HandleFunc("/symbol", pprof.Symbol)
	pprofRouter.HandleFunc("/trace", pprof.Trace)
	pprofRouter.HandleFunc("/goroutine", pprof.Handler("goroutine").ServeHTTP)
	pprofRouter.HandleFunc("/heap", pprof.Handler("heap").ServeHTTP)

	runtimeRouter := api.PathPrefix("/debug/runtime").Subrouter()
	runtimeRouter.Use(localhostOnlyMiddleware)
	runtimeRouter.HandleFunc("", runtimeStats).Methods(http.MethodGet)

	if tasksHandler != nil {
		tasksRouter := api.PathPrefix("/debug/tasks").Subrouter()
		tasksRouter.Use(localhostOnlyMiddleware)
		tasksRouter.HandleFunc("", tasksHandler.ListTasks).Methods(http.MethodGet)
		tasksRouter.HandleFunc("/{taskID}/run", tasksHandler.RunTask).Methods(http.MethodPost)
	}

	if cacheHandler != nil {
		cacheRouter := api.PathPrefix("/debug/cache").Subrouter()
		cacheRouter.Use(localhostOnlyMiddleware)
		cacheRouter.HandleFunc("", cacheHandler.Stats).Methods(http.MethodGet)
		cacheRouter.HandleFunc("/clear", cacheHandler.ClearCache).Methods(http.MethodPost)
	}
}

func runtimeStats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"goroutines":  runtime.NumGoroutine(),
		"heapAlloc":   m.HeapAlloc,
		"heapInuse":   m.HeapInuse,
		"heapObjects": m.HeapObjects,
		"numGC":       m.NumGC,
		"numCPU":      runtime.NumCPU(),
	})
}
