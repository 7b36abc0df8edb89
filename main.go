package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cineverse/api"
	"cineverse/config"
	"cineverse/handlers"
	"cineverse/models"
	"cineverse/services/metadata"
	"cineverse/services/scheduler"
	"cineverse/services/sessions"
	"cineverse/services/stream"
	"cineverse/utils"

	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	flag.Parse()

	fmt.Println("🚀 CineVerse Starting...")

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("Warning: could not read .env: %v", err)
	}

	// Determine config path (env or default)
	configPath := os.Getenv("CINEVERSE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Redirect standard log to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	if err := settings.Validate(); err != nil {
		log.Fatalf("invalid settings in %s: %v", cfgManager.Path(), err)
	}

	responseCache, err := metadata.OpenResponseCache(filepath.Join(settings.Cache.Directory, "metadata"), settings.Cache.MetadataTTLHours)
	if err != nil {
		log.Printf("warning: metadata cache disabled: %v", err)
	}
	if responseCache != nil {
		defer responseCache.Close()
		fmt.Printf("🗄️  Metadata cache enabled (%dh TTL)\n", settings.Cache.MetadataTTLHours)
	}

	metadataSvc := metadata.NewService(metadata.Config{
		APIKey:        settings.Metadata.TMDBAPIKey,
		Language:      settings.Metadata.Language,
		BaseURL:       settings.Metadata.BaseURL,
		ImageBaseURL:  settings.Metadata.ImageBaseURL,
		PosterSize:    settings.Metadata.PosterSize,
		Timeout:       time.Duration(settings.Metadata.TimeoutSeconds) * time.Second,
		RetryAttempts: settings.Metadata.RetryAttempts,
		RetryDelay:    time.Duration(settings.Metadata.RetryDelayMillis) * time.Millisecond,
		Cache:         responseCache,
	})

	embedBuilder, err := stream.NewBuilder(settings.Streaming.EmbedBaseURL)
	if err != nil {
		log.Fatalf("invalid streaming settings: %v", err)
	}

	var showcaseGenres []int
	for _, name := range settings.Lists.ShowcaseGenres {
		genre, ok := models.GenreByName(name)
		if !ok {
			log.Printf("warning: unknown showcase genre %q ignored", name)
			continue
		}
		showcaseGenres = append(showcaseGenres, genre.ID)
	}

	sessionTTL := time.Duration(settings.Session.TTLMinutes) * time.Minute
	sessionStore := sessions.NewStore(sessionTTL)
	uiHandler, err := handlers.NewUIHandler(metadataSvc, sessionStore, embedBuilder, handlers.UIOptions{
		ShowcaseGenres:   showcaseGenres,
		ShowcasePerGenre: settings.Lists.ShowcasePerGenre,
		GenreCount:       settings.Lists.GenreCount,
		GenreColumns:     settings.Lists.GenreColumns,
		MinVotes:         settings.Lists.MinVotes,
		PosterSize:       settings.Metadata.PosterSize,
		ProxyPosters:     settings.Cache.ProxyPosters,
		SessionTTL:       sessionTTL,
		CookieSecure:     settings.Session.CookieSecure,
	})
	if err != nil {
		log.Fatalf("failed to load UI templates: %v", err)
	}
	metadataHandler := handlers.NewMetadataHandler(metadataSvc, embedBuilder, settings.Lists.TrendingCount, settings.Lists.MinVotes)

	var imageHandler *handlers.ImageHandler
	if settings.Cache.ProxyPosters {
		cacheFs := afero.NewBasePathFs(afero.NewOsFs(), settings.Cache.Directory)
		imageHandler = handlers.NewImageHandler(cacheFs, settings.Metadata.ImageBaseURL)
		count, size := imageHandler.CacheStats()
		fmt.Printf("🖼️  Poster proxy enabled (%d cached, %.1f MB)\n", count, float64(size)/(1<<20))
	}

	// Maintenance tasks
	pruneInterval := time.Duration(settings.Cache.PruneIntervalMinutes) * time.Minute
	schedulerService := scheduler.NewService(time.Minute)
	schedulerService.Register(scheduler.Task{
		ID:       "session-prune",
		Name:     "Drop expired sessions",
		Interval: pruneInterval,
		Run: func(context.Context) (int, error) {
			return sessionStore.Prune(), nil
		},
	})
	if responseCache != nil {
		schedulerService.Register(scheduler.Task{
			ID:       "metadata-cache-prune",
			Name:     "Drop expired TMDB responses",
			Interval: pruneInterval,
			Run: func(context.Context) (int, error) {
				return responseCache.Prune()
			},
		})
	}
	if err := schedulerService.Start(context.Background()); err != nil {
		log.Printf("warning: failed to start scheduler: %v", err)
	}

	r := utils.NewRouter()
	api.Register(r, uiHandler, metadataHandler, imageHandler,
		handlers.NewScheduledTasksHandler(schedulerService),
		handlers.NewCacheHandler(metadataSvc, imageHandler, sessionStore))

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("🛑 Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(settings.Server.ShutdownTimeoutSeconds)*time.Second)
	defer shutdownCancel()

	log.Println("🧹 Stopping scheduler...")
	if err := schedulerService.Stop(shutdownCtx); err != nil {
		log.Printf("Scheduler shutdown error: %v", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("✅ Shutdown complete")
}
