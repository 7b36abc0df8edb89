package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server" mapstructure:"server"`
	Metadata  MetadataSettings  `json:"metadata" mapstructure:"metadata"`
	Streaming StreamingSettings `json:"streaming" mapstructure:"streaming"`
	Cache     CacheSettings     `json:"cache" mapstructure:"cache"`
	Lists     ListSettings      `json:"lists" mapstructure:"lists"`
	Session   SessionSettings   `json:"session" mapstructure:"session"`
	Log       LogConfig         `json:"log" mapstructure:"log"`
}

type ServerSettings struct {
	Host                   string `json:"host" mapstructure:"host"`
	Port                   int    `json:"port" mapstructure:"port"`
	ShutdownTimeoutSeconds int    `json:"shutdownTimeoutSeconds" mapstructure:"shutdownTimeoutSeconds"`
}

type MetadataSettings struct {
	TMDBAPIKey       string `json:"tmdbApiKey" mapstructure:"tmdbApiKey"`
	Language         string `json:"language" mapstructure:"language"`
	BaseURL          string `json:"baseUrl" mapstructure:"baseUrl"`
	ImageBaseURL     string `json:"imageBaseUrl" mapstructure:"imageBaseUrl"`
	PosterSize       string `json:"posterSize" mapstructure:"posterSize"`
	TimeoutSeconds   int    `json:"timeoutSeconds" mapstructure:"timeoutSeconds"`
	RetryAttempts    int    `json:"retryAttempts" mapstructure:"retryAttempts"`
	RetryDelayMillis int    `json:"retryDelayMillis" mapstructure:"retryDelayMillis"`
}

// StreamingSettings holds the third-party player the Watch view embeds.
type StreamingSettings struct {
	EmbedBaseURL string `json:"embedBaseUrl" mapstructure:"embedBaseUrl"`
}

type CacheSettings struct {
	Directory            string `json:"directory" mapstructure:"directory"`
	MetadataTTLHours     int    `json:"metadataTtlHours" mapstructure:"metadataTtlHours"` // 0 disables the response cache
	ProxyPosters         bool   `json:"proxyPosters" mapstructure:"proxyPosters"`
	PruneIntervalMinutes int    `json:"pruneIntervalMinutes" mapstructure:"pruneIntervalMinutes"` // expired cache entries and sessions
}

// ListSettings sizes the ranked lists shown by the views.
type ListSettings struct {
	ShowcaseGenres   []string `json:"showcaseGenres" mapstructure:"showcaseGenres"`
	ShowcasePerGenre int      `json:"showcasePerGenre" mapstructure:"showcasePerGenre"`
	GenreCount       int      `json:"genreCount" mapstructure:"genreCount"`
	GenreColumns     int      `json:"genreColumns" mapstructure:"genreColumns"`
	MinVotes         int      `json:"minVotes" mapstructure:"minVotes"`
	TrendingCount    int      `json:"trendingCount" mapstructure:"trendingCount"`
}

type SessionSettings struct {
	TTLMinutes   int  `json:"ttlMinutes" mapstructure:"ttlMinutes"`
	CookieSecure bool `json:"cookieSecure" mapstructure:"cookieSecure"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	File       string `json:"file" mapstructure:"file"`
	MaxSize    int    `json:"maxSize" mapstructure:"maxSize"`
	MaxAge     int    `json:"maxAge" mapstructure:"maxAge"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{Host: "0.0.0.0", Port: 8501, ShutdownTimeoutSeconds: 10},
		Metadata: MetadataSettings{
			TMDBAPIKey:       "",
			Language:         "en",
			BaseURL:          "https://api.themoviedb.org/3",
			ImageBaseURL:     "https://image.tmdb.org/t/p",
			PosterSize:       "w500",
			TimeoutSeconds:   15,
			RetryAttempts:    3,
			RetryDelayMillis: 300,
		},
		Streaming: StreamingSettings{EmbedBaseURL: ""},
		Cache:     CacheSettings{Directory: "cache", MetadataTTLHours: 6, ProxyPosters: false, PruneIntervalMinutes: 30},
		Lists: ListSettings{
			ShowcaseGenres:   []string{"Action", "Comedy", "Mystery", "Science Fiction"},
			ShowcasePerGenre: 5,
			GenreCount:       10,
			GenreColumns:     5,
			MinVotes:         500,
			TrendingCount:    50,
		},
		Session: SessionSettings{TTLMinutes: 120},
		Log: LogConfig{
			File:       "cache/logs/cineverse.log",
			MaxSize:    50,   // 50 MB per file
			MaxBackups: 3,    // keep 3 old files
			MaxAge:     7,    // 7 days
			Compress:   true, // compress old files
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// Path returns the settings file location.
func (m *Manager) Path() string {
	return m.path
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings.json from disk, creating it with defaults if missing,
// then overlays environment variables. Keys absent from the file keep their
// default values.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		// create with defaults
		if err := m.Save(DefaultSettings()); err != nil {
			return Settings{}, err
		}
	}

	v, err := m.newViper()
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error parsing config: %w", err)
	}
	s.backfill()
	return s, nil
}

func (m *Manager) newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("json")

	// Seed every key from the defaults so env overrides work for keys the file omits.
	defaults, err := json.Marshal(DefaultSettings())
	if err != nil {
		return nil, err
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("error reading defaults: %w", err)
	}

	v.SetConfigFile(m.path)
	if err := v.MergeInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Environment variable overrides, e.g. CINEVERSE_SERVER_PORT
	v.SetEnvPrefix("CINEVERSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Secrets also answer to the names the deployment docs use.
	if err := v.BindEnv("metadata.tmdbApiKey", "CINEVERSE_METADATA_TMDBAPIKEY", "TMDB_API_KEY", "API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("streaming.embedBaseUrl", "CINEVERSE_STREAMING_EMBEDBASEURL", "STREAM_BASE_URL"); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Settings) backfill() {
	s.Metadata.TMDBAPIKey = strings.TrimSpace(s.Metadata.TMDBAPIKey)
	s.Streaming.EmbedBaseURL = strings.TrimSpace(s.Streaming.EmbedBaseURL)

	defaults := DefaultSettings()
	if strings.TrimSpace(s.Metadata.Language) == "" {
		s.Metadata.Language = defaults.Metadata.Language
	}
	if s.Server.ShutdownTimeoutSeconds <= 0 {
		s.Server.ShutdownTimeoutSeconds = defaults.Server.ShutdownTimeoutSeconds
	}
	if s.Cache.PruneIntervalMinutes <= 0 {
		s.Cache.PruneIntervalMinutes = defaults.Cache.PruneIntervalMinutes
	}
	if s.Metadata.RetryAttempts < 1 {
		s.Metadata.RetryAttempts = 1
	}
	if len(s.Lists.ShowcaseGenres) == 0 {
		s.Lists.ShowcaseGenres = defaults.Lists.ShowcaseGenres
	}
	if s.Lists.ShowcasePerGenre <= 0 {
		s.Lists.ShowcasePerGenre = defaults.Lists.ShowcasePerGenre
	}
	if s.Lists.GenreCount <= 0 {
		s.Lists.GenreCount = defaults.Lists.GenreCount
	}
	if s.Lists.GenreColumns <= 0 {
		s.Lists.GenreColumns = defaults.Lists.GenreColumns
	}
	if s.Lists.TrendingCount <= 0 {
		s.Lists.TrendingCount = defaults.Lists.TrendingCount
	}
	if s.Session.TTLMinutes <= 0 {
		s.Session.TTLMinutes = defaults.Session.TTLMinutes
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = defaults.Log.File
	}
}

// Validate reports settings the server cannot start without.
func (s Settings) Validate() error {
	var problems []error
	if s.Metadata.TMDBAPIKey == "" {
		problems = append(problems, errors.New("TMDB API key is not set (metadata.tmdbApiKey or TMDB_API_KEY)"))
	}
	if s.Streaming.EmbedBaseURL == "" {
		problems = append(problems, errors.New("streaming base URL is not set (streaming.embedBaseUrl or STREAM_BASE_URL)"))
	} else if u, err := url.Parse(s.Streaming.EmbedBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Errorf("streaming base URL %q must be an absolute http(s) URL", s.Streaming.EmbedBaseURL))
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		problems = append(problems, fmt.Errorf("server port %d out of range", s.Server.Port))
	}
	if s.Lists.MinVotes < 0 {
		problems = append(problems, fmt.Errorf("lists.minVotes must not be negative, got %d", s.Lists.MinVotes))
	}
	return errors.Join(problems...)
}

// Save writes settings atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}
