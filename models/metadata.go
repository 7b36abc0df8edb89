package models

// Basic metadata structures for titles and images.

type Image struct {
	URL  string `json:"url"`
	Type string `json:"type"` // poster, backdrop
	Size string `json:"size,omitempty"`
}

// Title is a movie or TV summary as returned by TMDB list endpoints.
// It is a snapshot of a remote record and is never mutated after decoding.
type Title struct {
	ID          string   `json:"id"`
	TMDBID      int64    `json:"tmdbId"`
	Name        string   `json:"name"`
	Overview    string   `json:"overview"`
	ReleaseDate string   `json:"releaseDate,omitempty"` // movie release date or first air date, YYYY-MM-DD
	Year        int      `json:"year,omitempty"`
	Popularity  *float64 `json:"popularity,omitempty"`
	VoteCount   int      `json:"voteCount"`
	VoteAverage float64  `json:"voteAverage"`
	GenreIDs    []int    `json:"genreIds,omitempty"`
	Language    string   `json:"language,omitempty"`
	PosterPath  string   `json:"posterPath,omitempty"`
	Poster      *Image   `json:"poster,omitempty"`
	MediaType   string   `json:"mediaType"` // movie | tv
}

// PopularityValue returns the popularity score, or zero when TMDB omitted it.
func (t Title) PopularityValue() float64 {
	if t.Popularity == nil {
		return 0
	}
	return *t.Popularity
}

// IsTV reports whether the title is a TV series.
func (t Title) IsTV() bool {
	return t.MediaType == MediaTypeTV
}

const (
	MediaTypeMovie = "movie"
	MediaTypeTV    = "tv"
)

// RankMode selects the server-side ordering of a discover query.
type RankMode string

const (
	RankByPopularity RankMode = "popularity"
	RankByRating     RankMode = "rating"
)

// SortParam maps the rank mode onto TMDB's sort_by value.
func (m RankMode) SortParam() string {
	if m == RankByRating {
		return "vote_average.desc"
	}
	return "popularity.desc"
}

// DiscoverQuery describes a ranked discover listing.
type DiscoverQuery struct {
	GenreID  int      `json:"genreId,omitempty"` // 0 means no genre filter
	Count    int      `json:"count"`
	Mode     RankMode `json:"mode"`
	MinVotes int      `json:"minVotes,omitempty"` // only sent when Mode is RankByRating
}

// ListPage is one page of a paginated TMDB listing.
type ListPage struct {
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
	Results    []Title `json:"results"`
}

// GenreRow is a titled ranked list used by the genre showcase.
type GenreRow struct {
	Genre  Genre   `json:"genre"`
	Titles []Title `json:"titles"`
}

type SeasonSummary struct {
	SeasonNumber int    `json:"seasonNumber"`
	Name         string `json:"name"`
	EpisodeCount int    `json:"episodeCount"`
}

// TVDetails carries the series fields needed to bound season and episode pickers.
type TVDetails struct {
	TMDBID          int64           `json:"tmdbId"`
	Name            string          `json:"name"`
	NumberOfSeasons int             `json:"numberOfSeasons"`
	Seasons         []SeasonSummary `json:"seasons"`
}

// EpisodeCount returns the episode count TMDB reported for season n, or 0.
func (d *TVDetails) EpisodeCount(n int) int {
	if d == nil {
		return 0
	}
	for _, s := range d.Seasons {
		if s.SeasonNumber == n {
			return s.EpisodeCount
		}
	}
	return 0
}

type Episode struct {
	EpisodeNumber int    `json:"episodeNumber"`
	Name          string `json:"name"`
	AirDate       string `json:"airDate,omitempty"`
}

type Season struct {
	SeasonNumber int       `json:"seasonNumber"`
	Name         string    `json:"name"`
	Episodes     []Episode `json:"episodes"`
}
