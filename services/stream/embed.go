package stream

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"cineverse/models"
)

var ErrInvalidEmbed = errors.New("invalid embed request")

// EmbedRequest identifies what the player should load. Season and Episode are
// ignored for movies.
type EmbedRequest struct {
	MediaType string
	TMDBID    int64
	Season    int
	Episode   int
}

// Builder turns TMDB ids into player URLs under a configured base.
type Builder struct {
	base string
}

// NewBuilder validates base once so BuildURL cannot fail on configuration.
func NewBuilder(base string) (*Builder, error) {
	base = strings.TrimSpace(base)
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: base %q must be an absolute http(s) URL", ErrInvalidEmbed, base)
	}
	return &Builder{base: base}, nil
}

// BuildURL returns the embed URL for req. A base containing {type}, {id},
// {season} or {episode} is used as a template; otherwise the path is
// /movie/{id} or /tv/{id}/{season}/{episode}.
func (b *Builder) BuildURL(req EmbedRequest) (string, error) {
	if req.TMDBID <= 0 {
		return "", fmt.Errorf("%w: id must be positive, got %d", ErrInvalidEmbed, req.TMDBID)
	}

	id := strconv.FormatInt(req.TMDBID, 10)
	switch req.MediaType {
	case models.MediaTypeMovie:
		if hasPlaceholders(b.base) {
			return expand(b.base, models.MediaTypeMovie, id, "", ""), nil
		}
		return joinPath(b.base, "movie", id), nil
	case models.MediaTypeTV:
		if req.Season < 1 || req.Episode < 1 {
			return "", fmt.Errorf("%w: season and episode start at 1, got S%dE%d", ErrInvalidEmbed, req.Season, req.Episode)
		}
		season, episode := strconv.Itoa(req.Season), strconv.Itoa(req.Episode)
		if hasPlaceholders(b.base) {
			return expand(b.base, models.MediaTypeTV, id, season, episode), nil
		}
		return joinPath(b.base, "tv", id, season, episode), nil
	default:
		return "", fmt.Errorf("%w: unknown media type %q", ErrInvalidEmbed, req.MediaType)
	}
}

func hasPlaceholders(base string) bool {
	for _, p := range []string{"{type}", "{id}", "{season}", "{episode}"} {
		if strings.Contains(base, p) {
			return true
		}
	}
	return false
}

func expand(base, mediaType, id, season, episode string) string {
	return strings.NewReplacer(
		"{type}", mediaType,
		"{id}", id,
		"{season}", season,
		"{episode}", episode,
	).Replace(base)
}

// joinPath appends segments to the base path, keeping any query string.
func joinPath(base string, segments ...string) string {
	u, err := url.Parse(base)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
	}
	return u.JoinPath(segments...).String()
}
