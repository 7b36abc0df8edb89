package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cineverse/models"
)

func buildURL(base string, req EmbedRequest) (string, error) {
	b, err := NewBuilder(base)
	if err != nil {
		return "", err
	}
	return b.BuildURL(req)
}

func TestBuildURLPathStyle(t *testing.T) {
	b, err := NewBuilder("https://player.example.com/embed/")
	require.NoError(t, err)

	got, err := b.BuildURL(EmbedRequest{MediaType: models.MediaTypeMovie, TMDBID: 603})
	require.NoError(t, err)
	assert.Equal(t, "https://player.example.com/embed/movie/603", got)

	got, err = b.BuildURL(EmbedRequest{MediaType: models.MediaTypeTV, TMDBID: 1399, Season: 2, Episode: 5})
	require.NoError(t, err)
	assert.Equal(t, "https://player.example.com/embed/tv/1399/2/5", got)
}

func TestBuildURLKeepsQuery(t *testing.T) {
	got, err := buildURL("https://player.example.com/embed?autoplay=1", EmbedRequest{MediaType: models.MediaTypeMovie, TMDBID: 11})
	require.NoError(t, err)
	assert.Equal(t, "https://player.example.com/embed/movie/11?autoplay=1", got)
}

func TestBuildURLTemplate(t *testing.T) {
	base := "https://vid.example/{type}?tmdb={id}&s={season}&e={episode}"

	got, err := buildURL(base, EmbedRequest{MediaType: models.MediaTypeTV, TMDBID: 66732, Season: 4, Episode: 1})
	require.NoError(t, err)
	assert.Equal(t, "https://vid.example/tv?tmdb=66732&s=4&e=1", got)

	got, err = buildURL(base, EmbedRequest{MediaType: models.MediaTypeMovie, TMDBID: 27205, Season: 9, Episode: 9})
	require.NoError(t, err)
	assert.Equal(t, "https://vid.example/movie?tmdb=27205&s=&e=", got)
}

func TestBuildURLValidation(t *testing.T) {
	cases := []struct {
		name string
		base string
		req  EmbedRequest
	}{
		{"relative base", "/embed", EmbedRequest{MediaType: models.MediaTypeMovie, TMDBID: 1}},
		{"ftp base", "ftp://files.example", EmbedRequest{MediaType: models.MediaTypeMovie, TMDBID: 1}},
		{"empty base", "", EmbedRequest{MediaType: models.MediaTypeMovie, TMDBID: 1}},
		{"zero id", "https://p.example", EmbedRequest{MediaType: models.MediaTypeMovie}},
		{"season zero", "https://p.example", EmbedRequest{MediaType: models.MediaTypeTV, TMDBID: 1, Season: 0, Episode: 1}},
		{"episode zero", "https://p.example", EmbedRequest{MediaType: models.MediaTypeTV, TMDBID: 1, Season: 1}},
		{"person", "https://p.example", EmbedRequest{MediaType: "person", TMDBID: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := buildURL(tc.base, tc.req)
			assert.ErrorIs(t, err, ErrInvalidEmbed)
		})
	}
}
