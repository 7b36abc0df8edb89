package models

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Genres is TMDB's movie genre taxonomy. The table is closed: entries are
// never added or changed at runtime.
var Genres = []Genre{
	{ID: 28, Name: "Action"},
	{ID: 12, Name: "Adventure"},
	{ID: 16, Name: "Animation"},
	{ID: 35, Name: "Comedy"},
	{ID: 80, Name: "Crime"},
	{ID: 99, Name: "Documentary"},
	{ID: 18, Name: "Drama"},
	{ID: 10751, Name: "Family"},
	{ID: 14, Name: "Fantasy"},
	{ID: 36, Name: "History"},
	{ID: 27, Name: "Horror"},
	{ID: 10402, Name: "Music"},
	{ID: 9648, Name: "Mystery"},
	{ID: 10749, Name: "Romance"},
	{ID: 878, Name: "Science Fiction"},
	{ID: 10770, Name: "TV Movie"},
	{ID: 53, Name: "Thriller"},
	{ID: 10752, Name: "War"},
	{ID: 37, Name: "Western"},
}

var (
	genresByID   = make(map[int]Genre, len(Genres))
	genresByName = make(map[string]Genre, len(Genres))
	genreNames   = make([]string, 0, len(Genres))
)

func init() {
	for _, g := range Genres {
		genresByID[g.ID] = g
		genresByName[strings.ToLower(g.Name)] = g
		genreNames = append(genreNames, g.Name)
	}
}

// GenreByID returns the genre with the given TMDB id.
func GenreByID(id int) (Genre, bool) {
	g, ok := genresByID[id]
	return g, ok
}

// GenreByName resolves a genre from user input. Exact case-insensitive names
// win; otherwise the closest fuzzy match is used ("sci fi" -> Science Fiction).
func GenreByName(name string) (Genre, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Genre{}, false
	}
	if g, ok := genresByName[strings.ToLower(name)]; ok {
		return g, true
	}

	normalized := strings.NewReplacer("-", " ", "_", " ").Replace(name)
	if g, ok := genresByName[strings.ToLower(normalized)]; ok {
		return g, true
	}

	ranks := fuzzy.RankFindNormalizedFold(strings.ReplaceAll(normalized, " ", ""), genreNames)
	if len(ranks) == 0 {
		return Genre{}, false
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return Genres[best.OriginalIndex], true
}

// GenreNames maps genre ids onto display names, skipping ids outside the table.
func GenreNames(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if g, ok := genresByID[id]; ok {
			names = append(names, g.Name)
		}
	}
	return names
}

// SelectableGenres lists the genres offered by the genre browser menu.
// Documentary is part of the taxonomy but was never offered as a choice.
func SelectableGenres() []Genre {
	out := make([]Genre, 0, len(Genres))
	for _, g := range Genres {
		if g.ID == 99 {
			continue
		}
		out = append(out, g)
	}
	return out
}
