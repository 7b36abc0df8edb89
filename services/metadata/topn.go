package metadata

import (
	"context"

	"cineverse/models"
)

// pageFetcher returns one page of a server-side sorted listing.
type pageFetcher func(ctx context.Context, page int) (models.ListPage, error)

// collectTopN pages through fetch from page 1 and returns the first k items in
// the order received. It stops once k items are held, the source reports no
// further pages, or a page comes back empty. Any page error aborts the whole
// listing; a partial list is never returned.
func collectTopN(ctx context.Context, k int, fetch pageFetcher) ([]models.Title, error) {
	if k <= 0 {
		return nil, invalidInput("count must be positive, got %d", k)
	}

	titles := make([]models.Title, 0, k)
	for page := 1; len(titles) < k; page++ {
		result, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		titles = append(titles, result.Results...)

		if len(result.Results) == 0 || page >= result.TotalPages || page >= tmdbMaxPage {
			break
		}
	}

	if len(titles) > k {
		titles = titles[:k]
	}
	return titles, nil
}

// TopN returns the first q.Count titles of the discover listing described by q.
// The minimum vote count only applies when ranking by rating.
func (s *Service) TopN(ctx context.Context, q models.DiscoverQuery) ([]models.Title, error) {
	if q.Mode != models.RankByRating {
		q.Mode = models.RankByPopularity
		q.MinVotes = 0
	}
	if q.MinVotes < 0 {
		return nil, invalidInput("minimum vote count must not be negative, got %d", q.MinVotes)
	}
	return collectTopN(ctx, q.Count, func(ctx context.Context, page int) (models.ListPage, error) {
		return s.tmdb.discoverPage(ctx, q, page)
	})
}

// TopByGenre ranks one genre by popularity or, with byRating, by vote average
// among titles with at least minVotes votes.
func (s *Service) TopByGenre(ctx context.Context, genreID, k int, byRating bool, minVotes int) ([]models.Title, error) {
	if _, ok := models.GenreByID(genreID); !ok {
		return nil, invalidInput("unknown genre id %d", genreID)
	}
	q := models.DiscoverQuery{GenreID: genreID, Count: k, Mode: models.RankByPopularity}
	if byRating {
		q.Mode = models.RankByRating
		q.MinVotes = minVotes
	}
	return s.TopN(ctx, q)
}

// TopTrending returns the k most popular movies across all genres.
func (s *Service) TopTrending(ctx context.Context, k int) ([]models.Title, error) {
	return s.TopN(ctx, models.DiscoverQuery{Count: k, Mode: models.RankByPopularity})
}
