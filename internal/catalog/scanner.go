// package catalog refreshes the rating cache from the library server.
//
// The full catalog scan is the one place true parallelism is used: album
// detail fetches fan out across a bounded worker pool behind a rate
// limiter, writing disjoint rating-cache rows, and are joined before the
// low-rated set is returned.
package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sablemoth/curator/internal/models"
	"github.com/sablemoth/curator/internal/repositories"
	"github.com/sablemoth/curator/internal/services"
	"golang.org/x/time/rate"
)

// ScanOpts contains fan-out and paging settings for the catalog scan.
type ScanOpts struct {
	AlbumBatchSize int     // albums per catalog page (default 500)
	MaxAlbums      int     // hard cap on albums scanned (default 10000)
	NumWorkers     int     // concurrent album fetches (default 5, max 10)
	RateLimit      float64 // album requests per second (default 5)
	LowRatingMin   int     // low-rating band lower bound, inclusive (default 1)
	LowRatingMax   int     // low-rating band upper bound, inclusive (default 2)
}

func (o *ScanOpts) fill() {
	if o.AlbumBatchSize <= 0 {
		o.AlbumBatchSize = 500
	}
	if o.MaxAlbums <= 0 {
		o.MaxAlbums = 10000
	}
	if o.NumWorkers <= 0 {
		o.NumWorkers = 5
	}
	if o.NumWorkers > 10 {
		o.NumWorkers = 10
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 5.0
	}
	if o.LowRatingMin <= 0 {
		o.LowRatingMin = 1
	}
	if o.LowRatingMax <= 0 {
		o.LowRatingMax = 2
	}
}

// Scanner refreshes the rating cache once per calendar day and derives
// library taste data from starred songs.
type Scanner struct {
	lib    services.Library
	cache  *repositories.RatingCache
	logger *log.Logger
	opts   ScanOpts
}

// NewScanner creates a Scanner. Zero-valued options select defaults.
func NewScanner(lib services.Library, cache *repositories.RatingCache, logger *log.Logger, opts ScanOpts) *Scanner {
	opts.fill()
	return &Scanner{lib: lib, cache: cache, logger: logger, opts: opts}
}

// RefreshRatings returns the low-rated tracks, scanning the full catalog at
// most once per calendar day. Cached results are served when the last scan
// ran today.
func (s *Scanner) RefreshRatings(ctx context.Context) ([]models.LibraryTrack, error) {
	today := time.Now().UTC().Format("2006-01-02")
	if s.cache.LastScanDate() == today {
		s.logger.Info("using cached ratings from today's scan")
		return s.cache.LowRated(s.opts.LowRatingMin, s.opts.LowRatingMax)
	}

	s.logger.Info("performing full library rating scan (cached daily)")

	albumIDs, err := s.fetchAllAlbumIDs(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("found albums to scan", "count", len(albumIDs))

	if len(albumIDs) == 0 {
		return nil, nil
	}

	lowRated := s.scanAlbums(ctx, albumIDs)

	if err := s.cache.SetLastScanDate(today); err != nil {
		s.logger.Warn("failed to record scan date", "err", err)
	}

	s.logger.Info("rating scan complete", "low_rated", len(lowRated))
	return lowRated, nil
}

func (s *Scanner) fetchAllAlbumIDs(ctx context.Context) ([]string, error) {
	var ids []string
	offset := 0
	for offset < s.opts.MaxAlbums {
		albums, err := s.lib.GetAlbums(ctx, offset, s.opts.AlbumBatchSize)
		if err != nil {
			// A partial catalog is still useful; stop paging and scan what we have.
			s.logger.Warn("album page fetch failed", "offset", offset, "err", err)
			break
		}
		if len(albums) == 0 {
			break
		}
		for _, a := range albums {
			if a.ID != "" {
				ids = append(ids, a.ID)
			}
		}
		offset += s.opts.AlbumBatchSize
	}
	return ids, nil
}

// scanAlbums fans album fetches out over a worker pool. Each worker writes
// disjoint rating-cache rows, so ordering between fetches is irrelevant.
func (s *Scanner) scanAlbums(ctx context.Context, albumIDs []string) []models.LibraryTrack {
	limiter := rate.NewLimiter(rate.Limit(s.opts.RateLimit), 1)
	jobs := make(chan string, len(albumIDs))

	var mu sync.Mutex
	var lowRated []models.LibraryTrack

	var wg sync.WaitGroup
	for i := 0; i < s.opts.NumWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for albumID := range jobs {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				tracks, err := s.lib.GetAlbumTracks(ctx, albumID)
				if err != nil {
					s.logger.Debug("album fetch failed", "album", albumID, "err", err)
					continue
				}
				for _, t := range tracks {
					if t.ID == "" || t.Rating == 0 {
						continue
					}
					if err := s.cache.UpdateRating(t.ID, t.Artist, t.Title, t.Rating); err != nil {
						s.logger.Warn("failed to cache rating", "track", t.ID, "err", err)
					}
					if t.Rating >= s.opts.LowRatingMin && t.Rating <= s.opts.LowRatingMax {
						mu.Lock()
						lowRated = append(lowRated, t)
						mu.Unlock()
					}
				}
			}
		}()
	}

	for _, id := range albumIDs {
		jobs <- id
	}
	close(jobs)
	wg.Wait()

	return lowRated
}

// TopArtists returns the most frequent artists among starred songs.
func (s *Scanner) TopArtists(ctx context.Context, limit int) []string {
	starred, err := s.lib.GetStarred(ctx)
	if err != nil || len(starred) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, t := range starred {
		counts[t.Artist]++
	}
	return topKeys(counts, limit)
}

// TopGenres returns the most frequent genres among starred songs.
func (s *Scanner) TopGenres(ctx context.Context, limit int) []string {
	starred, err := s.lib.GetStarred(ctx)
	if err != nil || len(starred) == 0 {
		return nil
	}
	counts := map[string]int{}
	for _, t := range starred {
		if t.Genre != "" && t.Genre != "Unknown" {
			counts[t.Genre]++
		}
	}
	return topKeys(counts, limit)
}

func topKeys(counts map[string]int, limit int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
