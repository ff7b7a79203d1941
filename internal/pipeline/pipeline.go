// package pipeline orchestrates per-playlist reconciliation.
//
// The core abstraction is Reconciler, which classifies each recommended
// track against the library, batches the unmatched ones for remote fetch,
// waits for the library to settle and reindex, re-matches the fetched set,
// and hands the accumulated track ids to playlist creation.
package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sablemoth/curator/internal/matching"
	"github.com/sablemoth/curator/internal/models"
	"github.com/sablemoth/curator/internal/services"
	"golang.org/x/time/rate"
)

// Stats accumulates per-run counters across all playlists of one pass.
type Stats struct {
	PlaylistsCreated    int
	SongsFound          int
	SongsFetched        int
	SongsFailed         int
	SkippedLowRating    int
	SkippedDuplicate    int
	DuplicatesPrevented int
	WouldFetch          int // dry-run only
}

// RatingSource answers rating lookups from the local cache before the
// pipeline falls back to a live library query.
type RatingSource interface {
	Rating(songID string) (int, bool)
}

// Opts contains pipeline delays and the low-rating exclusion band.
type Opts struct {
	SettleDelay   time.Duration // per accepted fetch, scaled by min(accepted, 5)
	PostScanDelay time.Duration // short fixed delay after reindex completes
	ScanTimeout   time.Duration // bound on the reindex wait
	FetchRate     float64       // fetch requests per second (politeness pacing)
	LowRatingMin  int           // inclusive band start
	LowRatingMax  int           // inclusive band end
	DryRun        bool
}

func (o *Opts) fill() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = 6 * time.Second
	}
	if o.PostScanDelay <= 0 {
		o.PostScanDelay = 2 * time.Second
	}
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = 60 * time.Second
	}
	if o.FetchRate <= 0 {
		o.FetchRate = 1.0
	}
	if o.LowRatingMin <= 0 {
		o.LowRatingMin = 1
	}
	if o.LowRatingMax <= 0 {
		o.LowRatingMax = 2
	}
}

// Reconciler owns the within-run deduplication table and stats counters.
// Constructed fresh per process run and passed by reference; no ambient
// mutable state.
type Reconciler struct {
	lib     services.Library
	fetcher services.FetchTrigger
	matcher *matching.Matcher
	ratings RatingSource
	logger  *log.Logger
	opts    Opts

	limiter   *rate.Limiter
	processed map[string]bool
	stats     Stats
}

// NewReconciler creates a Reconciler. The ratings source may be nil, in
// which case every rating check hits the library server.
func NewReconciler(lib services.Library, fetcher services.FetchTrigger, matcher *matching.Matcher,
	ratings RatingSource, logger *log.Logger, opts Opts) *Reconciler {
	opts.fill()
	return &Reconciler{
		lib:       lib,
		fetcher:   fetcher,
		matcher:   matcher,
		ratings:   ratings,
		logger:    logger,
		opts:      opts,
		limiter:   rate.NewLimiter(rate.Limit(opts.FetchRate), 1),
		processed: make(map[string]bool),
	}
}

// Stats returns a copy of the accumulated counters.
func (r *Reconciler) Stats() Stats { return r.stats }

// CreateFromRecommendations reconciles one playlist's recommendations and
// replaces the named playlist with the resulting track ids. An empty
// result leaves the library untouched.
func (r *Reconciler) CreateFromRecommendations(ctx context.Context, name string, recs []models.RecommendedTrack, maxSongs int) error {
	ids, err := r.ProcessPlaylist(ctx, name, recs, maxSongs)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		r.logger.Info("no tracks resolved, skipping playlist", "playlist", name)
		return nil
	}
	if r.opts.DryRun {
		r.logger.Info("[dry run] would create playlist", "playlist", name, "songs", len(ids))
		return nil
	}
	if err := r.lib.CreatePlaylist(ctx, name, ids); err != nil {
		return err
	}
	r.stats.PlaylistsCreated++
	return nil
}

// ProcessPlaylist runs the three reconciliation phases for one playlist
// and returns the ordered track id list.
func (r *Reconciler) ProcessPlaylist(ctx context.Context, name string, recs []models.RecommendedTrack, maxSongs int) ([]string, error) {
	if maxSongs > 0 && len(recs) > maxSongs {
		recs = recs[:maxSongs]
	}
	plog := r.logger.With("playlist", name)
	plog.Info("processing playlist", "songs", len(recs))

	var ids []string
	var needsFetch []models.RecommendedTrack

	// Phase 1: classify against the library.
	for idx, rec := range recs {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		if !rec.Valid() {
			continue
		}

		key := matching.Key(rec.Artist, rec.Title)
		if r.processed[key] {
			plog.Debug("skipping duplicate", "artist", rec.Artist, "title", rec.Title)
			r.stats.SkippedDuplicate++
			continue
		}
		r.processed[key] = true

		if (idx+1)%10 == 0 || idx == 0 || idx == len(recs)-1 {
			plog.Info("checking library", "progress", idx+1, "total", len(recs))
		}

		res := r.matcher.Classify(ctx, rec.Artist, rec.Title)
		plog.Info("classified", "artist", rec.Artist, "title", rec.Title,
			"result", res.Kind.String(), "score", res.Score)

		switch res.Kind {
		case models.MatchConfident, models.MatchNearDuplicate:
			if r.lowRated(ctx, res.TrackID, rec) {
				continue
			}
			ids = append(ids, res.TrackID)
			r.stats.SongsFound++
			if res.Kind == models.MatchNearDuplicate {
				r.stats.DuplicatesPrevented++
			}
		default:
			// NoMatch and VersionConflict are both "not present": a
			// version conflict stays fetch-eligible so a remix is still
			// fetched even though the original exists.
			needsFetch = append(needsFetch, rec)
		}
	}

	if len(needsFetch) == 0 {
		plog.Info("playlist complete", "resolved", len(ids), "total", len(recs))
		return ids, nil
	}

	if r.opts.DryRun {
		plog.Info("[dry run] would fetch missing songs", "count", len(needsFetch))
		r.stats.WouldFetch += len(needsFetch)
		return ids, nil
	}

	// Phase 2: batch fetch, sequential with politeness pacing.
	plog.Info("fetching missing songs", "count", len(needsFetch))
	accepted := 0
	for idx, rec := range needsFetch {
		if err := r.limiter.Wait(ctx); err != nil {
			return ids, err
		}
		ok, handle := r.fetcher.RequestFetch(ctx, rec.Artist, rec.Title)
		plog.Info("fetch requested", "artist", rec.Artist, "title", rec.Title,
			"accepted", ok, "handle", handle)
		if ok {
			accepted++
		}
		if (idx+1)%5 == 0 || idx == 0 || idx == len(needsFetch)-1 {
			plog.Info("fetch progress", "progress", idx+1, "total", len(needsFetch))
		}
	}

	if accepted == 0 {
		plog.Warn("all fetch attempts failed", "count", len(needsFetch))
		r.stats.SongsFailed += len(needsFetch)
		return ids, nil
	}

	// Settle, then reindex. A timed-out reindex still proceeds to the
	// re-match since a partial scan may have picked up some tracks.
	settle := r.opts.SettleDelay * time.Duration(min(accepted, 5))
	plog.Info("waiting for fetches to settle", "delay", settle)
	if err := sleepCtx(ctx, settle); err != nil {
		return ids, err
	}

	plog.Info("triggering library scan")
	if err := r.lib.TriggerScan(ctx); err != nil {
		plog.Warn("failed to trigger library scan", "err", err)
	}
	if !r.lib.WaitForScan(ctx, r.opts.ScanTimeout) {
		plog.Warn("library scan wait timed out, proceeding")
	}
	if err := sleepCtx(ctx, r.opts.PostScanDelay); err != nil {
		return ids, err
	}

	// Phase 3: re-match fetched items, confident-match path only.
	plog.Info("re-checking fetched songs")
	for _, rec := range needsFetch {
		if err := ctx.Err(); err != nil {
			return ids, err
		}
		res := r.matcher.Match(ctx, rec.Artist, rec.Title)
		if res.Kind != models.MatchConfident {
			r.stats.SongsFailed++
			continue
		}
		if r.lowRated(ctx, res.TrackID, rec) {
			continue
		}
		ids = append(ids, res.TrackID)
		r.stats.SongsFetched++
	}

	plog.Info("playlist complete", "resolved", len(ids), "total", len(recs))
	return ids, nil
}

// lowRated reports whether the track falls inside the low-rating exclusion
// band. A hit is a hard exclusion: the candidate is discarded and no
// replacement fetch is attempted.
func (r *Reconciler) lowRated(ctx context.Context, trackID string, rec models.RecommendedTrack) bool {
	rating, ok := 0, false
	if r.ratings != nil {
		rating, ok = r.ratings.Rating(trackID)
	}
	if !ok {
		got, err := r.lib.GetRating(ctx, trackID)
		if err != nil {
			return false
		}
		rating = got
	}

	if rating >= r.opts.LowRatingMin && rating <= r.opts.LowRatingMax {
		r.logger.Debug("skipping low-rated track",
			"artist", rec.Artist, "title", rec.Title, "rating", rating)
		r.stats.SkippedLowRating++
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
