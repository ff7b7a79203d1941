package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/sablemoth/curator/internal/models"
	"github.com/sablemoth/curator/internal/shared"
)

// scriptedSearcher returns canned results per exact query string.
type scriptedSearcher struct {
	results map[string][]models.LibraryTrack
	err     error
}

func (s *scriptedSearcher) Search(ctx context.Context, query string, limit int) ([]models.LibraryTrack, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results[query], nil
}

func quotedPair(artist, title string) string { return fmt.Sprintf("%q %q", artist, title) }
func quoted(s string) string                 { return fmt.Sprintf("%q", s) }

func newTestMatcher(lib Searcher) *Matcher {
	return NewMatcher(lib, shared.NewLogger(io.Discard), 0, 0)
}

func TestMatcher(t *testing.T) {
	ctx := context.Background()

	t.Run("confident match on exact track", func(t *testing.T) {
		lib := &scriptedSearcher{results: map[string][]models.LibraryTrack{
			quotedPair("Vera Lane", "Night Drive"): {
				{ID: "t1", Artist: "Vera Lane", Title: "Night Drive"},
			},
		}}
		res := newTestMatcher(lib).Classify(ctx, "Vera Lane", "Night Drive")

		if res.Kind != models.MatchConfident {
			t.Fatalf("expected confident match, got %s", res.Kind)
		}
		if res.TrackID != "t1" {
			t.Errorf("expected track id t1, got %s", res.TrackID)
		}
		if res.Score != 1.0 {
			t.Errorf("expected score 1.0, got %f", res.Score)
		}
	})

	t.Run("candidates merged across query shapes", func(t *testing.T) {
		lib := &scriptedSearcher{results: map[string][]models.LibraryTrack{
			quoted("Night Drive"): {
				{ID: "t1", Artist: "Vera Lane", Title: "Night Drive"},
			},
			"Vera Lane Night Drive": {
				{ID: "t1", Artist: "Vera Lane", Title: "Night Drive"},
				{ID: "t2", Artist: "Other Act", Title: "Unrelated Song"},
			},
		}}
		res := newTestMatcher(lib).Match(ctx, "Vera Lane", "Night Drive")

		if res.Kind != models.MatchConfident || res.TrackID != "t1" {
			t.Fatalf("expected confident match on t1, got %s/%s", res.Kind, res.TrackID)
		}
	})

	t.Run("version conflict when markers differ", func(t *testing.T) {
		lib := &scriptedSearcher{results: map[string][]models.LibraryTrack{
			quotedPair("Vera Lane", "Night Drive"): {
				{ID: "t1", Artist: "Vera Lane", Title: "Night Drive (Live)"},
			},
		}}
		res := newTestMatcher(lib).Match(ctx, "Vera Lane", "Night Drive")

		if res.Kind != models.MatchVersionConflict {
			t.Fatalf("expected version conflict, got %s", res.Kind)
		}
		if res.TrackID != "" {
			t.Errorf("version conflict should not carry a track id, got %s", res.TrackID)
		}
	})

	t.Run("matching markers on both sides agree", func(t *testing.T) {
		lib := &scriptedSearcher{results: map[string][]models.LibraryTrack{
			quotedPair("Vera Lane", "Night Drive (Remix)"): {
				{ID: "t1", Artist: "Vera Lane", Title: "Night Drive (Remix)"},
			},
		}}
		res := newTestMatcher(lib).Match(ctx, "Vera Lane", "Night Drive (Remix)")

		if res.Kind != models.MatchConfident {
			t.Fatalf("expected confident match when both carry remix marker, got %s", res.Kind)
		}
	})

	t.Run("no candidates means no match", func(t *testing.T) {
		lib := &scriptedSearcher{results: map[string][]models.LibraryTrack{}}
		res := newTestMatcher(lib).Classify(ctx, "Vera Lane", "Night Drive")

		if res.Kind != models.MatchNone {
			t.Fatalf("expected no match, got %s", res.Kind)
		}
	})

	t.Run("low score rejected", func(t *testing.T) {
		lib := &scriptedSearcher{results: map[string][]models.LibraryTrack{
			quotedPair("Vera Lane", "Night Drive"): {
				{ID: "t9", Artist: "Completely Different", Title: "Nothing Alike Here"},
			},
		}}
		res := newTestMatcher(lib).Match(ctx, "Vera Lane", "Night Drive")

		if res.Kind != models.MatchNone {
			t.Fatalf("expected no match below threshold, got %s", res.Kind)
		}
	})

	t.Run("search errors degrade to no match", func(t *testing.T) {
		lib := &scriptedSearcher{err: errors.New("server down")}
		res := newTestMatcher(lib).Classify(ctx, "Vera Lane", "Night Drive")

		if res.Kind != models.MatchNone {
			t.Fatalf("expected graceful no-match on search error, got %s", res.Kind)
		}
	})
}

func TestNearDuplicate(t *testing.T) {
	ctx := context.Background()

	t.Run("near-identical title suppresses fetch", func(t *testing.T) {
		// Only the artist-scoped search sees this track, so the confident
		// pass misses it and the near-duplicate pass must catch it.
		lib := &scriptedSearcher{results: map[string][]models.LibraryTrack{
			quoted("Vera Lane"): {
				{ID: "t1", Artist: "Vera Lane", Title: "Night Drives"},
			},
		}}
		res := newTestMatcher(lib).Classify(ctx, "Vera Lane", "Night Drive")

		if res.Kind != models.MatchNearDuplicate {
			t.Fatalf("expected near duplicate, got %s", res.Kind)
		}
		if res.TrackID != "t1" {
			t.Errorf("expected track id t1, got %s", res.TrackID)
		}
	})

	t.Run("version presence mismatch is skipped", func(t *testing.T) {
		lib := &scriptedSearcher{results: map[string][]models.LibraryTrack{
			quoted("Vera Lane"): {
				{ID: "t1", Artist: "Vera Lane", Title: "Night Drive (Remix)"},
			},
		}}
		res := newTestMatcher(lib).NearDuplicate(ctx, "Vera Lane", "Night Drive")

		if res.Kind != models.MatchNone {
			t.Fatalf("expected versioned track to be skipped, got %s", res.Kind)
		}
	})

	t.Run("dissimilar artist fails both-field requirement", func(t *testing.T) {
		lib := &scriptedSearcher{results: map[string][]models.LibraryTrack{
			quoted("Vera Lane"): {
				{ID: "t1", Artist: "Totally Other Band", Title: "Night Drive"},
			},
		}}
		res := newTestMatcher(lib).NearDuplicate(ctx, "Vera Lane", "Night Drive")

		if res.Kind != models.MatchNone {
			t.Fatalf("expected no near duplicate with dissimilar artist, got %s", res.Kind)
		}
	})
}
