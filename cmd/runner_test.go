package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sablemoth/curator/internal/models"
	"github.com/sablemoth/curator/internal/repositories"
	"github.com/sablemoth/curator/internal/services"
	"github.com/sablemoth/curator/internal/shared"
	tu "github.com/sablemoth/curator/internal/testing"
	"github.com/urfave/cli/v3"
)

func testConfig(t *testing.T) *shared.Config {
	t.Helper()
	config := shared.DefaultConfig()
	config.Library.URL = "http://music.test"
	config.Library.Username = "admin"
	config.Library.Password = "secret"
	config.Fetcher.URL = "http://fetch.test"
	config.Cache.Path = ":memory:"
	config.State.Dir = t.TempDir()
	config.Schedule.Cron = ""
	config.Performance.FetchDelaySeconds = 1
	config.Performance.PostScanDelaySeconds = 1
	config.Performance.ScanTimeoutSeconds = 1
	return config
}

func runApp(t *testing.T, runner *Runner, args ...string) error {
	t.Helper()
	app := &cli.Command{
		Name:     "curator",
		Commands: runner.register(),
	}
	return app.Run(context.Background(), append([]string{"curator"}, args...))
}

func TestNewRunner(t *testing.T) {
	t.Run("with all dependencies provided", func(t *testing.T) {
		config := shared.DefaultConfig()
		logger := shared.NewLogger(io.Discard)
		output := &bytes.Buffer{}
		lib := &tu.MockLibrary{}
		fetcher := &tu.MockFetcher{}

		runner := NewRunner(RunnerOpts{
			Config:  config,
			Library: lib,
			Fetcher: fetcher,
			Logger:  logger,
			Output:  output,
		})

		if runner.config != config {
			t.Error("expected config to be set")
		}
		if runner.logger != logger {
			t.Error("expected logger to be set")
		}
		if runner.output != output {
			t.Error("expected output to be set")
		}
		if runner.library != lib {
			t.Error("expected library to be set")
		}
		if runner.fetcher != fetcher {
			t.Error("expected fetcher to be set")
		}
	})

	t.Run("defaults filled in", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		if runner.logger == nil {
			t.Error("expected default logger")
		}
		if runner.output == nil {
			t.Error("expected default output")
		}
		if runner.now == nil {
			t.Error("expected default clock")
		}
	})
}

func TestRunCommand(t *testing.T) {
	t.Run("manual pass creates playlists and records the run", func(t *testing.T) {
		config := testConfig(t)
		lib := &tu.MockLibrary{
			Tracks:  []models.LibraryTrack{{ID: "t1", Artist: "Vera Lane", Title: "Night Drive"}},
			Ratings: map[string]int{"t1": 4},
		}
		source := &tu.MockRecommender{
			FeedName: "discovery",
			Playlists: map[string][]models.RecommendedTrack{
				"weekly": {{Artist: "Vera Lane", Title: "Night Drive"}},
			},
		}

		runner := NewRunner(RunnerOpts{
			Config:  config,
			Library: lib,
			Fetcher: &tu.MockFetcher{},
			Sources: []services.Recommender{source},
			Logger:  shared.NewLogger(io.Discard),
			Output:  &bytes.Buffer{},
		})

		if err := runApp(t, runner, "run"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if lib.CreatedName != "weekly" {
			t.Errorf("expected playlist weekly created, got %q", lib.CreatedName)
		}

		rec, err := repositories.NewRunRecordRepository(config.State.Dir).Load()
		if err != nil {
			t.Fatal(err)
		}
		if rec == nil {
			t.Fatal("expected a run record to be persisted")
		}
		outcome, ok := rec.Services["discovery"]
		if !ok || !outcome.Success || outcome.Playlists != 1 || outcome.Songs != 1 {
			t.Errorf("unexpected outcome: %+v", outcome)
		}
	})

	t.Run("failed source recorded without aborting the pass", func(t *testing.T) {
		config := testConfig(t)
		lib := &tu.MockLibrary{
			Tracks:  []models.LibraryTrack{{ID: "t1", Artist: "Vera Lane", Title: "Night Drive"}},
			Ratings: map[string]int{"t1": 4},
		}
		broken := &tu.MockRecommender{FeedName: "radio", Err: errors.New("feed down")}
		working := &tu.MockRecommender{
			FeedName: "discovery",
			Playlists: map[string][]models.RecommendedTrack{
				"weekly": {{Artist: "Vera Lane", Title: "Night Drive"}},
			},
		}

		runner := NewRunner(RunnerOpts{
			Config:  config,
			Library: lib,
			Fetcher: &tu.MockFetcher{},
			Sources: []services.Recommender{broken, working},
			Logger:  shared.NewLogger(io.Discard),
			Output:  &bytes.Buffer{},
		})

		if err := runApp(t, runner, "run"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rec, _ := repositories.NewRunRecordRepository(config.State.Dir).Load()
		if rec == nil {
			t.Fatal("expected a run record")
		}
		if rec.Services["radio"].Success {
			t.Error("expected radio marked failed")
		}
		if rec.Services["radio"].Reason != "feed down" {
			t.Errorf("expected failure reason recorded, got %q", rec.Services["radio"].Reason)
		}
		if !rec.Services["discovery"].Success {
			t.Error("expected discovery to still succeed")
		}
	})

	t.Run("summary enumerates per-source outcomes", func(t *testing.T) {
		config := testConfig(t)
		lib := &tu.MockLibrary{
			Tracks:  []models.LibraryTrack{{ID: "t1", Artist: "Vera Lane", Title: "Night Drive"}},
			Ratings: map[string]int{"t1": 4},
		}
		broken := &tu.MockRecommender{FeedName: "radio", Err: errors.New("feed down")}
		working := &tu.MockRecommender{
			FeedName: "discovery",
			Playlists: map[string][]models.RecommendedTrack{
				"weekly": {{Artist: "Vera Lane", Title: "Night Drive"}},
			},
		}

		var logs bytes.Buffer
		runner := NewRunner(RunnerOpts{
			Config:  config,
			Library: lib,
			Fetcher: &tu.MockFetcher{},
			Sources: []services.Recommender{broken, working},
			Logger:  shared.NewLogger(&logs),
			Output:  &bytes.Buffer{},
		})

		if err := runApp(t, runner, "run"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := logs.String()
		for _, want := range []string{"run summary", "source summary", "radio", "feed down", "discovery"} {
			if !strings.Contains(got, want) {
				t.Errorf("expected summary output to contain %q, got %s", want, got)
			}
		}
	})

	t.Run("dry run persists nothing", func(t *testing.T) {
		config := testConfig(t)
		lib := &tu.MockLibrary{
			Tracks:  []models.LibraryTrack{{ID: "t1", Artist: "Vera Lane", Title: "Night Drive"}},
			Ratings: map[string]int{"t1": 4},
		}
		source := &tu.MockRecommender{
			FeedName: "discovery",
			Playlists: map[string][]models.RecommendedTrack{
				"weekly": {{Artist: "Vera Lane", Title: "Night Drive"}},
			},
		}

		runner := NewRunner(RunnerOpts{
			Config:  config,
			Library: lib,
			Fetcher: &tu.MockFetcher{},
			Sources: []services.Recommender{source},
			Logger:  shared.NewLogger(io.Discard),
			Output:  &bytes.Buffer{},
		})

		if err := runApp(t, runner, "run", "--dry-run"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if lib.CreatedName != "" {
			t.Errorf("dry run must not create playlists, got %q", lib.CreatedName)
		}
		rec, _ := repositories.NewRunRecordRepository(config.State.Dir).Load()
		if rec != nil {
			t.Errorf("dry run must not persist a run record, got %+v", rec)
		}
	})

	t.Run("cooldown denial exits without running", func(t *testing.T) {
		config := testConfig(t)
		// The fake clock sits 5h after the recorded run against a 6h
		// cooldown; the wait target is decades in the past so the sleep
		// returns immediately.
		fakeNow := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
		repo := repositories.NewRunRecordRepository(config.State.Dir)
		if err := repo.Save(&models.RunRecord{
			RunID:            "prev",
			LastRunTimestamp: fakeNow.Add(-5 * time.Hour),
			LastRunDate:      "2000-01-01",
		}); err != nil {
			t.Fatal(err)
		}

		lib := &tu.MockLibrary{}
		source := &tu.MockRecommender{FeedName: "discovery"}
		runner := NewRunner(RunnerOpts{
			Config:  config,
			Library: lib,
			Fetcher: &tu.MockFetcher{},
			Sources: []services.Recommender{source},
			Logger:  shared.NewLogger(io.Discard),
			Output:  &bytes.Buffer{},
			Now:     func() time.Time { return fakeNow },
		})

		if err := runApp(t, runner, "run"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if lib.CreatedName != "" {
			t.Error("expected no playlist creation while cooled down")
		}
		rec, _ := repo.Load()
		if rec == nil || rec.RunID != "prev" {
			t.Errorf("expected previous record untouched, got %+v", rec)
		}
	})

	t.Run("held lock aborts the pass", func(t *testing.T) {
		config := testConfig(t)
		lock, err := shared.AcquireLock(filepath.Join(config.State.Dir, lockFile))
		if err != nil {
			t.Fatal(err)
		}
		defer lock.Release()

		runner := NewRunner(RunnerOpts{
			Config:  config,
			Library: &tu.MockLibrary{},
			Fetcher: &tu.MockFetcher{},
			Sources: []services.Recommender{},
			Logger:  shared.NewLogger(io.Discard),
			Output:  &bytes.Buffer{},
		})

		err = runApp(t, runner, "run")
		if !errors.Is(err, shared.ErrLockHeld) {
			t.Errorf("expected ErrLockHeld, got %v", err)
		}
	})

	t.Run("unreachable library aborts the pass", func(t *testing.T) {
		config := testConfig(t)
		runner := NewRunner(RunnerOpts{
			Config:  config,
			Library: &tu.MockLibrary{PingErr: errors.New("connection refused")},
			Fetcher: &tu.MockFetcher{},
			Sources: []services.Recommender{},
			Logger:  shared.NewLogger(io.Discard),
			Output:  &bytes.Buffer{},
		})

		if err := runApp(t, runner, "run"); err == nil {
			t.Error("expected error when library is unreachable")
		}
	})
}

func TestScanCommand(t *testing.T) {
	config := testConfig(t)
	lib := &tu.MockLibrary{}
	lib.Albums = append(lib.Albums, services.Album{ID: "al1", Name: "First"})
	lib.ByAlbum = map[string][]models.LibraryTrack{
		"al1": {{ID: "t1", Artist: "Vera Lane", Title: "Night Drive", Rating: 2}},
	}

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:  config,
		Library: lib,
		Fetcher: &tu.MockFetcher{},
		Logger:  shared.NewLogger(io.Discard),
		Output:  output,
	})

	if err := runApp(t, runner, "scan"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output.String(), "1 low-rated") {
		t.Errorf("unexpected output: %s", output.String())
	}
}

func TestStatusCommand(t *testing.T) {
	t.Run("no prior runs", func(t *testing.T) {
		config := testConfig(t)
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{
			Config: config,
			Logger: shared.NewLogger(io.Discard),
			Output: output,
		})

		if err := runApp(t, runner, "status"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), "no runs recorded") {
			t.Errorf("unexpected output: %s", output.String())
		}
	})

	t.Run("reports outcomes", func(t *testing.T) {
		config := testConfig(t)
		repo := repositories.NewRunRecordRepository(config.State.Dir)
		if err := repo.Save(&models.RunRecord{
			RunID:            "run-1",
			LastRunTimestamp: time.Now().UTC().Add(-time.Hour),
			LastRunDate:      time.Now().UTC().Format("2006-01-02"),
			Services: map[string]models.Outcome{
				"discovery": {Success: true, Playlists: 1, Songs: 12},
				"radio":     {Success: false, Reason: "feed down"},
			},
		}); err != nil {
			t.Fatal(err)
		}

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{
			Config: config,
			Logger: shared.NewLogger(io.Discard),
			Output: output,
		})

		if err := runApp(t, runner, "status"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := output.String()
		for _, want := range []string{"run-1", "discovery: ok", "radio: failed", "cooldown"} {
			if !strings.Contains(got, want) {
				t.Errorf("expected output to contain %q, got %s", want, got)
			}
		}
	})

	t.Run("json output", func(t *testing.T) {
		config := testConfig(t)
		repo := repositories.NewRunRecordRepository(config.State.Dir)
		if err := repo.Save(&models.RunRecord{
			RunID:            "run-1",
			LastRunTimestamp: time.Now().UTC(),
		}); err != nil {
			t.Fatal(err)
		}

		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{
			Config: config,
			Logger: shared.NewLogger(io.Discard),
			Output: output,
		})

		if err := runApp(t, runner, "status", "--json"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(output.String(), `"run_id":"run-1"`) {
			t.Errorf("unexpected json output: %s", output.String())
		}
	})
}

func TestSetupCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Logger: shared.NewLogger(io.Discard),
		Output: output,
	})

	if err := runApp(t, runner, "setup", "--config", path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := shared.LoadConfig(path); err != nil {
		t.Errorf("generated config does not load: %v", err)
	}
	if !strings.Contains(output.String(), "setup complete") {
		t.Errorf("unexpected output: %s", output.String())
	}

	t.Run("second setup refuses to overwrite", func(t *testing.T) {
		if err := runApp(t, runner, "setup", "--config", path); err == nil {
			t.Error("expected error when config exists")
		}
	})
}
