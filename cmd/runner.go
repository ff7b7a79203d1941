package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sablemoth/curator/internal/cadence"
	"github.com/sablemoth/curator/internal/catalog"
	"github.com/sablemoth/curator/internal/matching"
	"github.com/sablemoth/curator/internal/models"
	"github.com/sablemoth/curator/internal/pipeline"
	"github.com/sablemoth/curator/internal/repositories"
	"github.com/sablemoth/curator/internal/services"
	"github.com/sablemoth/curator/internal/shared"
	"github.com/urfave/cli/v3"
)

const (
	lockFile = "curator.lock"

	// cooldownExitDelay is slept before a clean exit when a one-shot run is
	// denied by the cooldown, so a process supervisor cannot restart-storm.
	cooldownExitDelay = 30 * time.Second
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config  *shared.Config
	library services.Library
	fetcher services.FetchTrigger
	sources []services.Recommender
	logger  *log.Logger
	output  io.Writer
	now     func() time.Time
}

// RunnerOpts contains configuration options for creating a Runner. Nil
// collaborators are built from the loaded config when an action needs them.
type RunnerOpts struct {
	Config  *shared.Config
	Library services.Library
	Fetcher services.FetchTrigger
	Sources []services.Recommender
	Logger  *log.Logger
	Output  io.Writer
	Now     func() time.Time
}

// NewRunner creates a new Runner with the provided options.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Runner{
		config:  opts.Config,
		library: opts.Library,
		fetcher: opts.Fetcher,
		sources: opts.Sources,
		logger:  opts.Logger,
		output:  opts.Output,
		now:     opts.Now,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, scanCommand, statusCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig resolves the effective configuration for one command
// invocation. An injected config wins; otherwise the --config path is read,
// falling back to embedded defaults when the file does not exist.
func (r *Runner) loadConfig(cmd *cli.Command) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	shared.LoadDotEnv("")

	path := cmd.String("config")
	if _, err := os.Stat(path); err != nil {
		r.logger.Debug("no config file, using defaults with env overrides", "path", path)
		return shared.DefaultConfig(), nil
	}
	return shared.LoadConfig(path)
}

// buildCollaborators fills in any library/fetcher/source dependencies not
// injected at construction time.
func (r *Runner) buildCollaborators(config *shared.Config, dryRun bool) {
	httpClient := &http.Client{Timeout: 60 * time.Second}

	if r.library == nil {
		r.library = services.NewSubsonicClient(
			config.Library.URL, config.Library.Username, config.Library.Password,
			httpClient, r.logger,
		)
	}
	if r.fetcher == nil {
		r.fetcher = services.NewFetchClient(
			config.Fetcher.URL, config.Library.Username, config.Library.Password,
			httpClient, r.logger, dryRun,
		)
	}
	if r.sources == nil {
		for _, src := range config.Sources {
			r.sources = append(r.sources, services.NewFeedRecommender(src.Name, src.URL, httpClient, r.logger))
		}
	}
}

// Run executes reconciliation passes. In manual mode a single pass runs and
// the process exits; with a cron schedule the process stays resident and
// runs on every occurrence.
func (r *Runner) Run(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dryRun := cmd.Bool("dry-run")
	once := cmd.Bool("once")
	maxSongs := int(cmd.Int("max-songs"))

	r.buildCollaborators(config, dryRun)

	ctrl := cadence.NewController(config.Schedule.Cron, config.Schedule.MinRunIntervalHours, r.logger)
	recordRepo := repositories.NewRunRecordRepository(config.State.Dir)

	if !ctrl.Scheduled() || once {
		return r.runOnce(ctx, config, ctrl, recordRepo, dryRun, maxSongs)
	}
	return r.runScheduled(ctx, config, ctrl, recordRepo, dryRun, maxSongs)
}

// runOnce performs at most one pass. When the cooldown denies the run, the
// process sleeps out the remaining window and exits cleanly so a supervisor
// restart loop cannot hammer the collaborators.
func (r *Runner) runOnce(ctx context.Context, config *shared.Config, ctrl *cadence.Controller,
	recordRepo *repositories.RunRecordRepository, dryRun bool, maxSongs int) error {
	prev, err := recordRepo.Load()
	if err != nil {
		return err
	}

	now := r.now()
	if ok, remaining := ctrl.Allow(prev, now); !ok {
		delay := cooldownExitDelay
		if remaining < delay {
			delay = remaining
		}
		r.logger.Info("cooldown active, exiting after short delay",
			"remaining", remaining.Round(time.Second), "delay", delay)
		if err := ctrl.WaitUntil(ctx, now.Add(delay)); err != nil {
			return err
		}
		return nil
	}

	return r.executePass(ctx, config, ctrl, recordRepo, dryRun, maxSongs)
}

// runScheduled loops forever, waiting out each cron occurrence. Cooldown
// denials inside the loop wait rather than exit.
func (r *Runner) runScheduled(ctx context.Context, config *shared.Config, ctrl *cadence.Controller,
	recordRepo *repositories.RunRecordRepository, dryRun bool, maxSongs int) error {
	for {
		prev, err := recordRepo.Load()
		if err != nil {
			return err
		}

		now := r.now()
		if ok, remaining := ctrl.Allow(prev, now); !ok {
			r.logger.Info("cooldown active, waiting", "remaining", remaining.Round(time.Second))
			if err := ctrl.WaitUntil(ctx, now.Add(remaining)); err != nil {
				return err
			}
			continue
		}

		next := ctrl.NextRun(now)
		r.logger.Info("waiting for next scheduled run", "at", next.Format(time.RFC3339))
		if err := ctrl.WaitUntil(ctx, next); err != nil {
			return err
		}

		if err := r.executePass(ctx, config, ctrl, recordRepo, dryRun, maxSongs); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			r.logger.Error("pass failed, continuing schedule", "err", err)
		}
	}
}

// executePass runs one full reconciliation pass under the exclusive run
// lock. The summary is emitted even when the pass aborts partway; the run
// record is persisted only for completed passes so a cancelled run does
// not reset the cooldown.
func (r *Runner) executePass(ctx context.Context, config *shared.Config, ctrl *cadence.Controller,
	recordRepo *repositories.RunRecordRepository, dryRun bool, maxSongs int) (err error) {
	if err := os.MkdirAll(config.State.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}

	lock, err := shared.AcquireLock(filepath.Join(config.State.Dir, lockFile))
	if err != nil {
		if errors.Is(err, shared.ErrLockHeld) {
			r.logger.Error("another run is already in progress")
		}
		return err
	}
	defer lock.Release()

	start := r.now()
	r.logger.Info("starting reconciliation pass", "dry_run", dryRun)

	if err := r.library.Ping(ctx); err != nil {
		return fmt.Errorf("%w: library server: %v", shared.ErrServiceUnavailable, err)
	}

	db, err := shared.NewDatabase(config.Cache.Path, config.Cache.MaxOpenConns, config.Cache.MaxIdleConns)
	if err != nil {
		return err
	}
	defer db.Close()

	cache, err := repositories.NewRatingCache(db)
	if err != nil {
		return err
	}

	scanner := catalog.NewScanner(r.library, cache, r.logger, catalog.ScanOpts{
		AlbumBatchSize: config.Performance.AlbumBatchSize,
		MaxAlbums:      config.Performance.MaxAlbumsScan,
		NumWorkers:     config.Performance.ScanWorkers,
		RateLimit:      config.Performance.ScanRateLimit,
		LowRatingMin:   config.Matching.LowRatingMin,
		LowRatingMax:   config.Matching.LowRatingMax,
	})
	if _, err := scanner.RefreshRatings(ctx); err != nil {
		r.logger.Warn("rating refresh failed, continuing with stale cache", "err", err)
	}

	matcher := matching.NewMatcher(r.library, r.logger,
		config.Matching.MatchThreshold, config.Matching.SimilarityThreshold)

	reconciler := pipeline.NewReconciler(r.library, r.fetcher, matcher, cache, r.logger, pipeline.Opts{
		SettleDelay:   time.Duration(config.Performance.FetchDelaySeconds) * time.Second,
		PostScanDelay: time.Duration(config.Performance.PostScanDelaySeconds) * time.Second,
		ScanTimeout:   time.Duration(config.Performance.ScanTimeoutSeconds) * time.Second,
		LowRatingMin:  config.Matching.LowRatingMin,
		LowRatingMax:  config.Matching.LowRatingMax,
		DryRun:        dryRun,
	})

	tracker := cadence.NewTracker()
	defer func() {
		r.logSummary(reconciler.Stats(), tracker.Outcomes(), start, dryRun)
		if dryRun || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		record := tracker.BuildRecord(ctrl, r.now())
		if saveErr := recordRepo.Save(record); saveErr != nil {
			r.logger.Error("failed to persist run record", "err", saveErr)
		}
	}()

	for _, source := range r.sources {
		if err := ctx.Err(); err != nil {
			tracker.Failure(source.Name(), "run aborted")
			return err
		}

		playlists, err := source.Recommendations(ctx)
		if err != nil {
			r.logger.Error("recommendation source failed", "source", source.Name(), "err", err)
			tracker.Failure(source.Name(), err.Error())
			continue
		}

		names := make([]string, 0, len(playlists))
		for name := range playlists {
			names = append(names, name)
		}
		sort.Strings(names)

		before := reconciler.Stats()
		created := 0
		for _, name := range names {
			if err := reconciler.CreateFromRecommendations(ctx, name, playlists[name], maxSongs); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					tracker.Failure(source.Name(), "run aborted")
					return err
				}
				r.logger.Error("playlist reconciliation failed", "playlist", name, "err", err)
				continue
			}
			created++
		}
		after := reconciler.Stats()
		tracker.Success(source.Name(), created,
			(after.SongsFound+after.SongsFetched)-(before.SongsFound+before.SongsFetched))
	}

	return nil
}

// Scan refreshes the rating cache outside a reconciliation pass.
func (r *Runner) Scan(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}
	r.buildCollaborators(config, false)

	db, err := shared.NewDatabase(config.Cache.Path, config.Cache.MaxOpenConns, config.Cache.MaxIdleConns)
	if err != nil {
		return err
	}
	defer db.Close()

	cache, err := repositories.NewRatingCache(db)
	if err != nil {
		return err
	}

	if cmd.Bool("force") {
		if err := cache.Clear(); err != nil {
			return err
		}
		if err := cache.SetLastScanDate(""); err != nil {
			return err
		}
		r.logger.Info("rating cache cleared, forcing full rescan")
	}

	scanner := catalog.NewScanner(r.library, cache, r.logger, catalog.ScanOpts{
		AlbumBatchSize: config.Performance.AlbumBatchSize,
		MaxAlbums:      config.Performance.MaxAlbumsScan,
		NumWorkers:     config.Performance.ScanWorkers,
		RateLimit:      config.Performance.ScanRateLimit,
		LowRatingMin:   config.Matching.LowRatingMin,
		LowRatingMax:   config.Matching.LowRatingMax,
	})

	lowRated, err := scanner.RefreshRatings(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("scan complete: %d low-rated tracks cached\n", len(lowRated))
}

// Status prints the persisted record of the last run and the cadence state.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctrl := cadence.NewController(config.Schedule.Cron, config.Schedule.MinRunIntervalHours, r.logger)
	recordRepo := repositories.NewRunRecordRepository(config.State.Dir)

	rec, err := recordRepo.Load()
	if err != nil {
		return err
	}
	if rec == nil {
		return r.writePlain("no runs recorded yet; next run is allowed immediately\n")
	}

	if cmd.Bool("json") {
		return r.writeJSON(rec, cmd.Bool("pretty"))
	}

	if err := r.writePlain("last run: %s (%s)\n", rec.LastRunTimestamp.Format(time.RFC3339), rec.RunID); err != nil {
		return err
	}
	if ok, remaining := ctrl.Allow(rec, r.now()); ok {
		if err := r.writePlain("cooldown: clear, next run allowed now\n"); err != nil {
			return err
		}
	} else {
		if err := r.writePlain("cooldown: %s remaining\n", remaining.Round(time.Second)); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(rec.Services))
	for name := range rec.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		outcome := rec.Services[name]
		if outcome.Success {
			if err := r.writePlain("  %s: ok (%d playlists, %d songs)\n", name, outcome.Playlists, outcome.Songs); err != nil {
				return err
			}
		} else {
			if err := r.writePlain("  %s: failed (%s)\n", name, outcome.Reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// Setup writes a starter config file and initializes the state directory.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("created config file", "path", path)

	config, err := shared.LoadConfig(path)
	if err != nil {
		return err
	}
	if config.State.Dir != "" {
		if err := os.MkdirAll(config.State.Dir, 0755); err != nil {
			return fmt.Errorf("failed to create state dir: %w", err)
		}
		r.logger.Info("created state directory", "path", config.State.Dir)
	}
	return r.writePlain("setup complete, edit %s and run `curator run`\n", path)
}

// logSummary emits the aggregate pipeline counters followed by one line
// per recommendation source with its success flag and yields.
func (r *Runner) logSummary(stats pipeline.Stats, outcomes map[string]models.Outcome, start time.Time, dryRun bool) {
	r.logger.Info("run summary",
		"dry_run", dryRun,
		"duration", r.now().Sub(start).Round(time.Second),
		"playlists_created", stats.PlaylistsCreated,
		"songs_found", stats.SongsFound,
		"songs_fetched", stats.SongsFetched,
		"songs_failed", stats.SongsFailed,
		"skipped_low_rating", stats.SkippedLowRating,
		"skipped_duplicate", stats.SkippedDuplicate,
		"duplicates_prevented", stats.DuplicatesPrevented,
		"would_fetch", stats.WouldFetch,
	)

	names := make([]string, 0, len(outcomes))
	for name := range outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		outcome := outcomes[name]
		if outcome.Success {
			r.logger.Info("source summary", "source", name, "result", "ok",
				"playlists", outcome.Playlists, "songs", outcome.Songs)
		} else {
			r.logger.Warn("source summary", "source", name, "result", "failed",
				"reason", outcome.Reason)
		}
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
