// package cadence decides when reconciliation runs are allowed and tracks
// per-collaborator outcomes across runs.
package cadence

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
	"github.com/sablemoth/curator/internal/models"
)

const (
	// cooldownFactor scales the tightest scheduled gap down so clock drift
	// between the scheduler and this process never skips a legitimate run.
	cooldownFactor = 0.9
	// lookahead is how many upcoming occurrences are inspected when deriving
	// the cadence from an irregular cron expression.
	lookahead = 10

	defaultMinInterval = 6 * time.Hour
)

// Controller gates reconciliation runs. In scheduled mode the cooldown is
// derived from the cron expression; in manual mode a fixed minimum interval
// applies.
type Controller struct {
	spec        string
	schedule    cron.Schedule // nil in manual mode
	minInterval time.Duration
	logger      *log.Logger
}

// NewController builds a controller from a cron expression and the manual-mode
// minimum interval in hours. Disabling values for the expression ("", "manual",
// "false", "no", "off", "disabled") select manual mode, as does an expression
// that fails to parse.
func NewController(spec string, minIntervalHours float64, logger *log.Logger) *Controller {
	minInterval := defaultMinInterval
	if minIntervalHours > 0 {
		minInterval = time.Duration(minIntervalHours * float64(time.Hour))
	}

	c := &Controller{spec: spec, minInterval: minInterval, logger: logger}
	if isDisabled(spec) {
		return c
	}

	sched, err := cron.ParseStandard(spec)
	if err != nil {
		logger.Warn("invalid cron expression, falling back to manual cadence",
			"cron", spec, "err", err)
		return c
	}
	c.schedule = sched
	return c
}

func isDisabled(spec string) bool {
	switch strings.ToLower(strings.TrimSpace(spec)) {
	case "", "manual", "false", "no", "off", "disabled":
		return true
	}
	return false
}

// Scheduled reports whether a usable cron schedule is in effect.
func (c *Controller) Scheduled() bool { return c.schedule != nil }

// Cooldown returns the minimum gap required between runs. For a schedule
// this is 90% of the tightest gap among the occurrences following now, so
// an irregular expression (say, 00:00 and 00:30 daily) never blocks its
// own second slot. Manual mode uses the configured minimum interval.
func (c *Controller) Cooldown(now time.Time) time.Duration {
	if c.schedule == nil {
		return c.minInterval
	}

	prev := c.schedule.Next(now)
	minGap := time.Duration(0)
	for i := 0; i < lookahead; i++ {
		next := c.schedule.Next(prev)
		if !next.After(prev) {
			break
		}
		gap := next.Sub(prev)
		if minGap == 0 || gap < minGap {
			minGap = gap
		}
		prev = next
	}
	if minGap <= 0 {
		return c.minInterval
	}
	return time.Duration(float64(minGap) * cooldownFactor)
}

// Allow reports whether a run may start at now given the persisted record of
// the previous run. The second return is the remaining cooldown when denied.
func (c *Controller) Allow(rec *models.RunRecord, now time.Time) (bool, time.Duration) {
	if rec == nil {
		return true, 0
	}
	cooldown := c.Cooldown(now)
	elapsed := now.Sub(rec.LastRunTimestamp)
	if elapsed >= cooldown {
		return true, 0
	}
	return false, cooldown - elapsed
}

// NextRun returns the next scheduled occurrence after now, or the zero time
// in manual mode.
func (c *Controller) NextRun(now time.Time) time.Time {
	if c.schedule == nil {
		return time.Time{}
	}
	return c.schedule.Next(now)
}

// WaitUntil sleeps until t or until the context is cancelled. Already-past
// targets return immediately.
func (c *Controller) WaitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
