// Package maintenance runs the background janitor that prunes per-week
// records once the week they cover is over.
package maintenance

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"rosterbot/internal/roster"
	"rosterbot/internal/storage"
	logx "rosterbot/pkg/logx"
)

// DefaultPruneSpec runs Mondays at 04:00, after the Sunday it covers.
const DefaultPruneSpec = "0 4 * * 1"

type Config struct {
	Enabled   bool
	PruneSpec string
}

type Janitor struct {
	cfg   Config
	store storage.Store
	loc   *time.Location
	log   logx.Logger

	cron *cron.Cron
}

func New(cfg Config, store storage.Store, loc *time.Location, log logx.Logger) *Janitor {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.PruneSpec) == "" {
		cfg.PruneSpec = DefaultPruneSpec
	}
	return &Janitor{cfg: cfg, store: store, loc: loc, log: log}
}

func (j *Janitor) Start() error {
	if !j.cfg.Enabled || j.cron != nil {
		return nil
	}
	c := cron.New(cron.WithLocation(j.loc))
	if _, err := c.AddFunc(j.cfg.PruneSpec, j.prune); err != nil {
		return err
	}
	c.Start()
	j.cron = c
	j.log.Info("janitor started", logx.String("prune_spec", j.cfg.PruneSpec))
	return nil
}

func (j *Janitor) Stop(ctx context.Context) {
	if j.cron == nil {
		return
	}
	done := j.cron.Stop().Done()
	j.cron = nil
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// prune drops cancellation records for weeks before the current target week.
// The current week always survives, even right after a Sunday rollover.
func (j *Janitor) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	week := roster.WeekKey(roster.TargetSunday(time.Now().In(j.loc)))
	n, err := j.store.PruneCancellations(ctx, week)
	if err != nil {
		j.log.Warn("prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		j.log.Info("pruned stale week records", logx.Int("count", n), logx.String("kept_from", week))
	}
}
