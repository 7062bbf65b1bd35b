package app

import (
	"strings"
	"time"

	"rosterbot/internal/health"
	"rosterbot/internal/roster"
	"rosterbot/internal/scheduler"
	"rosterbot/internal/source/sheets"
)

func mapCadenceConfig(cfg *Config, loc *time.Location) (roster.CadenceConfig, error) {
	c := cfg.Roster.Cadence
	out := roster.CadenceConfig{Location: loc, EaseOff: c.EaseOffFactor}

	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"roster.cadence.active_min", c.ActiveMin, &out.ActiveMin},
		{"roster.cadence.active_max", c.ActiveMax, &out.ActiveMax},
		{"roster.cadence.quiet_min", c.QuietMin, &out.QuietMin},
		{"roster.cadence.quiet_max", c.QuietMax, &out.QuietMax},
		{"roster.cadence.error_min", c.ErrorMin, &out.ErrorMin},
		{"roster.cadence.error_max", c.ErrorMax, &out.ErrorMax},
		{"roster.cadence.rate_limit_min", c.RateLimitMin, &out.RateLimitMin},
		{"roster.cadence.rate_limit_max", c.RateLimitMax, &out.RateLimitMax},
	}
	for _, f := range fields {
		d, err := parseDurationField(f.path, f.raw)
		if err != nil {
			return roster.CadenceConfig{}, err
		}
		*f.dst = d
	}
	return out, nil
}

func mapSchedulerConfig(cfg *Config) (scheduler.Config, error) {
	fetchTimeout, err := parseDurationField("scheduler.fetch_timeout", cfg.Scheduler.FetchTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	fetchMax, err := parseDurationField("scheduler.fetch_max_elapsed", cfg.Scheduler.FetchMaxElapsed)
	if err != nil {
		return scheduler.Config{}, err
	}
	recTimeout, err := parseDurationField("scheduler.reconcile_timeout", cfg.Scheduler.ReconcileTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}
	initial, err := parseDurationField("scheduler.initial_delay", cfg.Scheduler.InitialDelay)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Capacity:         cfg.Roster.Capacity,
		FetchTimeout:     fetchTimeout,
		FetchMaxElapsed:  fetchMax,
		ReconcileTimeout: recTimeout,
		InitialDelay:     initial,
	}, nil
}

func mapSheetsConfig(cfg *Config) (sheets.Config, error) {
	timeout, err := parseDurationField("sheets.timeout", cfg.Sheets.Timeout)
	if err != nil {
		return sheets.Config{}, err
	}
	return sheets.Config{
		SpreadsheetID: strings.TrimSpace(cfg.Sheets.SpreadsheetID),
		Sheet:         strings.TrimSpace(cfg.Sheets.Sheet),
		NameColumn:    cfg.Sheets.NameColumn,
		DateColumn:    cfg.Sheets.DateColumn,
		BaseURL:       strings.TrimSpace(cfg.Sheets.BaseURL),
		Timeout:       timeout,
		RetryCount:    cfg.Sheets.RetryCount,
	}, nil
}

func mapHealthConfig(cfg *Config) (health.Config, error) {
	read, err := parseDurationField("health.read_timeout", cfg.Health.ReadTimeout)
	if err != nil {
		return health.Config{}, err
	}
	write, err := parseDurationField("health.write_timeout", cfg.Health.WriteTimeout)
	if err != nil {
		return health.Config{}, err
	}
	idle, err := parseDurationField("health.idle_timeout", cfg.Health.IdleTimeout)
	if err != nil {
		return health.Config{}, err
	}
	return health.Config{
		Enabled:      cfg.Health.Enabled,
		Addr:         strings.TrimSpace(cfg.Health.Addr),
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
	}, nil
}

func mapLocation(cfg *Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Roster.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}
