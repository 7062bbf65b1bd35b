package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks a parsed config before it is committed. It catches the
// mistakes most likely to take the bot down on a hot reload: a missing token,
// no roster chat, unparseable durations, a bad timezone.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if strings.TrimSpace(cfg.Telegram.RosterChat) == "" {
		return fmt.Errorf("telegram.roster_chat is required")
	}
	if strings.TrimSpace(cfg.Sheets.SpreadsheetID) == "" {
		return fmt.Errorf("sheets.spreadsheet_id is required")
	}
	if tz := strings.TrimSpace(cfg.Roster.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("roster.timezone: %w", err)
		}
	}
	if cfg.Roster.Capacity < 0 {
		return fmt.Errorf("roster.capacity must be >= 0")
	}
	if f := cfg.Roster.Cadence.EaseOffFactor; f != 0 && f < 1 {
		return fmt.Errorf("roster.cadence.ease_off_factor must be >= 1")
	}

	durations := []struct {
		path string
		raw  string
	}{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"sheets.timeout", cfg.Sheets.Timeout},
		{"scheduler.fetch_timeout", cfg.Scheduler.FetchTimeout},
		{"scheduler.fetch_max_elapsed", cfg.Scheduler.FetchMaxElapsed},
		{"scheduler.reconcile_timeout", cfg.Scheduler.ReconcileTimeout},
		{"scheduler.initial_delay", cfg.Scheduler.InitialDelay},
		{"health.read_timeout", cfg.Health.ReadTimeout},
		{"health.write_timeout", cfg.Health.WriteTimeout},
		{"health.idle_timeout", cfg.Health.IdleTimeout},
		{"roster.cadence.active_min", cfg.Roster.Cadence.ActiveMin},
		{"roster.cadence.active_max", cfg.Roster.Cadence.ActiveMax},
		{"roster.cadence.quiet_min", cfg.Roster.Cadence.QuietMin},
		{"roster.cadence.quiet_max", cfg.Roster.Cadence.QuietMax},
		{"roster.cadence.error_min", cfg.Roster.Cadence.ErrorMin},
		{"roster.cadence.error_max", cfg.Roster.Cadence.ErrorMax},
		{"roster.cadence.rate_limit_min", cfg.Roster.Cadence.RateLimitMin},
		{"roster.cadence.rate_limit_max", cfg.Roster.Cadence.RateLimitMax},
	}
	if cfg.Storage != nil {
		durations = append(durations, struct {
			path string
			raw  string
		}{"storage.busy_timeout", cfg.Storage.BusyTimeout})
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	// Each configured band must stay ordered, mixing an overridden bound with
	// a default one is an easy way to get min > max.
	bands := []struct {
		name     string
		min, max string
	}{
		{"active", cfg.Roster.Cadence.ActiveMin, cfg.Roster.Cadence.ActiveMax},
		{"quiet", cfg.Roster.Cadence.QuietMin, cfg.Roster.Cadence.QuietMax},
		{"error", cfg.Roster.Cadence.ErrorMin, cfg.Roster.Cadence.ErrorMax},
		{"rate_limit", cfg.Roster.Cadence.RateLimitMin, cfg.Roster.Cadence.RateLimitMax},
	}
	for _, b := range bands {
		if b.min == "" || b.max == "" {
			continue
		}
		lo, _ := ParseDurationField("", b.min)
		hi, _ := ParseDurationField("", b.max)
		if lo > hi {
			return fmt.Errorf("roster.cadence.%s: min %s exceeds max %s", b.name, b.min, b.max)
		}
	}
	return nil
}
