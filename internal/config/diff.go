package config

import (
	"reflect"
	"sort"
	"strings"

	logx "rosterbot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.RosterChat) != strings.TrimSpace(newCfg.Telegram.RosterChat) ||
		oldCfg.Telegram.RosterThreadID != newCfg.Telegram.RosterThreadID ||
		strings.TrimSpace(oldCfg.Telegram.AnnounceChat) != strings.TrimSpace(newCfg.Telegram.AnnounceChat) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.roster_chat_set", strings.TrimSpace(newCfg.Telegram.RosterChat) != ""),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		!reflect.DeepEqual(oldCfg.Logging.Telegram, newCfg.Logging.Telegram) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Roster content and cadence
	if !reflect.DeepEqual(oldCfg.Roster, newCfg.Roster) {
		changed = append(changed, "roster")
		attrs = append(attrs,
			logx.Int("roster.capacity", newCfg.Roster.Capacity),
			logx.String("roster.timezone", strings.TrimSpace(newCfg.Roster.Timezone)),
			logx.Bool("roster.title_set", strings.TrimSpace(newCfg.Roster.Title) != ""),
			logx.Bool("roster.cadence_changed", !reflect.DeepEqual(oldCfg.Roster.Cadence, newCfg.Roster.Cadence)),
		)
	}

	// Sheets
	if !reflect.DeepEqual(oldCfg.Sheets, newCfg.Sheets) {
		changed = append(changed, "sheets")
		attrs = append(attrs,
			logx.Bool("sheets.spreadsheet_set", strings.TrimSpace(newCfg.Sheets.SpreadsheetID) != ""),
			logx.String("sheets.sheet", strings.TrimSpace(newCfg.Sheets.Sheet)),
			logx.String("sheets.timeout", strings.TrimSpace(newCfg.Sheets.Timeout)),
			logx.Int("sheets.retry_count", newCfg.Sheets.RetryCount),
		)
	}

	// Scheduler execution bounds
	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.fetch_timeout", strings.TrimSpace(newCfg.Scheduler.FetchTimeout)),
			logx.String("scheduler.reconcile_timeout", strings.TrimSpace(newCfg.Scheduler.ReconcileTimeout)),
		)
	}

	// Storage (nil means disabled)
	oldS := oldCfg.Storage
	newS := newCfg.Storage
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldS != nil {
		oDriver = strings.TrimSpace(oldS.Driver)
		oBusy = strings.TrimSpace(oldS.BusyTimeout)
		oPathSet = strings.TrimSpace(oldS.Path) != ""
	}
	if newS != nil {
		nDriver = strings.TrimSpace(newS.Driver)
		nBusy = strings.TrimSpace(newS.BusyTimeout)
		nPathSet = strings.TrimSpace(newS.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Health
	if !reflect.DeepEqual(oldCfg.Health, newCfg.Health) {
		changed = append(changed, "health")
		attrs = append(attrs,
			logx.Bool("health.enabled", newCfg.Health.Enabled),
			logx.String("health.addr", strings.TrimSpace(newCfg.Health.Addr)),
		)
	}

	// Maintenance
	if !reflect.DeepEqual(oldCfg.Maintenance, newCfg.Maintenance) {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Bool("maintenance.enabled", newCfg.Maintenance.Enabled),
			logx.String("maintenance.prune_spec", strings.TrimSpace(newCfg.Maintenance.PruneSpec)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
