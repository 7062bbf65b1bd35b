package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Roster controls the message content and the reconciliation cadence.
	Roster RosterConfig `json:"roster"`

	// Sheets points at the published participant sheet.
	Sheets SheetsConfig `json:"sheets"`

	// Scheduler controls per-cycle timeouts. Cadence lives under roster.
	Scheduler SchedulerConfig `json:"scheduler,omitempty"`

	Storage     *StorageConfig    `json:"storage,omitempty"`
	Health      HealthConfig      `json:"health,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// RosterChat is the chat the roster message lives in. Accepts a numeric
	// chat ID or an "@channelname".
	RosterChat     string `json:"roster_chat"`
	RosterThreadID int    `json:"roster_thread_id,omitempty"`

	// AnnounceChat receives cancellation announcements. Empty means announce
	// into the roster chat.
	AnnounceChat string `json:"announce_chat,omitempty"`

	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// RosterConfig controls what the posted message says and how often the loop
// re-checks it. All durations are Go duration strings.
type RosterConfig struct {
	// Capacity is the confirmed-slot limit; overflow goes to the waitlist.
	// Zero means the built-in default.
	Capacity int `json:"capacity,omitempty"`

	// Timezone anchors "next Sunday" and the active cadence window
	// (e.g. "America/New_York"). Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`

	Title  string `json:"title,omitempty"`
	Footer string `json:"footer,omitempty"`

	Cadence CadenceConfig `json:"cadence,omitempty"`
}

// CadenceConfig overrides the delay bands. Every field is optional; omitted
// bands keep their defaults.
type CadenceConfig struct {
	ActiveMin     string  `json:"active_min,omitempty"`
	ActiveMax     string  `json:"active_max,omitempty"`
	QuietMin      string  `json:"quiet_min,omitempty"`
	QuietMax      string  `json:"quiet_max,omitempty"`
	EaseOffFactor float64 `json:"ease_off_factor,omitempty"`
	ErrorMin      string  `json:"error_min,omitempty"`
	ErrorMax      string  `json:"error_max,omitempty"`
	RateLimitMin  string  `json:"rate_limit_min,omitempty"`
	RateLimitMax  string  `json:"rate_limit_max,omitempty"`
}

type SheetsConfig struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Sheet         string `json:"sheet,omitempty"`
	NameColumn    string `json:"name_column,omitempty"`
	DateColumn    string `json:"date_column,omitempty"`
	BaseURL       string `json:"base_url,omitempty"`
	// Timeout is a Go duration string for a single HTTP call.
	Timeout    string `json:"timeout,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
}

// SchedulerConfig controls per-cycle execution bounds.
// All durations are Go duration strings.
type SchedulerConfig struct {
	FetchTimeout     string `json:"fetch_timeout,omitempty"`
	FetchMaxElapsed  string `json:"fetch_max_elapsed,omitempty"`
	ReconcileTimeout string `json:"reconcile_timeout,omitempty"`
	InitialDelay     string `json:"initial_delay,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./rosterbot_state" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// HealthConfig controls the keepalive HTTP server.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "0.0.0.0:8080"

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// MaintenanceConfig controls the background janitor.
type MaintenanceConfig struct {
	Enabled bool `json:"enabled"`
	// PruneSpec is a cron expression for pruning stale per-week records.
	// Default: "0 4 * * 1" (Mondays 04:00, after the week it covers ends).
	PruneSpec string `json:"prune_spec,omitempty"`
}
