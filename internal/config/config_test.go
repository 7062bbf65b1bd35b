package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleYAML = `
telegram:
  token: "12345:abcdef"
  roster_chat: "-1001234567890"
  owner_user_ids: [111, 222]
  group_log: "-1009876543210"
  poll_timeout: "15s"
logging:
  level: "DEBUG"
  console: true
  file:
    enabled: true
    path: "./bot.log"
  telegram:
    enabled: true
    min_level: "WARN"
    rate_per_sec: 1
roster:
  capacity: 18
  timezone: "UTC"
  cadence:
    active_min: "10m"
    active_max: "20m"
sheets:
  spreadsheet_id: "sheet-id-here"
  sheet: "Signups"
storage:
  driver: "sqlite"
  path: "./state.db"
  busy_timeout: "2s"
health:
  enabled: true
  addr: "0.0.0.0:8080"
maintenance:
  enabled: true
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Telegram.Token != "12345:abcdef" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.RosterChat != "-1001234567890" {
		t.Errorf("roster_chat = %q", cfg.Telegram.RosterChat)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 || cfg.Telegram.OwnerUserIDs[0] != 111 {
		t.Errorf("owner ids = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Roster.Capacity != 18 {
		t.Errorf("capacity = %d", cfg.Roster.Capacity)
	}
	if cfg.Roster.Cadence.ActiveMin != "10m" {
		t.Errorf("active_min = %q", cfg.Roster.Cadence.ActiveMin)
	}
	if cfg.Sheets.SpreadsheetID != "sheet-id-here" {
		t.Errorf("spreadsheet_id = %q", cfg.Sheets.SpreadsheetID)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "sqlite" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Health.Enabled || cfg.Health.Addr != "0.0.0.0:8080" {
		t.Errorf("health = %+v", cfg.Health)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.yaml", sampleYAML+"\nnot_a_section:\n  x: 1\n"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	base := func() *Config {
		return &Config{
			Telegram: TelegramConfig{Token: "t", RosterChat: "-100"},
			Sheets:   SheetsConfig{SpreadsheetID: "id"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.Token = " " }},
		{"missing roster chat", func(c *Config) { c.Telegram.RosterChat = "" }},
		{"missing spreadsheet", func(c *Config) { c.Sheets.SpreadsheetID = "" }},
		{"bad timezone", func(c *Config) { c.Roster.Timezone = "Mars/Olympus" }},
		{"bad duration", func(c *Config) { c.Telegram.PollTimeout = "soon" }},
		{"negative duration", func(c *Config) { c.Scheduler.FetchTimeout = "-5s" }},
		{"ease off below one", func(c *Config) { c.Roster.Cadence.EaseOffFactor = 0.5 }},
		{"inverted band", func(c *Config) {
			c.Roster.Cadence.ActiveMin = "30m"
			c.Roster.Cadence.ActiveMax = "10m"
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	if err := Validate(base()); err != nil {
		t.Fatalf("baseline config should validate: %v", err)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{
		Telegram: TelegramConfig{RosterChat: "-100", OwnerUserIDs: []int64{1}},
		Roster:   RosterConfig{Capacity: 21},
		Health:   HealthConfig{Enabled: true},
	}
	sections, _ := SummarizeConfigChange(oldCfg, newCfg)

	want := map[string]bool{"telegram": true, "roster": true, "health": true}
	if len(sections) != len(want) {
		t.Fatalf("sections = %v", sections)
	}
	for _, s := range sections {
		if !want[s] {
			t.Fatalf("unexpected section %q in %v", s, sections)
		}
	}

	if got, _ := SummarizeConfigChange(newCfg, newCfg); len(got) != 0 {
		t.Fatalf("self-diff should be empty, got %v", got)
	}
}
