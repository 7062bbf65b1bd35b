package storage

// Package storage persists the bot's reconciliation state:
//   - the roster message ref (so restarts edit instead of re-posting)
//   - the last rendered text (change detection)
//   - cancellation state keyed by target week
