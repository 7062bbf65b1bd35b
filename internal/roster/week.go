package roster

import "time"

// TargetSunday returns the upcoming Sunday (today if now is a Sunday) at
// midnight in now's location. It keys both participant filtering and
// cancellation state, so the key naturally rolls over after the event.
func TargetSunday(now time.Time) time.Time {
	days := (7 - int(now.Weekday())) % 7
	d := now.AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
}

// WeekKey is the storage key for per-week state.
func WeekKey(sunday time.Time) string {
	return sunday.Format("2006-01-02")
}
