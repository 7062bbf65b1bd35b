package roster

import (
	"math/rand"
	"time"
)

// CadenceConfig holds the polling bands. Zero fields fall back to defaults.
type CadenceConfig struct {
	// Location anchors the time-of-week window checks.
	Location *time.Location

	// Active window band (Friday 12:00 through Sunday 14:00).
	ActiveMin time.Duration
	ActiveMax time.Duration

	// Quiet window band (rest of the week).
	QuietMin time.Duration
	QuietMax time.Duration

	// EaseOff stretches the active band when nothing changed, to cut down
	// redundant polling while signups are idle.
	EaseOff float64

	// Transient-failure retry band, independent of window.
	ErrorMin time.Duration
	ErrorMax time.Duration

	// Rate-limit backoff band for the first consecutive occurrence; doubles
	// per further occurrence.
	RateLimitMin time.Duration
	RateLimitMax time.Duration
}

const (
	defaultActiveMin    = 15 * time.Minute
	defaultActiveMax    = 25 * time.Minute
	defaultQuietMin     = 105 * time.Minute
	defaultQuietMax     = 135 * time.Minute
	defaultEaseOff      = 1.5
	defaultErrorMin     = 45 * time.Minute
	defaultErrorMax     = 60 * time.Minute
	defaultRateLimitMin = 60 * time.Minute
	defaultRateLimitMax = 90 * time.Minute

	// Exponent clamp for the rate-limit backoff. Past this the delay keeps
	// growing linearly so consecutive occurrences still wait strictly longer,
	// without overflow.
	rateLimitShiftCap = 5
)

// Policy computes the next-wake delay for the scheduler loop.
//
// NextDelay is side-effect-free apart from drawing jitter from the policy's
// own RNG; all time-of-week decisions derive from the now parameter.
type Policy struct {
	cfg CadenceConfig
	rng *rand.Rand
}

func NewPolicy(cfg CadenceConfig) *Policy {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ActiveMin <= 0 {
		cfg.ActiveMin = defaultActiveMin
	}
	if cfg.ActiveMax < cfg.ActiveMin {
		cfg.ActiveMax = cfg.ActiveMin + (defaultActiveMax - defaultActiveMin)
	}
	if cfg.QuietMin <= 0 {
		cfg.QuietMin = defaultQuietMin
	}
	if cfg.QuietMax < cfg.QuietMin {
		cfg.QuietMax = cfg.QuietMin + (defaultQuietMax - defaultQuietMin)
	}
	if cfg.EaseOff < 1 {
		cfg.EaseOff = defaultEaseOff
	}
	if cfg.ErrorMin <= 0 {
		cfg.ErrorMin = defaultErrorMin
	}
	if cfg.ErrorMax < cfg.ErrorMin {
		cfg.ErrorMax = cfg.ErrorMin + (defaultErrorMax - defaultErrorMin)
	}
	if cfg.RateLimitMin <= 0 {
		cfg.RateLimitMin = defaultRateLimitMin
	}
	if cfg.RateLimitMax < cfg.RateLimitMin {
		cfg.RateLimitMax = cfg.RateLimitMin + (defaultRateLimitMax - defaultRateLimitMin)
	}
	return &Policy{cfg: cfg, rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NextDelay returns the wait before the next reconciliation cycle.
// consecutiveRateLimited counts rate-limited outcomes in a row, including the
// one just observed; it is ignored unless outcome is OutcomeRateLimited.
// The result is always positive.
func (p *Policy) NextDelay(now time.Time, outcome Outcome, consecutiveRateLimited int) time.Duration {
	var d time.Duration
	switch outcome {
	case OutcomeRateLimited:
		d = p.rateLimitedDelay(consecutiveRateLimited)
	case OutcomeError:
		d = p.between(p.cfg.ErrorMin, p.cfg.ErrorMax)
	default:
		if p.InActiveWindow(now) {
			d = p.between(p.cfg.ActiveMin, p.cfg.ActiveMax)
			if outcome == OutcomeUnchanged {
				d = time.Duration(float64(d) * p.cfg.EaseOff)
			}
		} else {
			d = p.between(p.cfg.QuietMin, p.cfg.QuietMax)
		}
	}
	if d <= 0 {
		d = time.Minute
	}
	return d
}

// InActiveWindow reports whether t falls in the tightened-cadence range:
// Friday 12:00 through Sunday 14:00 in the policy's location.
func (p *Policy) InActiveWindow(t time.Time) bool {
	lt := t.In(p.cfg.Location)
	switch lt.Weekday() {
	case time.Friday:
		return lt.Hour() >= 12
	case time.Saturday:
		return true
	case time.Sunday:
		return lt.Hour() < 14
	default:
		return false
	}
}

func (p *Policy) rateLimitedDelay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	shift := n - 1
	if shift > rateLimitShiftCap {
		// Deterministic linear growth past the clamp keeps the delay strictly
		// increasing in n.
		extra := time.Duration(shift-rateLimitShiftCap) * time.Hour
		return p.cfg.RateLimitMax<<rateLimitShiftCap + extra
	}
	return p.between(p.cfg.RateLimitMin<<shift, p.cfg.RateLimitMax<<shift)
}

func (p *Policy) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.rng.Int63n(int64(hi-lo)))
}
