// Package scheduler drives the perpetual reconciliation cycle:
// load cancellation state, fetch participants, snapshot, reconcile, sleep.
//
// A single worker goroutine owns every read-modify-write of reconciliation
// state. Administrative triggers (force refresh, cancel/uncancel) are
// requests on the worker's channel, so they can never interleave with a
// scheduled cycle.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"rosterbot/internal/reconcile"
	"rosterbot/internal/roster"
	rtsup "rosterbot/internal/runtime/supervisor"
	"rosterbot/internal/source"
	"rosterbot/internal/storage"
	logx "rosterbot/pkg/logx"
)

type Config struct {
	// Capacity is the confirmed-slot limit before overflow to the waitlist.
	Capacity int

	// FetchTimeout bounds a single data-source call; FetchMaxElapsed bounds
	// the whole retry envelope around it.
	FetchTimeout    time.Duration
	FetchMaxElapsed time.Duration

	// ReconcileTimeout bounds the messaging calls of one cycle.
	ReconcileTimeout time.Duration

	// InitialDelay is the wait before the first scheduled cycle after
	// bootstrap (keeps startup calm while the adapter settles).
	InitialDelay time.Duration
}

func (c *Config) applyDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = roster.DefaultCapacity
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.FetchMaxElapsed <= 0 {
		c.FetchMaxElapsed = 2 * time.Minute
	}
	if c.ReconcileTimeout <= 0 {
		c.ReconcileTimeout = 30 * time.Second
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 5 * time.Second
	}
}

// Result is the synchronous answer to an administrative trigger.
type Result struct {
	Outcome roster.Outcome
	Err     error
}

type reqKind int

const (
	reqRefresh reqKind = iota
	reqSetCancellation
)

type request struct {
	kind      reqKind
	cancelled bool
	reason    string
	actor     string
	resp      chan Result
}

// Status is a point-in-time view for /status and /healthz.
type Status struct {
	Cycles                 uint64        `json:"cycles"`
	LastOutcome            string        `json:"last_outcome"`
	LastCycleAt            time.Time     `json:"last_cycle_at"`
	LastDelay              time.Duration `json:"last_delay"`
	NextWakeAt             time.Time     `json:"next_wake_at"`
	ConsecutiveRateLimited int           `json:"consecutive_rate_limited"`
	Week                   string        `json:"week"`
	Cancelled              bool          `json:"cancelled"`
}

type Service struct {
	log   logx.Logger
	fetch source.Fetcher
	store storage.Store
	rec   *reconcile.Reconciler

	mu     sync.Mutex
	cfg    Config
	policy *roster.Policy
	loc    *time.Location

	status Status

	reqCh chan request

	runMu sync.Mutex
	sup   *rtsup.Supervisor

	consecRateLimited int
}

func New(cfg Config, fetch source.Fetcher, store storage.Store, rec *reconcile.Reconciler, policy *roster.Policy, loc *time.Location, log logx.Logger) *Service {
	cfg.applyDefaults()
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log,
		fetch:  fetch,
		store:  store,
		rec:    rec,
		cfg:    cfg,
		policy: policy,
		loc:    loc,
		reqCh:  make(chan request),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.sup != nil {
		return nil
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))

	// The loop is permanently live: a panicking cycle restarts the worker
	// instead of killing the process.
	s.sup.GoRestart0("scheduler.worker", s.run,
		rtsup.WithRestartBackoff(time.Second, time.Minute),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.runMu.Lock()
	sup := s.sup
	s.sup = nil
	s.runMu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()
	if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Reconfigure applies hot-reloadable knobs (capacity, cadence, timeouts).
func (s *Service) Reconfigure(cfg Config, policy *roster.Policy) {
	cfg.applyDefaults()
	s.mu.Lock()
	s.cfg = cfg
	if policy != nil {
		s.policy = policy
	}
	s.mu.Unlock()
}

// ForceRefresh runs one reconciliation cycle out of band and reports its
// outcome. It shares the worker with scheduled cycles, so it can never
// overlap one.
func (s *Service) ForceRefresh(ctx context.Context) Result {
	return s.submit(ctx, request{kind: reqRefresh})
}

// SetCancellation flips the target week's cancellation state and immediately
// reconciles so the posted message reflects it.
func (s *Service) SetCancellation(ctx context.Context, cancelled bool, reason, actor string) Result {
	return s.submit(ctx, request{kind: reqSetCancellation, cancelled: cancelled, reason: reason, actor: actor})
}

func (s *Service) submit(ctx context.Context, req request) Result {
	req.resp = make(chan Result, 1)

	s.runMu.Lock()
	sup := s.sup
	s.runMu.Unlock()
	if sup == nil {
		return Result{Outcome: roster.OutcomeError, Err: errors.New("scheduler not running")}
	}

	select {
	case s.reqCh <- req:
	case <-ctx.Done():
		return Result{Outcome: roster.OutcomeError, Err: ctx.Err()}
	case <-sup.Context().Done():
		return Result{Outcome: roster.OutcomeError, Err: errors.New("scheduler stopped")}
	}

	select {
	case res := <-req.resp:
		return res
	case <-ctx.Done():
		return Result{Outcome: roster.OutcomeError, Err: ctx.Err()}
	}
}

func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// run is the single logical thread of control. Cycles and admin requests are
// strictly sequential; the timed wait is cancellable on shutdown.
func (s *Service) run(ctx context.Context) {
	s.mu.Lock()
	initial := s.cfg.InitialDelay
	s.mu.Unlock()

	timer := time.NewTimer(initial)
	defer timer.Stop()

	s.noteNextWake(initial)
	s.log.Info("scheduler loop started", logx.Duration("initial_delay", initial))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler loop stopped")
			return

		case req := <-s.reqCh:
			res := s.handleRequest(ctx, req)
			req.resp <- res
			// An admin-triggered cycle resets the clock like a scheduled one.
			delay := s.nextDelay(res.Outcome)
			resetTimer(timer, delay)
			s.noteNextWake(delay)

		case <-timer.C:
			outcome := s.runCycle(ctx, nil)
			delay := s.nextDelay(outcome)
			resetTimer(timer, delay)
			s.noteNextWake(delay)
			s.log.Debug("cycle complete",
				logx.String("outcome", outcome.String()),
				logx.Duration("next_delay", delay))
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (s *Service) handleRequest(ctx context.Context, req request) Result {
	switch req.kind {
	case reqSetCancellation:
		if err := s.writeCancellation(ctx, req); err != nil {
			return Result{Outcome: roster.OutcomeError, Err: err}
		}
		outcome := s.runCycle(ctx, nil)
		return Result{Outcome: outcome}
	default:
		var err error
		outcome := s.runCycle(ctx, &err)
		return Result{Outcome: outcome, Err: err}
	}
}

func (s *Service) writeCancellation(ctx context.Context, req request) error {
	now := time.Now().In(s.location())
	week := roster.WeekKey(roster.TargetSunday(now))
	c := roster.Cancellation{
		Cancelled: req.cancelled,
		Reason:    req.reason,
		Actor:     req.actor,
		At:        now,
	}
	if !req.cancelled {
		// Uncancel resets the record to defaults, matching the state a fresh
		// week starts with.
		c = roster.Cancellation{}
	}
	if err := s.store.SaveCancellation(ctx, week, c); err != nil {
		return err
	}
	s.log.Info("cancellation state changed",
		logx.String("week", week),
		logx.Bool("cancelled", req.cancelled),
		logx.String("actor", req.actor),
		logx.String("reason", req.reason))
	return nil
}

// runCycle executes one fetch → render → reconcile pass. All failures are
// absorbed here and classified; the loop itself never dies from one cycle.
// If errOut is non-nil the cycle error is reported through it (admin path).
func (s *Service) runCycle(ctx context.Context, errOut *error) roster.Outcome {
	s.mu.Lock()
	cfg := s.cfg
	loc := s.loc
	s.mu.Unlock()

	now := time.Now().In(loc)
	sunday := roster.TargetSunday(now)
	week := roster.WeekKey(sunday)

	outcome, err := s.cycle(ctx, cfg, sunday, week)
	if err != nil && errOut != nil {
		*errOut = err
	}
	if err != nil && outcome == roster.OutcomeError {
		s.log.Error("cycle failed", logx.String("week", week), logx.Err(err))
	}

	s.mu.Lock()
	if outcome == roster.OutcomeRateLimited {
		s.consecRateLimited++
	} else {
		s.consecRateLimited = 0
	}
	s.status.Cycles++
	s.status.LastOutcome = outcome.String()
	s.status.LastCycleAt = now
	s.status.ConsecutiveRateLimited = s.consecRateLimited
	s.status.Week = week
	s.mu.Unlock()

	return outcome
}

func (s *Service) cycle(ctx context.Context, cfg Config, sunday time.Time, week string) (roster.Outcome, error) {
	cancelState, ok, err := s.store.Cancellation(ctx, week)
	if err != nil {
		return roster.OutcomeError, err
	}
	if !ok {
		// First time this week is addressed: materialize the default record
		// so admin commands and the message agree on the week's state.
		if err := s.store.SaveCancellation(ctx, week, roster.Cancellation{}); err != nil {
			return roster.OutcomeError, err
		}
	}

	s.mu.Lock()
	s.status.Cancelled = cancelState.Cancelled
	s.mu.Unlock()

	names, err := s.fetchParticipants(ctx, cfg, sunday)
	if err != nil {
		return roster.OutcomeError, err
	}

	snap := roster.BuildSnapshot(names, cfg.Capacity)

	rctx, cancel := context.WithTimeout(ctx, cfg.ReconcileTimeout)
	defer cancel()
	return s.rec.Reconcile(rctx, snap, cancelState, sunday)
}

// fetchParticipants wraps the data source in a bounded, jittered retry
// envelope. Each attempt gets its own timeout.
func (s *Service) fetchParticipants(ctx context.Context, cfg Config, sunday time.Time) ([]string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = cfg.FetchMaxElapsed

	return backoff.RetryWithData(func() ([]string, error) {
		fctx, cancel := context.WithTimeout(ctx, cfg.FetchTimeout)
		defer cancel()
		names, err := s.fetch.Participants(fctx, sunday)
		if err != nil {
			s.log.Warn("participant fetch attempt failed", logx.Err(err))
		}
		return names, err
	}, backoff.WithContext(bo, ctx))
}

func (s *Service) nextDelay(outcome roster.Outcome) time.Duration {
	s.mu.Lock()
	policy := s.policy
	loc := s.loc
	n := s.consecRateLimited
	s.mu.Unlock()
	return policy.NextDelay(time.Now().In(loc), outcome, n)
}

func (s *Service) noteNextWake(d time.Duration) {
	s.mu.Lock()
	s.status.LastDelay = d
	s.status.NextWakeAt = time.Now().Add(d)
	s.mu.Unlock()
}

func (s *Service) location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Supervisor exposes the service's supervisor for /healthz (nil if stopped).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.sup
}
