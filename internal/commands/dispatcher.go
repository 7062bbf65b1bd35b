// Package commands routes incoming chat commands to the roster service.
//
// The surface is deliberately small: a handful of fixed commands, an owner
// allowlist for the mutating ones, and a bounded worker pool so a slow
// reconciliation cycle never blocks the update feed.
package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"rosterbot/internal/roster"
	"rosterbot/internal/scheduler"
	"rosterbot/internal/storage"
	kit "rosterbot/internal/transport"
	logx "rosterbot/pkg/logx"

	rtsup "rosterbot/internal/runtime/supervisor"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type command struct {
	name        string
	description string
	usage       string
	access      Access
	handle      func(ctx context.Context, req *request) error
}

type request struct {
	update kit.Update
	chat   kit.ChatTarget
	args   []string
}

// Deps are the capabilities the command handlers act on.
type Deps struct {
	Messenger kit.Messenger
	Scheduler *scheduler.Service
	Store     storage.Store

	// AnnounceTarget receives cancellation announcements. Zero means announce
	// into the chat the command came from.
	AnnounceTarget kit.ChatTarget

	Version   string
	StartedAt time.Time
	Location  *time.Location
}

type Dispatcher struct {
	log  logx.Logger
	deps Deps

	mu     sync.RWMutex
	owners []int64

	cmds map[string]command

	runMu sync.Mutex
	sup   *rtsup.Supervisor

	jobs chan func()
}

func New(log logx.Logger, deps Deps, owners []int64) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	d := &Dispatcher{
		log:    log,
		deps:   deps,
		owners: append([]int64(nil), owners...),
		jobs:   make(chan func(), 64),
	}
	d.cmds = d.registry()
	return d
}

// SetOwners updates the owner list. Safe to call during hot-reload.
func (d *Dispatcher) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	d.mu.Lock()
	d.owners = cp
	d.mu.Unlock()
}

func (d *Dispatcher) isOwner(id int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, o := range d.owners {
		if o == id {
			return true
		}
	}
	return false
}

// Supervisor returns the dispatcher's internal supervisor (nil if not running).
func (d *Dispatcher) Supervisor() *rtsup.Supervisor {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	return d.sup
}

func (d *Dispatcher) registry() map[string]command {
	cmds := []command{
		{
			name:        "roster",
			description: "show the current roster",
			usage:       "/roster",
			access:      AccessEveryone,
			handle:      d.cmdRoster,
		},
		{
			name:        "cancel",
			description: "cancel this Sunday's session",
			usage:       "/cancel [reason]",
			access:      AccessOwnerOnly,
			handle:      d.cmdCancel,
		},
		{
			name:        "uncancel",
			description: "restore this Sunday's session",
			usage:       "/uncancel",
			access:      AccessOwnerOnly,
			handle:      d.cmdUncancel,
		},
		{
			name:        "refresh",
			description: "reconcile the roster message now",
			usage:       "/refresh",
			access:      AccessOwnerOnly,
			handle:      d.cmdRefresh,
		},
		{
			name:        "status",
			description: "show loop status",
			usage:       "/status",
			access:      AccessOwnerOnly,
			handle:      d.cmdStatus,
		},
		{
			name:        "version",
			description: "show bot version",
			usage:       "/version",
			access:      AccessEveryone,
			handle:      d.cmdVersion,
		},
	}
	m := make(map[string]command, len(cmds)+1)
	for _, c := range cmds {
		m[c.name] = c
	}
	m["help"] = command{
		name:        "help",
		description: "show this help",
		usage:       "/help",
		access:      AccessEveryone,
		handle:      d.cmdHelp,
	}
	return m
}

// DispatchLoop consumes updates until ctx is done or the channel closes.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	const workers = 2

	sup := rtsup.New(ctx,
		rtsup.WithLogger(d.log.With(logx.String("comp", "commands"))),
		rtsup.WithCancelOnError(false),
	)
	d.runMu.Lock()
	d.sup = sup
	d.runMu.Unlock()

	d.log.Info("command dispatcher started", logx.Int("workers", workers))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-d.jobs:
					if !ok {
						return nil
					}
					// Keep the worker alive if a handler panics.
					func() {
						defer func() {
							if r := recover(); r != nil {
								d.log.Error("panic in command handler",
									logx.Any("panic", r),
									logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		d.runMu.Lock()
		d.sup = nil
		d.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		d.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				d.log.Info("command dispatcher stopped (updates channel closed)")
				return nil
			}
			d.route(ctx, up)
		}
	}
}

func (d *Dispatcher) route(ctx context.Context, up kit.Update) {
	text := strings.TrimSpace(up.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)

	cmd, ok := d.cmds[word]
	if !ok {
		// Silent in groups: unknown slash commands are probably for other bots.
		if !up.IsGroup {
			d.reply(ctx, up, "unknown command, try /help")
		}
		return
	}

	if cmd.access == AccessOwnerOnly && !d.isOwner(up.FromID) {
		d.log.Debug("command denied",
			logx.String("command", cmd.name),
			logx.Int64("from_id", up.FromID))
		d.reply(ctx, up, "you are not allowed to do that")
		return
	}

	req := &request{
		update: up,
		chat:   kit.ChatTarget{ChatID: up.ChatID, ThreadID: up.ThreadID},
		args:   parts[1:],
	}

	job := func() {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := cmd.handle(cctx, req); err != nil {
			d.log.Warn("command failed",
				logx.String("command", cmd.name),
				logx.Int64("from_id", up.FromID),
				logx.Err(err))
			d.reply(cctx, up, "command failed: "+err.Error())
		}
	}

	select {
	case d.jobs <- job:
	default:
		d.log.Warn("command dropped (queue full)", logx.String("command", cmd.name))
	}
}

func (d *Dispatcher) reply(ctx context.Context, up kit.Update, text string) {
	to := kit.ChatTarget{ChatID: up.ChatID, ThreadID: up.ThreadID}
	if _, err := d.deps.Messenger.Send(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		d.log.Debug("reply failed", logx.Err(err))
	}
}

func (d *Dispatcher) announce(ctx context.Context, fallback kit.ChatTarget, text string) {
	to := d.deps.AnnounceTarget
	if to.ChatID == 0 {
		to = fallback
	}
	if _, err := d.deps.Messenger.Send(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		d.log.Warn("announcement failed", logx.Err(err))
	}
}

func (d *Dispatcher) targetSunday() time.Time {
	return roster.TargetSunday(time.Now().In(d.deps.Location))
}

// --- handlers ---

func (d *Dispatcher) cmdRoster(ctx context.Context, req *request) error {
	text, ok, err := d.deps.Store.RenderedText(ctx)
	if err != nil {
		return err
	}
	if !ok || text == "" {
		d.reply(ctx, req.update, "no roster message posted yet")
		return nil
	}
	d.reply(ctx, req.update, text)
	return nil
}

func (d *Dispatcher) cmdCancel(ctx context.Context, req *request) error {
	reason := strings.TrimSpace(strings.Join(req.args, " "))
	if reason == "" {
		reason = "No reason given"
	}
	actor := req.update.FromUsername
	if actor == "" {
		actor = req.update.FromName
	}

	res := d.deps.Scheduler.SetCancellation(ctx, true, reason, actor)
	if res.Err != nil {
		return res.Err
	}

	sunday := d.targetSunday()
	d.announce(ctx, req.chat, fmt.Sprintf(
		"🚫 Volleyball on Sunday, %s has been CANCELLED.\nReason: %s",
		sunday.Format("January 02, 2006"), reason))
	d.reply(ctx, req.update, "cancelled, roster message updated ("+res.Outcome.String()+")")
	return nil
}

func (d *Dispatcher) cmdUncancel(ctx context.Context, req *request) error {
	res := d.deps.Scheduler.SetCancellation(ctx, false, "", "")
	if res.Err != nil {
		return res.Err
	}

	sunday := d.targetSunday()
	d.announce(ctx, req.chat, fmt.Sprintf(
		"✅ Volleyball on Sunday, %s is back ON!",
		sunday.Format("January 02, 2006")))
	d.reply(ctx, req.update, "restored, roster message updated ("+res.Outcome.String()+")")
	return nil
}

func (d *Dispatcher) cmdRefresh(ctx context.Context, req *request) error {
	res := d.deps.Scheduler.ForceRefresh(ctx)
	if res.Err != nil {
		return res.Err
	}
	d.reply(ctx, req.update, "refreshed: "+res.Outcome.String())
	return nil
}

func (d *Dispatcher) cmdStatus(ctx context.Context, req *request) error {
	st := d.deps.Scheduler.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "week: %s\n", st.Week)
	fmt.Fprintf(&b, "cancelled: %v\n", st.Cancelled)
	fmt.Fprintf(&b, "cycles: %d\n", st.Cycles)
	fmt.Fprintf(&b, "last outcome: %s\n", st.LastOutcome)
	if !st.LastCycleAt.IsZero() {
		fmt.Fprintf(&b, "last cycle: %s\n", st.LastCycleAt.In(d.deps.Location).Format(time.RFC3339))
	}
	if !st.NextWakeAt.IsZero() {
		fmt.Fprintf(&b, "next wake: %s\n", st.NextWakeAt.In(d.deps.Location).Format(time.RFC3339))
	}
	if st.ConsecutiveRateLimited > 0 {
		fmt.Fprintf(&b, "rate-limited streak: %d\n", st.ConsecutiveRateLimited)
	}
	fmt.Fprintf(&b, "uptime: %s", time.Since(d.deps.StartedAt).Round(time.Second))
	d.reply(ctx, req.update, b.String())
	return nil
}

func (d *Dispatcher) cmdVersion(ctx context.Context, req *request) error {
	v := d.deps.Version
	if v == "" {
		v = "dev"
	}
	d.reply(ctx, req.update, "rosterbot "+v)
	return nil
}

func (d *Dispatcher) cmdHelp(ctx context.Context, req *request) error {
	names := []string{"roster", "cancel", "uncancel", "refresh", "status", "version", "help"}
	var b strings.Builder
	b.WriteString("commands:\n")
	fromOwner := d.isOwner(req.update.FromID)
	for _, n := range names {
		c := d.cmds[n]
		if c.access == AccessOwnerOnly && !fromOwner {
			continue
		}
		fmt.Fprintf(&b, "%s - %s\n", c.usage, c.description)
	}
	d.reply(ctx, req.update, strings.TrimRight(b.String(), "\n"))
	return nil
}
