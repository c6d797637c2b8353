// Package schedule owns the fleet: it loads watch documents, runs each one on
// its interval or cron expression, hot-reloads the config directory, and
// exposes the latest results for status reporting.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/errors"
	"github.com/pagewatch/pagewatch/runner"
)

const (
	// cronTick must be shorter than a minute so no matching minute is skipped;
	// same-minute suppression keeps a matching minute from firing twice.
	cronTick = 20 * time.Second

	// reloadDebounce coalesces bursts of fsnotify events from editors that
	// write config files in several syscalls.
	reloadDebounce = 500 * time.Millisecond
)

// entry is one scheduled watch.
type entry struct {
	watch   *config.Watch
	cron    *Cron         // nil for interval watches
	limiter *rate.Limiter // nil when maxRunsPerMinute is unset

	cancel context.CancelFunc // stops the interval loop or a pending startup run

	busy      bool      // a run is in flight
	lastFired time.Time // minute-truncated instant of the last cron fire
}

// Engine schedules the watch fleet.
type Engine struct {
	settings *config.Settings
	runner   *runner.Runner
	logger   *zap.SugaredLogger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	watcher *fsnotify.Watcher

	mu        sync.RWMutex
	entries   map[string]*entry
	results   map[string]runner.Result
	loadErrs  map[string]error
	startedAt time.Time
}

// NewEngine creates a scheduler around a runner.
func NewEngine(settings *config.Settings, r *runner.Runner, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		settings: settings,
		runner:   r,
		logger:   logger,
		entries:  make(map[string]*entry),
		results:  make(map[string]runner.Result),
		loadErrs: make(map[string]error),
	}
}

// Start loads the config directory, schedules every enabled watch with a
// staggered first run, and begins the cron, reload, and fsnotify loops.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.startedAt = time.Now()

	watches, invalid, err := config.LoadDir(e.settings.ConfigDir)
	if err != nil {
		return err
	}
	for name, loadErr := range invalid {
		e.logger.Errorw("Skipping invalid watch config",
			"file", name,
			"error", loadErr)
	}

	e.mu.Lock()
	e.loadErrs = invalid
	e.mu.Unlock()

	e.reconcile(watches)

	e.wg.Add(2)
	go e.cronLoop()
	go e.reloadLoop()

	if watcher, werr := fsnotify.NewWatcher(); werr != nil {
		e.logger.Warnw("Config file watching unavailable, relying on periodic rescan",
			"error", werr)
	} else if werr := watcher.Add(e.settings.ConfigDir); werr != nil {
		e.logger.Warnw("Failed to watch config directory",
			"dir", e.settings.ConfigDir,
			"error", werr)
		watcher.Close()
	} else {
		e.watcher = watcher
		e.wg.Add(1)
		go e.watchLoop()
	}

	e.logger.Infow("Scheduler started",
		"watches", len(watches),
		"invalid", len(invalid),
		"config_dir", e.settings.ConfigDir)
	return nil
}

// Stop cancels every loop and waits for in-flight runs to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	if e.watcher != nil {
		e.watcher.Close()
	}
	e.wg.Wait()
	e.logger.Info("Scheduler stopped")
}

// Trigger runs a watch immediately, outside its schedule. It still respects
// the non-overlap guarantee and the per-watch rate limit.
func (e *Engine) Trigger(watchID string) error {
	e.mu.RLock()
	ent, ok := e.entries[watchID]
	e.mu.RUnlock()
	if !ok {
		return errors.Wrapf(errors.ErrWatchNotFound, "%s", watchID)
	}
	e.dispatch(watchID, ent)
	return nil
}

// Results snapshots the latest per-watch results.
func (e *Engine) Results() map[string]runner.Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]runner.Result, len(e.results))
	for id, r := range e.results {
		out[id] = r
	}
	return out
}

// Watches snapshots the scheduled fleet keyed by watch id.
func (e *Engine) Watches() map[string]*config.Watch {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*config.Watch, len(e.entries))
	for id, ent := range e.entries {
		out[id] = ent.watch
	}
	return out
}

// LoadErrors snapshots the files skipped during the last directory scan.
func (e *Engine) LoadErrors() map[string]error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]error, len(e.loadErrs))
	for name, err := range e.loadErrs {
		out[name] = err
	}
	return out
}

// StartedAt reports when the scheduler began.
func (e *Engine) StartedAt() time.Time {
	return e.startedAt
}

// reconcile aligns the scheduled fleet with a fresh directory scan: new
// watches are added, changed documents replace their entry, removed or
// disabled watches are torn down. Unchanged watches keep their timers and
// their consecutive-failure state.
func (e *Engine) reconcile(watches []*config.Watch) {
	seen := make(map[string]bool, len(watches))
	stagger := e.settings.StaggerDelay()
	slot := 0

	for _, w := range watches {
		if !w.IsEnabled() {
			continue
		}
		id := w.WatchID()
		seen[id] = true

		e.mu.Lock()
		existing, ok := e.entries[id]
		if ok && existing.watch.ContentHash == w.ContentHash {
			e.mu.Unlock()
			continue
		}
		e.mu.Unlock()

		if ok {
			e.logger.Infow("Watch config changed, rescheduling",
				"watch", w.Name,
				"watch_id", id)
			e.remove(id, false)
		}

		if err := e.add(w, time.Duration(slot)*stagger); err != nil {
			e.logger.Errorw("Failed to schedule watch",
				"watch", w.Name,
				"watch_id", id,
				"error", err)
			continue
		}
		slot++
	}

	e.mu.RLock()
	var stale []string
	for id := range e.entries {
		if !seen[id] {
			stale = append(stale, id)
		}
	}
	e.mu.RUnlock()

	for _, id := range stale {
		e.logger.Infow("Watch removed from config, unscheduling", "watch_id", id)
		e.remove(id, true)
	}
}

// add schedules one watch. Every watch gets a staggered immediate first run;
// after that, interval watches tick in their own goroutine and cron watches
// are picked up by the shared cron loop.
func (e *Engine) add(w *config.Watch, stagger time.Duration) error {
	id := w.WatchID()
	ent := &entry{watch: w}

	if w.Schedule != "" {
		cron, err := ParseCron(w.Schedule)
		if err != nil {
			return err
		}
		ent.cron = cron
	}
	if w.MaxRunsPerMinute > 0 {
		ent.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(w.MaxRunsPerMinute)), w.MaxRunsPerMinute)
	}

	e.mu.Lock()
	loopCtx, cancel := context.WithCancel(e.ctx)
	ent.cancel = cancel
	e.wg.Add(1)
	if ent.cron != nil {
		go e.startupRun(loopCtx, id, ent, stagger)
	} else {
		go e.intervalLoop(loopCtx, id, ent, stagger)
	}
	e.entries[id] = ent
	e.mu.Unlock()

	e.logger.Infow("Watch scheduled",
		"watch", w.Name,
		"watch_id", id,
		"interval", w.Interval(e.settings.CheckInterval()),
		"schedule", w.Schedule)
	return nil
}

// remove tears one watch down. forget additionally drops its result and
// failure history (a removed watch, as opposed to a rescheduled one).
func (e *Engine) remove(id string, forget bool) {
	e.mu.Lock()
	ent, ok := e.entries[id]
	if ok {
		delete(e.entries, id)
		if forget {
			delete(e.results, id)
		}
	}
	e.mu.Unlock()

	if ok && ent.cancel != nil {
		ent.cancel()
	}
	if forget {
		e.runner.Forget(id)
	}
}

// startupRun gives a cron watch its staggered immediate first run; later
// fires come from the cron loop. The first run establishes the baseline
// snapshot, so the next cron fire can already notify.
func (e *Engine) startupRun(ctx context.Context, id string, ent *entry, stagger time.Duration) {
	defer e.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(stagger):
	}
	e.dispatch(id, ent)
}

// intervalLoop runs one fixed-period watch: staggered first run, then ticks.
func (e *Engine) intervalLoop(ctx context.Context, id string, ent *entry, stagger time.Duration) {
	defer e.wg.Done()

	select {
	case <-ctx.Done():
		return
	case <-time.After(stagger):
	}
	e.dispatch(id, ent)

	ticker := time.NewTicker(ent.watch.Interval(e.settings.CheckInterval()))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.dispatch(id, ent)
		}
	}
}

// cronLoop drives cron watches off a shared ticker.
func (e *Engine) cronLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(cronTick)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			e.fireDue(now)
		}
	}
}

// fireDue dispatches every cron entry whose expression matches now. A watch
// fires at most once per matching minute, however many ticks land inside it.
func (e *Engine) fireDue(now time.Time) {
	minute := now.Truncate(time.Minute)

	e.mu.Lock()
	var due []struct {
		id  string
		ent *entry
	}
	for id, ent := range e.entries {
		if ent.cron == nil || !ent.cron.Matches(now) {
			continue
		}
		if ent.lastFired.Equal(minute) {
			continue
		}
		ent.lastFired = minute
		due = append(due, struct {
			id  string
			ent *entry
		}{id, ent})
	}
	e.mu.Unlock()

	for _, d := range due {
		e.dispatch(d.id, d.ent)
	}
}

// dispatch starts one run unless the watch is already running or rate
// limited. The busy flag is the non-overlap guarantee: a slow run simply
// swallows the ticks that land during it.
func (e *Engine) dispatch(id string, ent *entry) {
	e.mu.Lock()
	if ent.busy {
		e.mu.Unlock()
		e.logger.Debugw("Run still in flight, skipping tick", "watch_id", id)
		return
	}
	if ent.limiter != nil && !ent.limiter.Allow() {
		e.mu.Unlock()
		e.logger.Warnw("Run rate limited", "watch_id", id)
		return
	}
	ent.busy = true
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		res := e.runner.Run(e.ctx, ent.watch)

		e.mu.Lock()
		ent.busy = false
		e.results[id] = res
		e.mu.Unlock()
	}()
}

// reloadLoop rescans the config directory on a fixed period, catching changes
// fsnotify missed (network filesystems, replaced directories).
func (e *Engine) reloadLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.settings.ReloadInterval())
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.rescan()
		}
	}
}

// watchLoop debounces fsnotify events into rescans.
func (e *Engine) watchLoop() {
	defer e.wg.Done()

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-e.ctx.Done():
			return

		case event, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, e.rescan)

		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.logger.Warnw("Config watcher error", "error", err)
		}
	}
}

func (e *Engine) rescan() {
	watches, invalid, err := config.LoadDir(e.settings.ConfigDir)
	if err != nil {
		e.logger.Errorw("Config rescan failed", "error", err)
		return
	}
	for name, loadErr := range invalid {
		e.logger.Errorw("Skipping invalid watch config",
			"file", name,
			"error", loadErr)
	}

	e.mu.Lock()
	e.loadErrs = invalid
	e.mu.Unlock()

	e.reconcile(watches)
}
