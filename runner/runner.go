// Package runner executes one full check of one watch: navigate, act,
// extract, compare against the persisted baseline, persist, notify.
package runner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pagewatch/pagewatch/action"
	"github.com/pagewatch/pagewatch/browser"
	"github.com/pagewatch/pagewatch/compare"
	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/errors"
	"github.com/pagewatch/pagewatch/extract"
	"github.com/pagewatch/pagewatch/notify"
	"github.com/pagewatch/pagewatch/state"
)

const waitForSelectorTimeout = 30 * time.Second

// Result summarizes one completed check. LastCheck is the canonical
// completion timestamp for status reporting, set whether the run succeeded or
// not.
type Result struct {
	WatchID         string           `json:"watchId"`
	RunID           string           `json:"runId"`
	Success         bool             `json:"success"`
	Data            map[string]any   `json:"data,omitempty"`
	Changes         []compare.Change `json:"changes,omitempty"`
	Error           string           `json:"error,omitempty"`
	ErrorScreenshot string           `json:"errorScreenshot,omitempty"`
	LastCheck       time.Time        `json:"lastCheck"`
	Duration        time.Duration    `json:"duration"`
}

// Runner owns the pipeline engines and the per-watch consecutive-failure
// counters. The scheduler guarantees no two runs of the same watch overlap;
// runs of different watches execute concurrently.
type Runner struct {
	settings *config.Settings
	browser  browser.Browser
	store    *state.Store
	actions  *action.Engine
	extract  *extract.Engine
	compare  *compare.Engine
	notifier *notify.Router
	logger   *zap.SugaredLogger

	mu          sync.Mutex
	errorCounts map[string]int
}

// New creates a runner. browser may be nil when every watch uses http fetch
// mode (the one-shot check command does this to avoid launching a browser).
func New(settings *config.Settings, b browser.Browser, store *state.Store, notifier *notify.Router, logger *zap.SugaredLogger) *Runner {
	return &Runner{
		settings:    settings,
		browser:     b,
		store:       store,
		actions:     action.NewEngine(logger),
		extract:     extract.NewEngine(settings.ScreenshotDir, logger),
		compare:     compare.NewEngine(logger),
		notifier:    notifier,
		logger:      logger,
		errorCounts: make(map[string]int),
	}
}

// Run executes one check. Errors are folded into the Result; the error return
// is reserved for setup problems the caller must know about (unreachable
// browser, cancelled context).
func (r *Runner) Run(ctx context.Context, w *config.Watch) Result {
	id := w.WatchID()
	res := Result{
		WatchID: id,
		RunID:   uuid.NewString(),
	}
	start := time.Now()

	r.logger.Infow("Check starting",
		"watch", w.Name,
		"watch_id", id,
		"run_id", res.RunID,
		"url", w.URL)

	data, changes, errShot, err := r.check(ctx, w, id)
	res.Duration = time.Since(start)
	res.LastCheck = time.Now().UTC()

	if err != nil {
		res.Error = err.Error()
		res.ErrorScreenshot = errShot
		r.recordFailure(ctx, w, id, err)
		r.logger.Errorw("Check failed",
			"watch", w.Name,
			"watch_id", id,
			"run_id", res.RunID,
			"duration", res.Duration,
			"error", err)
		return res
	}

	res.Success = true
	res.Data = data
	res.Changes = changes
	r.resetErrors(id)

	r.logger.Infow("Check completed",
		"watch", w.Name,
		"watch_id", id,
		"run_id", res.RunID,
		"duration", res.Duration,
		"changes", len(changes))
	return res
}

// ErrorCount reports the consecutive-failure count for a watch.
func (r *Runner) ErrorCount(watchID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errorCounts[watchID]
}

// Forget drops the failure counter when a watch is removed.
func (r *Runner) Forget(watchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.errorCounts, watchID)
}

// check runs the pipeline proper. When the run fails with a page still open
// and screenshotOnError is set, the page is captured before teardown and the
// screenshot path returned alongside the error.
func (r *Runner) check(ctx context.Context, w *config.Watch, id string) (data map[string]any, changes []compare.Change, errShot string, err error) {
	bctx, err := r.newContext(w, id)
	if err != nil {
		return nil, nil, "", err
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return nil, nil, "", errors.Wrap(err, "failed to open page")
	}
	defer page.Close()

	// Runs before the page-close defers: capture what the page looked like
	// at the moment of failure.
	defer func() {
		if err == nil || !w.ScreenshotOnError {
			return
		}
		path := state.ErrorScreenshotPath(r.settings.ScreenshotDir, id, time.Now())
		if shotErr := page.Screenshot(path, true); shotErr != nil {
			r.logger.Debugw("Error screenshot failed",
				"watch_id", id,
				"error", shotErr)
			return
		}
		errShot = path
	}()

	browserMode := w.EffectiveFetchMode() == config.FetchModeBrowser

	if browserMode && len(w.BlockResources) > 0 {
		if err := page.BlockResources(w.BlockResources); err != nil {
			r.logger.Warnw("Failed to install resource blocking",
				"watch_id", id,
				"error", err)
		}
	}

	if err := r.navigate(ctx, page, w); err != nil {
		return nil, nil, "", err
	}

	// Actions run in both fetch modes: the static page accepts waits and
	// rejects anything needing a live DOM, so an http-mode watch declaring a
	// click fails loudly instead of extracting as if the click happened.
	if len(w.Actions) > 0 {
		if err := r.actions.Run(page, w.Actions, nil); err != nil {
			return nil, nil, "", err
		}
	}

	if w.WaitForSelector != "" {
		sel := browser.NormalizeSelector(w.WaitForSelector, false)
		if err := page.WaitForSelector(sel, waitForSelectorTimeout); err != nil {
			// Extraction still runs; the selector may simply be absent today.
			r.logger.Warnw("waitForSelector elapsed, extracting anyway",
				"watch_id", id,
				"selector", w.WaitForSelector)
		}
	}
	if w.WaitMs > 0 {
		page.WaitForTimeout(time.Duration(w.WaitMs) * time.Millisecond)
	}

	snapshot := r.extract.Run(page, id, w.Extractors)

	prior := r.store.Load(id)

	if prior != nil && prior.Data != nil {
		var eval compare.Evaluator
		if browserMode {
			eval = page
		}
		changes = r.compare.Changes(w, snapshot, prior.Data, eval)
	} else {
		r.logger.Infow("Baseline established", "watch_id", id)
	}

	if err := r.store.SaveSnapshot(id, snapshot); err != nil {
		return nil, nil, "", err
	}

	if browserMode && w.PersistSession {
		r.saveSession(bctx, id)
	}

	if len(changes) > 0 && prior != nil {
		r.notifier.NotifyChanges(ctx, w, id, changes, snapshot, prior.Data)
	}

	return snapshot, changes, "", nil
}

// newContext builds the browsing context for one run: a static fetcher for
// http watches, an isolated browser context otherwise.
func (r *Runner) newContext(w *config.Watch, id string) (browser.Context, error) {
	opts := browser.ContextOptions{
		UserAgent:    w.UserAgent,
		Locale:       w.Locale,
		Timezone:     w.Timezone,
		ExtraHeaders: w.Headers,
	}
	for _, c := range w.Cookies {
		opts.Cookies = append(opts.Cookies, browser.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
			URL:    c.URL,
		})
	}

	if w.EffectiveFetchMode() == config.FetchModeHTTP {
		return browser.NewStatic(w.Timeout()).NewContext(opts)
	}

	if r.browser == nil {
		return nil, errors.New("no browser available for browser-mode watch")
	}

	if w.Viewport != nil {
		opts.ViewportWidth = w.Viewport.Width
		opts.ViewportHeight = w.Viewport.Height
	}
	if w.Proxy != nil {
		opts.Proxy = &browser.ProxyOptions{
			Server:   w.Proxy.Server,
			Username: w.Proxy.Username,
			Password: w.Proxy.Password,
		}
	}
	if w.PersistSession {
		path := state.SessionStatePath(r.settings.SessionDir, id)
		if _, err := os.Stat(path); err == nil {
			opts.StorageStatePath = path
		}
	}

	return r.browser.NewContext(opts)
}

// navigate attempts the page load with exponential backoff: base, 2x, 4x.
func (r *Runner) navigate(ctx context.Context, page browser.Page, w *config.Watch) error {
	attempts := w.Retries
	if attempts <= 0 {
		attempts = r.settings.MaxRetries
	}
	base := r.settings.RetryBaseDelay()
	gotoOpts := browser.GotoOptions{
		Timeout:   w.Timeout(),
		WaitUntil: w.WaitUntil,
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = page.Goto(w.URL, gotoOpts); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		delay := base << (attempt - 1)
		r.logger.Warnw("Navigation failed, retrying",
			"watch_id", w.WatchID(),
			"attempt", attempt,
			"of", attempts,
			"retry_in", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return errors.Wrapf(err, "navigation failed after %d attempts", attempts)
}

// recordFailure persists the error annotation, increments the consecutive
// counter, and emits the error notification once the threshold is reached.
func (r *Runner) recordFailure(ctx context.Context, w *config.Watch, id string, runErr error) {
	if err := r.store.RecordError(id, runErr.Error()); err != nil {
		r.logger.Errorw("Failed to persist error state",
			"watch_id", id,
			"error", err)
	}

	r.mu.Lock()
	r.errorCounts[id]++
	count := r.errorCounts[id]
	r.mu.Unlock()

	threshold := w.ErrorThreshold
	if threshold <= 0 {
		threshold = r.settings.ErrorNotifyThreshold
	}
	if w.NotifyOnError && count >= threshold {
		r.notifier.NotifyError(ctx, w, id, count, runErr.Error())
	}
}

func (r *Runner) resetErrors(id string) {
	r.mu.Lock()
	delete(r.errorCounts, id)
	r.mu.Unlock()
}

// saveSession persists the context's storage state for the next run.
func (r *Runner) saveSession(bctx browser.Context, id string) {
	path := state.SessionStatePath(r.settings.SessionDir, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.logger.Warnw("Failed to create session directory",
			"watch_id", id,
			"error", err)
		return
	}
	if err := bctx.SaveStorageState(path); err != nil {
		r.logger.Warnw("Failed to persist session state",
			"watch_id", id,
			"error", err)
	}
}
