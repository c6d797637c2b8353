package runner

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pagewatch/pagewatch/browser"
	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/errors"
	"github.com/pagewatch/pagewatch/notify"
	"github.com/pagewatch/pagewatch/state"
)

// stubBrowser scripts the page every run sees. gotoFailures makes the first N
// navigations fail to exercise the retry loop.
type stubBrowser struct {
	elements     map[string][]string
	gotoFailures int
	gotoCalls    int
}

func (b *stubBrowser) NewContext(opts browser.ContextOptions) (browser.Context, error) {
	return &stubContext{b: b}, nil
}
func (b *stubBrowser) Close() error { return nil }

type stubContext struct{ b *stubBrowser }

func (c *stubContext) NewPage() (browser.Page, error)     { return &stubPage{b: c.b}, nil }
func (c *stubContext) SaveStorageState(path string) error { return nil }
func (c *stubContext) Close() error                       { return nil }

type stubPage struct{ b *stubBrowser }

func (p *stubPage) Goto(url string, opts browser.GotoOptions) error {
	p.b.gotoCalls++
	if p.b.gotoCalls <= p.b.gotoFailures {
		return errors.New("connection refused")
	}
	return nil
}
func (p *stubPage) WaitForSelector(selector string, timeout time.Duration) error { return nil }
func (p *stubPage) WaitForNavigation(timeout time.Duration) error                { return nil }
func (p *stubPage) WaitForTimeout(d time.Duration)                               {}
func (p *stubPage) QueryAll(selector string) ([]browser.Element, error) {
	texts := p.b.elements[selector]
	out := make([]browser.Element, len(texts))
	for i, text := range texts {
		out[i] = stubElement{text: text}
	}
	return out, nil
}
func (p *stubPage) Evaluate(script string) (any, error) { return nil, nil }
func (p *stubPage) Frames() []browser.Frame             { return nil }
func (p *stubPage) URL() string                         { return "https://example.com" }
func (p *stubPage) Title() (string, error)              { return "Example", nil }

func (p *stubPage) Screenshot(path string, full bool) error { return errors.New("no display") }
func (p *stubPage) BlockResources(types []string) error     { return nil }

func (p *stubPage) Click(selector string) error                           { return nil }
func (p *stubPage) Fill(selector, value string) error                     { return nil }
func (p *stubPage) TypeText(selector, text string, d time.Duration) error { return nil }
func (p *stubPage) Press(key string) error                                { return nil }
func (p *stubPage) SelectOption(selector, value string) error             { return nil }
func (p *stubPage) Hover(selector string) error                           { return nil }
func (p *stubPage) ScrollIntoView(selector string) error                  { return nil }
func (p *stubPage) ScrollBy(x, y int) error                               { return nil }
func (p *stubPage) Close() error                                          { return nil }

type stubElement struct{ text string }

func (e stubElement) TextContent() (string, error)             { return e.text, nil }
func (e stubElement) InnerText() (string, error)               { return e.text, nil }
func (e stubElement) GetAttribute(name string) (string, error) { return "", nil }
func (e stubElement) InnerHTML() (string, error)               { return e.text, nil }
func (e stubElement) OuterHTML() (string, error)               { return e.text, nil }
func (e stubElement) InputValue() (string, error)              { return e.text, nil }

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	return &config.Settings{
		StateDir:               t.TempDir(),
		ScreenshotDir:          t.TempDir(),
		SessionDir:             t.TempDir(),
		MaxRetries:             3,
		RetryBaseDelayMs:       1,
		NotificationThrottleMs: 60000,
		ErrorNotifyThreshold:   3,
	}
}

func testRunner(t *testing.T, settings *config.Settings, b browser.Browser) (*Runner, *state.Store) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	store, err := state.NewStore(settings.StateDir, logger)
	require.NoError(t, err)
	return New(settings, b, store, notify.NewRouter(settings, logger), logger), store
}

func titleWatch() *config.Watch {
	return &config.Watch{
		Name: "example",
		URL:  "https://example.com",
		Extractors: []config.Extractor{
			{Name: "title", Type: config.ExtractText, Selector: "h1"},
		},
	}
}

func TestFirstRunEstablishesBaseline(t *testing.T) {
	b := &stubBrowser{elements: map[string][]string{"h1": {"hello"}}}
	settings := testSettings(t)
	r, store := testRunner(t, settings, b)

	w := titleWatch()
	res := r.Run(context.Background(), w)

	require.True(t, res.Success)
	assert.Empty(t, res.Changes)
	assert.Equal(t, []any{"hello"}, res.Data["title"])
	assert.NotEmpty(t, res.RunID)
	assert.False(t, res.LastCheck.IsZero())

	rec := store.Load(w.WatchID())
	require.NotNil(t, rec)
	assert.Equal(t, map[string]any{"title": []any{"hello"}}, rec.Data)
}

func TestSecondRunDetectsChange(t *testing.T) {
	settings := testSettings(t)
	w := titleWatch()

	b := &stubBrowser{elements: map[string][]string{"h1": {"old headline"}}}
	r, _ := testRunner(t, settings, b)
	require.True(t, r.Run(context.Background(), w).Success)

	b.elements["h1"] = []string{"new headline"}
	res := r.Run(context.Background(), w)

	require.True(t, res.Success)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "title", res.Changes[0].Name)
}

func TestUnchangedRunReportsNoChanges(t *testing.T) {
	settings := testSettings(t)
	w := titleWatch()
	b := &stubBrowser{elements: map[string][]string{"h1": {"same"}}}
	r, _ := testRunner(t, settings, b)

	require.True(t, r.Run(context.Background(), w).Success)
	res := r.Run(context.Background(), w)
	require.True(t, res.Success)
	assert.Empty(t, res.Changes)
}

func TestFirstRunNeverNotifies(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	settings := testSettings(t)
	w := titleWatch()
	w.Notifications = []config.Notification{{Webhook: &config.WebhookChannel{URL: srv.URL}}}

	b := &stubBrowser{elements: map[string][]string{"h1": {"first ever value"}}}
	r, _ := testRunner(t, settings, b)

	require.True(t, r.Run(context.Background(), w).Success)
	assert.Zero(t, hits)

	// The second run has a baseline and a change: now it notifies.
	b.elements["h1"] = []string{"changed value"}
	require.True(t, r.Run(context.Background(), w).Success)
	assert.Equal(t, 1, hits)
}

func TestNavigationRetriesThenSucceeds(t *testing.T) {
	settings := testSettings(t)
	b := &stubBrowser{
		elements:     map[string][]string{"h1": {"hello"}},
		gotoFailures: 2,
	}
	r, _ := testRunner(t, settings, b)

	res := r.Run(context.Background(), titleWatch())
	require.True(t, res.Success)
	assert.Equal(t, 3, b.gotoCalls)
}

func TestNavigationExhaustsRetries(t *testing.T) {
	settings := testSettings(t)
	b := &stubBrowser{gotoFailures: 99}
	r, store := testRunner(t, settings, b)

	w := titleWatch()
	res := r.Run(context.Background(), w)

	require.False(t, res.Success)
	assert.Contains(t, res.Error, "3 attempts")
	assert.Equal(t, 3, b.gotoCalls)
	assert.Equal(t, 1, r.ErrorCount(w.WatchID()))

	rec := store.Load(w.WatchID())
	require.NotNil(t, rec)
	assert.NotEmpty(t, rec.LastError)
}

func TestFailurePreservesLastGoodSnapshot(t *testing.T) {
	settings := testSettings(t)
	w := titleWatch()

	b := &stubBrowser{elements: map[string][]string{"h1": {"good data"}}}
	r, store := testRunner(t, settings, b)
	require.True(t, r.Run(context.Background(), w).Success)

	b.gotoFailures = 99
	b.gotoCalls = 0
	require.False(t, r.Run(context.Background(), w).Success)

	rec := store.Load(w.WatchID())
	require.NotNil(t, rec)
	assert.Equal(t, map[string]any{"title": []any{"good data"}}, rec.Data)
	assert.NotEmpty(t, rec.LastError)
}

func TestSuccessResetsErrorCount(t *testing.T) {
	settings := testSettings(t)
	w := titleWatch()
	b := &stubBrowser{elements: map[string][]string{"h1": {"x"}}, gotoFailures: 3}
	r, _ := testRunner(t, settings, b)

	// First run burns all three attempts and fails.
	require.False(t, r.Run(context.Background(), w).Success)
	require.Equal(t, 1, r.ErrorCount(w.WatchID()))

	// Next run succeeds and clears the counter.
	require.True(t, r.Run(context.Background(), w).Success)
	assert.Zero(t, r.ErrorCount(w.WatchID()))
}

func TestErrorNotificationsAtThresholdEveryFailure(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	settings := testSettings(t)
	w := titleWatch()
	w.NotifyOnError = true
	w.Notifications = []config.Notification{{Webhook: &config.WebhookChannel{URL: srv.URL}}}

	b := &stubBrowser{gotoFailures: 1 << 30}
	r, _ := testRunner(t, settings, b)

	for i := 0; i < 4; i++ {
		require.False(t, r.Run(context.Background(), w).Success)
	}

	// Threshold is 3: failures three and four both notify, with no throttle
	// window between them.
	assert.Equal(t, 2, hits)
	assert.Equal(t, 4, r.ErrorCount(w.WatchID()))
}

func TestHTTPModeRunsWithoutBrowser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><h1>static page</h1></body></html>`)
	}))
	defer srv.Close()

	settings := testSettings(t)
	r, _ := testRunner(t, settings, nil)

	w := &config.Watch{
		Name:      "static",
		URL:       srv.URL,
		FetchMode: config.FetchModeHTTP,
		Extractors: []config.Extractor{
			{Name: "title", Type: config.ExtractText, Selector: "h1"},
		},
	}

	res := r.Run(context.Background(), w)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, []any{"static page"}, res.Data["title"])
}

func TestHTTPModeRejectsInteractiveActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><button id="buy">Buy</button><h1>shop</h1></body></html>`)
	}))
	defer srv.Close()

	settings := testSettings(t)
	r, _ := testRunner(t, settings, nil)

	w := &config.Watch{
		Name:      "static-click",
		URL:       srv.URL,
		FetchMode: config.FetchModeHTTP,
		Actions:   []config.Action{{Type: config.ActionClick, Selector: "#buy"}},
		Extractors: []config.Extractor{
			{Name: "title", Type: config.ExtractText, Selector: "h1"},
		},
	}

	// A click cannot happen without a live DOM: the run must fail rather
	// than extract as if it had.
	res := r.Run(context.Background(), w)
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "http fetch mode")
}

func TestHTTPModeAllowsWaitActions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><h1>static page</h1></body></html>`)
	}))
	defer srv.Close()

	settings := testSettings(t)
	r, _ := testRunner(t, settings, nil)

	w := &config.Watch{
		Name:      "static-wait",
		URL:       srv.URL,
		FetchMode: config.FetchModeHTTP,
		Actions: []config.Action{
			{Type: config.ActionWait, Ms: 1},
			{Type: config.ActionWaitForSelector, Selector: "h1"},
		},
		Extractors: []config.Extractor{
			{Name: "title", Type: config.ExtractText, Selector: "h1"},
		},
	}

	res := r.Run(context.Background(), w)
	require.True(t, res.Success, "error: %s", res.Error)
	assert.Equal(t, []any{"static page"}, res.Data["title"])
}

func TestBrowserModeWithoutBrowserFails(t *testing.T) {
	settings := testSettings(t)
	r, _ := testRunner(t, settings, nil)

	res := r.Run(context.Background(), titleWatch())
	require.False(t, res.Success)
	assert.Contains(t, res.Error, "no browser")
}
