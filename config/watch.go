// Package config holds the declarative watch schema and process settings.
//
// A watch is one JSON (or YAML) document in the config directory describing a
// page to load, a script to run against it, data to extract, and how to
// compare and notify. Process-wide settings (directories, ports, retry
// policy, transport credentials) come from the environment via viper.
package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Fetch modes. Browser watches drive the headless browser; http watches run
// the extractor engine against a plain GET response and support no actions.
const (
	FetchModeBrowser = "browser"
	FetchModeHTTP    = "http"
)

// Watch is one declarative monitoring target.
type Watch struct {
	ID      string `json:"id,omitempty" yaml:"id,omitempty"`
	Name    string `json:"name" yaml:"name"`
	URL     string `json:"url" yaml:"url"`
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`

	// Scheduling: exactly one of Interval (ms) or Schedule (cron).
	IntervalMs int64  `json:"interval,omitempty" yaml:"interval,omitempty"`
	Schedule   string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	FetchMode string `json:"fetchMode,omitempty" yaml:"fetchMode,omitempty"`

	// Browser context options.
	UserAgent      string            `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	Viewport       *Viewport         `json:"viewport,omitempty" yaml:"viewport,omitempty"`
	Locale         string            `json:"locale,omitempty" yaml:"locale,omitempty"`
	Timezone       string            `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Cookies        []Cookie          `json:"cookies,omitempty" yaml:"cookies,omitempty"`
	Proxy          *Proxy            `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	BlockResources []string          `json:"blockResources,omitempty" yaml:"blockResources,omitempty"`
	PersistSession bool              `json:"persistSession,omitempty" yaml:"persistSession,omitempty"`

	// Pipeline.
	Actions          []Action    `json:"actions,omitempty" yaml:"actions,omitempty"`
	WaitForSelector  string      `json:"waitForSelector,omitempty" yaml:"waitForSelector,omitempty"`
	WaitMs           int64       `json:"waitMs,omitempty" yaml:"waitMs,omitempty"`
	Extractors       []Extractor `json:"extractors" yaml:"extractors"`
	Comparator       string      `json:"comparator,omitempty" yaml:"comparator,omitempty"`
	Threshold        float64     `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	CustomComparator string      `json:"customComparator,omitempty" yaml:"customComparator,omitempty"`

	// Reliability.
	Retries           int    `json:"retries,omitempty" yaml:"retries,omitempty"`
	TimeoutMs         int64  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	WaitUntil         string `json:"waitUntil,omitempty" yaml:"waitUntil,omitempty"`
	ScreenshotOnError bool   `json:"screenshotOnError,omitempty" yaml:"screenshotOnError,omitempty"`
	NotifyOnError     bool   `json:"notifyOnError,omitempty" yaml:"notifyOnError,omitempty"`
	ErrorThreshold    int    `json:"errorThreshold,omitempty" yaml:"errorThreshold,omitempty"`
	MaxRunsPerMinute  int    `json:"maxRunsPerMinute,omitempty" yaml:"maxRunsPerMinute,omitempty"`

	// Output.
	Notifications   []Notification `json:"notifications,omitempty" yaml:"notifications,omitempty"`
	MessageTemplate string         `json:"messageTemplate,omitempty" yaml:"messageTemplate,omitempty"`

	// Internal bookkeeping attached at load time. Excluded from the content
	// hash and never serialized back out.
	SourceFile  string `json:"-" yaml:"-"`
	ContentHash string `json:"-" yaml:"-"`
}

// Viewport is the browser viewport size in CSS pixels.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Cookie is pre-added to the browser context before navigation.
type Cookie struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Domain string `json:"domain,omitempty" yaml:"domain,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	URL    string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Proxy overrides the process-wide proxy for one watch.
type Proxy struct {
	Server   string `json:"server" yaml:"server"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
}

// Notification selects one delivery channel for a watch. The transport is
// picked by Type, or inferred from whichever sub-object is present.
type Notification struct {
	Type     string           `json:"type,omitempty" yaml:"type,omitempty"`
	Telegram *TelegramChannel `json:"telegram,omitempty" yaml:"telegram,omitempty"`
	Ntfy     *NtfyChannel     `json:"ntfy,omitempty" yaml:"ntfy,omitempty"`
	Webhook  *WebhookChannel  `json:"webhook,omitempty" yaml:"webhook,omitempty"`
}

// TelegramChannel delivers via the Telegram bot sendMessage API.
type TelegramChannel struct {
	BotToken      string `json:"botToken,omitempty" yaml:"botToken,omitempty"`
	ChatID        string `json:"chatId,omitempty" yaml:"chatId,omitempty"`
	EnablePreview bool   `json:"enablePreview,omitempty" yaml:"enablePreview,omitempty"`
}

// NtfyChannel delivers via an ntfy topic URL.
type NtfyChannel struct {
	URL      string   `json:"url,omitempty" yaml:"url,omitempty"`
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	Priority string   `json:"priority,omitempty" yaml:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// WebhookChannel delivers a JSON payload to an arbitrary URL.
type WebhookChannel struct {
	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Channel returns the effective transport name for this notification.
func (n Notification) Channel() string {
	if n.Type != "" {
		return n.Type
	}
	switch {
	case n.Telegram != nil:
		return "telegram"
	case n.Ntfy != nil:
		return "ntfy"
	case n.Webhook != nil:
		return "webhook"
	}
	return ""
}

// IsEnabled reports whether the watch should be scheduled. Absent means
// enabled.
func (w *Watch) IsEnabled() bool {
	return w.Enabled == nil || *w.Enabled
}

// EffectiveFetchMode defaults to the browser pipeline.
func (w *Watch) EffectiveFetchMode() string {
	if w.FetchMode == "" {
		return FetchModeBrowser
	}
	return w.FetchMode
}

// WatchID returns the stable watch identity: the user-supplied id when
// present, otherwise the first 8 hex characters of MD5(url). The derived form
// is stable across restarts as long as the URL is unchanged.
func (w *Watch) WatchID() string {
	if w.ID != "" {
		return w.ID
	}
	return DeriveWatchID(w.URL)
}

// DeriveWatchID hashes a URL into the 8-hex-prefix watch id form.
func DeriveWatchID(url string) string {
	sum := md5.Sum([]byte(url))
	return hex.EncodeToString(sum[:])[:8]
}

// Timeout returns the per-attempt navigation timeout, defaulting to 60s.
func (w *Watch) Timeout() time.Duration {
	if w.TimeoutMs > 0 {
		return time.Duration(w.TimeoutMs) * time.Millisecond
	}
	return 60 * time.Second
}

// Interval returns the fixed-period tick interval, or fallback when unset.
func (w *Watch) Interval(fallback time.Duration) time.Duration {
	if w.IntervalMs > 0 {
		return time.Duration(w.IntervalMs) * time.Millisecond
	}
	return fallback
}

// ComputeContentHash hashes the watch document for change detection during
// hot reload. Internal bookkeeping fields carry `json:"-"` so they never
// participate.
func (w *Watch) ComputeContentHash() (string, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
