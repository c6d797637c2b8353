// Package notify renders change messages and fans them out to the declared
// transports, enforcing the per-watch throttle window.
package notify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pagewatch/pagewatch/compare"
	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/internal/httpclient"
)

const dispatchTimeout = 30 * time.Second

// doer is the slice of http.Client the transports need. Both the plain
// client and the SSRF-guarded one satisfy it.
type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Router formats and dispatches notifications. A change notification for a
// watch is suppressed while the throttle window since the last accepted one
// has not elapsed; error notifications are never throttled.
type Router struct {
	settings    *config.Settings
	client      doer
	telegramAPI string
	logger      *zap.SugaredLogger

	mu           sync.Mutex
	lastAccepted map[string]time.Time
	now          func() time.Time
}

// NewRouter creates a notification router. With RestrictWebhookTargets set,
// outbound notification traffic refuses private and loopback destinations.
func NewRouter(settings *config.Settings, logger *zap.SugaredLogger) *Router {
	var client doer = httpclient.New(dispatchTimeout)
	if settings.RestrictWebhookTargets {
		client = httpclient.NewGuarded(dispatchTimeout)
	}
	return &Router{
		settings:     settings,
		client:       client,
		telegramAPI:  DefaultTelegramAPI,
		logger:       logger,
		lastAccepted: make(map[string]time.Time),
		now:          time.Now,
	}
}

// NotifyChanges renders the change message and dispatches it. Returns true
// when at least one transport accepted, which is also when the throttle
// timestamp advances.
func (r *Router) NotifyChanges(ctx context.Context, w *config.Watch, watchID string, changes []compare.Change, current, prior map[string]any) bool {
	if len(changes) == 0 {
		return false
	}

	if suppressed, since := r.throttled(watchID); suppressed {
		r.logger.Infow("Change notification throttled",
			"watch", w.Name,
			"watch_id", watchID,
			"since_last", since)
		return false
	}

	var message string
	if w.MessageTemplate != "" {
		message = renderTemplate(w.MessageTemplate, w, changes, current, prior)
	} else {
		message = renderDefault(w, changes)
	}

	accepted := r.dispatch(ctx, w, watchID, message)
	if accepted {
		r.mu.Lock()
		r.lastAccepted[watchID] = r.now()
		r.mu.Unlock()
	}
	return accepted
}

// NotifyError dispatches a persistent-failure notification. Not throttled.
func (r *Router) NotifyError(ctx context.Context, w *config.Watch, watchID string, failures int, errMsg string) bool {
	message := renderError(w, failures, errMsg)
	return r.dispatch(ctx, w, watchID, message)
}

func (r *Router) throttled(watchID string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastAccepted[watchID]
	if !ok {
		return false, 0
	}
	since := r.now().Sub(last)
	return since < r.settings.NotificationThrottle(), since
}

// dispatch fans the message out: per-watch channels when declared, otherwise
// every globally configured transport. Failures are logged and do not block
// the remaining channels.
func (r *Router) dispatch(ctx context.Context, w *config.Watch, watchID, message string) bool {
	meta := dispatchMeta{WatchName: w.Name, WatchID: watchID, URL: w.URL}
	accepted := false

	if len(w.Notifications) > 0 {
		for _, ch := range w.Notifications {
			if r.dispatchChannel(ctx, ch, message, meta) {
				accepted = true
			}
		}
		return accepted
	}

	// Global fallback: whichever transports the environment configures.
	if r.settings.TelegramBotToken != "" && r.settings.TelegramChatID != "" {
		if r.dispatchChannel(ctx, config.Notification{Type: "telegram", Telegram: &config.TelegramChannel{}}, message, meta) {
			accepted = true
		}
	}
	if r.settings.NtfyURL != "" {
		if r.dispatchChannel(ctx, config.Notification{Type: "ntfy", Ntfy: &config.NtfyChannel{}}, message, meta) {
			accepted = true
		}
	}
	if r.settings.WebhookURL != "" {
		if r.dispatchChannel(ctx, config.Notification{Type: "webhook", Webhook: &config.WebhookChannel{}}, message, meta) {
			accepted = true
		}
	}
	return accepted
}

func (r *Router) dispatchChannel(ctx context.Context, ch config.Notification, message string, meta dispatchMeta) bool {
	var err error
	channel := ch.Channel()

	switch channel {
	case "telegram":
		tg := ch.Telegram
		if tg == nil {
			tg = &config.TelegramChannel{}
		}
		err = r.sendTelegram(ctx, tg, message)
	case "ntfy":
		nc := ch.Ntfy
		if nc == nil {
			nc = &config.NtfyChannel{}
		}
		err = r.sendNtfy(ctx, nc, message, meta)
	case "webhook":
		wh := ch.Webhook
		if wh == nil {
			wh = &config.WebhookChannel{}
		}
		err = r.sendWebhook(ctx, wh, message, meta)
	default:
		r.logger.Warnw("Unknown notification channel", "channel", channel)
		return false
	}

	if err != nil {
		r.logger.Errorw("Notification dispatch failed",
			"channel", channel,
			"watch", meta.WatchName,
			"error", err)
		return false
	}

	r.logger.Infow("Notification sent",
		"channel", channel,
		"watch", meta.WatchName)
	return true
}
