package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pagewatch/pagewatch/config"
	"github.com/pagewatch/pagewatch/errors"
)

// DefaultTelegramAPI is the Telegram bot API host. Overridable for tests.
const DefaultTelegramAPI = "https://api.telegram.org"

// dispatchMeta carries watch identity into the transport payloads.
type dispatchMeta struct {
	WatchName string
	WatchID   string
	URL       string
}

// sendTelegram posts the message via the bot sendMessage API with HTML parse
// mode.
func (r *Router) sendTelegram(ctx context.Context, ch *config.TelegramChannel, message string) error {
	token := ch.BotToken
	if token == "" {
		token = r.settings.TelegramBotToken
	}
	chatID := ch.ChatID
	if chatID == "" {
		chatID = r.settings.TelegramChatID
	}
	if token == "" || chatID == "" {
		return errors.New("telegram channel missing bot token or chat id")
	}

	body, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     message,
		"parse_mode":               "HTML",
		"disable_web_page_preview": !ch.EnablePreview,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal telegram payload")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", r.telegramAPI, token)
	return r.post(ctx, url, "application/json", nil, body)
}

// sendNtfy posts the HTML-stripped message to an ntfy topic URL.
func (r *Router) sendNtfy(ctx context.Context, ch *config.NtfyChannel, message string, meta dispatchMeta) error {
	url := ch.URL
	if url == "" {
		url = r.settings.NtfyURL
	}
	if url == "" {
		return errors.New("ntfy channel missing url")
	}

	title := ch.Title
	if title == "" {
		title = meta.WatchName
	}
	headers := map[string]string{"Title": title}
	if ch.Priority != "" {
		headers["Priority"] = ch.Priority
	}
	if len(ch.Tags) > 0 {
		headers["Tags"] = strings.Join(ch.Tags, ",")
	}

	return r.post(ctx, url, "text/plain", headers, []byte(stripHTML(message)))
}

// sendWebhook posts the change payload to an arbitrary URL with per-channel
// headers merged over the JSON content type.
func (r *Router) sendWebhook(ctx context.Context, ch *config.WebhookChannel, message string, meta dispatchMeta) error {
	url := ch.URL
	if url == "" {
		url = r.settings.WebhookURL
	}
	if url == "" {
		return errors.New("webhook channel missing url")
	}

	body, err := json.Marshal(map[string]any{
		"watch":     meta.WatchName,
		"id":        meta.WatchID,
		"url":       meta.URL,
		"message":   message,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	return r.post(ctx, url, "application/json", ch.Headers, body)
}

func (r *Router) post(ctx context.Context, url, contentType string, headers map[string]string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "failed to create notification request")
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "notification request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("notification endpoint returned status %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}
