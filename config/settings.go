package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds process-wide configuration resolved from the environment.
type Settings struct {
	ConfigDir     string `mapstructure:"config_dir"`
	StateDir      string `mapstructure:"state_dir"`
	ScreenshotDir string `mapstructure:"screenshot_dir"`
	SessionDir    string `mapstructure:"session_dir"`

	CheckIntervalMs        int64 `mapstructure:"check_interval_ms"`
	HealthPort             int   `mapstructure:"health_port"`
	MaxRetries             int   `mapstructure:"max_retries"`
	RetryBaseDelayMs       int64 `mapstructure:"retry_base_delay_ms"`
	StaggerDelayMs         int64 `mapstructure:"stagger_delay_ms"`
	NotificationThrottleMs int64 `mapstructure:"notification_throttle_ms"`
	ErrorNotifyThreshold   int   `mapstructure:"error_notify_threshold"`
	ReloadIntervalMs       int64 `mapstructure:"reload_interval_ms"`

	ProxyServer   string `mapstructure:"proxy_server"`
	ProxyUsername string `mapstructure:"proxy_username"`
	ProxyPassword string `mapstructure:"proxy_password"`

	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`
	NtfyURL          string `mapstructure:"ntfy_url"`
	WebhookURL       string `mapstructure:"webhook_url"`

	// RestrictWebhookTargets blocks notification dispatch to private and
	// loopback addresses. Off by default so local ntfy or webhook receivers
	// keep working.
	RestrictWebhookTargets bool `mapstructure:"restrict_webhook_targets"`
}

// settingsKeys maps viper keys to the bare environment variable each one
// honors. The PAGEWATCH_ prefixed form is also accepted via AutomaticEnv.
var settingsKeys = map[string]string{
	"config_dir":               "CONFIG_DIR",
	"state_dir":                "STATE_DIR",
	"screenshot_dir":           "SCREENSHOT_DIR",
	"session_dir":              "SESSION_DIR",
	"check_interval_ms":        "CHECK_INTERVAL_MS",
	"health_port":              "HEALTH_PORT",
	"max_retries":              "MAX_RETRIES",
	"retry_base_delay_ms":      "RETRY_BASE_DELAY_MS",
	"stagger_delay_ms":         "STAGGER_DELAY_MS",
	"notification_throttle_ms": "NOTIFICATION_THROTTLE_MS",
	"error_notify_threshold":   "ERROR_NOTIFY_THRESHOLD",
	"reload_interval_ms":       "RELOAD_INTERVAL_MS",
	"proxy_server":             "PROXY_SERVER",
	"proxy_username":           "PROXY_USERNAME",
	"proxy_password":           "PROXY_PASSWORD",
	"telegram_bot_token":       "TELEGRAM_BOT_TOKEN",
	"telegram_chat_id":         "TELEGRAM_CHAT_ID",
	"ntfy_url":                 "NTFY_URL",
	"webhook_url":              "WEBHOOK_URL",
	"restrict_webhook_targets": "RESTRICT_WEBHOOK_TARGETS",
}

// SetDefaults installs default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("config_dir", "./configs")
	v.SetDefault("state_dir", "./state")
	v.SetDefault("screenshot_dir", "./screenshots")
	v.SetDefault("session_dir", "./sessions")
	v.SetDefault("check_interval_ms", 300000)
	v.SetDefault("health_port", 8080)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_base_delay_ms", 5000)
	v.SetDefault("stagger_delay_ms", 2000)
	v.SetDefault("notification_throttle_ms", 60000)
	v.SetDefault("error_notify_threshold", 3)
	v.SetDefault("reload_interval_ms", 30000)
	v.SetDefault("restrict_webhook_targets", false)
}

// LoadSettings resolves Settings from defaults and the environment.
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("PAGEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// Also honor the bare env names (CONFIG_DIR, STATE_DIR, ...).
	for key, env := range settingsKeys {
		v.BindEnv(key, "PAGEWATCH_"+env, env)
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CheckInterval is the default fixed-period tick for watches without an
// explicit interval or cron schedule.
func (s *Settings) CheckInterval() time.Duration {
	return time.Duration(s.CheckIntervalMs) * time.Millisecond
}

// RetryBaseDelay is the base of the exponential navigation backoff.
func (s *Settings) RetryBaseDelay() time.Duration {
	return time.Duration(s.RetryBaseDelayMs) * time.Millisecond
}

// StaggerDelay spaces out initial watch runs at startup.
func (s *Settings) StaggerDelay() time.Duration {
	return time.Duration(s.StaggerDelayMs) * time.Millisecond
}

// NotificationThrottle is the minimum interval between two successful change
// notifications for the same watch.
func (s *Settings) NotificationThrottle() time.Duration {
	return time.Duration(s.NotificationThrottleMs) * time.Millisecond
}

// ReloadInterval is the config directory rescan period.
func (s *Settings) ReloadInterval() time.Duration {
	return time.Duration(s.ReloadIntervalMs) * time.Millisecond
}
