package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend identifies the active image-analysis backend
type Backend string

const (
	BackendLocal   Backend = "local"   // local multi-task model
	BackendCloudV1 Backend = "cloudv1" // cloud vision API, first generation
	BackendCloudV2 Backend = "cloudv2" // cloud vision API, second generation
	BackendBridge  Backend = "bridge"  // internal HTTP bridge service
)

// Config application configuration
type Config struct {
	// Mailbox
	IMAPServer    string        `env:"IMAP_SERVER,required"` // host:port
	EmailLogin    string        `env:"EMAIL_LOGIN,required"`
	EmailPassword string        `env:"EMAIL_PASSWORD,required"`
	SentFolder    string        `env:"SENT_FOLDER" envDefault:"Sent Items"`
	DialTimeout   time.Duration `env:"DIAL_TIMEOUT" envDefault:"30s"`

	// Watermark / backlog
	StartDate           time.Time `env:"START_DATE" envDefault:"2022-01-01T00:00:00Z"`
	InitialLoadQuantity int       `env:"INITIAL_LOAD_QUANTITY" envDefault:"250"`
	// Providers with session-scoped folder semantics cannot use uid-range
	// fetches; set false to force date-range searches.
	StableUIDs bool `env:"IMAP_STABLE_UIDS" envDefault:"true"`

	// Idle / poll
	// Servers are supposed to hold an idle connection ~30 minutes, but some
	// drop it after 10, so the wait is bounded well under that.
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"9m"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1m"`

	// Rate limiting, admitted messages per minute over a 10 minute window.
	// Zero disables.
	DiscardWhenTPMGreaterThan float64 `env:"DISCARD_WHEN_TPM_GREATER_THAN" envDefault:"0"`

	// Analysis
	AIBackend         Backend       `env:"AI_BACKEND,required"`
	TaskTypes         []string      `env:"TASK_TYPES" envSeparator:","`
	LocalModelCmd     string        `env:"LOCAL_MODEL_CMD"`
	VisionEndpoint    string        `env:"VISION_ENDPOINT"`
	VisionKey         string        `env:"VISION_KEY"`
	VisionCallsPerMin int           `env:"VISION_CALLS_PER_MINUTE" envDefault:"20"`
	VisionCallsPerDay int           `env:"VISION_CALLS_PER_DAY" envDefault:"5000"`
	BridgeURL         string        `env:"BRIDGE_URL"`
	QueuePollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailsight.db"`

	// Alert channels
	SMTPHost      string `env:"SMTP_HOST"`
	SMTPPort      int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPassword  string `env:"SMTP_PASSWORD"`
	AlertSender   string `env:"ALERT_SENDER"`
	SMSGatewayURL string `env:"SMS_GATEWAY_URL"`

	// Telegram channel (optional)
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	// Metrics listener, e.g. ":9090". Empty disables.
	MetricsAddr string `env:"METRICS_ADDR"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// EmailAlertsEnabled returns true if the SMTP channel is configured
func (c *Config) EmailAlertsEnabled() bool {
	return c.SMTPHost != "" && c.AlertSender != ""
}

// SMSAlertsEnabled returns true if the SMS gateway channel is configured
func (c *Config) SMSAlertsEnabled() bool {
	return c.SMSGatewayURL != ""
}

// TelegramAlertsEnabled returns true if the Telegram channel is configured
func (c *Config) TelegramAlertsEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// GmailFolderSemantics reports whether the server uses Gmail-style
// special folders for sent mail
func (c *Config) GmailFolderSemantics() bool {
	return strings.Contains(strings.ToLower(c.IMAPServer), "gmail")
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AIBackend {
	case BackendLocal:
		if c.LocalModelCmd == "" {
			return fmt.Errorf("AI_BACKEND %q requires LOCAL_MODEL_CMD", c.AIBackend)
		}
	case BackendCloudV1, BackendCloudV2:
		if c.VisionEndpoint == "" || c.VisionKey == "" {
			return fmt.Errorf("AI_BACKEND %q requires VISION_ENDPOINT and VISION_KEY", c.AIBackend)
		}
	case BackendBridge:
		if c.BridgeURL == "" {
			return fmt.Errorf("AI_BACKEND %q requires BRIDGE_URL", c.AIBackend)
		}
	default:
		return fmt.Errorf("unknown AI_BACKEND %q, expected one of local, cloudv1, cloudv2, bridge", c.AIBackend)
	}

	if c.DiscardWhenTPMGreaterThan < 0 {
		return fmt.Errorf("DISCARD_WHEN_TPM_GREATER_THAN must not be negative")
	}

	return nil
}
