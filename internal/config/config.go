package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration. Sections map one-to-one to
// the pipeline components.
type Config struct {
	Mailboxes  []MailboxConfig  `mapstructure:"mailboxes" json:"mailboxes"`
	IMAP       MailboxConfig    `mapstructure:"imap" json:"imap"`
	Sheets     SheetsConfig     `mapstructure:"sheets" json:"sheets"`
	LLM        LLMConfig        `mapstructure:"llm" json:"llm"`
	Telegram   TelegramConfig   `mapstructure:"telegram" json:"telegram"`
	Processing ProcessingConfig `mapstructure:"processing" json:"processing"`
	Server     ServerConfig     `mapstructure:"server" json:"server"`
	Logging    LoggingConfig    `mapstructure:"logging" json:"logging"`
}

// MailboxConfig is one IMAP account to poll.
type MailboxConfig struct {
	Server   string `mapstructure:"server" json:"server"`
	Port     int    `mapstructure:"port" json:"port"`
	Username string `mapstructure:"username" json:"username"`
	Password string `mapstructure:"password" json:"-"`
}

type SheetsConfig struct {
	CredentialsFile string `mapstructure:"credentials_file" json:"credentials_file"`
	SpreadsheetID   string `mapstructure:"spreadsheet_id" json:"spreadsheet_id"`
	LiveSheet       string `mapstructure:"live_sheet" json:"live_sheet"`
	ArchiveSheet    string `mapstructure:"archive_sheet" json:"archive_sheet"`
	AccountSheet    string `mapstructure:"account_sheet" json:"account_sheet"`
}

type LLMConfig struct {
	Enabled     bool          `mapstructure:"enabled" json:"enabled"`
	APIKey      string        `mapstructure:"api_key" json:"-"`
	Model       string        `mapstructure:"model" json:"model"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	MinInterval time.Duration `mapstructure:"min_interval" json:"min_interval"`
	DailyQuota  int           `mapstructure:"daily_quota" json:"daily_quota"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token" json:"-"`
	ChatID int64  `mapstructure:"chat_id" json:"chat_id"`
}

func (t TelegramConfig) Enabled() bool { return t.Token != "" }

type ProcessingConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
	Lookback     time.Duration `mapstructure:"lookback" json:"lookback"`
	DryRun       bool          `mapstructure:"dry_run" json:"dry_run"`
	StateDBPath  string        `mapstructure:"state_db_path" json:"state_db_path"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level" json:"level"`
	File       string `mapstructure:"file" json:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" json:"max_age_days"`
}

// Load builds the configuration from defaults, an optional YAML file and
// PARCELMAIL_-prefixed environment variables. A .env file in the working
// directory is honored when present.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PARCELMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("parcelmail")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/parcelmail")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("imap.port", 993)

	v.SetDefault("sheets.live_sheet", "Shipments")
	v.SetDefault("sheets.archive_sheet", "Archive")

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.min_interval", "3s")
	v.SetDefault("llm.daily_quota", 200)

	v.SetDefault("processing.poll_interval", "5m")
	v.SetDefault("processing.lookback", "168h")
	v.SetDefault("processing.dry_run", false)
	v.SetDefault("processing.state_db_path", "./parcelmail.db")

	v.SetDefault("server.addr", ":8085")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 20)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
}

// bindEnv makes the flat keys reachable without a config file. Mailbox
// lists only come from YAML; the imap.* keys cover the single-account
// case.
func bindEnv(v *viper.Viper) {
	keys := []string{
		"imap.server", "imap.port", "imap.username", "imap.password",
		"sheets.credentials_file", "sheets.spreadsheet_id",
		"sheets.live_sheet", "sheets.archive_sheet", "sheets.account_sheet",
		"llm.enabled", "llm.api_key", "llm.model", "llm.timeout",
		"llm.min_interval", "llm.daily_quota",
		"telegram.token", "telegram.chat_id",
		"processing.poll_interval", "processing.lookback",
		"processing.dry_run", "processing.state_db_path",
		"server.addr",
		"logging.level", "logging.file", "logging.max_size_mb",
		"logging.max_backups", "logging.max_age_days",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// normalize folds the single-account imap section into the mailbox list.
func (c *Config) normalize() {
	if c.IMAP.Server != "" && c.IMAP.Username != "" {
		c.Mailboxes = append(c.Mailboxes, c.IMAP)
	}
	for i := range c.Mailboxes {
		if c.Mailboxes[i].Port == 0 {
			c.Mailboxes[i].Port = 993
		}
	}
}

func (c *Config) validate() error {
	if len(c.Mailboxes) == 0 {
		return errors.New("at least one mailbox is required")
	}
	for i, m := range c.Mailboxes {
		if m.Server == "" || m.Username == "" || m.Password == "" {
			return fmt.Errorf("mailbox %d: server, username and password are required", i)
		}
	}
	if !c.Processing.DryRun {
		if c.Sheets.SpreadsheetID == "" {
			return errors.New("sheets.spreadsheet_id is required")
		}
		if c.Sheets.CredentialsFile == "" {
			return errors.New("sheets.credentials_file is required")
		}
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return errors.New("llm.api_key is required when llm is enabled")
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return errors.New("telegram.chat_id is required when telegram.token is set")
	}
	return nil
}

// ToJSON renders the configuration for logging with secrets redacted.
func (c *Config) ToJSON() string {
	clone := *c
	clone.Mailboxes = append([]MailboxConfig(nil), c.Mailboxes...)
	for i := range clone.Mailboxes {
		clone.Mailboxes[i].Password = redact(clone.Mailboxes[i].Password)
	}
	clone.IMAP.Password = redact(clone.IMAP.Password)
	clone.LLM.APIKey = redact(clone.LLM.APIKey)
	clone.Telegram.Token = redact(clone.Telegram.Token)

	data, err := json.MarshalIndent(clone, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// WriteExample writes a commented starter config.
func WriteExample(path string) error {
	return os.WriteFile(path, []byte(exampleYAML), 0o600)
}

const exampleYAML = `mailboxes:
  - server: imap.gmail.com
    port: 993
    username: inbox@example.com
    password: app-password

sheets:
  credentials_file: ./service-account.json
  spreadsheet_id: ""
  live_sheet: Shipments
  archive_sheet: Archive
  account_sheet: ""

llm:
  enabled: false
  api_key: ""
  model: gpt-4o-mini
  min_interval: 3s
  daily_quota: 200

telegram:
  token: ""
  chat_id: 0

processing:
  poll_interval: 5m
  lookback: 168h
  dry_run: false
  state_db_path: ./parcelmail.db

server:
  addr: ":8085"

logging:
  level: info
  file: ""
  max_size_mb: 20
  max_backups: 5
  max_age_days: 30
`
