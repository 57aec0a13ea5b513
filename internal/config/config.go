// Package config loads and validates the application configuration from a
// YAML file, environment variables, and built-in defaults, in that order of
// increasing precedence for env vars over the file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Login   LoginConfig   `mapstructure:"login" yaml:"login"`
	Mailbox MailboxConfig `mapstructure:"mailbox" yaml:"mailbox"`
	Profile ProfileConfig `mapstructure:"profile" yaml:"profile"`
	Status  StatusConfig  `mapstructure:"status" yaml:"status"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser session.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// PostLoadWait is the settle delay after navigation or submission;
	// naukri.com renders the login widgets well after document ready.
	PostLoadWait time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// LoginConfig tunes the login state machine. Email and Password are secrets
// and only ever come from the environment.
type LoginConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Email    string `mapstructure:"-" yaml:"-"`
	Password string `mapstructure:"-" yaml:"-"`
	// ElementWait bounds how long to wait for the credential fields to
	// become interactable before giving up on the attempt.
	ElementWait time.Duration `mapstructure:"element_wait" yaml:"element_wait"`
	// ClassifyRetries is how many re-polls an indeterminate classification
	// gets before it is treated as a result.
	ClassifyRetries int           `mapstructure:"classify_retries" yaml:"classify_retries"`
	ClassifyDelay   time.Duration `mapstructure:"classify_delay" yaml:"classify_delay"`
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// MailboxConfig configures the OTP mailbox. The OAuth2 triple is secret and
// only ever comes from the environment.
type MailboxConfig struct {
	Address       string        `mapstructure:"address" yaml:"address"`
	Host          string        `mapstructure:"host" yaml:"host"`
	Port          int           `mapstructure:"port" yaml:"port"`
	Folder        string        `mapstructure:"folder" yaml:"folder"`
	SenderDomain  string        `mapstructure:"sender_domain" yaml:"sender_domain"`
	MaxWait       time.Duration `mapstructure:"max_wait" yaml:"max_wait"`
	PollInterval  time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	RecencyWindow time.Duration `mapstructure:"recency_window" yaml:"recency_window"`
	MaxMessages   int           `mapstructure:"max_messages" yaml:"max_messages"`
	ClientID      string        `mapstructure:"-" yaml:"-"`
	ClientSecret  string        `mapstructure:"-" yaml:"-"`
	RefreshToken  string        `mapstructure:"-" yaml:"-"`
}

// ProfileConfig describes the single profile update performed after login.
type ProfileConfig struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Headline string `mapstructure:"headline" yaml:"headline"`
}

// StatusConfig controls the per-run log directory and status record.
type StatusConfig struct {
	// Dir is the base directory; each run creates a timestamped
	// subdirectory for its screenshots and run_status.json.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Environment variable names for the secrets. These match what the deployment
// already provides and are read directly, bypassing the viper key mapping.
const (
	EnvEmail        = "NAUKRI_EMAIL"
	EnvPassword     = "NAUKRI_PASSWORD"
	EnvClientID     = "GMAIL_CLIENT_ID"
	EnvClientSecret = "GMAIL_CLIENT_SECRET"
	EnvRefreshToken = "GMAIL_REFRESH_TOKEN"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "naukri-refresh")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.fatal", "red")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/144.0.0.0 Safari/537.36")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.navigation_timeout", 30*time.Second)
	v.SetDefault("browser.post_load_wait", 8*time.Second)

	v.SetDefault("login.url", "https://www.naukri.com/mnjuser/login")
	v.SetDefault("login.element_wait", 20*time.Second)
	v.SetDefault("login.classify_retries", 2)
	v.SetDefault("login.classify_delay", 3*time.Second)
	v.SetDefault("login.settle_delay", 8*time.Second)

	v.SetDefault("mailbox.host", "imap.gmail.com")
	v.SetDefault("mailbox.port", 993)
	v.SetDefault("mailbox.folder", "INBOX")
	v.SetDefault("mailbox.sender_domain", "naukri.com")
	v.SetDefault("mailbox.max_wait", 90*time.Second)
	v.SetDefault("mailbox.poll_interval", 5*time.Second)
	v.SetDefault("mailbox.recency_window", 2*time.Minute)
	v.SetDefault("mailbox.max_messages", 5)

	v.SetDefault("profile.url", "https://www.naukri.com/mnjuser/profile")

	v.SetDefault("status.dir", "logs")
}

// Load reads the configuration. cfgFile may be empty, in which case
// ./config.yaml is used when present; a missing file is not an error because
// the defaults plus env vars are a complete configuration.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("NAUKRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Login.Email = os.Getenv(EnvEmail)
	cfg.Login.Password = os.Getenv(EnvPassword)
	cfg.Mailbox.ClientID = os.Getenv(EnvClientID)
	cfg.Mailbox.ClientSecret = os.Getenv(EnvClientSecret)
	cfg.Mailbox.RefreshToken = os.Getenv(EnvRefreshToken)
	if cfg.Mailbox.Address == "" {
		// The mailbox address defaults to the login identity; most users
		// register with the same account they receive OTPs on.
		cfg.Mailbox.Address = cfg.Login.Email
	}

	return &cfg, nil
}

// ValidateSecrets checks that every required secret is present. It returns an
// error naming all missing variables; automation must not start without them.
func (c *Config) ValidateSecrets() error {
	var missing []string
	for _, s := range []struct{ env, val string }{
		{EnvEmail, c.Login.Email},
		{EnvPassword, c.Login.Password},
		{EnvClientID, c.Mailbox.ClientID},
		{EnvClientSecret, c.Mailbox.ClientSecret},
		{EnvRefreshToken, c.Mailbox.RefreshToken},
	} {
		if s.val == "" {
			missing = append(missing, s.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}
