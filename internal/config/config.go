package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"house-finance/internal/logging"
	"house-finance/internal/prediction"
)

// SourceKind selects the collection flow of a data source.
type SourceKind string

const (
	SourceCreditCard SourceKind = "credit_card"
	SourceBank       SourceKind = "bank"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Sources      []SourceConfig     `mapstructure:"sources"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Notification NotificationConfig `mapstructure:"notification"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ApplySchema     bool          `mapstructure:"apply_schema"`
}

// SchedulerConfig governs the periodic pipeline.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// SourceConfig describes one scraper-backed account.
type SourceConfig struct {
	Name          string     `mapstructure:"name"`
	Kind          SourceKind `mapstructure:"kind"`
	Command       string     `mapstructure:"command"`
	Args          []string   `mapstructure:"args"`
	WorkDir       string     `mapstructure:"work_dir"`
	AccountNumber string     `mapstructure:"account_number"`
	// DeriveID hashes the transaction tuple instead of trusting the scraper id.
	DeriveID bool `mapstructure:"derive_id"`
	// Credentials maps a scraper flag to the environment variable holding its value.
	Credentials  map[string]string `mapstructure:"credentials"`
	Months       int               `mapstructure:"months"`
	LookbackDays int               `mapstructure:"lookback_days"`
	Timeout      time.Duration     `mapstructure:"timeout"`
}

// ClassifierConfig configures the category model and its post-processing.
type ClassifierConfig struct {
	Enabled        bool                         `mapstructure:"enabled"`
	Endpoint       string                       `mapstructure:"endpoint"`
	Timeout        time.Duration                `mapstructure:"timeout"`
	FeatureColumns []string                     `mapstructure:"feature_columns"`
	Extractors     []prediction.ExtractorParams `mapstructure:"extractors"`
	RulesFile      string                       `mapstructure:"rules_file"`
	MonthsAhead    int                          `mapstructure:"months_ahead"`
	DismissClasses bool                         `mapstructure:"dismiss_classes"`
}

// NotificationConfig covers the monthly progress report.
type NotificationConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	// MonthlyLimits keys are high-level category slugs.
	MonthlyLimits map[string]float64 `mapstructure:"monthly_limits"`
	// PersonalAccounts routes variable expenses of an account to a personal bucket.
	PersonalAccounts map[string]string `mapstructure:"personal_accounts"`
}

// TelegramConfig holds Bot API credentials.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RetryConfig bounds retries of external calls.
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Directory string `mapstructure:"directory"`
	MaxRows   int    `mapstructure:"max_rows"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HOUSEFIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applySourceDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "housefin")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Asia/Jerusalem")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x686f7573))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("classifier.enabled", false)
	v.SetDefault("classifier.timeout", "30s")
	v.SetDefault("classifier.feature_columns", []string{"normalized", "type", "weekday", "month", "day", "charged_amount"})
	v.SetDefault("classifier.months_ahead", 1)
	v.SetDefault("classifier.dismiss_classes", true)

	v.SetDefault("notification.telegram.enabled", false)
	v.SetDefault("notification.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notification.telegram.timeout", "30s")
	v.SetDefault("notification.monthly_limits", map[string]float64{
		"groceries":       2600,
		"transportation":  850,
		"fixed":           13000,
		"variable_noam":   2000,
		"variable_eden":   2500,
		"variable_mutual": 1000,
	})
	v.SetDefault("notification.personal_accounts", map[string]string{
		"1029": "variable_noam",
		"5094": "variable_eden",
	})

	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.delay", "20s")

	v.SetDefault("export.directory", "exports")
	v.SetDefault("export.max_rows", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.apply_schema", false)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// DefaultLookbackDays is the scrape window start offset when no start date is given.
func DefaultLookbackDays(kind SourceKind) int {
	if kind == SourceBank {
		return 30
	}
	return 31
}

func (c *Config) applySourceDefaults() {
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Kind = SourceKind(strings.ToLower(strings.TrimSpace(string(src.Kind))))
		if src.Months == 0 {
			src.Months = 1
		}
		if src.LookbackDays == 0 {
			src.LookbackDays = DefaultLookbackDays(src.Kind)
		}
		if src.Timeout <= 0 {
			src.Timeout = 5 * time.Minute
		}
		// Bank scrapers emit no stable transaction identifier.
		if src.Kind == SourceBank {
			src.DeriveID = true
		}
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxRows <= 0 {
		return fmt.Errorf("export.max_rows must be greater than zero")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay cannot be negative")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d].name is required", i)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("sources[%d]: duplicate source name %q", i, src.Name)
		}
		seen[src.Name] = struct{}{}
		switch src.Kind {
		case SourceCreditCard, SourceBank:
		default:
			return fmt.Errorf("sources[%d].kind %q must be %s or %s", i, src.Kind, SourceCreditCard, SourceBank)
		}
		if src.Command == "" {
			return fmt.Errorf("sources[%d].command is required", i)
		}
		if src.Months < 1 {
			return fmt.Errorf("sources[%d].months must be at least 1", i)
		}
	}

	if c.Classifier.Enabled {
		if c.Classifier.Endpoint == "" {
			return fmt.Errorf("classifier.endpoint is required when the classifier is enabled")
		}
		if len(c.Classifier.FeatureColumns) == 0 {
			return fmt.Errorf("classifier.feature_columns must not be empty")
		}
		if c.Classifier.MonthsAhead < 0 {
			return fmt.Errorf("classifier.months_ahead cannot be negative")
		}
	}

	if c.Notification.Telegram.Enabled {
		if c.Notification.Telegram.BotToken == "" {
			return fmt.Errorf("notification.telegram.bot_token is required")
		}
		if c.Notification.Telegram.ChatID == "" {
			return fmt.Errorf("notification.telegram.chat_id is required")
		}
	}
	for slug, limit := range c.Notification.MonthlyLimits {
		if limit <= 0 {
			return fmt.Errorf("notification.monthly_limits.%s must be greater than zero", slug)
		}
	}
	return nil
}

// Source returns the named source.
func (c *Config) Source(name string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return SourceConfig{}, false
}

// Location returns the configured timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveMaxRows returns either the CLI override or config default.
func (c *Config) ResolveMaxRows(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxRows
}
