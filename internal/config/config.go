// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Mode selects which date-shift rule and which crosscheck database apply.
type Mode string

const (
	// ModeTesting shifts transaction dates one month into the past so
	// rehearsal runs never write into a live production period.
	ModeTesting Mode = "testing"
	// ModeReal submits attendance dates unchanged.
	ModeReal Mode = "real"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	URLs        URLConfig         `mapstructure:"urls" yaml:"urls"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Automation  AutomationConfig  `mapstructure:"automation" yaml:"automation"`
	Staging     StagingConfig     `mapstructure:"staging" yaml:"staging"`
	Crosscheck  CrosscheckConfig  `mapstructure:"crosscheck" yaml:"crosscheck"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// URLConfig carries the vendor system endpoints. TaskRegister and SetLocation
// are matched by substring against the browser's current URL, so the path
// fragments must stay bit-exact with the vendor form names.
type URLConfig struct {
	Login        string `mapstructure:"login" yaml:"login"`
	TaskRegister string `mapstructure:"task_register" yaml:"task_register"`
	Landing      string `mapstructure:"landing" yaml:"landing"`
}

// CredentialsConfig holds the vendor system login. Usually supplied through
// the environment (VENUS_CREDENTIALS_USERNAME / VENUS_CREDENTIALS_PASSWORD).
type CredentialsConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// BrowserConfig tunes the Chrome instance. The timeouts are deliberately
// high: the target server is a legacy ASP.NET app with slow full-page
// postbacks and is prone to renderer timeouts at ordinary settings.
type BrowserConfig struct {
	Headless        bool          `mapstructure:"headless" yaml:"headless"`
	WindowWidth     int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight    int           `mapstructure:"window_height" yaml:"window_height"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	ScriptTimeout   time.Duration `mapstructure:"script_timeout" yaml:"script_timeout"`
	NavRetries      int           `mapstructure:"nav_retries" yaml:"nav_retries"`
	KeepaliveEvery  time.Duration `mapstructure:"keepalive_every" yaml:"keepalive_every"`
}

// AutomationConfig governs the batch flow.
type AutomationConfig struct {
	Mode       Mode          `mapstructure:"mode" yaml:"mode"`
	EntryDelay time.Duration `mapstructure:"entry_delay" yaml:"entry_delay"`
	SettleTime time.Duration `mapstructure:"settle_time" yaml:"settle_time"`
}

// StagingConfig selects the staged-attendance source. When APIURL is set the
// grouped JSON endpoint is used; otherwise DatabaseURL must point at the
// relational staging store.
type StagingConfig struct {
	APIURL      string        `mapstructure:"api_url" yaml:"api_url"`
	DatabaseURL string        `mapstructure:"database_url" yaml:"database_url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CrosscheckConfig configures post-batch validation against the ERP
// transaction table.
type CrosscheckConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	DatabaseURL    string  `mapstructure:"database_url" yaml:"database_url"`
	EmployeePrefix string  `mapstructure:"employee_prefix" yaml:"employee_prefix"`
	Tolerance      float64 `mapstructure:"tolerance" yaml:"tolerance"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "venus-autofill")
	v.SetDefault("logger.log_file", "venus-autofill.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- URLs --
	v.SetDefault("urls.login", "http://millwarep3:8004/")
	v.SetDefault("urls.task_register", "http://millwarep3:8004/en/PR/trx/frmPrTrxTaskRegisterDet.aspx")
	v.SetDefault("urls.landing", "http://millwarep3:8004/en/main.aspx")

	// -- Credentials --
	// Registered empty: viper only resolves VENUS_* environment overrides
	// for keys it already knows about.
	v.SetDefault("credentials.username", "")
	v.SetDefault("credentials.password", "")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 720)
	v.SetDefault("browser.page_load_timeout", "60s")
	v.SetDefault("browser.script_timeout", "45s")
	v.SetDefault("browser.nav_retries", 5)
	v.SetDefault("browser.keepalive_every", "10m")

	// -- Automation --
	v.SetDefault("automation.mode", "testing")
	v.SetDefault("automation.entry_delay", "2500ms")
	v.SetDefault("automation.settle_time", "2s")

	// -- Staging --
	v.SetDefault("staging.api_url", "")
	v.SetDefault("staging.database_url", "")
	v.SetDefault("staging.timeout", "30s")

	// -- Crosscheck --
	v.SetDefault("crosscheck.enabled", true)
	v.SetDefault("crosscheck.database_url", "")
	v.SetDefault("crosscheck.employee_prefix", "POM")
	v.SetDefault("crosscheck.tolerance", 0.1)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults, but fail loudly if it ever does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads the configuration from an optional file, a local .env, and the
// environment (VENUS_ prefix), in ascending precedence over the defaults.
func Load(cfgFile string) (*Config, error) {
	// A .env next to the binary is a convenience for credentials; absence is
	// not an error.
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".venus-autofill"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("VENUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot possibly drive a batch.
func (c *Config) Validate() error {
	if c.URLs.Login == "" {
		return fmt.Errorf("urls.login must be set")
	}
	if c.URLs.TaskRegister == "" {
		return fmt.Errorf("urls.task_register must be set")
	}
	if c.Credentials.Username == "" || c.Credentials.Password == "" {
		return fmt.Errorf("credentials.username and credentials.password must be set")
	}
	if c.Browser.PageLoadTimeout <= 0 {
		return fmt.Errorf("browser.page_load_timeout must be positive")
	}
	if c.Browser.ScriptTimeout <= 0 {
		return fmt.Errorf("browser.script_timeout must be positive")
	}
	if c.Browser.NavRetries <= 0 {
		return fmt.Errorf("browser.nav_retries must be a positive integer")
	}
	switch c.Automation.Mode {
	case ModeTesting, ModeReal:
	default:
		return fmt.Errorf("automation.mode must be %q or %q, got %q", ModeTesting, ModeReal, c.Automation.Mode)
	}
	if c.Staging.APIURL == "" && c.Staging.DatabaseURL == "" {
		return fmt.Errorf("either staging.api_url or staging.database_url must be set")
	}
	if c.Crosscheck.Enabled && c.Crosscheck.DatabaseURL == "" {
		return fmt.Errorf("crosscheck.database_url must be set when crosscheck is enabled")
	}
	if c.Crosscheck.Tolerance < 0 {
		return fmt.Errorf("crosscheck.tolerance must not be negative")
	}
	return nil
}
