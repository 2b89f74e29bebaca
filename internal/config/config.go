// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Remote() RemoteConfig
	Task() TaskConfig
	Browser() BrowserConfig
	Captcha() CaptchaConfig
	Notify() NotifyConfig
	Schedule() ScheduleConfig
	Database() DatabaseConfig
	Status() StatusConfig

	// Task Setters, used by CLI flag overrides.
	SetTaskDebug(bool)
	SetTaskLang(string)
}

// Config holds the entire application configuration.
// Fields are exported for viper.Unmarshal; components read them through the Interface getters.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	RemoteCfg   RemoteConfig   `mapstructure:"remote" yaml:"remote"`
	TaskCfg     TaskConfig     `mapstructure:"task" yaml:"task"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	CaptchaCfg  CaptchaConfig  `mapstructure:"captcha" yaml:"captcha"`
	NotifyCfg   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
	ScheduleCfg ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	StatusCfg   StatusConfig   `mapstructure:"status" yaml:"status"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Remote() RemoteConfig     { return c.RemoteCfg }
func (c *Config) Task() TaskConfig         { return c.TaskCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Captcha() CaptchaConfig   { return c.CaptchaCfg }
func (c *Config) Notify() NotifyConfig     { return c.NotifyCfg }
func (c *Config) Schedule() ScheduleConfig { return c.ScheduleCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Status() StatusConfig     { return c.StatusCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetTaskDebug(b bool)  { c.TaskCfg.Debug = b }
func (c *Config) SetTaskLang(l string) { c.TaskCfg.Lang = l }

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

// RemoteConfig points at the controller serving task configuration.
type RemoteConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Key     string        `mapstructure:"key" yaml:"-"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// RateLimit caps requests per second towards the controller.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// TaskConfig identifies the task this process watches.
type TaskConfig struct {
	ID    string `mapstructure:"id" yaml:"id"`
	Lang  string `mapstructure:"lang" yaml:"lang"`
	Debug bool   `mapstructure:"debug" yaml:"debug"`
}

// BrowserConfig holds settings for the browser sessions.
type BrowserConfig struct {
	Args              []string      `mapstructure:"args" yaml:"args"`
	UserAgents        []string      `mapstructure:"user_agents" yaml:"user_agents"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// SettleScale multiplies every fixed settle delay in the workflow. Tests set it to 0.
	SettleScale    float64  `mapstructure:"settle_scale" yaml:"settle_scale"`
	DiagnosticsDir string   `mapstructure:"diagnostics_dir" yaml:"diagnostics_dir"`
	IPCheckURLs    []string `mapstructure:"ip_check_urls" yaml:"ip_check_urls"`
}

// CaptchaConfig selects and tunes the challenge resolution strategy.
type CaptchaConfig struct {
	// Strategy is one of manual, ocr, script, 2captcha, api, gemini.
	Strategy     string        `mapstructure:"strategy" yaml:"strategy"`
	MaxAttempts  int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	SubmitRounds int           `mapstructure:"submit_rounds" yaml:"submit_rounds"`
	PollRounds   int           `mapstructure:"poll_rounds" yaml:"poll_rounds"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ManualWait   time.Duration `mapstructure:"manual_wait" yaml:"manual_wait"`
	APIKey       string        `mapstructure:"api_key" yaml:"-"`
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	// Command is the external recognizer for the ocr and script strategies.
	Command []string      `mapstructure:"command" yaml:"command"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Model   string        `mapstructure:"model" yaml:"model"`
}

// NotifyConfig configures the delivery transports.
type NotifyConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TelegramAPI string        `mapstructure:"telegram_api" yaml:"telegram_api"`
	PushPlusAPI string        `mapstructure:"pushplus_api" yaml:"pushplus_api"`
}

// ScheduleConfig holds the fixed delays of the run policy, in minutes.
type ScheduleConfig struct {
	DefaultDelay int `mapstructure:"default_delay" yaml:"default_delay"`
	FailureDelay int `mapstructure:"failure_delay" yaml:"failure_delay"`
}

// DatabaseConfig holds the run journal connection. An empty URL disables the journal.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// StatusConfig configures the optional status endpoint. An empty address disables it.
type StatusConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	// TokenSecret, when set, requires an HS256 bearer token on /status.
	TokenSecret string `mapstructure:"token_secret" yaml:"token_secret"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "warden")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 20)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Remote --
	// Empty defaults register the keys so environment overrides reach Unmarshal.
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.key", "")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("remote.rate_limit", 2.0)

	// -- Task --
	v.SetDefault("task.id", "")
	v.SetDefault("task.lang", "zh_cn")
	v.SetDefault("task.debug", false)

	// -- Browser --
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.action_timeout", "30s")
	v.SetDefault("browser.settle_scale", 1.0)
	v.SetDefault("browser.diagnostics_dir", ".")
	v.SetDefault("browser.ip_check_urls", []string{"https://api.ip.sb/ip", "https://myip.ipip.net/s"})
	v.SetDefault("browser.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_4_1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	})

	// -- Captcha --
	v.SetDefault("captcha.strategy", "manual")
	v.SetDefault("captcha.max_attempts", 3)
	v.SetDefault("captcha.submit_rounds", 10)
	v.SetDefault("captcha.poll_rounds", 20)
	v.SetDefault("captcha.poll_interval", "5s")
	v.SetDefault("captcha.manual_wait", "5s")
	v.SetDefault("captcha.timeout", "10s")
	v.SetDefault("captcha.model", "gemini-2.5-flash")
	v.SetDefault("captcha.api_key", "")
	v.SetDefault("captcha.endpoint", "")

	// -- Notify --
	v.SetDefault("notify.timeout", "15s")
	v.SetDefault("notify.telegram_api", "https://api.telegram.org")
	v.SetDefault("notify.pushplus_api", "http://www.pushplus.plus/send")

	// -- Schedule --
	v.SetDefault("schedule.default_delay", 10)
	v.SetDefault("schedule.failure_delay", 5)

	// -- Optional surfaces --
	v.SetDefault("database.url", "")
	v.SetDefault("status.listen", "")
	v.SetDefault("status.token_secret", "")
}

// EnvPrefix is the prefix of every environment override (WARDEN_TASK_ID, ...).
const EnvPrefix = "WARDEN"

var envKeyReplacer = strings.NewReplacer(".", "_")

// BindEnv wires environment overrides into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
}

// Load reads the configuration held by v, expands home-relative paths and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LoggerCfg.LogFile, &c.BrowserCfg.DiagnosticsDir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

var validStrategies = map[string]bool{
	"manual": true, "ocr": true, "script": true, "2captcha": true, "api": true, "gemini": true,
}

// Validate checks the settings a watcher cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.RemoteCfg.URL == "" {
		errs = append(errs, errors.New("remote.url is required"))
	}
	if c.RemoteCfg.Key == "" {
		errs = append(errs, errors.New("remote.key is required"))
	}
	if c.TaskCfg.ID == "" {
		errs = append(errs, errors.New("task.id is required"))
	}
	if err := c.CaptchaCfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ScheduleCfg.DefaultDelay <= 0 {
		errs = append(errs, errors.New("schedule.default_delay must be a positive integer"))
	}
	if c.ScheduleCfg.FailureDelay <= 0 {
		errs = append(errs, errors.New("schedule.failure_delay must be a positive integer"))
	}
	return errors.Join(errs...)
}

// Validate checks the captcha strategy and the settings it depends on.
func (c CaptchaConfig) Validate() error {
	strategy := strings.ToLower(c.Strategy)
	if !validStrategies[strategy] {
		return fmt.Errorf("captcha.strategy %q is not supported", c.Strategy)
	}
	if c.MaxAttempts <= 0 {
		return errors.New("captcha.max_attempts must be a positive integer")
	}
	switch strategy {
	case "2captcha", "gemini":
		if c.APIKey == "" {
			return fmt.Errorf("captcha.api_key is required for the %s strategy", strategy)
		}
	case "api":
		if c.Endpoint == "" {
			return errors.New("captcha.endpoint is required for the api strategy")
		}
	case "script":
		if len(c.Command) == 0 {
			return errors.New("captcha.command is required for the script strategy")
		}
	}
	return nil
}
