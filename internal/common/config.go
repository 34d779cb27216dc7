package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Telegram    TelegramConfig  `toml:"telegram"`
	Account     AccountConfig   `toml:"account"`
	Site        SiteConfig      `toml:"site"`
	Browser     BrowserConfig   `toml:"browser"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Rotation    RotationConfig  `toml:"rotation"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Bot         BotConfig       `toml:"bot"`
}

// TelegramConfig holds the Bot API credentials and polling behaviour
type TelegramConfig struct {
	Token                string  `toml:"token" validate:"required"`
	AdminIDs             []int64 `toml:"admin_ids"`
	PaymentProviderToken string  `toml:"payment_provider_token"` // Empty for Telegram Stars (XTR)
	PollTimeout          int     `toml:"poll_timeout"`           // Long-poll timeout in seconds
	Debug                bool    `toml:"debug"`
}

// AccountConfig holds the remote site account. The password is the initial value only;
// a rotated password persisted in storage takes precedence on startup.
type AccountConfig struct {
	Email    string `toml:"email" validate:"required,email"`
	Password string `toml:"password" validate:"required"`
}

// SiteConfig describes the remote application. Selectors are overridable so a UI change
// can be absorbed without a rebuild.
type SiteConfig struct {
	BaseURL   string            `toml:"base_url" validate:"required,url"`
	Selectors map[string]string `toml:"selectors"` // Locator name -> CSS/XPath override
}

// BrowserConfig holds chromedp allocator settings
type BrowserConfig struct {
	ExecPath   string   `toml:"exec_path"` // Empty = chromedp default lookup
	Headless   bool     `toml:"headless"`
	NoSandbox  bool     `toml:"no_sandbox"`
	UserAgent  string   `toml:"user_agent"`
	WindowW    int      `toml:"window_width"`
	WindowH    int      `toml:"window_height"`
	LaunchWait Duration `toml:"launch_timeout"`  // Startup test bound
	LaunchRate Duration `toml:"launch_interval"` // Minimum spacing between browser launches
}

// PipelineConfig bounds every wait in the automation pipeline
type PipelineConfig struct {
	MaxConcurrency   int      `toml:"max_concurrency" validate:"min=1,max=32"`
	QueueSize        int      `toml:"queue_size" validate:"min=1"`
	TaskTimeout      Duration `toml:"task_timeout"`
	ElementTimeout   Duration `toml:"element_timeout"`    // Wait for a single element to become interactable
	LoginTimeout     Duration `toml:"login_timeout"`      // Wait for URL to leave the login page
	ResultsTimeout   Duration `toml:"results_timeout"`    // Wait for result markers after submitting a prompt
	RowRenderTimeout Duration `toml:"row_render_timeout"` // Wait for rows once a marker appeared
	PollInterval     Duration `toml:"poll_interval"`
	AllowedHosts     []string `toml:"allowed_hosts"` // Video hosting domains accepted as input
}

// RotationConfig bounds the suspended credential-rotation flow
type RotationConfig struct {
	SuspendTimeout Duration `toml:"suspend_timeout"`
	ConfirmTimeout Duration `toml:"confirm_timeout"`
	MinLength      int      `toml:"min_length"`
	MaxLength      int      `toml:"max_length"`
}

type StorageConfig struct {
	Badger         BadgerConfig `toml:"badger"`
	ArtifactsDir   string       `toml:"artifacts_dir"`
	ArtifactMaxAge Duration     `toml:"artifact_max_age"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
	Dir    string   `toml:"dir"`    // Empty = <executable dir>/logs
}

// SchedulerConfig holds cron expressions for housekeeping jobs (seconds field enabled)
type SchedulerConfig struct {
	RotationSweep string `toml:"rotation_sweep"`
	ArtifactSweep string `toml:"artifact_sweep"`
}

// BotConfig holds conversational-layer behaviour
type BotConfig struct {
	MaxPhotos      int     `toml:"max_photos"`      // Per-row screenshots sent per result
	SendReport     bool    `toml:"send_report"`     // Attach PDF report
	SendJSON       bool    `toml:"send_json"`       // Attach results.json
	BroadcastRate  float64 `toml:"broadcast_rate"`  // Messages per second
	MaxPromptChars int     `toml:"max_prompt_chars"`
}

// NewDefaultConfig creates a configuration with default values.
// Timeouts follow the bounds the remote site has needed in practice.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		Site: SiteConfig{
			BaseURL:   "https://videohunt.ai",
			Selectors: map[string]string{},
		},
		Browser: BrowserConfig{
			Headless:   true,
			NoSandbox:  true,
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			WindowW:    1920,
			WindowH:    1080,
			LaunchWait: Duration(30 * time.Second),
			LaunchRate: Duration(2 * time.Second),
		},
		Pipeline: PipelineConfig{
			MaxConcurrency:   2,
			QueueSize:        8,
			TaskTimeout:      Duration(6 * time.Minute),
			ElementTimeout:   Duration(30 * time.Second),
			LoginTimeout:     Duration(30 * time.Second),
			ResultsTimeout:   Duration(120 * time.Second),
			RowRenderTimeout: Duration(30 * time.Second),
			PollInterval:     Duration(500 * time.Millisecond),
			AllowedHosts:     []string{"youtube.com", "youtu.be"},
		},
		Rotation: RotationConfig{
			SuspendTimeout: Duration(10 * time.Minute),
			ConfirmTimeout: Duration(15 * time.Second),
			MinLength:      8,
			MaxLength:      20,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			ArtifactsDir:   "./data/artifacts",
			ArtifactMaxAge: Duration(time.Hour),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Scheduler: SchedulerConfig{
			RotationSweep: "*/30 * * * * *",
			ArtifactSweep: "0 */15 * * * *",
		},
		Bot: BotConfig{
			MaxPhotos:      10,
			SendReport:     true,
			SendJSON:       true,
			BroadcastRate:  20,
			MaxPromptChars: 500,
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> .env -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// .env is optional; values already present in the environment win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		GetLogger().Warn().Err(err).Msg("Failed to load .env file")
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// The unprefixed names are the ones existing deployments already export.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("HUNTBOT_ENV"); env != "" {
		config.Environment = env
	}

	// Telegram
	if token := firstEnv("HUNTBOT_TELEGRAM_TOKEN", "TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if ids := firstEnv("HUNTBOT_ADMIN_IDS", "ADMIN_IDS"); ids != "" {
		config.Telegram.AdminIDs = ParseIDList(ids)
	}
	if providerToken := firstEnv("HUNTBOT_PAYMENT_PROVIDER_TOKEN", "PAYMENT_PROVIDER_TOKEN"); providerToken != "" {
		config.Telegram.PaymentProviderToken = providerToken
	}

	// Account
	if email := firstEnv("HUNTBOT_ACCOUNT_EMAIL", "ACCOUNT_EMAIL"); email != "" {
		config.Account.Email = email
	}
	if password := firstEnv("HUNTBOT_ACCOUNT_PASSWORD", "ACCOUNT_PASSWORD"); password != "" {
		config.Account.Password = password
	}

	// Site
	if baseURL := os.Getenv("HUNTBOT_SITE_BASE_URL"); baseURL != "" {
		config.Site.BaseURL = baseURL
	}

	// Browser
	if execPath := firstEnv("HUNTBOT_BROWSER_EXEC_PATH", "CHROME_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}
	if headless := os.Getenv("HUNTBOT_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}

	// Pipeline
	if concurrency := os.Getenv("HUNTBOT_PIPELINE_MAX_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Pipeline.MaxConcurrency = c
		}
	}
	if taskTimeout := os.Getenv("HUNTBOT_PIPELINE_TASK_TIMEOUT"); taskTimeout != "" {
		if d, err := time.ParseDuration(taskTimeout); err == nil {
			config.Pipeline.TaskTimeout = Duration(d)
		}
	}
	if resultsTimeout := os.Getenv("HUNTBOT_PIPELINE_RESULTS_TIMEOUT"); resultsTimeout != "" {
		if d, err := time.ParseDuration(resultsTimeout); err == nil {
			config.Pipeline.ResultsTimeout = Duration(d)
		}
	}

	// Storage
	if badgerPath := os.Getenv("HUNTBOT_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if artifactsDir := os.Getenv("HUNTBOT_ARTIFACTS_DIR"); artifactsDir != "" {
		config.Storage.ArtifactsDir = artifactsDir
	}

	// Logging
	if level := os.Getenv("HUNTBOT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("HUNTBOT_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// ParseIDList parses a comma-separated list of numeric user IDs, skipping invalid entries
func ParseIDList(s string) []int64 {
	ids := []int64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Validate checks required fields and cron expressions
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Rotation.MinLength <= 0 || c.Rotation.MaxLength < c.Rotation.MinLength {
		return fmt.Errorf("invalid rotation password length bounds: %d-%d", c.Rotation.MinLength, c.Rotation.MaxLength)
	}

	for name, schedule := range map[string]string{
		"rotation_sweep": c.Scheduler.RotationSweep,
		"artifact_sweep": c.Scheduler.ArtifactSweep,
	} {
		if err := ValidateSchedule(schedule); err != nil {
			return fmt.Errorf("invalid scheduler.%s: %w", name, err)
		}
	}

	return nil
}

// ValidateSchedule validates a cron expression with a seconds field
func ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// IsAdmin reports whether the Telegram user ID is configured as an administrator
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}
