// Package config provides configuration management for the lectern CLI.
// It supports loading configuration from a YAML file and environment
// variables, with validation of the merged result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultCallTimeout        = 5 * time.Minute
	DefaultOutputFormat       = OutputFormatText
	DefaultConfigDir          = ".lectern"
	DefaultConfigFile         = "config.yaml"
	DefaultSpoolDirName       = "spool"
	DefaultOutputLanguage     = "English"
	DefaultSearchTopK         = 5
	DefaultSearchMinScore     = 0.30
	DefaultChapterConcurrency = 4
)

// SupportedLanguages are the output languages offered by default. Any other
// language name is accepted as free-form and passed through to the
// generation service.
var SupportedLanguages = []string{"English", "Malayalam", "Hindi", "Tamil", "Kannada"}

// ServiceConfig holds the endpoint settings for one external service.
type ServiceConfig struct {
	// BaseURL is the service endpoint, e.g. "https://api.example.com/v1".
	BaseURL string `yaml:"base_url"`

	// Model names the model the service should use.
	Model string `yaml:"model"`

	// APIKeyEnv optionally names an environment variable that overrides the
	// keyring-stored API key.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

// SilenceConfig controls the optional silence-removal preprocessing stage.
type SilenceConfig struct {
	// Enabled switches silence removal on.
	Enabled bool `yaml:"enabled"`

	// Threshold is the amplitude (0..1) below which audio counts as silent.
	Threshold float64 `yaml:"threshold"`

	// MinDuration is the shortest silent interval that gets excised. Shorter
	// pauses stay in place so words are not chopped mid-breath.
	MinDuration time.Duration `yaml:"-"`
}

// ChapterConfig holds the chapter segmentation thresholds.
type ChapterConfig struct {
	// GapThreshold is the inter-segment silence that opens a new chapter.
	GapThreshold time.Duration `yaml:"-"`

	// MaxDuration bounds a single chapter in continuously-spoken lectures.
	MaxDuration time.Duration `yaml:"-"`

	// MinDuration is the shortest chapter kept standalone; shorter ones merge
	// into the following chapter.
	MinDuration time.Duration `yaml:"-"`
}

// NotesConfig controls note generation.
type NotesConfig struct {
	// Language is the output language for all generated artifacts.
	Language string `yaml:"language"`

	// Kinds is the requested subset of artifact kinds. Empty means all.
	Kinds []string `yaml:"kinds,omitempty"`

	// ELI5 additionally generates a simplified rewrite of each summary.
	ELI5 bool `yaml:"eli5"`

	// ChapterConcurrency bounds concurrent per-chapter generation calls.
	ChapterConcurrency int `yaml:"chapter_concurrency"`
}

// SearchConfig controls query-time retrieval.
type SearchConfig struct {
	// TopK is the default number of results returned.
	TopK int `yaml:"top_k"`

	// MinScore is the similarity floor below which matches are dropped.
	MinScore float64 `yaml:"min_score"`
}

// Lecture record store drivers.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// StoreConfig selects the lecture record store backend.
type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`

	// DSN is the Postgres connection string when Driver is "postgres".
	DSN string `yaml:"dsn,omitempty"`

	// DataDir is where the memory store snapshots records and where
	// preprocessed audio is spooled for retries.
	DataDir string `yaml:"data_dir"`
}

// RedisConfig holds the ingest queue connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// WorkerConfig controls the async ingest worker pool.
type WorkerConfig struct {
	// Count is the number of concurrent pipeline workers.
	Count int `yaml:"count"`

	// QueueName is the Redis queue consumed by the workers.
	QueueName string `yaml:"queue_name"`

	// PollInterval is how often an idle worker polls the queue.
	PollInterval time.Duration `yaml:"-"`

	// ShutdownTimeout bounds the drain on stop.
	ShutdownTimeout time.Duration `yaml:"-"`
}

// RetryConfig bounds retries of transient external-service failures.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"-"`
	MaxBackoff     time.Duration `yaml:"-"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// Backoff returns the delay before the given retry attempt (0-based).
func (r RetryConfig) Backoff(attempt int) time.Duration {
	backoff := r.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * r.BackoffFactor)
		if backoff > r.MaxBackoff {
			return r.MaxBackoff
		}
	}
	return backoff
}

// Config holds the lectern configuration.
type Config struct {
	Transcribe ServiceConfig `yaml:"transcribe"`
	Generate   ServiceConfig `yaml:"generate"`
	Embed      ServiceConfig `yaml:"embed"`

	Silence  SilenceConfig `yaml:"silence"`
	Chapters ChapterConfig `yaml:"chapters"`
	Notes    NotesConfig   `yaml:"notes"`
	Search   SearchConfig  `yaml:"search"`
	Store    StoreConfig   `yaml:"store"`
	Redis    RedisConfig   `yaml:"redis"`
	Worker   WorkerConfig  `yaml:"worker"`
	Retry    RetryConfig   `yaml:"retry"`

	// CallTimeout bounds each external service call.
	CallTimeout time.Duration `yaml:"-"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// LogJSON switches log output to JSON.
	LogJSON bool `yaml:"log_json,omitempty"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, DefaultConfigDir, "data")

	return &Config{
		Transcribe: ServiceConfig{Model: "whisper-1"},
		Generate:   ServiceConfig{Model: "gemini-2.5-flash"},
		Embed:      ServiceConfig{Model: "all-MiniLM-L6-v2"},
		Silence: SilenceConfig{
			Enabled:     true,
			Threshold:   0.02,
			MinDuration: 2 * time.Second,
		},
		Chapters: ChapterConfig{
			GapThreshold: 5 * time.Second,
			MaxDuration:  10 * time.Minute,
			MinDuration:  45 * time.Second,
		},
		Notes: NotesConfig{
			Language:           DefaultOutputLanguage,
			ChapterConcurrency: DefaultChapterConcurrency,
		},
		Search: SearchConfig{
			TopK:     DefaultSearchTopK,
			MinScore: DefaultSearchMinScore,
		},
		Store: StoreConfig{
			Driver:  StoreDriverMemory,
			DataDir: dataDir,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Worker: WorkerConfig{
			Count:           2,
			QueueName:       "lectern:ingest",
			PollInterval:    time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Minute,
			BackoffFactor:  2.0,
		},
		CallTimeout:  DefaultCallTimeout,
		OutputFormat: DefaultOutputFormat,
	}
}

// SpoolDir returns the directory used to spool preprocessed audio between
// pipeline attempts.
func (c *Config) SpoolDir() string {
	return filepath.Join(c.Store.DataDir, DefaultSpoolDirName)
}

// ConfigDir returns the configuration directory path.
// Uses $LECTERN_CONFIG_DIR if set, otherwise ~/.lectern
func ConfigDir() (string, error) {
	if dir := os.Getenv("LECTERN_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.lectern/config.yaml or $LECTERN_CONFIG_DIR/config.yaml)
// 3. Environment variables (LECTERN_*)
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// fileConfig mirrors Config with durations as strings for YAML round-tripping.
type fileConfig struct {
	Transcribe ServiceConfig `yaml:"transcribe"`
	Generate   ServiceConfig `yaml:"generate"`
	Embed      ServiceConfig `yaml:"embed"`

	Silence struct {
		Enabled     *bool   `yaml:"enabled"`
		Threshold   float64 `yaml:"threshold"`
		MinDuration string  `yaml:"min_duration"`
	} `yaml:"silence"`

	Chapters struct {
		GapThreshold string `yaml:"gap_threshold"`
		MaxDuration  string `yaml:"max_duration"`
		MinDuration  string `yaml:"min_duration"`
	} `yaml:"chapters"`

	Notes  NotesConfig  `yaml:"notes"`
	Search SearchConfig `yaml:"search"`
	Store  StoreConfig  `yaml:"store"`
	Redis  RedisConfig  `yaml:"redis"`

	Worker struct {
		Count           int    `yaml:"count"`
		QueueName       string `yaml:"queue_name"`
		PollInterval    string `yaml:"poll_interval"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"worker"`

	Retry struct {
		MaxRetries     int     `yaml:"max_retries"`
		InitialBackoff string  `yaml:"initial_backoff"`
		MaxBackoff     string  `yaml:"max_backoff"`
		BackoffFactor  float64 `yaml:"backoff_factor"`
	} `yaml:"retry"`

	CallTimeout  string       `yaml:"call_timeout"`
	OutputFormat OutputFormat `yaml:"output_format"`
	Debug        bool         `yaml:"debug"`
	LogJSON      bool         `yaml:"log_json"`
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	overlayService(&cfg.Transcribe, fc.Transcribe)
	overlayService(&cfg.Generate, fc.Generate)
	overlayService(&cfg.Embed, fc.Embed)

	if fc.Silence.Enabled != nil {
		cfg.Silence.Enabled = *fc.Silence.Enabled
	}
	if fc.Silence.Threshold > 0 {
		cfg.Silence.Threshold = fc.Silence.Threshold
	}
	if err := overlayDuration(&cfg.Silence.MinDuration, fc.Silence.MinDuration, "silence.min_duration"); err != nil {
		return err
	}

	if err := overlayDuration(&cfg.Chapters.GapThreshold, fc.Chapters.GapThreshold, "chapters.gap_threshold"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.Chapters.MaxDuration, fc.Chapters.MaxDuration, "chapters.max_duration"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.Chapters.MinDuration, fc.Chapters.MinDuration, "chapters.min_duration"); err != nil {
		return err
	}

	if fc.Notes.Language != "" {
		cfg.Notes.Language = fc.Notes.Language
	}
	if len(fc.Notes.Kinds) > 0 {
		cfg.Notes.Kinds = fc.Notes.Kinds
	}
	cfg.Notes.ELI5 = fc.Notes.ELI5
	if fc.Notes.ChapterConcurrency > 0 {
		cfg.Notes.ChapterConcurrency = fc.Notes.ChapterConcurrency
	}

	if fc.Search.TopK > 0 {
		cfg.Search.TopK = fc.Search.TopK
	}
	if fc.Search.MinScore > 0 {
		cfg.Search.MinScore = fc.Search.MinScore
	}

	if fc.Store.Driver != "" {
		cfg.Store.Driver = fc.Store.Driver
	}
	if fc.Store.DSN != "" {
		cfg.Store.DSN = fc.Store.DSN
	}
	if fc.Store.DataDir != "" {
		cfg.Store.DataDir = fc.Store.DataDir
	}

	if fc.Redis.Addr != "" {
		cfg.Redis.Addr = fc.Redis.Addr
	}
	if fc.Redis.Password != "" {
		cfg.Redis.Password = fc.Redis.Password
	}
	if fc.Redis.DB != 0 {
		cfg.Redis.DB = fc.Redis.DB
	}

	if fc.Worker.Count > 0 {
		cfg.Worker.Count = fc.Worker.Count
	}
	if fc.Worker.QueueName != "" {
		cfg.Worker.QueueName = fc.Worker.QueueName
	}
	if err := overlayDuration(&cfg.Worker.PollInterval, fc.Worker.PollInterval, "worker.poll_interval"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.Worker.ShutdownTimeout, fc.Worker.ShutdownTimeout, "worker.shutdown_timeout"); err != nil {
		return err
	}

	if fc.Retry.MaxRetries > 0 {
		cfg.Retry.MaxRetries = fc.Retry.MaxRetries
	}
	if err := overlayDuration(&cfg.Retry.InitialBackoff, fc.Retry.InitialBackoff, "retry.initial_backoff"); err != nil {
		return err
	}
	if err := overlayDuration(&cfg.Retry.MaxBackoff, fc.Retry.MaxBackoff, "retry.max_backoff"); err != nil {
		return err
	}
	if fc.Retry.BackoffFactor > 0 {
		cfg.Retry.BackoffFactor = fc.Retry.BackoffFactor
	}

	if err := overlayDuration(&cfg.CallTimeout, fc.CallTimeout, "call_timeout"); err != nil {
		return err
	}
	if fc.OutputFormat != "" {
		cfg.OutputFormat = fc.OutputFormat
	}
	cfg.Debug = fc.Debug
	cfg.LogJSON = fc.LogJSON

	return nil
}

func overlayService(dst *ServiceConfig, src ServiceConfig) {
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.APIKeyEnv != "" {
		dst.APIKeyEnv = src.APIKeyEnv
	}
}

func overlayDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("LECTERN_TRANSCRIBE_URL"); v != "" {
		cfg.Transcribe.BaseURL = v
	}
	if v := os.Getenv("LECTERN_GENERATE_URL"); v != "" {
		cfg.Generate.BaseURL = v
	}
	if v := os.Getenv("LECTERN_EMBED_URL"); v != "" {
		cfg.Embed.BaseURL = v
	}

	if v := os.Getenv("LECTERN_LANGUAGE"); v != "" {
		cfg.Notes.Language = v
	}
	if v := os.Getenv("LECTERN_ELI5"); v == "true" || v == "1" {
		cfg.Notes.ELI5 = true
	}

	if v := os.Getenv("LECTERN_SILENCE_REMOVAL"); v == "false" || v == "0" {
		cfg.Silence.Enabled = false
	}

	if v := os.Getenv("LECTERN_SEARCH_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			cfg.Search.TopK = k
		}
	}

	if v := os.Getenv("LECTERN_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("LECTERN_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
	}
	if v := os.Getenv("LECTERN_DATA_DIR"); v != "" {
		cfg.Store.DataDir = v
	}

	if v := os.Getenv("LECTERN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	if v := os.Getenv("LECTERN_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CallTimeout = d
		}
	}

	if v := os.Getenv("LECTERN_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("LECTERN_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
}

// MediaExtensions are the accepted input media extensions.
var MediaExtensions = []string{".mp3", ".wav", ".mp4", ".m4a", ".mpeg"}

// IsSupportedMedia reports whether the filename carries an accepted extension.
func IsSupportedMedia(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range MediaExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}

	if c.Silence.Threshold < 0 || c.Silence.Threshold > 1 {
		return fmt.Errorf("silence.threshold must be within [0, 1]")
	}
	if c.Silence.MinDuration <= 0 {
		return fmt.Errorf("silence.min_duration must be positive")
	}

	if c.Chapters.GapThreshold <= 0 {
		return fmt.Errorf("chapters.gap_threshold must be positive")
	}
	if c.Chapters.MaxDuration <= c.Chapters.MinDuration {
		return fmt.Errorf("chapters.max_duration must exceed chapters.min_duration")
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive")
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return fmt.Errorf("search.min_score must be within [0, 1]")
	}

	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver: %q", c.Store.Driver)
	}

	if c.Notes.ChapterConcurrency <= 0 {
		return fmt.Errorf("notes.chapter_concurrency must be positive")
	}

	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}
