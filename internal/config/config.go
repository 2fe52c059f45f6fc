package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. ALLOC_SERVER_PORT
const EnvPrefix = "ALLOC"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Engine    EngineConfig    `yaml:"engine" envconfig:"ENGINE"`
	Session   SessionConfig   `yaml:"session" envconfig:"SESSION"`
	Upload    UploadConfig    `yaml:"upload" envconfig:"UPLOAD"`
	Export    ExportConfig    `yaml:"export" envconfig:"EXPORT"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"60s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"false"`
}

// EngineConfig tunes ingestion, normalization and revision
type EngineConfig struct {
	SchemaProfile     string  `yaml:"schema_profile" envconfig:"SCHEMA_PROFILE" default:"auto"`
	NumericThreshold  float64 `yaml:"numeric_threshold" envconfig:"NUMERIC_THRESHOLD" default:"0.5"`
	RequireFilter     bool    `yaml:"require_filter" envconfig:"REQUIRE_FILTER" default:"false"`
	RejectZeroPercent bool    `yaml:"reject_zero_percent" envconfig:"REJECT_ZERO_PERCENT" default:"true"`
	RevisedSuffix     string  `yaml:"revised_suffix" envconfig:"REVISED_SUFFIX"`
	StatusColumn      string  `yaml:"status_column" envconfig:"STATUS_COLUMN" default:"STATUS"`
	MaxRows           int     `yaml:"max_rows" envconfig:"MAX_ROWS" default:"200000"`
	MaxColumns        int     `yaml:"max_columns" envconfig:"MAX_COLUMNS" default:"512"`
	PreviewRows       int     `yaml:"preview_rows" envconfig:"PREVIEW_ROWS" default:"50"`
}

// Suffix returns the derived column suffix, falling back to the profile default
func (e EngineConfig) Suffix() string {
	if e.RevisedSuffix != "" {
		return e.RevisedSuffix
	}
	if e.SchemaProfile == ProfileFixed {
		return SuffixNew
	}
	return SuffixRevised
}

// SessionConfig bounds the in-memory session store
type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl" envconfig:"TTL" default:"30m"`
	Max             int           `yaml:"max" envconfig:"MAX" default:"1000"`
	JanitorInterval time.Duration `yaml:"janitor_interval" envconfig:"JANITOR_INTERVAL" default:"1m"`
}

// UploadConfig contains upload limits
type UploadConfig struct {
	MaxBytes          int64    `yaml:"max_bytes" envconfig:"MAX_BYTES" default:"10485760"`
	AllowedExtensions []string `yaml:"allowed_extensions" envconfig:"ALLOWED_EXTENSIONS" default:".csv,.txt,.tsv,.xlsx,.xlsm,.xls"`
}

// ExportConfig contains download settings
type ExportConfig struct {
	CSVBOM        bool   `yaml:"csv_bom" envconfig:"CSV_BOM" default:"false"`
	DefaultFormat string `yaml:"default_format" envconfig:"DEFAULT_FORMAT" default:"csv"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
	WriteWait       time.Duration `yaml:"write_wait" envconfig:"WRITE_WAIT" default:"10s"`
	MaxMessageSize  int64         `yaml:"max_message_size" envconfig:"MAX_MESSAGE_SIZE" default:"65536"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName     string `yaml:"service_name" envconfig:"SERVICE_NAME" default:"allocator"`
	Environment     string `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	TracingExporter string `yaml:"tracing_exporter" envconfig:"TRACING_EXPORTER" default:"none"`
	MetricsExporter string `yaml:"metrics_exporter" envconfig:"METRICS_EXPORTER" default:"prometheus"`
}

// Load loads configuration from environment variables and an optional YAML file
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs overlays file values onto the env config wherever the env config
// still holds the default, so an explicitly set variable always wins.
func mergeConfigs(fileConfig, envConfig Config) Config {
	defaults := Default()
	mergeValue(reflect.ValueOf(&envConfig).Elem(), reflect.ValueOf(fileConfig), reflect.ValueOf(*defaults))
	return envConfig
}

func mergeValue(dst, file, def reflect.Value) {
	if dst.Kind() == reflect.Struct {
		for i := 0; i < dst.NumField(); i++ {
			mergeValue(dst.Field(i), file.Field(i), def.Field(i))
		}
		return
	}
	if file.IsZero() {
		return
	}
	if reflect.DeepEqual(dst.Interface(), def.Interface()) {
		dst.Set(file)
	}
}

// validate rejects values the server cannot run with and normalizes the rest
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch c.Engine.SchemaProfile {
	case ProfileAuto, ProfileFixed:
	default:
		return fmt.Errorf("unknown schema profile %q", c.Engine.SchemaProfile)
	}
	if c.Engine.NumericThreshold < 0 || c.Engine.NumericThreshold >= 1 {
		return fmt.Errorf("numeric threshold must be in [0,1), got %v", c.Engine.NumericThreshold)
	}
	if c.Engine.RevisedSuffix != "" && !strings.HasPrefix(c.Engine.RevisedSuffix, "_") {
		return fmt.Errorf("revised suffix must start with an underscore, got %q", c.Engine.RevisedSuffix)
	}
	if strings.TrimSpace(c.Engine.StatusColumn) == "" {
		return fmt.Errorf("status column must not be empty")
	}
	if c.Engine.MaxRows <= 0 || c.Engine.MaxColumns <= 0 {
		return fmt.Errorf("engine row and column limits must be positive")
	}
	if c.Engine.PreviewRows < 0 {
		return fmt.Errorf("preview rows must not be negative")
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if c.Session.Max <= 0 {
		return fmt.Errorf("session max must be positive")
	}
	if c.Session.JanitorInterval <= 0 {
		return fmt.Errorf("session janitor interval must be positive")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}

	switch c.Export.DefaultFormat {
	case FormatCSV, FormatXLSX:
	default:
		return fmt.Errorf("unknown export format %q", c.Export.DefaultFormat)
	}

	// JSON is the only supported log format
	c.Logging.Format = "json"
	switch c.Logging.Output {
	case "console", "stderr", "file", "both":
	default:
		c.Logging.Output = "console"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// getConfigFilePath returns ALLOC_CONFIG_FILE or the first config file found in the usual places
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns the configuration produced by the default tags
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Engine: EngineConfig{
			SchemaProfile:     ProfileAuto,
			NumericThreshold:  0.5,
			RejectZeroPercent: true,
			StatusColumn:      "STATUS",
			MaxRows:           200000,
			MaxColumns:        512,
			PreviewRows:       50,
		},
		Session: SessionConfig{
			TTL:             30 * time.Minute,
			Max:             1000,
			JanitorInterval: time.Minute,
		},
		Upload: UploadConfig{
			MaxBytes:          10 << 20,
			AllowedExtensions: []string{".csv", ".txt", ".tsv", ".xlsx", ".xlsm", ".xls"},
		},
		Export: ExportConfig{
			DefaultFormat: FormatCSV,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
			MaxMessageSize:  64 << 10,
		},
		Telemetry: TelemetryConfig{
			ServiceName:     AppName,
			Environment:     "development",
			TracingExporter: "none",
			MetricsExporter: "prometheus",
		},
	}
}
