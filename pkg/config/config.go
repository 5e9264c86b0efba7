package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Security    SecurityConfig    `yaml:"security" json:"security"`
	Pipeline    PipelineConfig    `yaml:"pipeline" json:"pipeline"`
	Classifier  ClassifierConfig  `yaml:"classifier" json:"classifier"`
	Bus         BusConfig         `yaml:"bus" json:"bus"`
	Catalog     CatalogConfig     `yaml:"catalog" json:"catalog"`
	ObjectStore ObjectStoreConfig `yaml:"objectStore" json:"objectStore"`
	Supervisor  SupervisorConfig  `yaml:"supervisor" json:"supervisor"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// ServerConfig holds listener configuration for both transports
type ServerConfig struct {
	HTTPAddress     string        `yaml:"httpAddress" json:"httpAddress"`
	GRPCAddress     string        `yaml:"grpcAddress" json:"grpcAddress"`
	AllowedOrigins  []string      `yaml:"allowedOrigins" json:"allowedOrigins"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
	KeepAliveEvery  time.Duration `yaml:"keepAliveEvery" json:"keepAliveEvery"`
}

// SecurityConfig enables mutual TLS on the gRPC listener. When disabled the
// caller identity is read from request metadata set by a trusted gateway.
type SecurityConfig struct {
	EnableTLS      bool   `yaml:"enableTls" json:"enableTls"`
	ServerCertPath string `yaml:"serverCertPath" json:"serverCertPath"`
	ServerKeyPath  string `yaml:"serverKeyPath" json:"serverKeyPath"`
	CACertPath     string `yaml:"caCertPath" json:"caCertPath"`
	ClientCertPath string `yaml:"clientCertPath" json:"clientCertPath"`
	ClientKeyPath  string `yaml:"clientKeyPath" json:"clientKeyPath"`
}

// PipelineConfig holds the processing job cadence
type PipelineConfig struct {
	Step              int           `yaml:"step" json:"step"`
	Interval          time.Duration `yaml:"interval" json:"interval"`
	PersistEvery      int           `yaml:"persistEvery" json:"persistEvery"`
	MaxConcurrentJobs int           `yaml:"maxConcurrentJobs" json:"maxConcurrentJobs"`
	MetadataTimeout   time.Duration `yaml:"metadataTimeout" json:"metadataTimeout"`
}

type ClassifierConfig struct {
	Denylist []string `yaml:"denylist" json:"denylist"`
}

// BusConfig bounds progress event delivery
type BusConfig struct {
	SendTimeout      time.Duration `yaml:"sendTimeout" json:"sendTimeout"`
	SubscriberBuffer int           `yaml:"subscriberBuffer" json:"subscriberBuffer"`
}

// CatalogConfig selects the record store: memory, sqlite or postgres
type CatalogConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// ObjectStoreConfig selects the blob store: local or s3
type ObjectStoreConfig struct {
	Driver        string `yaml:"driver" json:"driver"`
	LocalDir      string `yaml:"localDir" json:"localDir"`
	FFProbePath   string `yaml:"ffprobePath" json:"ffprobePath"`
	PublicBaseURL string `yaml:"publicBaseUrl" json:"publicBaseUrl"`
	S3Bucket      string `yaml:"s3Bucket" json:"s3Bucket"`
	S3Region      string `yaml:"s3Region" json:"s3Region"`
}

// SupervisorConfig controls the orphaned-job reconciler
type SupervisorConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule" json:"schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// DefaultConfig Default configuration values
var DefaultConfig = Config{
	Server: ServerConfig{
		HTTPAddress:     "0.0.0.0:5000",
		GRPCAddress:     "0.0.0.0:50051",
		AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:5174"},
		ShutdownTimeout: 10 * time.Second,
		KeepAliveEvery:  15 * time.Second,
	},
	Security: SecurityConfig{
		EnableTLS:      false,
		ServerCertPath: "./certs/server-cert.pem",
		ServerKeyPath:  "./certs/server-key.pem",
		CACertPath:     "./certs/ca-cert.pem",
		ClientCertPath: "./certs/client-cert.pem",
		ClientKeyPath:  "./certs/client-key.pem",
	},
	Pipeline: PipelineConfig{
		Step:              5,
		Interval:          500 * time.Millisecond,
		PersistEvery:      10,
		MaxConcurrentJobs: 0,
		MetadataTimeout:   5 * time.Second,
	},
	Classifier: ClassifierConfig{
		Denylist: []string{"adult", "violence", "explicit", "nsfw", "sensitive"},
	},
	Bus: BusConfig{
		SendTimeout:      50 * time.Millisecond,
		SubscriberBuffer: 16,
	},
	Catalog: CatalogConfig{
		Driver: "sqlite",
		DSN:    "./vigilstream.db",
	},
	ObjectStore: ObjectStoreConfig{
		Driver:        "local",
		LocalDir:      "./media",
		FFProbePath:   "ffprobe",
		PublicBaseURL: "http://localhost:5000/media",
		S3Region:      "us-east-1",
	},
	Supervisor: SupervisorConfig{
		Enabled:  true,
		Schedule: "@every 1m",
	},
	Logging: LoggingConfig{
		Level:  "INFO",
		Format: "text",
		Output: "stdout",
	},
}

// Default returns a copy of DefaultConfig that callers may mutate freely.
func Default() Config {
	c := DefaultConfig
	c.Server.AllowedOrigins = append([]string(nil), DefaultConfig.Server.AllowedOrigins...)
	c.Classifier.Denylist = append([]string(nil), DefaultConfig.Classifier.Denylist...)
	return c
}

// LoadConfig loads configuration from multiple sources in order of precedence:
// 1. Environment variables (highest precedence)
// 2. Configuration file
// 3. Default values (lowest precedence)
func LoadConfig() (*Config, string, error) {
	config := Default()

	path, err := loadFromFile(&config)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}

	if e := loadFromEnv(&config); e != nil {
		return nil, "", fmt.Errorf("failed to load environment variables: %w", e)
	}

	if e := config.Validate(); e != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", e)
	}

	return &config, path, nil
}

func loadFromFile(config *Config) (string, error) {
	configPaths := []string{
		os.Getenv("VIGIL_CONFIG_PATH"),
		"./config.yaml",
		"./config/config.yaml",
		"/etc/vigilstream/config.yaml",
	}

	for _, path := range configPaths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return "", fmt.Errorf("failed to parse config file %s: %w", path, err)
		}

		return path, nil
	}

	return "built-in defaults (no config file found)", nil
}

func loadFromEnv(config *Config) error {
	var errs []string

	str := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}
	integer := func(key string, dst *int) {
		if val := os.Getenv(key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			*dst = val == "true" || val == "1"
		}
	}
	list := func(key string, dst *[]string) {
		if val := os.Getenv(key); val != "" {
			*dst = splitList(val)
		}
	}

	str("VIGIL_HTTP_ADDRESS", &config.Server.HTTPAddress)
	str("VIGIL_GRPC_ADDRESS", &config.Server.GRPCAddress)
	list("VIGIL_ALLOWED_ORIGINS", &config.Server.AllowedOrigins)
	duration("VIGIL_SHUTDOWN_TIMEOUT", &config.Server.ShutdownTimeout)
	duration("VIGIL_KEEPALIVE_EVERY", &config.Server.KeepAliveEvery)

	boolean("VIGIL_ENABLE_TLS", &config.Security.EnableTLS)
	str("VIGIL_SERVER_CERT_PATH", &config.Security.ServerCertPath)
	str("VIGIL_SERVER_KEY_PATH", &config.Security.ServerKeyPath)
	str("VIGIL_CA_CERT_PATH", &config.Security.CACertPath)
	str("VIGIL_CLIENT_CERT_PATH", &config.Security.ClientCertPath)
	str("VIGIL_CLIENT_KEY_PATH", &config.Security.ClientKeyPath)

	integer("VIGIL_PIPELINE_STEP", &config.Pipeline.Step)
	duration("VIGIL_PIPELINE_INTERVAL", &config.Pipeline.Interval)
	integer("VIGIL_PIPELINE_PERSIST_EVERY", &config.Pipeline.PersistEvery)
	integer("VIGIL_MAX_CONCURRENT_JOBS", &config.Pipeline.MaxConcurrentJobs)
	duration("VIGIL_METADATA_TIMEOUT", &config.Pipeline.MetadataTimeout)

	list("VIGIL_CLASSIFIER_DENYLIST", &config.Classifier.Denylist)

	duration("VIGIL_BUS_SEND_TIMEOUT", &config.Bus.SendTimeout)
	integer("VIGIL_BUS_SUBSCRIBER_BUFFER", &config.Bus.SubscriberBuffer)

	str("VIGIL_CATALOG_DRIVER", &config.Catalog.Driver)
	str("VIGIL_CATALOG_DSN", &config.Catalog.DSN)

	str("VIGIL_OBJECTSTORE_DRIVER", &config.ObjectStore.Driver)
	str("VIGIL_OBJECTSTORE_DIR", &config.ObjectStore.LocalDir)
	str("VIGIL_FFPROBE_PATH", &config.ObjectStore.FFProbePath)
	str("VIGIL_PUBLIC_BASE_URL", &config.ObjectStore.PublicBaseURL)
	str("VIGIL_S3_BUCKET", &config.ObjectStore.S3Bucket)
	str("VIGIL_S3_REGION", &config.ObjectStore.S3Region)

	boolean("VIGIL_SUPERVISOR_ENABLED", &config.Supervisor.Enabled)
	str("VIGIL_SUPERVISOR_SCHEDULE", &config.Supervisor.Schedule)

	str("LOG_LEVEL", &config.Logging.Level)
	str("LOG_FORMAT", &config.Logging.Format)
	str("LOG_OUTPUT", &config.Logging.Output)

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" && c.Server.GRPCAddress == "" {
		return fmt.Errorf("at least one of httpAddress or grpcAddress is required")
	}

	if c.Pipeline.Step < 1 || c.Pipeline.Step > 100 {
		return fmt.Errorf("invalid pipeline step: %d", c.Pipeline.Step)
	}
	if c.Pipeline.Interval <= 0 {
		return fmt.Errorf("invalid pipeline interval: %s", c.Pipeline.Interval)
	}
	if c.Pipeline.PersistEvery < 1 {
		return fmt.Errorf("invalid pipeline persistEvery: %d", c.Pipeline.PersistEvery)
	}
	if c.Pipeline.MaxConcurrentJobs < 0 {
		return fmt.Errorf("invalid max concurrent jobs: %d", c.Pipeline.MaxConcurrentJobs)
	}

	if c.Bus.SendTimeout <= 0 {
		return fmt.Errorf("invalid bus send timeout: %s", c.Bus.SendTimeout)
	}
	if c.Bus.SubscriberBuffer < 1 {
		return fmt.Errorf("invalid bus subscriber buffer: %d", c.Bus.SubscriberBuffer)
	}

	switch c.Catalog.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Catalog.DSN == "" {
			return fmt.Errorf("catalog dsn required for driver %s", c.Catalog.Driver)
		}
	default:
		return fmt.Errorf("invalid catalog driver: %s", c.Catalog.Driver)
	}

	switch c.ObjectStore.Driver {
	case "local":
		if c.ObjectStore.LocalDir == "" {
			return fmt.Errorf("object store localDir required for local driver")
		}
	case "s3":
		if c.ObjectStore.S3Bucket == "" {
			return fmt.Errorf("object store s3Bucket required for s3 driver")
		}
	default:
		return fmt.Errorf("invalid object store driver: %s", c.ObjectStore.Driver)
	}

	if c.Supervisor.Enabled && c.Supervisor.Schedule == "" {
		return fmt.Errorf("supervisor schedule required when supervisor is enabled")
	}

	if c.Security.EnableTLS {
		if c.Security.ServerCertPath == "" || c.Security.ServerKeyPath == "" || c.Security.CACertPath == "" {
			return fmt.Errorf("server certificate, key and CA paths required when TLS is enabled")
		}
	}

	validLevels := map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}
	if !validLevels[strings.ToUpper(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// LoadFromFile loads a specific configuration file
func LoadFromFile(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// IsDevelopmentMode returns true if running in development mode
func (c *Config) IsDevelopmentMode() bool {
	return strings.EqualFold(c.Logging.Level, "DEBUG")
}
