package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	NATS struct {
		URL      string             `mapstructure:"url"`
		Forwards ForwardQueueConfig `mapstructure:"forwards"`
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Ingestion struct {
		// DedupeByEmail keys phone-less contacts by lowercased email.
		DedupeByEmail bool `mapstructure:"dedupeByEmail"`
		// RequireValidPhone rejects submissions with an unparseable phone
		// instead of ingesting them without dedup.
		RequireValidPhone bool `mapstructure:"requireValidPhone"`
	} `mapstructure:"ingestion"`
	Dispatch DispatchPoolConfig `mapstructure:"dispatch"`
	Metrics  struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
}

// ForwardQueueConfig holds the JetStream settings of the forward delivery
// queue.
type ForwardQueueConfig struct {
	Stream        string        `mapstructure:"stream"`        // Stream name holding dispatch jobs
	MaxAgeDays    int           `mapstructure:"maxAgeDays"`    // Retention period for undelivered jobs
	MaxRetries    int           `mapstructure:"maxRetries"`    // Re-attempts after the first failure; MaxDeliver = maxRetries+1
	AckWait       time.Duration `mapstructure:"ackWait"`       // Redelivery timeout for an unacked job
	MaxAckPending int           `mapstructure:"maxAckPending"` // Max in-flight unacked jobs
	// RetryDelays is the NakWithDelay backoff schedule; attempt N waits
	// RetryDelays[N-1], the last entry repeating when retries exceed it.
	RetryDelays []time.Duration `mapstructure:"retryDelays"`
}

// DispatchPoolConfig holds configuration for the delivery worker pool
type DispatchPoolConfig struct {
	Workers         int           `mapstructure:"workers"`         // Number of concurrent delivery workers
	QueueSize       int           `mapstructure:"queueSize"`       // Fetched-message channel buffer size
	DeliveryTimeout time.Duration `mapstructure:"deliveryTimeout"` // Per-attempt outbound HTTP timeout
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	// Create new viper instance
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)

	// Forward queue defaults
	v.SetDefault("nats.forwards.stream", "FORWARDS")
	v.SetDefault("nats.forwards.maxAgeDays", 7)
	v.SetDefault("nats.forwards.maxRetries", 3)
	v.SetDefault("nats.forwards.ackWait", time.Minute)
	v.SetDefault("nats.forwards.maxAckPending", 256)
	v.SetDefault("nats.forwards.retryDelays", []string{"1s", "5s", "30s"})

	// Ingestion policy defaults
	v.SetDefault("ingestion.dedupeByEmail", true)
	v.SetDefault("ingestion.requireValidPhone", false)

	// Dispatch pool defaults
	v.SetDefault("dispatch.workers", 8)
	v.SetDefault("dispatch.queueSize", 100)
	v.SetDefault("dispatch.deliveryTimeout", 10*time.Second)

	// Config file settings
	v.SetConfigName("default") // name of config file (without extension)
	v.SetConfigType("yaml")    // REQUIRED if the config file does not have the extension in the name

	// Add lookup paths
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.lead-routing-engine")
	v.AddConfigPath("/etc/lead-routing-engine")

	// Try to read from config file
	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		// Get the field tag value (mapstructure)
		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		// Build the env var path
		path := append(parts, tag)
		key := strings.Join(path, ".")

		// If it's a struct, recursively bind its fields
		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		// Bind the env var
		_ = v.BindEnv(key)
	}
}
