package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ismaiel54/trade-target-engine/internal/msg"
)

// Persistence backends for the engine
const (
	PersistREST   = "rest"
	PersistSQLite = "sqlite"
)

// Config holds configuration for all services
type Config struct {
	// Service name, also the default consumer group
	ServiceName string `ignored:"true"`

	GRPCPort int `envconfig:"PORT_GRPC" default:"50051"`
	HTTPPort int `envconfig:"PORT_HTTP" default:"8080"`
	APIPort  int `envconfig:"PORT_API" default:"8090"`

	// Log level: debug, info, warn, error
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	KafkaBrokers  string `envconfig:"KAFKA_BROKERS" default:"127.0.0.1:9092"`
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID" default:"trade-target-engine"`
	SnapshotTopic string `envconfig:"SNAPSHOT_TOPIC" default:"orders.snapshots"`
	ConsumerGroup string `envconfig:"CONSUMER_GROUP"`

	// Optional WebSocket push channel; empty disables it
	HubWSURL string `envconfig:"HUB_WS_URL"`

	BackendURL     string        `envconfig:"BACKEND_URL" default:"http://127.0.0.1:8091"`
	BackendToken   string        `envconfig:"BACKEND_TOKEN"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`
	BackendRPS     float64       `envconfig:"BACKEND_RPS" default:"20"`

	PersistMode string   `envconfig:"PERSIST_MODE" default:"rest"`
	DataDir     string   `envconfig:"DATA_DIR" default:"./data"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// LoadConfig loads an optional .env file, then the environment, with
// per-service defaults.
func LoadConfig(serviceName string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	cfg.ServiceName = serviceName

	if serviceName == "target-server" {
		if _, ok := os.LookupEnv("PORT_GRPC"); !ok {
			cfg.GRPCPort = 50052
		}
		if _, ok := os.LookupEnv("PORT_HTTP"); !ok {
			cfg.HTTPPort = 8081
		}
		if _, ok := os.LookupEnv("PORT_API"); !ok {
			cfg.APIPort = 8091
		}
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = serviceName
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot
func (c *Config) Validate() error {
	for name, port := range map[string]int{"PORT_GRPC": c.GRPCPort, "PORT_HTTP": c.HTTPPort, "PORT_API": c.APIPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s must be in 1..65535, got %d", name, port)
		}
	}
	switch c.PersistMode {
	case PersistREST, PersistSQLite:
	default:
		return fmt.Errorf("PERSIST_MODE must be %q or %q, got %q", PersistREST, PersistSQLite, c.PersistMode)
	}
	if c.BackendRPS < 0 {
		return fmt.Errorf("BACKEND_RPS must not be negative")
	}
	return nil
}

// GRPCAddr returns the gRPC server address
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

// HTTPAddr returns the health/metrics server address
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// APIAddr returns the API server address
func (c *Config) APIAddr() string {
	return fmt.Sprintf(":%d", c.APIPort)
}

// Kafka returns the Kafka client configuration
func (c *Config) Kafka() msg.Config {
	return msg.Config{
		Brokers:  msg.SplitBrokers(c.KafkaBrokers),
		ClientID: c.KafkaClientID,
	}
}
