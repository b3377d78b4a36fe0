package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type StoreDriver string

const (
	DriverMemory   StoreDriver = "memory"
	DriverSQLite   StoreDriver = "sqlite"
	DriverPostgres StoreDriver = "postgres"
)

type Config struct {
	HTTPAddr    string
	ServiceName string
	Env         string

	StoreDriver StoreDriver
	SQLitePath  string
	PostgresDSN string

	// Optional: Redis-backed idempotency store when set.
	RedisAddr string

	// Optional: Kafka audit stream when brokers are set.
	KafkaBrokers    []string
	KafkaAuditTopic string

	// Default stock seeded for products first seen by the ledger admin surface.
	InitialStock int

	Provider ProviderConfig
}

// ProviderConfig holds the remote shopper-API credentials. Host empty
// means the service runs against the static dev catalog.
type ProviderConfig struct {
	Host         string
	OrgID        string
	ClientID     string
	ClientSecret string
	ChannelID    string
	SiteID       string
}

func (p ProviderConfig) Enabled() bool { return p.Host != "" }

// Load reads configuration from the environment. A .env file is honored
// when present. Returns an error listing every missing provider variable
// rather than failing on the first one.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ServiceName:     getenv("SERVICE_NAME", "checkout-core"),
		Env:             getenv("ENV", "dev"),
		StoreDriver:     StoreDriver(getenv("STORE_DRIVER", string(DriverSQLite))),
		SQLitePath:      getenv("SQLITE_PATH", "checkout.db"),
		PostgresDSN:     getenv("POSTGRES_DSN", ""),
		RedisAddr:       getenv("REDIS_ADDR", ""),
		KafkaBrokers:    splitCSV(getenv("KAFKA_BROKERS", "")),
		KafkaAuditTopic: getenv("KAFKA_AUDIT_TOPIC", "checkout.audit"),
		InitialStock:    getenvInt("INITIAL_STOCK", 0),
		Provider: ProviderConfig{
			Host:         getenv("PROVIDER_HOST", ""),
			OrgID:        getenv("PROVIDER_ORG_ID", ""),
			ClientID:     getenv("PROVIDER_CLIENT_ID", ""),
			ClientSecret: getenv("PROVIDER_CLIENT_SECRET", ""),
			ChannelID:    getenv("PROVIDER_CHANNEL_ID", ""),
			SiteID:       getenv("PROVIDER_SITE_ID", ""),
		},
	}

	switch cfg.StoreDriver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return Config{}, fmt.Errorf("config: unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.StoreDriver == DriverPostgres && cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("config: POSTGRES_DSN is required with STORE_DRIVER=postgres")
	}

	if cfg.Provider.Enabled() {
		var missing []string
		if cfg.Provider.OrgID == "" {
			missing = append(missing, "PROVIDER_ORG_ID")
		}
		if cfg.Provider.ClientID == "" {
			missing = append(missing, "PROVIDER_CLIENT_ID")
		}
		if cfg.Provider.ClientSecret == "" {
			missing = append(missing, "PROVIDER_CLIENT_SECRET")
		}
		if cfg.Provider.ChannelID == "" {
			missing = append(missing, "PROVIDER_CHANNEL_ID")
		}
		if cfg.Provider.SiteID == "" {
			missing = append(missing, "PROVIDER_SITE_ID")
		}
		if len(missing) > 0 {
			return Config{}, fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
		}
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
