package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// External provider settings.
	HailMapAPIKey    string
	ProviderTimeout  time.Duration
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int

	// Cache tuning. Archive entries are year-sized and expensive to rebuild,
	// so they get a much longer TTL than point lookups.
	CatalogCacheTTL time.Duration
	ArchiveCacheTTL time.Duration
	AlertsCacheTTL  time.Duration
	CachePruneSize  int

	// Kafka event publishing (consumed by the downstream notification
	// subsystem). Disabled unless brokers are configured.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	providerTimeout, err := parseDuration("PROVIDER_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	geocodeTimeout, err := parseDuration("GEOCODE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	catalogTTL, err := parseDuration("CATALOG_CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}
	archiveTTL, err := parseDuration("ARCHIVE_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}
	alertsTTL, err := parseDuration("ALERTS_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}
	pruneSize, err := parseInt("CACHE_PRUNE_SIZE", 500)
	if err != nil {
		return nil, err
	}
	geocodeCacheSize, err := parseInt("GEOCODE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	brokers := parseBrokers(os.Getenv("KAFKA_BROKERS"))
	kafkaEnabled := len(brokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		HailMapAPIKey:    os.Getenv("HAILMAP_API_KEY"),
		ProviderTimeout:  providerTimeout,
		GeocodeTimeout:   geocodeTimeout,
		GeocodeCacheSize: geocodeCacheSize,

		CatalogCacheTTL: catalogTTL,
		ArchiveCacheTTL: archiveTTL,
		AlertsCacheTTL:  alertsTTL,
		CachePruneSize:  pruneSize,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: brokers,
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "storm-events"),
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := envOrDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func parseBrokers(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
