package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	SeedFile      string   // optional YAML file with api hosts and cloud sources
	APIHosts      []string // optional, overrides the seed file hosts (ex: "https://a.ext, https://b.ext")
	ReseedOnStart bool     // true => re-apply the seed at every start, dropping persisted hosts

	ReportAPIBase string // base URL of the failure telemetry API (empty = reports disabled)
	ImageHost     string // base URL advert images are fetched from
	ClientName    string // client identifier sent in every request envelope

	ProbeTimeout    time.Duration // per probe timeout (default: 5s)
	ResolveInterval time.Duration // interval between periodic resolutions (default: 30m)

	// Secrets, one set per cipher context
	EnvelopeKey string
	EnvelopeIV  string
	SignKey     string
	CloudKey    string
	AssetKey    string
	AssetIV     string

	// Redis, empty address => in-memory store
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	AllowedCIDRS []string // optional, restrict POST /resolve to specific IPs (e.g. "1.2.3.4, 10.0.0.0/8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("LINEUP_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("LINEUP_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("LINEUP_LOG_LEVEL", "info"),
		PrettyLog: mustBool("LINEUP_PRETTY_LOG", true),

		// Seed
		SeedFile:      getenv("LINEUP_SEED_FILE", ""),
		APIHosts:      splitAndTrim(getenv("LINEUP_API_HOSTS", "")),
		ReseedOnStart: mustBool("LINEUP_RESEED_ON_START", true),

		// Collaborators
		ReportAPIBase: getenv("LINEUP_REPORT_API_BASE", ""),
		ImageHost:     getenv("LINEUP_IMAGE_HOST", ""),
		ClientName:    getenv("LINEUP_CLIENT_NAME", "android"),

		// Resolution
		ProbeTimeout:    mustDuration("LINEUP_PROBE_TIMEOUT", 5*time.Second),
		ResolveInterval: mustDuration("LINEUP_RESOLVE_INTERVAL", 30*time.Minute),

		// Secrets
		EnvelopeKey: requireEnv("LINEUP_ENVELOPE_KEY"),
		EnvelopeIV:  requireEnv("LINEUP_ENVELOPE_IV"),
		SignKey:     requireEnv("LINEUP_SIGN_KEY"),
		CloudKey:    requireEnv("LINEUP_CLOUD_KEY"),
		AssetKey:    requireEnv("LINEUP_ASSET_KEY"),
		AssetIV:     requireEnv("LINEUP_ASSET_IV"),

		// Redis settings
		RedisAddr:           getenv("LINEUP_REDIS_ADDR", ""),
		RedisUser:           getenv("LINEUP_REDIS_USERNAME", ""),
		RedisPassword:       getenv("LINEUP_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("LINEUP_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedCIDRS: parseAllowedIPs(getenv("LINEUP_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("LINEUP_TRUST_PROXY", true),
	}

	if cfg.SeedFile == "" && len(cfg.APIHosts) == 0 {
		panic("❌ FATAL: one of LINEUP_SEED_FILE or LINEUP_API_HOSTS must be set")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	const mask = "***REDACTED***"
	for _, s := range []*string{&c.EnvelopeKey, &c.EnvelopeIV, &c.SignKey, &c.CloudKey, &c.AssetKey, &c.AssetIV, &c.RedisPassword} {
		if *s != "" {
			*s = mask
		}
	}
	if c.RedisUser != "" {
		c.RedisUser = mask
	}
	return c
}

// UseRedis reports whether state is persisted in Redis.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
