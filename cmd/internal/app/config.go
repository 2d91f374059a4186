package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// ArrivalWindow is the buffer on both sides of an expected arrival time.
	ArrivalWindow time.Duration

	// GateLockWait bounds per-visit lock acquisition before Busy.
	GateLockWait time.Duration

	// WSOriginPatterns allows WebSocket origins; empty means same-origin only.
	WSOriginPatterns []string

	// Security policy:
	// If true, GATEPASS_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and credential
	// hashing must be HMAC-based.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("GATEPASS_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("GATEPASS_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("GATEPASS_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("GATEPASS_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("GATEPASS_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("GATEPASS_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("GATEPASS_HTTP_MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:   int64(EnvInt("GATEPASS_HTTP_MAX_BODY_BYTES", 64<<10)),

		DatabaseURL: EnvString("GATEPASS_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("GATEPASS_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("GATEPASS_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("GATEPASS_READINESS_REQUIRE_DB", false),

		ArrivalWindow: EnvDuration("GATEPASS_ARRIVAL_WINDOW", 60*time.Minute),
		GateLockWait:  EnvDuration("GATEPASS_GATE_LOCK_WAIT", 2*time.Second),

		WSOriginPatterns: envList("GATEPASS_WS_ORIGIN_PATTERNS"),

		RequireTokenHMAC: EnvBool("GATEPASS_REQUIRE_TOKEN_HMAC", false),
	}
}
