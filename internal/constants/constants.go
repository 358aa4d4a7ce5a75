// Package constants defines names and defaults shared across the forwarder.
package constants

var version = "0.0.0-dev"

// Version is the version string embedded into the binary at build time.
func Version() string { return version }

const (
	// DefaultPort is the port the forwarder listens on when --port is not set.
	DefaultPort = "8080"

	// SchemaName is the Postgres schema isolated to this service; no other
	// schema is read or written.
	SchemaName = "forwarder"
	// EventsTable is the table holding deduplicated webhook events.
	EventsTable = "raw_webhook_events"

	// IntakePathPrefix is the path prefix under which provider webhooks are received.
	IntakePathPrefix = "/webhook/"
	// PingPath answers liveness probes.
	PingPath = "/ping"
	// MetricsPath exposes Prometheus metrics.
	MetricsPath = "/metrics"

	// DefaultMaxBodyBytes is the default cap on an incoming webhook body.
	DefaultMaxBodyBytes = 1 << 20 // 1 MiB

	// RecentEventsLimit bounds the debug-only recent events listing.
	RecentEventsLimit = 50

	// SignatureHeader is the header providers use to carry the HMAC signature.
	SignatureHeader = "X-Signature"
	// AlchemySignatureHeader is Alchemy's own signature header name.
	AlchemySignatureHeader = "X-Alchemy-Signature"
	// HubSignatureHeader is the GitHub-style signature header some providers use.
	HubSignatureHeader = "X-Hub-Signature-256"

	// EnvDatabaseURL is the environment variable carrying the database DSN.
	EnvDatabaseURL = "DATABASE_URL"
	// EnvEnableAuth toggles signature verification.
	EnvEnableAuth = "ENABLE_AUTH"
	// EnvAllowedIPs is a comma-separated allowlist of source addresses.
	EnvAllowedIPs = "ALLOWED_IPS"
	// EnvRunMigrations triggers AutoMigrate on startup when set to a truthy value.
	EnvRunMigrations = "RUN_MIGRATIONS_ON_STARTUP"
	// EnvStrictWebhookAuth is reserved for a future hard-fail auth mode. Not wired.
	EnvStrictWebhookAuth = "STRICT_WEBHOOK_AUTH"
	// EnvSecretPrefix precedes the upper-cased provider name, e.g. SECRET_ALCHEMY.
	EnvSecretPrefix = "SECRET_"

	// ConfigKeyDatabaseURL is the YAML config path for the database DSN.
	ConfigKeyDatabaseURL = "ConnectionStrings/Database"
	// ConfigKeyProviderSecretsPrefix is the YAML config path prefix for per-provider secrets.
	ConfigKeyProviderSecretsPrefix = "Authentication/ProviderSecrets/"
)
