// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration.
//
// WAFFLE's CoreConfig handles framework-level settings like:
//   - HTTP/HTTPS ports and TLS configuration
//   - Logging level and format
//   - Request body size limits
//
// AppConfig is passed to most lifecycle hooks, so any configuration needed
// during startup, request handling, or shutdown should live here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Bearer tokens
	JWTSecret string        // HS256 signing secret
	JWTExpiry time.Duration // token lifetime

	// Browser clients
	ClientURL   string   // the board UI; always allowed as a CORS and websocket origin
	CORSOrigins []string // extra allowed origins; "*" allows any

	// Activity trail
	ActivityRetention     int           // entries kept and returned per team
	ActivityQueueSize     int           // recorder buffer
	ActivitySweepInterval time.Duration // how often old entries are trimmed

	// Teams
	InviteCodeTTL time.Duration

	// Realtime connections
	WSSendBuffer       int
	WSMaxMessageBytes  int64
	WSHandshakeTimeout time.Duration

	// Store call timeouts (zero keeps the defaults)
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration

	// Audit logging: "all", "db", "log", or "off"
	AuditLogAuth string
	AuditLogTeam string

	// AuditRetention is the age after which audit events are purged.
	// Zero disables the purge.
	AuditRetention time.Duration
}
