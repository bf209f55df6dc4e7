// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/syncban/internal/app/system/auditlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for SyncBan.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: SYNCBAN_MONGO_URI, SYNCBAN_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "syncban", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Tokens
	{Name: "jwt_secret", Default: "", Desc: "Secret for signing bearer tokens (required)"},
	{Name: "jwt_expiry", Default: "168h", Desc: "Bearer token lifetime (e.g., 24h, 168h)"},

	// Browser clients
	{Name: "client_url", Default: "http://localhost:5173", Desc: "URL of the board UI"},
	{Name: "cors_origins", Default: "", Desc: "Comma-separated extra allowed origins ('*' for any)"},

	// Activity trail
	{Name: "activity_retention", Default: 20, Desc: "Activity entries kept per team"},
	{Name: "activity_queue_size", Default: 256, Desc: "Activity recorder queue size"},
	{Name: "activity_sweep_interval", Default: "10m", Desc: "How often old activity entries are trimmed"},

	// Teams
	{Name: "invite_code_ttl", Default: "120h", Desc: "Team invite code lifetime"},

	// Realtime
	{Name: "ws_send_buffer", Default: 64, Desc: "Frames queued per websocket before it is dropped"},
	{Name: "ws_max_message_bytes", Default: 65536, Desc: "Largest inbound websocket frame"},
	{Name: "ws_handshake_timeout", Default: "10s", Desc: "Time allowed for the connect frame"},

	// Timeouts
	{Name: "timeout_short", Default: "", Desc: "Timeout for simple store reads (blank keeps default)"},
	{Name: "timeout_medium", Default: "", Desc: "Timeout for store writes (blank keeps default)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_team", Default: "all", Desc: "Team event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_retention", Default: "720h", Desc: "Age after which audit events are purged ('0' keeps them forever)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, SYNCBAN_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "SYNCBAN", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		JWTSecret: appValues.String("jwt_secret"),
		JWTExpiry: appValues.Duration("jwt_expiry", 168*time.Hour),

		ClientURL:   strings.TrimRight(appValues.String("client_url"), "/"),
		CORSOrigins: splitList(appValues.String("cors_origins")),

		ActivityRetention:     appValues.Int("activity_retention"),
		ActivityQueueSize:     appValues.Int("activity_queue_size"),
		ActivitySweepInterval: appValues.Duration("activity_sweep_interval", 10*time.Minute),

		InviteCodeTTL: appValues.Duration("invite_code_ttl", 120*time.Hour),

		WSSendBuffer:       appValues.Int("ws_send_buffer"),
		WSMaxMessageBytes:  int64(appValues.Int("ws_max_message_bytes")),
		WSHandshakeTimeout: appValues.Duration("ws_handshake_timeout", 10*time.Second),

		TimeoutShort:  appValues.Duration("timeout_short", 0),
		TimeoutMedium: appValues.Duration("timeout_medium", 0),

		AuditLogAuth:   appValues.String("audit_log_auth"),
		AuditLogTeam:   appValues.String("audit_log_team"),
		AuditRetention: appValues.Duration("audit_retention", 720*time.Hour),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if err := validateApp(appCfg); err != nil {
		logger.Error("invalid app config", zap.Error(err))
		return err
	}
	return nil
}

// validateApp holds the checks that do not depend on WAFFLE.
func validateApp(appCfg AppConfig) error {
	var problems []string

	if strings.TrimSpace(appCfg.JWTSecret) == "" {
		problems = append(problems, "jwt_secret is required")
	}
	if appCfg.JWTExpiry <= 0 {
		problems = append(problems, "jwt_expiry must be positive")
	}
	if appCfg.ActivityRetention < 1 {
		problems = append(problems, "activity_retention must be at least 1")
	}
	if appCfg.InviteCodeTTL <= 0 {
		problems = append(problems, "invite_code_ttl must be positive")
	}
	if appCfg.AuditRetention < 0 {
		problems = append(problems, "audit_retention must not be negative")
	}
	for _, dest := range []string{appCfg.AuditLogAuth, appCfg.AuditLogTeam} {
		switch dest {
		case "", auditlog.DestAll, auditlog.DestDB, auditlog.DestLog, auditlog.DestOff:
		default:
			problems = append(problems, fmt.Sprintf("unknown audit destination %q", dest))
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// splitList parses a comma-separated config value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimRight(strings.TrimSpace(part), "/"); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// allowedOrigins is the union of the client URL and the extra CORS origins.
func allowedOrigins(appCfg AppConfig) []string {
	var out []string
	seen := map[string]bool{}
	for _, o := range append([]string{appCfg.ClientURL}, appCfg.CORSOrigins...) {
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}
