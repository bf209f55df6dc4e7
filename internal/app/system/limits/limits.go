// internal/app/system/limits/limits.go
package limits

// Request body size limits for the JSON API and realtime frames.
// These limits help prevent memory exhaustion from oversized requests.
const (
	// MaxAuthBody bounds register and login requests.
	MaxAuthBody = 16 << 10 // 16 KB

	// MaxTeamBody bounds team create and join requests.
	MaxTeamBody = 16 << 10 // 16 KB

	// MaxTaskBody bounds task create and update requests. Descriptions
	// are the only large field.
	MaxTaskBody = 64 << 10 // 64 KB

	// MaxFrameBytes is the default inbound websocket frame limit.
	MaxFrameBytes = 64 << 10 // 64 KB
)

// HistoryPageSize is how many audit events GET /api/auth/history returns.
const HistoryPageSize = 50
