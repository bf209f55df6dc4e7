// internal/app/features/health/handler.go
package health

import (
	"context"
	"net/http"

	"github.com/dalemusser/syncban/internal/app/system/respond"
	"github.com/dalemusser/syncban/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Counter reports the number of live realtime connections.
type Counter interface {
	Count() int
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client *mongo.Client
	Conns  Counter
	Log    *zap.Logger
}

// NewHandler constructs a health Handler. conns may be nil.
func NewHandler(client *mongo.Client, conns Counter, logger *zap.Logger) *Handler {
	return &Handler{
		Client: client,
		Conns:  conns,
		Log:    logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Connections *int   `json:"connections,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "connections":3 }
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		respond.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if h.Conns != nil {
		n := h.Conns.Count()
		resp.Connections = &n
	}
	respond.JSON(w, http.StatusOK, resp)
}
