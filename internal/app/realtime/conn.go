package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dalemusser/syncban/internal/app/system/timeouts"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is one accepted websocket. It is a Peer of the registry.
type Conn struct {
	id        string
	ws        *websocket.Conn
	mgr       *Manager
	log       *zap.Logger
	principal Principal

	ctx    context.Context
	cancel context.CancelFunc

	send      chan []byte
	closeOnce sync.Once
}

func (c *Conn) ID() string { return c.id }

// Principal returns the identity bound at handshake.
func (c *Conn) Principal() Principal { return c.principal }

// Send queues a frame for the write loop.
func (c *Conn) Send(frame []byte) SendResult {
	select {
	case <-c.ctx.Done():
		return Closed
	default:
	}
	select {
	case c.send <- frame:
		return Sent
	default:
		return Full
	}
}

// Close ends the connection. The read loop notices and runs cleanup.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close()
	})
}

func (c *Conn) sendEvent(event string, data any) bool {
	frame, err := EncodeFrame(event, data)
	if err != nil {
		c.log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return false
	}
	return c.Send(frame) == Sent
}

// sendError reports a failure to this connection only.
func (c *Conn) sendError(err error) {
	c.sendEvent(EventError, ErrorPayload{Message: messageOf(err), Code: CodeOf(err)})
}

// handshake reads the connect frame and verifies its token. It runs before
// the write loop starts, so it writes to the socket directly.
func (c *Conn) handshake() (Principal, error) {
	cfg := c.mgr.cfg
	c.ws.SetReadLimit(cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))

	messageType, raw, err := c.ws.ReadMessage()
	if err != nil {
		return Principal{}, &Error{Code: CodeUnauthenticated, Message: ErrUnauthenticated.Message, Err: err}
	}
	if messageType != websocket.TextMessage {
		return Principal{}, ErrUnauthenticated
	}

	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event != EventConnect {
		return Principal{}, ErrUnauthenticated
	}
	var in ConnectPayload
	if err := json.Unmarshal(frame.Data, &in); err != nil {
		return Principal{}, ErrUnauthenticated
	}
	ctx, cancel := timeouts.WithTimeout(c.ctx, timeouts.Short(), c.log, "realtime.handshake")
	defer cancel()
	return c.mgr.verifier.Verify(ctx, in.Token)
}

func (c *Conn) reject(err error) {
	frame, encErr := EncodeFrame(EventError, ErrorPayload{Message: messageOf(err), Code: CodeOf(err)})
	if encErr == nil {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.mgr.cfg.WriteWait))
		_ = c.ws.WriteMessage(websocket.TextMessage, frame)
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, messageOf(err)),
		time.Now().Add(c.mgr.cfg.WriteWait))
	c.Close()
}

func (c *Conn) readLoop() {
	cfg := c.mgr.cfg
	_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		messageType, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(cfg.PongWait))
		if messageType != websocket.TextMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			c.sendError(invalid("Malformed frame"))
			continue
		}
		c.mgr.dispatch(c, frame)
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.mgr.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.mgr.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.mgr.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
