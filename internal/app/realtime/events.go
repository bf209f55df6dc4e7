package realtime

import (
	"bytes"
	"encoding/json"

	"github.com/dalemusser/syncban/internal/domain/models"
)

// Inbound events.
const (
	EventConnect    = "connect"
	EventTaskCreate = "task:create"
	EventTaskUpdate = "task:update"
	EventTaskMove   = "task:move"
	EventTaskAssign = "task:assign"
	EventTaskDelete = "task:delete"
)

// Outbound events.
const (
	EventConnected    = "connected"
	EventError        = "error"
	EventTaskCreated  = "task:created"
	EventTaskUpdated  = "task:updated"
	EventTaskMoved    = "task:moved"
	EventTaskDeleted  = "task:deleted"
	EventMemberJoined = "member:joined"
	EventMemberLeft   = "member:left"
)

// Frame is the envelope of every message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ConnectPayload struct {
	Token string `json:"token"`
}

type ConnectedPayload struct {
	ConnectionID string  `json:"connectionId"`
	UserID       string  `json:"userId"`
	TeamID       *string `json:"teamId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

type CreatePayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	AssignedTo  string `json:"assignedTo"`
}

// UpdatePayload carries only the fields the client wants changed. LegacyID
// accepts clients that still send the task id as "_id".
type UpdatePayload struct {
	TaskID      string  `json:"taskId"`
	LegacyID    string  `json:"_id"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
	AssignedTo  *string `json:"assignedTo"`
}

func (p UpdatePayload) id() string {
	if p.TaskID != "" {
		return p.TaskID
	}
	return p.LegacyID
}

type MovePayload struct {
	TaskID    string `json:"taskId"`
	NewStatus string `json:"newStatus"`
	NewIndex  *int   `json:"newIndex"`
}

// AssignPayload sets or clears (empty string) the assignee.
type AssignPayload struct {
	TaskID     string  `json:"taskId"`
	AssignedTo *string `json:"assignedTo"`
}

// DeletePayload is normally a bare JSON string holding the task id; an
// object of the form {"taskId": "..."} is accepted too.
type DeletePayload struct {
	TaskID string
}

func (p *DeletePayload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &p.TaskID)
	}
	var obj struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	p.TaskID = obj.TaskID
	return nil
}

// MovedPayload is broadcast as task:moved.
type MovedPayload struct {
	Task      models.Task `json:"task"`
	NewStatus string      `json:"newStatus"`
	NewIndex  *int        `json:"newIndex,omitempty"`
}

// MemberPayload is broadcast as member:joined and member:left.
type MemberPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	TeamID   string `json:"teamId"`
}

// EncodeFrame marshals an outbound frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return invalid("Missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalid("Malformed payload")
	}
	return nil
}
