// internal/domain/models/activity.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Activity entry types.
const (
	ActivityTaskCreated  = "task:created"
	ActivityTaskMoved    = "task:moved"
	ActivityTaskAssigned = "task:assigned"
	ActivityTaskUpdated  = "task:updated"
	ActivityTaskDeleted  = "task:deleted"
	ActivityMemberJoined = "member:joined"
	ActivityMemberLeft   = "member:left"
)

// AllActivityTypes lists every entry type.
var AllActivityTypes = []string{
	ActivityTaskCreated,
	ActivityTaskMoved,
	ActivityTaskAssigned,
	ActivityTaskUpdated,
	ActivityTaskDeleted,
	ActivityMemberJoined,
	ActivityMemberLeft,
}

// ActivityFields carries the type-specific descriptive fields of an entry.
// Only the fields relevant to the entry's type are populated.
type ActivityFields struct {
	TaskID         *primitive.ObjectID `bson:"task_id,omitempty" json:"taskId,omitempty"`
	TaskTitle      string              `bson:"task_title,omitempty" json:"taskTitle,omitempty"`
	FromStatus     string              `bson:"from_status,omitempty" json:"fromStatus,omitempty"`
	ToStatus       string              `bson:"to_status,omitempty" json:"toStatus,omitempty"`
	AssignedToUser string              `bson:"assigned_to_user,omitempty" json:"assignedToUser,omitempty"`
	MemberName     string              `bson:"member_name,omitempty" json:"memberName,omitempty"`
}

// ActivityEntry is one append-only line of a team's activity trail.
type ActivityEntry struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Type       string             `bson:"type" json:"type"`
	ActingUser primitive.ObjectID `bson:"acting_user" json:"actingUser"`
	TeamID     primitive.ObjectID `bson:"team_id" json:"teamId"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`

	ActivityFields `bson:",inline"`
}
