// internal/domain/models/task.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task statuses. These are the board columns.
const (
	StatusToDo       = "ToDo"
	StatusInProgress = "InProgress"
	StatusDone       = "Done"
)

// Task priorities.
const (
	PriorityLow    = "Low"
	PriorityMedium = "Medium"
	PriorityHigh   = "High"
)

// AllStatuses lists the valid statuses in board order.
var AllStatuses = []string{StatusToDo, StatusInProgress, StatusDone}

// AllPriorities lists the valid priorities, lowest first.
var AllPriorities = []string{PriorityLow, PriorityMedium, PriorityHigh}

// IsValidStatus reports whether s is one of AllStatuses (exact match).
func IsValidStatus(s string) bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsValidPriority reports whether p is one of AllPriorities (exact match).
func IsValidPriority(p string) bool {
	for _, v := range AllPriorities {
		if v == p {
			return true
		}
	}
	return false
}

// Task is a card on a team's board.
//
// TeamID and CreatedBy are set once at creation and never rewritten.
// LastModifiedBy and UpdatedAt are stamped by the store from the
// mutation context of each write.
type Task struct {
	ID             primitive.ObjectID  `bson:"_id" json:"id"`
	Title          string              `bson:"title" json:"title"`
	Description    string              `bson:"description" json:"description"`
	Status         string              `bson:"status" json:"status"`
	Priority       string              `bson:"priority" json:"priority"`
	AssignedTo     string              `bson:"assigned_to,omitempty" json:"assignedTo,omitempty"`
	TeamID         primitive.ObjectID  `bson:"team_id" json:"teamId"`
	CreatedBy      primitive.ObjectID  `bson:"created_by" json:"createdBy"`
	LastModifiedBy *primitive.ObjectID `bson:"last_modified_by,omitempty" json:"lastModifiedBy,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// MutationContext identifies who is writing and when. Every task write
// carries one so the store can stamp UpdatedAt and LastModifiedBy.
type MutationContext struct {
	Actor primitive.ObjectID
	At    time.Time
}
