// internal/domain/models/team.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Team is the unit of isolation: every task and activity entry belongs to
// exactly one team, and realtime rooms are keyed by team ID.
type Team struct {
	ID            primitive.ObjectID   `bson:"_id" json:"id"`
	Name          string               `bson:"name" json:"name"`
	Code          string               `bson:"code" json:"code"`
	CodeExpiresAt time.Time            `bson:"code_expires_at" json:"codeExpiresAt"`
	IsActive      bool                 `bson:"is_active" json:"isActive"`
	CreatedBy     primitive.ObjectID   `bson:"created_by" json:"createdBy"`
	Members       []primitive.ObjectID `bson:"members" json:"members"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// HasMember reports whether userID is listed in the team's members.
func (t Team) HasMember(userID primitive.ObjectID) bool {
	for _, m := range t.Members {
		if m == userID {
			return true
		}
	}
	return false
}
