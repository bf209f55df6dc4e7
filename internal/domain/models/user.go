// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a board member account.
//
// NOTE:
//   - CurrentTeam is the authoritative team binding. Tokens never carry a
//     team; the realtime layer reads this field when a connection opens.
type User struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Username     string              `bson:"username" json:"username"`
	Email        string              `bson:"email" json:"email"`
	PasswordHash string              `bson:"password_hash" json:"-"`
	CurrentTeam  *primitive.ObjectID `bson:"current_team,omitempty" json:"currentTeam,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}
