package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID                   primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Name                 string              `bson:"name" json:"name"`
	Email                string              `bson:"email" json:"email"`
	PasswordHash         string              `bson:"password_hash" json:"-"`
	City                 string              `bson:"city" json:"city"`
	PhoneNumber          string              `bson:"phone_number,omitempty" json:"-"`
	TokenBalance         int                 `bson:"token_balance" json:"token_balance"`
	IsActiveHelper       bool                `bson:"is_active_helper" json:"is_active_helper"`
	CurrentActiveRequest *primitive.ObjectID `bson:"current_active_request" json:"current_active_request,omitempty"`
	CreatedAt            time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time           `bson:"updated_at" json:"updated_at"`
}

// Profile is the user subset exposed to other parties of a request.
type Profile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	City  string `json:"city"`
}

// Profile returns the public view of the user.
func (u *User) Profile() Profile {
	return Profile{
		ID:    u.ID.Hex(),
		Name:  u.Name,
		Email: u.Email,
		City:  u.City,
	}
}
