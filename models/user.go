package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	DisplayName  string             `bson:"display_name" json:"display_name"`
	Role         string             `bson:"role" json:"role"` // user, admin
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Skills       []string           `bson:"skills" json:"skills"`
	Bio          string             `bson:"bio,omitempty" json:"bio,omitempty"`
	OTPHash      string             `bson:"otp_hash,omitempty" json:"-"`
	OTPExpiresAt *time.Time         `bson:"otp_expires_at,omitempty" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
