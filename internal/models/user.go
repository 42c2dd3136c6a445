package models

import (
	"github.com/golang-jwt/jwt/v4"
)

// User is the identity record owned by the account service. This backend
// only reads it to resolve display metadata.
type User struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name"`
	Email       string  `json:"email" gorm:"uniqueIndex"`
	AvatarURL   string  `json:"avatar_url"`
	Role        string  `json:"role" gorm:"size:20"` // admin, employee
	FirebaseUID *string `json:"firebase_uid,omitempty" gorm:"uniqueIndex"`
}

// UserCompact is the display shape attached to conversations and notifications
type UserCompact struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

func (u *User) ToCompact() UserCompact {
	return UserCompact{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}
