package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email    string     `json:"email" gorm:"uniqueIndex"`
	Name     string     `json:"name"`
	DOB      *time.Time `json:"dob,omitempty"`
	Verified bool       `json:"verified" gorm:"default:false"`
	GoogleID *string    `json:"-" gorm:"uniqueIndex"` // federated subject id, unique where non-null
	Picture  string     `json:"picture,omitempty"`
}
