package models

import "gorm.io/gorm"

type Note struct {
	gorm.Model
	UserID  uint   `json:"user_id" gorm:"index"`
	Title   string `json:"title"`
	Content string `json:"content"`
}
