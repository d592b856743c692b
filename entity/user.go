package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type User struct {
	ID           uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Username     string         `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	Email        string         `json:"email" gorm:"type:varchar(255);uniqueIndex"`
	ProfilePhoto datatypes.JSON `json:"profile_photo" gorm:"type:jsonb"`
	CoverPhoto   datatypes.JSON `json:"cover_photo" gorm:"type:jsonb"`
	CreatedAt    time.Time      `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}
