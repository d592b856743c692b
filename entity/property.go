package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Property struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID     uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title       string         `json:"title" gorm:"type:varchar(255);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Address     string         `json:"address" gorm:"type:varchar(512)"`
	City        string         `json:"city" gorm:"type:varchar(128);index"`
	State       string         `json:"state" gorm:"type:varchar(128)"`
	Price       int64          `json:"price"`
	Photos      datatypes.JSON `json:"photos" gorm:"type:jsonb"`
	ImageFolder string         `json:"image_folder" gorm:"type:varchar(255)"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}
