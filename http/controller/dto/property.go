package dto

import (
	"time"

	"github.com/google/uuid"
)

// CreatePropertyRequestDTO is bound from the multipart form; images arrive as "images" files.
type CreatePropertyRequestDTO struct {
	Title       string `form:"title" binding:"required,min=3,max=255"`
	Description string `form:"description"`
	Address     string `form:"address" binding:"max=512"`
	City        string `form:"city" binding:"required,max=128"`
	State       string `form:"state" binding:"max=128"`
	Price       int64  `form:"price" binding:"gte=0"`
}

type UpdatePropertyRequestDTO struct {
	Title       *string `json:"title" binding:"omitempty,min=3,max=255"`
	Description *string `json:"description"`
	Address     *string `json:"address" binding:"omitempty,max=512"`
	City        *string `json:"city" binding:"omitempty,max=128"`
	State       *string `json:"state" binding:"omitempty,max=128"`
	Price       *int64  `json:"price" binding:"omitempty,gte=0"`
}

type ListPropertiesQueryDTO struct {
	City  string `form:"city"`
	Page  int    `form:"page,default=1" binding:"gte=1"`
	Limit int    `form:"limit,default=20" binding:"gte=1,lte=100"`
}

type PropertyResponseDTO struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Price       int64     `json:"price"`
	Images      []string  `json:"images"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
