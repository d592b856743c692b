package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-property-media/entity"
)

type BatchImageResponseDTO struct {
	Filename  string             `json:"filename"`
	Status    entity.BatchStatus `json:"status"`
	Attempts  int                `json:"attempts"`
	LastError string             `json:"last_error,omitempty"`
}

type BatchResponseDTO struct {
	ID            uuid.UUID               `json:"id"`
	Role          entity.ImageRole        `json:"role"`
	OwnerID       uuid.UUID               `json:"owner_id"`
	Status        entity.BatchStatus      `json:"status"`
	FailureReason string                  `json:"failure_reason,omitempty"`
	Deadline      time.Time               `json:"deadline"`
	CompletedAt   *time.Time              `json:"completed_at,omitempty"`
	Images        []BatchImageResponseDTO `json:"images"`
	URLs          []string                `json:"urls,omitempty"`
}

type UserResponseDTO struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	ProfilePhoto []string  `json:"profile_photo"`
	CoverPhoto   []string  `json:"cover_photo"`
}
