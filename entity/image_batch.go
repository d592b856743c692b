package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BatchStatus represents the processing state of an image batch or of a single image in it
type BatchStatus string

const (
	BatchStatusStaged      BatchStatus = "STAGED"
	BatchStatusTranscoding BatchStatus = "TRANSCODING"
	BatchStatusUploaded    BatchStatus = "UPLOADED"
	BatchStatusFailed      BatchStatus = "FAILED"
)

func (s BatchStatus) Terminal() bool {
	return s == BatchStatusUploaded || s == BatchStatusFailed
}

// ImageBatch tracks one create/update of an entity's images until every upload is confirmed.
type ImageBatch struct {
	ID                  uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Role                ImageRole      `json:"role" gorm:"type:varchar(32);not null;index"`
	OwnerID             uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Directory           string         `json:"directory" gorm:"type:varchar(255);not null;uniqueIndex"`
	Filenames           datatypes.JSON `json:"filenames" gorm:"type:jsonb;not null"`
	SupersedesDirectory string         `json:"supersedes_directory" gorm:"type:varchar(255)"`
	SupersedesFilenames datatypes.JSON `json:"supersedes_filenames" gorm:"type:jsonb"`
	Status              BatchStatus    `json:"status" gorm:"type:varchar(32);not null;default:'STAGED';index"`
	FailureReason       string         `json:"failure_reason,omitempty" gorm:"type:text"`
	CreatedAt           time.Time      `json:"created_at" gorm:"not null;autoCreateTime"`
	UpdatedAt           time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	Deadline            time.Time      `json:"deadline" gorm:"not null;index"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	// CleanupPending is set with the terminal status when objects were left unreferenced
	// and cleared once their deletion is enqueued.
	CleanupPending      bool           `json:"cleanup_pending" gorm:"not null;default:false;index"`

	Images []BatchImage `json:"images,omitempty" gorm:"foreignKey:BatchID;constraint:OnDelete:CASCADE"`
}

// BatchImage is the per-file completion record of an ImageBatch.
type BatchImage struct {
	ID        uuid.UUID   `json:"id" gorm:"type:uuid;primaryKey"`
	BatchID   uuid.UUID   `json:"batch_id" gorm:"type:uuid;not null;uniqueIndex:idx_batch_filename"`
	Filename  string      `json:"filename" gorm:"type:varchar(255);not null;uniqueIndex:idx_batch_filename"`
	Status    BatchStatus `json:"status" gorm:"type:varchar(32);not null;default:'STAGED'"`
	Attempts  int         `json:"attempts" gorm:"default:0"`
	LastError string      `json:"last_error,omitempty" gorm:"type:text"`
	UpdatedAt time.Time   `json:"updated_at" gorm:"autoUpdateTime"`
}

// Manifest returns the manifest this batch will publish once complete.
func (b *ImageBatch) Manifest() (Manifest, error) {
	return manifestFromParts(b.Directory, b.Filenames)
}

// Superseded returns the manifest the batch replaces, empty when there was none.
func (b *ImageBatch) Superseded() (Manifest, error) {
	if b.SupersedesDirectory == "" {
		return Manifest{}, nil
	}
	return manifestFromParts(b.SupersedesDirectory, b.SupersedesFilenames)
}

// Unreferenced returns the manifest whose objects a terminal batch left behind: the replaced
// manifest for an UPLOADED batch, the batch's own manifest for a FAILED one.
func (b *ImageBatch) Unreferenced() (Manifest, error) {
	switch b.Status {
	case BatchStatusUploaded:
		return b.Superseded()
	case BatchStatusFailed:
		return b.Manifest()
	default:
		return Manifest{}, nil
	}
}

// EvaluateBatch derives the batch status from its image rows. One FAILED image fails the
// batch; the batch is UPLOADED only once all expected images are.
func EvaluateBatch(images []BatchImage, expected int) BatchStatus {
	uploaded, started := 0, false
	for _, img := range images {
		switch img.Status {
		case BatchStatusFailed:
			return BatchStatusFailed
		case BatchStatusUploaded:
			uploaded++
			started = true
		case BatchStatusTranscoding:
			started = true
		}
	}

	switch {
	case uploaded >= expected:
		return BatchStatusUploaded
	case started:
		return BatchStatusTranscoding
	default:
		return BatchStatusStaged
	}
}

// NewImageBatch records a batch that will publish m, replacing supersedes once complete.
func NewImageBatch(role ImageRole, ownerID uuid.UUID, m Manifest, supersedes Manifest, deadline time.Time) *ImageBatch {
	batch := &ImageBatch{
		ID:        uuid.New(),
		Role:      role,
		OwnerID:   ownerID,
		Directory: m.Directory,
		Filenames: FilenamesJSON(m.Filenames),
		Status:    BatchStatusStaged,
		Deadline:  deadline,
	}
	if !supersedes.IsEmpty() {
		batch.SupersedesDirectory = supersedes.Directory
		batch.SupersedesFilenames = FilenamesJSON(supersedes.Filenames)
	}
	for _, f := range m.Filenames {
		batch.Images = append(batch.Images, BatchImage{
			ID:       uuid.New(),
			BatchID:  batch.ID,
			Filename: f,
			Status:   BatchStatusStaged,
		})
	}
	return batch
}

// FilenamesJSON encodes a filename list for the batch JSON columns; nil encodes as [].
func FilenamesJSON(files []string) datatypes.JSON {
	if files == nil {
		files = []string{}
	}
	raw, _ := json.Marshal(files)
	return datatypes.JSON(raw)
}
