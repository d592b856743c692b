package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-property-media/entity"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ReasonSuperseded    = "superseded by a newer batch"
	ReasonOwnerDeleted  = "owner no longer exists"
	ReasonDeadline      = "batch deadline exceeded"
	ReasonDispatchError = "failed to dispatch transcode tasks"
)

type ImageBatchRepository struct {
	db *gorm.DB
}

func NewImageBatchRepository(db *gorm.DB) *ImageBatchRepository {
	return &ImageBatchRepository{db: db}
}

// CreateWithImages creates the batch and its image rows in one transaction
func (r *ImageBatchRepository) CreateWithImages(ctx context.Context, batch *entity.ImageBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

// FindByID finds a batch with its image rows
func (r *ImageBatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ImageBatch, error) {
	var batch entity.ImageBatch
	err := r.db.WithContext(ctx).Preload("Images").Where("id = ?", id).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: batch %s", entity.ErrEntityNotFound, id)
		}
		return nil, err
	}
	return &batch, nil
}

// ImageStatus returns the status of one file in a batch
func (r *ImageBatchRepository) ImageStatus(ctx context.Context, batchID uuid.UUID, filename string) (entity.BatchStatus, error) {
	var image entity.BatchImage
	err := r.db.WithContext(ctx).
		Select("status").
		Where("batch_id = ? AND filename = ?", batchID, filename).
		First(&image).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: image %s in batch %s", entity.ErrEntityNotFound, filename, batchID)
		}
		return "", err
	}
	return image.Status, nil
}

// MarkImageStatus records progress of one file. An UPLOADED image is never moved back,
// so duplicate deliveries cannot undo a confirmed upload.
func (r *ImageBatchRepository) MarkImageStatus(ctx context.Context, batchID uuid.UUID, filename string, status entity.BatchStatus, attempts int, lastErr string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entity.BatchImage{}).
			Where("batch_id = ? AND filename = ? AND status <> ?", batchID, filename, entity.BatchStatusUploaded).
			Updates(map[string]interface{}{
				"status":     status,
				"attempts":   attempts,
				"last_error": lastErr,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}

		if status == entity.BatchStatusTranscoding {
			return tx.Model(&entity.ImageBatch{}).
				Where("id = ? AND status = ?", batchID, entity.BatchStatusStaged).
				Updates(map[string]interface{}{
					"status":     entity.BatchStatusTranscoding,
					"updated_at": time.Now(),
				}).Error
		}
		return nil
	})
}

// FinalizeResult describes what Finalize decided for a batch.
type FinalizeResult struct {
	Batch  *entity.ImageBatch
	Status entity.BatchStatus
	// Transitioned is true only for the call that moved the batch to a terminal status.
	Transitioned bool
	// Published is the batch's own manifest.
	Published entity.Manifest
	// Replaced is the manifest the owner held before the swap; its objects are now unreferenced.
	Replaced        entity.Manifest
	ReplacedCorrupt bool
	// Stale means the batch completed but will never be published; its objects are unreferenced.
	Stale bool
}

// Finalize is the manifest write gate. Under a row lock it evaluates the batch's images and,
// once every expected image is UPLOADED, swaps the owner's manifest and marks the batch UPLOADED
// in the same transaction. Terminal batches are returned untouched.
func (r *ImageBatchRepository) Finalize(ctx context.Context, id uuid.UUID) (*FinalizeResult, error) {
	result := &FinalizeResult{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var batch entity.ImageBatch
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&batch).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: batch %s", entity.ErrEntityNotFound, id)
			}
			return err
		}
		result.Batch = &batch
		result.Status = batch.Status

		published, err := batch.Manifest()
		if err != nil {
			return err
		}
		result.Published = published

		if batch.Status.Terminal() {
			return nil
		}

		var images []entity.BatchImage
		if err := tx.Where("batch_id = ?", id).Find(&images).Error; err != nil {
			return err
		}
		batch.Images = images

		switch entity.EvaluateBatch(images, len(published.Filenames)) {
		case entity.BatchStatusFailed:
			return r.complete(tx, result, entity.BatchStatusFailed, firstFailure(images), nil)

		case entity.BatchStatusUploaded:
			// The owner row lock orders every gate and DeleteImages writing this manifest.
			manifests := NewManifestRepository(tx)
			current, err := manifests.ReadManifestForUpdate(ctx, batch.Role, batch.OwnerID)
			switch {
			case errors.Is(err, entity.ErrEntityNotFound):
				result.Stale = true
				return r.complete(tx, result, entity.BatchStatusFailed, ReasonOwnerDeleted, cleanupUpdates(nil))
			case errors.Is(err, entity.ErrManifestCorrupt):
				result.ReplacedCorrupt = true
				current = entity.Manifest{}
			case err != nil:
				return err
			}

			var newer int64
			err = tx.Model(&entity.ImageBatch{}).
				Where("role = ? AND owner_id = ? AND status = ? AND created_at > ?",
					batch.Role, batch.OwnerID, entity.BatchStatusUploaded, batch.CreatedAt).
				Count(&newer).Error
			if err != nil {
				return err
			}
			if newer > 0 {
				result.Stale = true
				return r.complete(tx, result, entity.BatchStatusFailed, ReasonSuperseded, cleanupUpdates(nil))
			}

			if err := manifests.PersistManifest(ctx, batch.Role, batch.OwnerID, published); err != nil {
				return err
			}
			if current.IsEmpty() || current.Directory == published.Directory {
				return r.complete(tx, result, entity.BatchStatusUploaded, "", nil)
			}
			result.Replaced = current
			return r.complete(tx, result, entity.BatchStatusUploaded, "", cleanupUpdates(&current))

		case entity.BatchStatusTranscoding:
			if batch.Status == entity.BatchStatusStaged {
				if err := tx.Model(&batch).Update("status", entity.BatchStatusTranscoding).Error; err != nil {
					return err
				}
				result.Status = entity.BatchStatusTranscoding
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// cleanupUpdates marks the batch as owing a deletion. replaced is recorded as the superseded
// manifest so the deletion can be re-enqueued from the row alone; nil means the batch's own objects.
func cleanupUpdates(replaced *entity.Manifest) map[string]interface{} {
	updates := map[string]interface{}{"cleanup_pending": true}
	if replaced != nil {
		updates["supersedes_directory"] = replaced.Directory
		updates["supersedes_filenames"] = entity.FilenamesJSON(replaced.Filenames)
	}
	return updates
}

func (r *ImageBatchRepository) complete(tx *gorm.DB, result *FinalizeResult, status entity.BatchStatus, reason string, extra map[string]interface{}) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":         status,
		"failure_reason": reason,
		"completed_at":   now,
		"updated_at":     now,
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := tx.Model(&entity.ImageBatch{}).Where("id = ?", result.Batch.ID).Updates(updates).Error; err != nil {
		return err
	}

	if _, ok := extra["cleanup_pending"]; ok {
		result.Batch.CleanupPending = true
	}
	if dir, ok := extra["supersedes_directory"].(string); ok {
		result.Batch.SupersedesDirectory = dir
		result.Batch.SupersedesFilenames = extra["supersedes_filenames"].(datatypes.JSON)
	}
	result.Batch.Status = status
	result.Batch.FailureReason = reason
	result.Batch.CompletedAt = &now
	result.Status = status
	result.Transitioned = true
	return nil
}

func firstFailure(images []entity.BatchImage) string {
	for _, img := range images {
		if img.Status == entity.BatchStatusFailed {
			if img.LastError != "" {
				return fmt.Sprintf("%s: %s", img.Filename, img.LastError)
			}
			return img.Filename + " failed"
		}
	}
	return "image failed"
}

// MarkFailed fails a batch that is not yet terminal. It reports whether this call changed it.
func (r *ImageBatchRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&entity.ImageBatch{}).
		Where("id = ? AND status IN ?", id, []entity.BatchStatus{entity.BatchStatusStaged, entity.BatchStatusTranscoding}).
		Updates(map[string]interface{}{
			"status":         entity.BatchStatusFailed,
			"failure_reason": reason,
			"completed_at":   now,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkCleanupDone records that the deletion a terminal batch owed has been enqueued
func (r *ImageBatchRepository) MarkCleanupDone(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&entity.ImageBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"cleanup_pending": false,
			"updated_at":      time.Now(),
		}).Error
}

// ListPending returns non-terminal batches and terminal ones still owing a cleanup, oldest first
func (r *ImageBatchRepository) ListPending(ctx context.Context, limit int) ([]entity.ImageBatch, error) {
	var batches []entity.ImageBatch
	err := r.db.WithContext(ctx).
		Where("status IN ? OR cleanup_pending = ?", []entity.BatchStatus{entity.BatchStatusStaged, entity.BatchStatusTranscoding}, true).
		Order("created_at ASC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}

// ListByOwner returns the most recent batches of an owner
func (r *ImageBatchRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]entity.ImageBatch, error) {
	var batches []entity.ImageBatch
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}
