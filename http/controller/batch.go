package controller

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/http/controller/dto"
	"github.com/tnqbao/gau-property-media/utils"
)

const batchListLimit = 20

// GetBatch reports the processing state of an image batch owned by the caller.
func (ctrl *Controller) GetBatch(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.JSON400(c, "Invalid batch id format")
		return
	}

	batch, err := ctrl.Repository.ImageBatchRepo.FindByID(ctx, batchID)
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			utils.JSON404(c, "Batch not found")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Batch] Failed to load %s: %v", batchID, err)
		utils.JSON500(c, "Failed to load batch")
		return
	}

	if !ctrl.ownsBatch(batch, userID) {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Batch] User %s attempted to read batch %s", userID, batchID)
		utils.JSON404(c, "Batch not found")
		return
	}

	utils.JSON200(c, gin.H{"batch": ctrl.toBatchResponse(batch)})
}

// ListPropertyBatches lists recent image batches of one of the caller's properties.
func (ctrl *Controller) ListPropertyBatches(c *gin.Context) {
	ctx := c.Request.Context()
	property, ok := ctrl.ownedProperty(c)
	if !ok {
		return
	}

	batches, err := ctrl.Repository.ImageBatchRepo.ListByOwner(ctx, property.ID, batchListLimit)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Batch] Failed to list batches of %s: %v", property.ID, err)
		utils.JSON500(c, "Failed to list batches")
		return
	}

	items := make([]dto.BatchResponseDTO, 0, len(batches))
	for i := range batches {
		items = append(items, ctrl.toBatchResponse(&batches[i]))
	}
	utils.JSON200(c, gin.H{"batches": items})
}

func (ctrl *Controller) ownsBatch(batch *entity.ImageBatch, userID uuid.UUID) bool {
	if batch.Role != entity.ImageRoleListing {
		return batch.OwnerID == userID
	}
	_, err := ctrl.Repository.PropertyRepo.FindByIDAndOwnerID(batch.OwnerID, userID)
	return err == nil
}

func (ctrl *Controller) toBatchResponse(b *entity.ImageBatch) dto.BatchResponseDTO {
	images := make([]dto.BatchImageResponseDTO, 0, len(b.Images))
	for _, img := range b.Images {
		images = append(images, dto.BatchImageResponseDTO{
			Filename:  img.Filename,
			Status:    img.Status,
			Attempts:  img.Attempts,
			LastError: img.LastError,
		})
	}

	resp := dto.BatchResponseDTO{
		ID:            b.ID,
		Role:          b.Role,
		OwnerID:       b.OwnerID,
		Status:        b.Status,
		FailureReason: b.FailureReason,
		Deadline:      b.Deadline,
		CompletedAt:   b.CompletedAt,
		Images:        images,
	}
	if b.Status == entity.BatchStatusUploaded {
		if m, err := b.Manifest(); err == nil {
			resp.URLs = ctrl.Pipeline.ManifestURLs(m, b.Role)
		}
	}
	return resp
}
