package controller

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/http/controller/dto"
	"github.com/tnqbao/gau-property-media/utils"
	"gorm.io/gorm"
)

func (ctrl *Controller) CreateProperty(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] user_id not found in context")
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	var req dto.CreatePropertyRequestDTO
	if err := c.ShouldBind(&req); err != nil {
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Property] Invalid create request: %v", err)
		utils.JSON400(c, "Invalid request: "+err.Error())
		return
	}

	// Images are validated before anything is written.
	files, ok := ctrl.loadUploads(ctx, c, "images", false)
	if !ok {
		return
	}

	property := &entity.Property{
		ID:          uuid.New(),
		OwnerID:     userID,
		Title:       req.Title,
		Description: req.Description,
		Address:     req.Address,
		City:        req.City,
		State:       req.State,
		Price:       req.Price,
		Photos:      entity.Manifest{}.JSON(),
	}
	if err := ctrl.Repository.PropertyRepo.Create(property); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] Failed to create property: %v", err)
		utils.JSON500(c, "Failed to create property")
		return
	}

	response := gin.H{
		"message":  "Property created successfully",
		"property": ctrl.toPropertyResponse(property),
	}

	if len(files) > 0 {
		batch, _, err := ctrl.Pipeline.ReplaceImages(ctx, entity.ImageRoleListing, property.ID, "", files)
		if err != nil {
			ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] Failed to queue images of %s, removing it: %v", property.ID, err)
			if delErr := ctrl.Repository.PropertyRepo.Delete(property.ID); delErr != nil {
				ctrl.Infra.Logger.ErrorWithContextf(ctx, delErr, "[Property] Failed to remove %s: %v", property.ID, delErr)
			}
			utils.JSON500(c, "Failed to queue property images, please retry")
			return
		}
		response["message"] = "Property created, your images are processing"
		response["batch_id"] = batch.ID
		ctrl.Infra.Logger.InfoWithContextf(ctx, "[Property] Created %s with %d image(s) in batch %s", property.ID, len(files), batch.ID)
		utils.JSON202(c, response)
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Property] Created %s", property.ID)
	utils.JSON201(c, response)
}

func (ctrl *Controller) GetProperty(c *gin.Context) {
	ctx := c.Request.Context()
	propertyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.JSON400(c, "Invalid property id format")
		return
	}

	property, err := ctrl.Repository.PropertyRepo.FindByID(propertyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.JSON404(c, "Property not found")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] Failed to load %s: %v", propertyID, err)
		utils.JSON500(c, "Failed to load property")
		return
	}

	utils.JSON200(c, gin.H{"property": ctrl.toPropertyResponse(property)})
}

func (ctrl *Controller) ListProperties(c *gin.Context) {
	ctx := c.Request.Context()
	var query dto.ListPropertiesQueryDTO
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.JSON400(c, "Invalid query: "+err.Error())
		return
	}

	properties, total, err := ctrl.Repository.PropertyRepo.List(query.City, (query.Page-1)*query.Limit, query.Limit)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] Failed to list properties: %v", err)
		utils.JSON500(c, "Failed to list properties")
		return
	}

	items := make([]dto.PropertyResponseDTO, 0, len(properties))
	for i := range properties {
		items = append(items, ctrl.toPropertyResponse(&properties[i]))
	}
	utils.JSON200(c, gin.H{
		"properties": items,
		"total":      total,
		"page":       query.Page,
		"limit":      query.Limit,
	})
}

func (ctrl *Controller) UpdateProperty(c *gin.Context) {
	ctx := c.Request.Context()
	property, ok := ctrl.ownedProperty(c)
	if !ok {
		return
	}

	var req dto.UpdatePropertyRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.JSON400(c, "Invalid request: "+err.Error())
		return
	}
	if req.Title != nil {
		property.Title = *req.Title
	}
	if req.Description != nil {
		property.Description = *req.Description
	}
	if req.Address != nil {
		property.Address = *req.Address
	}
	if req.City != nil {
		property.City = *req.City
	}
	if req.State != nil {
		property.State = *req.State
	}
	if req.Price != nil {
		property.Price = *req.Price
	}

	if err := ctrl.Repository.PropertyRepo.Update(property); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] Failed to update %s: %v", property.ID, err)
		utils.JSON500(c, "Failed to update property")
		return
	}

	utils.JSON200(c, gin.H{
		"message":  "Property updated successfully",
		"property": ctrl.toPropertyResponse(property),
	})
}

// ReplacePropertyImages swaps the listing images. The old images stay visible until
// every new one is processed.
func (ctrl *Controller) ReplacePropertyImages(c *gin.Context) {
	ctx := c.Request.Context()
	files, ok := ctrl.loadUploads(ctx, c, "images", true)
	if !ok {
		return
	}

	property, ok := ctrl.ownedProperty(c)
	if !ok {
		return
	}

	batch, handles, err := ctrl.Pipeline.ReplaceImages(ctx, entity.ImageRoleListing, property.ID, "", files)
	if err != nil {
		if respondUploadError(c, err) {
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] Failed to queue images for %s: %v", property.ID, err)
		utils.JSON500(c, "Failed to queue images")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Property] Queued %d image(s) for %s in batch %s", len(handles), property.ID, batch.ID)
	utils.JSON202(c, gin.H{
		"message":  "Your images are processing",
		"batch_id": batch.ID,
		"tasks":    handles,
	})
}

func (ctrl *Controller) DeleteProperty(c *gin.Context) {
	ctx := c.Request.Context()
	property, ok := ctrl.ownedProperty(c)
	if !ok {
		return
	}

	handle, err := ctrl.Pipeline.DeleteImages(ctx, entity.ImageRoleListing, property.ID)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] Failed to release images of %s: %v", property.ID, err)
		utils.JSON500(c, "Failed to delete property images")
		return
	}

	if err := ctrl.Repository.PropertyRepo.Delete(property.ID); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] Failed to delete %s: %v", property.ID, err)
		utils.JSON500(c, "Failed to delete property")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[Property] Deleted %s (cleanup task %q)", property.ID, handle.TaskID)
	utils.JSON200(c, gin.H{"message": "Property deleted successfully"})
}

// ownedProperty loads the :id property of the caller, rendering 400/401/404 on failure.
func (ctrl *Controller) ownedProperty(c *gin.Context) (*entity.Property, bool) {
	ctx := c.Request.Context()
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return nil, false
	}

	propertyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.JSON400(c, "Invalid property id format")
		return nil, false
	}

	property, err := ctrl.Repository.PropertyRepo.FindByIDAndOwnerID(propertyID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctrl.Infra.Logger.WarningWithContextf(ctx, "[Property] %s not found for user %s", propertyID, userID)
			utils.JSON404(c, "Property not found")
			return nil, false
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Property] Failed to load %s: %v", propertyID, err)
		utils.JSON500(c, "Failed to load property")
		return nil, false
	}
	return property, true
}

func (ctrl *Controller) toPropertyResponse(p *entity.Property) dto.PropertyResponseDTO {
	return dto.PropertyResponseDTO{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		Description: p.Description,
		Address:     p.Address,
		City:        p.City,
		State:       p.State,
		Price:       p.Price,
		Images:      ctrl.Pipeline.ManifestToURLs(p.Photos, entity.ImageRoleListing),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
