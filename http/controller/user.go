package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/http/controller/dto"
	"github.com/tnqbao/gau-property-media/utils"
)

func (ctrl *Controller) GetMe(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}

	ctrl.Infra.Logger.DebugWithContextf(ctx, "[User] Loaded profile of %s", user.ID)
	utils.JSON200(c, gin.H{"user": ctrl.toUserResponse(user)})
}

func (ctrl *Controller) UpdateProfilePhoto(c *gin.Context) {
	ctrl.replaceUserImage(c, entity.ImageRoleProfile)
}

func (ctrl *Controller) UpdateCoverPhoto(c *gin.Context) {
	ctrl.replaceUserImage(c, entity.ImageRoleCover)
}

func (ctrl *Controller) DeleteProfilePhoto(c *gin.Context) {
	ctrl.deleteUserImage(c, entity.ImageRoleProfile)
}

func (ctrl *Controller) DeleteCoverPhoto(c *gin.Context) {
	ctrl.deleteUserImage(c, entity.ImageRoleCover)
}

func (ctrl *Controller) replaceUserImage(c *gin.Context, role entity.ImageRole) {
	ctx := c.Request.Context()
	files, ok := ctrl.loadUploads(ctx, c, "image", true)
	if !ok {
		return
	}
	if len(files) > 1 {
		utils.JSON400(c, "Only one image can be uploaded")
		return
	}

	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}

	// Profile directories carry the username; cover directories do not.
	label := ""
	if role == entity.ImageRoleProfile {
		label = user.Username
	}

	batch, _, err := ctrl.Pipeline.ReplaceImages(ctx, role, user.ID, label, files)
	if err != nil {
		if respondUploadError(c, err) {
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[User] Failed to queue %s image for %s: %v", role, user.ID, err)
		utils.JSON500(c, "Failed to queue image")
		return
	}

	ctrl.Infra.Logger.InfoWithContextf(ctx, "[User] Queued %s image for %s in batch %s", role, user.ID, batch.ID)
	utils.JSON202(c, gin.H{
		"message":  "Your image is processing",
		"batch_id": batch.ID,
	})
}

func (ctrl *Controller) deleteUserImage(c *gin.Context, role entity.ImageRole) {
	ctx := c.Request.Context()
	user, ok := ctrl.currentUser(c)
	if !ok {
		return
	}

	if _, err := ctrl.Pipeline.DeleteImages(ctx, role, user.ID); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[User] Failed to delete %s image of %s: %v", role, user.ID, err)
		utils.JSON500(c, "Failed to delete image")
		return
	}

	utils.JSON200(c, gin.H{"message": "Image deleted successfully"})
}

// currentUser returns the local row of the authenticated user, creating it on first use.
func (ctrl *Controller) currentUser(c *gin.Context) (*entity.User, bool) {
	ctx := c.Request.Context()
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return nil, false
	}

	username := c.GetString("username")
	if username == "" {
		username = userID.String()
	}

	user, err := ctrl.Repository.UserRepo.FindOrCreate(userID, username)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[User] Failed to load %s: %v", userID, err)
		utils.JSON500(c, "Failed to load user")
		return nil, false
	}
	return user, true
}

func (ctrl *Controller) toUserResponse(u *entity.User) dto.UserResponseDTO {
	return dto.UserResponseDTO{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		ProfilePhoto: ctrl.Pipeline.ManifestToURLs(u.ProfilePhoto, entity.ImageRoleProfile),
		CoverPhoto:   ctrl.Pipeline.ManifestToURLs(u.CoverPhoto, entity.ImageRoleCover),
	}
}

