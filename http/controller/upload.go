package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/service"
	"github.com/tnqbao/gau-property-media/utils"
)

// readUploads loads every multipart file under field into memory. Files over the
// configured size limit are rejected without being read.
func (ctrl *Controller) readUploads(c *gin.Context, field string) ([]service.UploadFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, io.EOF) {
			return nil, service.ErrNoFiles
		}
		if errors.Is(err, multipart.ErrMessageTooLarge) {
			return nil, fmt.Errorf("%w: request body", service.ErrFileTooLarge)
		}
		return nil, fmt.Errorf("failed to parse multipart form: %w", err)
	}

	headers := form.File[field]
	maxBytes := ctrl.Config.EnvConfig.Image.MaxUploadBytes
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if maxBytes > 0 && fh.Size > maxBytes {
			return nil, fmt.Errorf("%w: %q", service.ErrFileTooLarge, fh.Filename)
		}
		data, err := readFileHeader(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, service.UploadFile{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, nil
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", fh.Filename, err)
	}
	return data, nil
}

// respondUploadError renders pipeline errors. It returns false for errors that are not
// caused by the upload itself.
func respondUploadError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, entity.ErrUnsupportedImageFormat):
		utils.JSON400(c, "Unsupported image format: only .jpg, .jpeg and .png images are accepted")
	case errors.Is(err, service.ErrNoFiles):
		utils.JSON400(c, "At least one image is required")
	case errors.Is(err, service.ErrTooManyFiles):
		utils.JSON400(c, err.Error())
	case errors.Is(err, service.ErrFileTooLarge):
		utils.JSON413(c, err.Error())
	default:
		return false
	}
	return true
}

// loadUploads reads and validates the images of a request, rendering a 4xx on failure.
func (ctrl *Controller) loadUploads(ctx context.Context, c *gin.Context, field string, required bool) ([]service.UploadFile, bool) {
	files, err := ctrl.readUploads(c, field)
	if err == nil && len(files) == 0 && !required {
		return nil, true
	}
	if err == nil {
		err = ctrl.Pipeline.ValidateUploads(files)
	}
	if err != nil {
		if errors.Is(err, service.ErrNoFiles) && !required {
			return nil, true
		}
		ctrl.Infra.Logger.WarningWithContextf(ctx, "[Upload] Rejected upload: %v", err)
		if !respondUploadError(c, err) {
			utils.JSON400(c, "Invalid multipart form")
		}
		return nil, false
	}
	return files, true
}
