package entity

import "errors"

var (
	ErrUnsupportedImageFormat = errors.New("unsupported image format")
	ErrStagingKeyNotFound     = errors.New("staging key not found")
	ErrManifestCorrupt        = errors.New("image manifest is corrupt")
	ErrUpload                 = errors.New("upload failed")
	ErrDelete                 = errors.New("delete failed")
	ErrInvalidTask            = errors.New("invalid task")
	ErrEntityNotFound         = errors.New("entity not found")
)

// IsRetryable reports whether a task failing with err may succeed on a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrUnsupportedImageFormat),
		errors.Is(err, ErrStagingKeyNotFound),
		errors.Is(err, ErrInvalidTask),
		errors.Is(err, ErrManifestCorrupt),
		errors.Is(err, ErrEntityNotFound):
		return false
	}
	return true
}
