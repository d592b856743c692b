package utils

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-property-media/entity"
)

const (
	stagingKeyLength   = 12
	directoryKeyLength = 14
	directoryLayout    = "15-04-05_02-January-2006"
	maxOwnerLabel      = 32
)

var allowedImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// now is replaced in tests.
var now = time.Now

// ValidateImageExtension returns the lower-cased extension of filename when it is an accepted image type.
func ValidateImageExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", entity.ErrUnsupportedImageFormat, filename)
	}
	return ext, nil
}

// NewStagingKey returns a random 12 character key carrying the original file's extension.
// The key is also the filename the processed image is stored under.
func NewStagingKey(originalFilename string) (string, error) {
	ext, err := ValidateImageExtension(originalFilename)
	if err != nil {
		return "", err
	}
	return randomHex(stagingKeyLength) + ext, nil
}

// NewBatchDirectory returns "[label_]<random>_<HH-MM-SS>_<DD-Month-YYYY>/" using UTC time.
func NewBatchDirectory(ownerLabel string) string {
	dir := randomHex(directoryKeyLength) + "_" + now().UTC().Format(directoryLayout) + "/"
	if label := sanitizeLabel(ownerLabel); label != "" {
		return label + "_" + dir
	}
	return dir
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(label)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
		if b.Len() >= maxOwnerLabel {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}
