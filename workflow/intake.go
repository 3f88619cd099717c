package workflow

import (
	"net/http"
	"path/filepath"
	"strings"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
)

// MaxUploadSize is the hard cap on an uploaded receipt image.
const MaxUploadSize = 10 << 20

// allowedImageTypes maps every accepted sniffed content type to its
// canonical file extension.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ValidateImage checks size and sniffs the payload's real content type.
// The declared file name is never trusted for type decisions.
func ValidateImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", utils.ErrUnsupportedMedia
	}
	if len(data) > MaxUploadSize {
		return "", utils.ErrPayloadTooLarge
	}
	contentType := http.DetectContentType(data)
	if _, ok := allowedImageTypes[contentType]; !ok {
		return "", utils.ErrUnsupportedMedia
	}
	return contentType, nil
}

// objectExtension prefers the uploaded file's own extension when it
// matches an accepted type, falling back to the sniffed content type.
func objectExtension(fileName string, contentType string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
		return ext
	}
	if canonical, ok := allowedImageTypes[contentType]; ok {
		return canonical
	}
	return ".bin"
}
