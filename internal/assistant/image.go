package assistant

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/tOgg1/pagechat/internal/models"
)

// MaxImageBytes bounds inline image payloads.
const MaxImageBytes = 4 << 20

// Image errors.
var (
	ErrImageTooLarge = errors.New("image exceeds inline size limit")
	ErrNotAnImage    = errors.New("file is not an image")
)

// LoadImage reads an image file for inline upload. The MIME type is sniffed
// from the content.
func LoadImage(path string) (*models.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > MaxImageBytes {
		return nil, fmt.Errorf("%s: %w", path, ErrImageTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return NewImage(data)
}

// NewImage wraps raw image bytes.
func NewImage(data []byte) (*models.Image, error) {
	if len(data) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: detected %s", ErrNotAnImage, mimeType)
	}
	return &models.Image{MIMEType: mimeType, Data: data}, nil
}
