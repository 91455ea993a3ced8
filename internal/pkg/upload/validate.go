package upload

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

// MaxJewelryBytes caps a jewelry product photo at 10 MiB.
const MaxJewelryBytes = 10 * 1024 * 1024

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	// Note: SVG is intentionally excluded due to XSS risk without sanitization
}

var allowedMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var ErrFileTooLarge = errors.New("image exceeds the 10 MiB limit")
var ErrUnsupportedImage = errors.New("only JPG, JPEG, PNG and WEBP images are supported")

// ValidateImageBySniff checks the provided filename (extension) and the first
// bytes (head) against a whitelist of image types. Returns the detected mime
// or an error. The extension alone is never trusted.
func ValidateImageBySniff(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", ErrUnsupportedImage
	}

	detected := http.DetectContentType(head)
	mime := strings.ToLower(strings.TrimSpace(strings.Split(detected, ";")[0]))
	if !allowedMime[mime] {
		return "", ErrUnsupportedImage
	}
	return mime, nil
}

// ValidateSize rejects files over the jewelry photo cap.
func ValidateSize(size int64) error {
	if size > MaxJewelryBytes {
		return ErrFileTooLarge
	}
	return nil
}

// NormalizedExt returns a storage-safe lowercase extension for a filename,
// defaulting to .png when the name carries none.
func NormalizedExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return ".png"
	}
	if ext == ".jpeg" {
		return ".jpg"
	}
	return ext
}
