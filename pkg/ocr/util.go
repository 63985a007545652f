package ocr

import (
	"image"

	"github.com/disintegration/imaging"
)

// SaveImage writes img to path; format follows the extension.
func SaveImage(img image.Image, path string) error {
	return imaging.Save(img, path)
}

// Snippet returns a shortened version of text for logging.
func Snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
