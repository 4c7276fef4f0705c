// Package thumbnail produces square, center-cropped image thumbnails.
package thumbnail

import (
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// Make reads the image at src and writes a size×size cover-fit, center-cropped
// copy to dst. The output format follows dst's extension.
func Make(src, dst string, size int) error {
	if size <= 0 {
		return fmt.Errorf("invalid thumbnail size %d", size)
	}

	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", src, err)
	}

	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	if err := imaging.Save(thumb, dst); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return nil
}

var encodable = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".tif": true, ".tiff": true, ".bmp": true,
}

// Encodable reports whether Make can write a file with extension ext (".png").
func Encodable(ext string) bool {
	return encodable[strings.ToLower(ext)]
}
