package renderer

import (
	"fmt"
	"image"
	"image/png"
	"os"
)

// Write a rendered frame to path as a PNG image.
func SaveFrame(path string, frame image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("renderer: could not create %s: %w", path, err)
	}

	if err = png.Encode(f, frame); err != nil {
		f.Close()
		return fmt.Errorf("renderer: could not encode png: %w", err)
	}
	return f.Close()
}
