package capture

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"
)

// Thumbnail size used by source pickers
const (
	ThumbnailWidth  = 150
	ThumbnailHeight = 90
)

// Thumbnail scales img to fit inside width x height, keeping its aspect
// ratio, and returns it as a PNG data URL.
func Thumbnail(img image.Image, width, height int) (string, error) {
	if width <= 0 || height <= 0 {
		width, height = ThumbnailWidth, ThumbnailHeight
	}

	src := img.Bounds()
	if src.Empty() {
		return "", fmt.Errorf("empty image")
	}

	scale := min(float64(width)/float64(src.Dx()), float64(height)/float64(src.Dy()))
	dstW := max(1, int(float64(src.Dx())*scale))
	dstH := max(1, int(float64(src.Dy())*scale))

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
