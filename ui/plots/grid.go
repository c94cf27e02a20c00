package plots

import (
	"image"
	"image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ImageGridPNG lays the images out row-major on a grid with cols columns and
// saves the result as a PNG to filePath.
//
// Each entry of images is one grayscale image, a flat row-major
// [height*width] slice of intensities in [0, 1]. Values outside the range are
// clipped. scale upscales the final grid, 1 keeps the original resolution.
func ImageGridPNG(images [][]float64, width, height, cols, scale int, filePath string) error {
	if len(images) == 0 {
		return errors.New("no images to draw")
	}
	if width <= 0 || height <= 0 || cols <= 0 || scale <= 0 {
		return errors.Errorf("invalid image grid geometry: width=%d, height=%d, cols=%d, scale=%d",
			width, height, cols, scale)
	}
	for ii, pixels := range images {
		if len(pixels) != width*height {
			return errors.Errorf("image %d has %d pixels, expected %dx%d=%d",
				ii, len(pixels), width, height, width*height)
		}
	}

	const pad = 2 // pixels between grid cells
	rows := (len(images) + cols - 1) / cols
	gridWidth := cols*width + (cols-1)*pad
	gridHeight := rows*height + (rows-1)*pad
	img := image.NewGray(image.Rect(0, 0, gridWidth, gridHeight))
	for idx, pixels := range images {
		x0 := (idx % cols) * (width + pad)
		y0 := (idx / cols) * (height + pad)
		for h := 0; h < height; h++ {
			for w := 0; w < width; w++ {
				v := pixels[h*width+w]
				if v < 0 {
					v = 0
				} else if v > 1 {
					v = 1
				}
				img.Pix[(y0+h)*img.Stride+(x0+w)] = uint8(v * 255)
			}
		}
	}

	var out image.Image = img
	if scale > 1 {
		out = imaging.Resize(img, gridWidth*scale, gridHeight*scale, imaging.NearestNeighbor)
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create image grid file %q", filePath)
	}
	if err := png.Encode(f, out); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to encode image grid to %q", filePath)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to write image grid to %q", filePath)
	}
	return nil
}
