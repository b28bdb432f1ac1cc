package slicereader

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"ctslicesto3d/internal/models"
)

// ImageDecoder reads raster images (JPEG, PNG, TIFF, BMP) as slices. Images
// carry no geometry; the sequence index is taken from the digits of the file
// name so that slice_002.png orders before slice_010.png.
type ImageDecoder struct{}

// Decode loads the image at path.
func (ImageDecoder) Decode(path string) (*models.Slice, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}

	s := sliceFromImage(img)
	s.Name = path
	s.UID = filepath.Base(path)
	if n, ok := extractNumber(filepath.Base(path)); ok {
		s.Index = &n
	}
	return s, nil
}

// loadImage loads an image from a file
func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) (int, bool) {
	base := filepath.Base(filename)
	numStr := ""
	for _, c := range base {
		if c >= '0' && c <= '9' {
			numStr += string(c)
		}
	}

	if numStr == "" {
		return 0, false
	}
	num, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, false
	}
	return num, true
}

// imageToFloat converts an image to gray samples. 16-bit gray images keep
// their full range, everything else is reduced to 8-bit luminance.
func imageToFloat(img image.Image) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := make([]float64, width*height)

	if g16, ok := img.(*image.Gray16); ok {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				result[y*width+x] = float64(g16.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
		return result
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.GrayModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray)
			result[y*width+x] = float64(c.Y)
		}
	}
	return result
}
