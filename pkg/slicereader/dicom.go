package slicereader

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"ctslicesto3d/internal/models"
)

// DICOMDecoder reads the first frame of a DICOM file together with the
// ordering, rescale and geometry attributes. Attributes that are missing or
// unparseable are left unset rather than failing the slice.
type DICOMDecoder struct{}

// Decode parses the file at path.
func (DICOMDecoder) Decode(path string) (*models.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing dicom: %w", err)
	}
	return sliceFromDataset(&ds, path)
}

func sliceFromDataset(ds *dicom.Dataset, name string) (*models.Slice, error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("no pixel data: %w", err)
	}

	var info dicom.PixelDataInfo
	switch v := el.Value.GetValue().(type) {
	case dicom.PixelDataInfo:
		info = v
	case *dicom.PixelDataInfo:
		info = *v
	default:
		return nil, fmt.Errorf("unexpected pixel data value %T", v)
	}
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("pixel data holds no frames")
	}

	s, err := sliceFromFrame(info.Frames[0])
	if err != nil {
		return nil, err
	}
	s.Name = name

	// Ordering keys
	if pos, ok := floatAt(ds, tag.ImagePositionPatient, 2); ok {
		s.Position = &pos
	}
	if idx, ok := intAt(ds, tag.InstanceNumber, 0); ok {
		s.Index = &idx
	}
	if uid := stringsOf(ds, tag.SOPInstanceUID); len(uid) > 0 {
		s.UID = strings.TrimSpace(uid[0])
	}

	// Rescale parameters default to identity individually
	slope, hasSlope := floatAt(ds, tag.RescaleSlope, 0)
	intercept, hasIntercept := floatAt(ds, tag.RescaleIntercept, 0)
	if hasSlope || hasIntercept {
		if !hasSlope {
			slope = 1
		}
		s.Rescale = &models.Rescale{Slope: slope, Intercept: intercept}
	}

	// Geometry
	rowSpacing, okRow := floatAt(ds, tag.PixelSpacing, 0)
	colSpacing, okCol := floatAt(ds, tag.PixelSpacing, 1)
	if okRow && okCol {
		s.PixelSpacing = &[2]float64{rowSpacing, colSpacing}
	}
	if thickness, ok := floatAt(ds, tag.SliceThickness, 0); ok {
		s.Thickness = &thickness
	}

	return s, nil
}

func sliceFromFrame(fr *frame.Frame) (*models.Slice, error) {
	if fr.Encapsulated {
		img, err := fr.GetImage()
		if err != nil {
			return nil, fmt.Errorf("decoding encapsulated frame: %w", err)
		}
		return sliceFromImage(img), nil
	}

	nf := fr.NativeData
	if nf == nil {
		return nil, fmt.Errorf("native frame is empty")
	}
	rows, cols := nf.Rows(), nf.Cols()
	samples := nf.SamplesPerPixel()
	if samples < 1 {
		samples = 1
	}

	s := &models.Slice{
		Rows:    rows,
		Cols:    cols,
		Samples: samples,
		Pixels:  make([]float64, rows*cols*samples),
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			px, err := nf.GetPixel(x, y)
			if err != nil {
				return nil, fmt.Errorf("reading pixel (%d,%d): %w", x, y, err)
			}
			base := (y*cols + x) * samples
			for c := 0; c < samples && c < len(px); c++ {
				s.Pixels[base+c] = float64(px[c])
			}
		}
	}
	return s, nil
}

// sliceFromImage stores a decoded frame. Gray images become a single
// channel slice; color images keep their 8-bit R, G and B samples
// interleaved so assembly can select the first channel.
func sliceFromImage(img image.Image) *models.Slice {
	b := img.Bounds()
	s := &models.Slice{
		Rows: b.Dy(),
		Cols: b.Dx(),
	}
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		s.Samples = 1
		s.Pixels = imageToFloat(img)
		return s
	}

	s.Samples = 3
	s.Pixels = make([]float64, 0, s.Rows*s.Cols*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			s.Pixels = append(s.Pixels, float64(r>>8), float64(g>>8), float64(bl>>8))
		}
	}
	return s
}

func stringsOf(ds *dicom.Dataset, t tag.Tag) []string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el.Value == nil {
		return nil
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		return v
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out
	case []float64:
		out := make([]string, len(v))
		for i, f := range v {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return out
	}
	return nil
}

func floatAt(ds *dicom.Dataset, t tag.Tag, i int) (float64, bool) {
	vals := stringsOf(ds, t)
	// Some writers pack multi-valued strings into one backslash separated value
	if len(vals) == 1 && strings.Contains(vals[0], `\`) {
		vals = strings.Split(vals[0], `\`)
	}
	if i >= len(vals) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(vals[i]), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func intAt(ds *dicom.Dataset, t tag.Tag, i int) (int, bool) {
	vals := stringsOf(ds, t)
	if i >= len(vals) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(vals[i]))
	if err != nil {
		return 0, false
	}
	return n, true
}
