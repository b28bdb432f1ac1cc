// Package slicereader lists per-slice scan files and decodes them into
// models.Slice values. Decoding failures of individual items are reported as
// diagnostics so that assembly can continue with the readable slices.
package slicereader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperr "ctslicesto3d/internal/errors"
	"ctslicesto3d/internal/logger"
	"ctslicesto3d/internal/models"
)

const stageRead = "read"

// Item is one decodable entry of a source.
type Item struct {
	Name   string
	Decode func(ctx context.Context) (*models.Slice, error)
}

// Source yields the decodable items of an input.
type Source interface {
	Items(ctx context.Context) ([]Item, error)
}

// Decoder turns a file into a slice.
type Decoder interface {
	Decode(path string) (*models.Slice, error)
}

// Directory is a Source backed by a directory of scan files. Files with a
// .dcm/.dicom extension or no extension are decoded as DICOM, common raster
// formats as images; other files are ignored.
type Directory struct {
	Path      string
	Recursive bool

	// DICOM and Image override the default decoders when set.
	DICOM Decoder
	Image Decoder
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// Items lists the candidate files in lexical order.
func (d *Directory) Items(ctx context.Context) ([]Item, error) {
	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNotFound, stageRead, err, "input directory %s", d.Path)
	}
	if !info.IsDir() {
		return nil, apperr.New(apperr.CodeNotFound, stageRead, "%s is not a directory", d.Path)
	}

	dicomDec := d.DICOM
	if dicomDec == nil {
		dicomDec = DICOMDecoder{}
	}
	imageDec := d.Image
	if imageDec == nil {
		imageDec = ImageDecoder{}
	}

	var paths []string
	walk := func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != d.Path && !d.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".") {
			return nil
		}
		paths = append(paths, path)
		return nil
	}
	if err := filepath.WalkDir(d.Path, walk); err != nil {
		return nil, apperr.Wrap(apperr.CodeNotFound, stageRead, err, "listing %s", d.Path)
	}
	sort.Strings(paths)

	var items []Item
	for _, p := range paths {
		dec := decoderFor(p, dicomDec, imageDec)
		if dec == nil {
			continue
		}
		path := p
		items = append(items, Item{
			Name: path,
			Decode: func(context.Context) (*models.Slice, error) {
				return dec.Decode(path)
			},
		})
	}

	if len(items) == 0 {
		return nil, apperr.New(apperr.CodeNotFound, stageRead, "no slice files in %s", d.Path)
	}
	return items, nil
}

func decoderFor(path string, dicomDec, imageDec Decoder) Decoder {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".dcm" || ext == ".dicom" || ext == "":
		return dicomDec
	case imageExtensions[ext]:
		return imageDec
	}
	return nil
}

// Static is a Source over already decoded slices.
type Static []*models.Slice

// Items returns one item per slice.
func (s Static) Items(context.Context) ([]Item, error) {
	if len(s) == 0 {
		return nil, apperr.New(apperr.CodeNotFound, stageRead, "no slices")
	}
	items := make([]Item, len(s))
	for i, sl := range s {
		sl := sl
		name := sl.Name
		if name == "" {
			name = fmt.Sprintf("slice-%d", i)
		}
		items[i] = Item{
			Name:   name,
			Decode: func(context.Context) (*models.Slice, error) { return sl, nil },
		}
	}
	return items, nil
}

// Failure records one item that could not be decoded.
type Failure struct {
	Name string
	Err  error
}

// Diagnostics lists the items skipped while reading.
type Diagnostics struct {
	Failures []Failure
}

// Err combines the failures, or returns nil when every item decoded.
func (d *Diagnostics) Err() error {
	if d == nil {
		return nil
	}
	var err error
	for _, f := range d.Failures {
		err = multierr.Append(err, apperr.Wrap(apperr.CodeDecodeFailure, stageRead, f.Err, "%s", f.Name))
	}
	return err
}

// ReadAll decodes every item of src using up to workers goroutines.
// Items that fail to decode are logged, skipped and listed in the returned
// Diagnostics. The decoded slices keep the order of src's items.
func ReadAll(ctx context.Context, src Source, workers int, log *zap.Logger) ([]*models.Slice, *Diagnostics, error) {
	log = logger.OrNop(log)

	items, err := src.Items(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, apperr.New(apperr.CodeNotFound, stageRead, "source is empty")
	}

	if workers < 1 {
		workers = 1
	}

	decoded := make([]*models.Slice, len(items))
	failed := make([]error, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := item.Decode(gctx)
			if err == nil {
				err = validate(s)
			}
			if err != nil {
				failed[i] = err
				return nil
			}
			if s.Name == "" {
				named := *s
				named.Name = item.Name
				s = &named
			}
			decoded[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	diag := &Diagnostics{}
	slices := make([]*models.Slice, 0, len(items))
	for i, item := range items {
		if failed[i] != nil {
			log.Warn("skipping unreadable slice", zap.String("item", item.Name), zap.Error(failed[i]))
			diag.Failures = append(diag.Failures, Failure{Name: item.Name, Err: failed[i]})
			continue
		}
		slices = append(slices, decoded[i])
	}

	if len(slices) == 0 {
		return nil, diag, apperr.Wrap(apperr.CodeEmptyInput, stageRead, diag.Err(),
			"none of %d items could be decoded", len(items))
	}

	log.Debug("decoded slices", zap.Int("decoded", len(slices)), zap.Int("skipped", len(diag.Failures)))
	return slices, diag, nil
}

func validate(s *models.Slice) error {
	if s == nil {
		return fmt.Errorf("decoder returned no slice")
	}
	if s.Rows <= 0 || s.Cols <= 0 {
		return fmt.Errorf("invalid pixel grid %dx%d", s.Rows, s.Cols)
	}
	if want := s.Rows * s.Cols * s.Channels(); len(s.Pixels) != want {
		return fmt.Errorf("pixel data holds %d samples, want %d", len(s.Pixels), want)
	}
	return nil
}
