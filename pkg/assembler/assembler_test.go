package assembler

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"go.uber.org/zap/zaptest"

	apperr "ctslicesto3d/internal/errors"
	"ctslicesto3d/internal/models"
	"ctslicesto3d/pkg/slicereader"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

// filled creates a rows x cols slice with every sample set to value.
func filled(name string, rows, cols int, value float64) *models.Slice {
	px := make([]float64, rows*cols)
	for i := range px {
		px[i] = value
	}
	return &models.Slice{Name: name, Rows: rows, Cols: cols, Pixels: px}
}

func TestOrderByPosition(t *testing.T) {
	positions := []float64{12.5, -3, 7, 0, 100, 2.25}
	var slices []*models.Slice
	for i, p := range positions {
		s := filled(string(rune('a'+i)), 1, 1, p)
		s.Position = floatPtr(p)
		// Indices disagree with positions and must be ignored
		s.Index = intPtr(len(positions) - i)
		slices = append(slices, s)
	}

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 5; trial++ {
		rng.Shuffle(len(slices), func(i, j int) { slices[i], slices[j] = slices[j], slices[i] })

		vol, err := New(2, zaptest.NewLogger(t)).Assemble(context.Background(), slices)
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		for d := 1; d < vol.Depth; d++ {
			if vol.At(d-1, 0, 0) >= vol.At(d, 0, 0) {
				t.Fatalf("trial %d: plane %d (%f) not after plane %d (%f)",
					trial, d, vol.At(d, 0, 0), d-1, vol.At(d-1, 0, 0))
			}
		}
	}
}

func TestOrderByIndex(t *testing.T) {
	var slices []*models.Slice
	for _, idx := range []int{5, 1, 10, 3} {
		s := filled("", 1, 1, float64(idx))
		s.Index = intPtr(idx)
		s.UID = "zzz"
		slices = append(slices, s)
	}

	ordered := Order(slices)
	expected := []int{1, 3, 5, 10}
	for i, s := range ordered {
		if *s.Index != expected[i] {
			t.Errorf("position %d: expected index %d, got %d", i, expected[i], *s.Index)
		}
	}
	if *slices[0].Index != 5 {
		t.Error("Order must not reorder its input")
	}
}

func TestOrderMixedKeys(t *testing.T) {
	byUID := filled("u", 1, 1, 0)
	byUID.UID = "1.2.3"
	byUID2 := filled("v", 1, 1, 0)
	byUID2.UID = "1.2.10"
	byIndex := filled("i", 1, 1, 0)
	byIndex.Index = intPtr(-4)
	byPosition := filled("p", 1, 1, 0)
	byPosition.Position = floatPtr(2.5)
	noKey := filled("n", 1, 1, 0)

	ordered := Order([]*models.Slice{byUID, byPosition, noKey, byUID2, byIndex})
	var names string
	for _, s := range ordered {
		names += s.Name
	}
	// numeric keys first (-4, 0, 2.5), then identifiers lexicographically
	if names != "inpvu" {
		t.Errorf("Expected order inpvu, got %s", names)
	}
}

func TestOrderTieBreaksOnName(t *testing.T) {
	a := filled("b.dcm", 1, 1, 0)
	a.Position = floatPtr(1)
	b := filled("a.dcm", 1, 1, 0)
	b.Position = floatPtr(1)

	ordered := Order([]*models.Slice{a, b})
	if ordered[0].Name != "a.dcm" {
		t.Errorf("Expected a.dcm first on equal positions, got %s", ordered[0].Name)
	}
}

func TestKeyOf(t *testing.T) {
	testCases := []struct {
		name   string
		slice  *models.Slice
		source KeySource
	}{
		{"position wins", &models.Slice{Position: floatPtr(1), Index: intPtr(2), UID: "x"}, KeyPosition},
		{"index before uid", &models.Slice{Index: intPtr(2), UID: "x"}, KeyIndex},
		{"uid last", &models.Slice{UID: "x"}, KeyUID},
		{"nothing", &models.Slice{}, KeyNone},
	}

	for _, tc := range testCases {
		if got := KeyOf(tc.slice).Source; got != tc.source {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.source, got)
		}
	}
}

func TestFootprintUnification(t *testing.T) {
	slices := []*models.Slice{
		filled("0", 4, 4, 1),
		filled("1", 6, 6, 2),
		filled("2", 4, 4, 3),
	}
	for i, s := range slices {
		s.Index = intPtr(i)
	}

	vol, err := New(3, nil).Assemble(context.Background(), slices)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if vol.Shape() != [3]int{3, 6, 6} {
		t.Fatalf("Expected shape (3,6,6), got %v", vol.Shape())
	}

	for _, d := range []int{0, 2} {
		for r := 0; r < 6; r++ {
			for c := 0; c < 6; c++ {
				inside := r >= 1 && r <= 4 && c >= 1 && c <= 4
				want := 0.0
				if inside {
					want = float64(d + 1)
				}
				if got := vol.At(d, r, c); got != want {
					t.Errorf("plane %d (%d,%d): expected %f, got %f", d, r, c, want, got)
				}
				if vol.IsPadding(d, r, c) == inside {
					t.Errorf("plane %d (%d,%d): padding flag wrong", d, r, c)
				}
			}
		}
	}
	for i, v := range vol.Plane(1) {
		if v != 2 {
			t.Fatalf("plane 1 cell %d: expected 2, got %f", i, v)
		}
	}
}

func TestFootprintOddDifferenceUsesFloor(t *testing.T) {
	slices := []*models.Slice{filled("big", 5, 4, 0), filled("small", 2, 1, 9)}
	slices[0].Index = intPtr(0)
	slices[1].Index = intPtr(1)

	vol, err := New(1, nil).Assemble(context.Background(), slices)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	fp := vol.Footprints[1]
	if fp.Top != 1 || fp.Left != 1 {
		t.Errorf("Expected offset (1,1), got (%d,%d)", fp.Top, fp.Left)
	}
	if vol.At(1, 1, 1) != 9 || vol.At(1, 2, 1) != 9 || vol.At(1, 3, 1) != 0 {
		t.Error("Small slice not embedded at floor offsets")
	}
}

func TestRescale(t *testing.T) {
	s := filled("ct", 1, 1, 100)
	s.Rescale = &models.Rescale{Slope: 2, Intercept: -1000}

	vol, err := New(1, nil).Assemble(context.Background(), []*models.Slice{s})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := vol.At(0, 0, 0); got != -800 {
		t.Errorf("Expected -800, got %f", got)
	}
	if s.Pixels[0] != 100 {
		t.Error("Assemble must not modify slice pixels")
	}
}

func TestFirstChannelOnly(t *testing.T) {
	s := &models.Slice{Rows: 1, Cols: 2, Samples: 3, Pixels: []float64{10, 20, 30, 40, 50, 60}}

	vol, err := New(1, nil).Assemble(context.Background(), []*models.Slice{s})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if vol.At(0, 0, 0) != 10 || vol.At(0, 0, 1) != 40 {
		t.Errorf("Expected first channel (10, 40), got (%f, %f)", vol.At(0, 0, 0), vol.At(0, 0, 1))
	}
}

func TestDeriveSpacing(t *testing.T) {
	withGeometry := func(v float64) *models.Slice {
		return &models.Slice{PixelSpacing: &[2]float64{v, v}, Thickness: floatPtr(v)}
	}

	testCases := []struct {
		name     string
		slices   []*models.Slice
		expected models.Spacing
	}{
		{
			name:     "median",
			slices:   []*models.Slice{withGeometry(1), withGeometry(3), withGeometry(2)},
			expected: models.Spacing{Through: 2, Row: 2, Col: 2},
		},
		{
			name: "incomplete geometry ignored",
			slices: []*models.Slice{
				withGeometry(0.5),
				{PixelSpacing: &[2]float64{9, 9}},
				{Thickness: floatPtr(9)},
			},
			expected: models.Spacing{Through: 0.5, Row: 0.5, Col: 0.5},
		},
		{
			name: "axes independent",
			slices: []*models.Slice{
				{PixelSpacing: &[2]float64{0.7, 0.8}, Thickness: floatPtr(2.5)},
			},
			expected: models.Spacing{Through: 2.5, Row: 0.7, Col: 0.8},
		},
		{
			name: "non-positive geometry ignored",
			slices: []*models.Slice{
				{PixelSpacing: &[2]float64{0.7, 0.7}, Thickness: floatPtr(0)},
				{PixelSpacing: &[2]float64{-1, 0.7}, Thickness: floatPtr(2)},
				{PixelSpacing: &[2]float64{math.NaN(), 0.7}, Thickness: floatPtr(2)},
				withGeometry(1.5),
				{},
			},
			expected: models.Spacing{Through: 1.5, Row: 1.5, Col: 1.5},
		},
		{
			name: "only corrupt geometry",
			slices: []*models.Slice{
				{PixelSpacing: &[2]float64{0.7, 0.7}, Thickness: floatPtr(0)},
				{}, {},
			},
			expected: models.Spacing{Through: 1, Row: 1, Col: 1},
		},
		{
			name:     "default",
			slices:   []*models.Slice{{}, {}},
			expected: models.Spacing{Through: 1, Row: 1, Col: 1},
		},
	}

	for _, tc := range testCases {
		if got := DeriveSpacing(tc.slices); got != tc.expected {
			t.Errorf("%s: expected %+v, got %+v", tc.name, tc.expected, got)
		}
	}
}

func TestAssembleEmpty(t *testing.T) {
	_, err := New(1, nil).Assemble(context.Background(), nil)
	if !errors.Is(err, apperr.ErrEmptyInput) {
		t.Errorf("Expected EmptyInput, got %v", err)
	}
}

func TestAssembleFromSkipsBadSlices(t *testing.T) {
	good := filled("good", 2, 2, 5)
	bad := &models.Slice{Name: "bad", Rows: 2, Cols: 2}

	vol, diag, err := New(2, zaptest.NewLogger(t)).AssembleFrom(context.Background(), slicereader.Static{good, bad})
	if err != nil {
		t.Fatalf("AssembleFrom: %v", err)
	}
	if vol.Depth != 1 {
		t.Errorf("Expected 1 plane, got %d", vol.Depth)
	}
	if len(diag.Failures) != 1 || diag.Failures[0].Name != "bad" {
		t.Errorf("Expected failure for bad slice, got %+v", diag.Failures)
	}
}

func TestAssembleFromErrors(t *testing.T) {
	_, _, err := New(1, nil).AssembleFrom(context.Background(), slicereader.Static{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected NotFound for empty source, got %v", err)
	}

	_, diag, err := New(1, nil).AssembleFrom(context.Background(), slicereader.Static{{Name: "broken"}})
	if !errors.Is(err, apperr.ErrEmptyInput) {
		t.Errorf("Expected EmptyInput when nothing decodes, got %v", err)
	}
	if diag == nil || len(diag.Failures) != 1 {
		t.Errorf("Expected diagnostics alongside EmptyInput, got %+v", diag)
	}
}
