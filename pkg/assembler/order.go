package assembler

import (
	"sort"

	"ctslicesto3d/internal/models"
)

// KeySource names the metadata field a sort key was derived from.
type KeySource string

const (
	KeyPosition KeySource = "position"
	KeyIndex    KeySource = "index"
	KeyUID      KeySource = "uid"
	KeyNone     KeySource = "none"
)

// SortKey is the through-plane ordering key of one slice.
//
// Numeric keys (position or index) compare as real numbers and sort before
// identifier keys, which compare lexicographically.
type SortKey struct {
	Source  KeySource
	Numeric float64
	UID     string
}

// KeyOf derives the sort key of s, trying position, then sequence index,
// then unique identifier. A slice without any of them sorts as numeric zero.
func KeyOf(s *models.Slice) SortKey {
	switch {
	case s.Position != nil:
		return SortKey{Source: KeyPosition, Numeric: *s.Position}
	case s.Index != nil:
		return SortKey{Source: KeyIndex, Numeric: float64(*s.Index)}
	case s.UID != "":
		return SortKey{Source: KeyUID, UID: s.UID}
	}
	return SortKey{Source: KeyNone}
}

func (k SortKey) numeric() bool {
	return k.Source != KeyUID
}

// Less orders k before o.
func (k SortKey) Less(o SortKey) bool {
	if k.numeric() != o.numeric() {
		return k.numeric()
	}
	if k.numeric() {
		return k.Numeric < o.Numeric
	}
	return k.UID < o.UID
}

// Order returns the slices sorted ascending by their sort key. Equal keys
// fall back to the slice name so the result never depends on input order.
// The input slice is left untouched.
func Order(slices []*models.Slice) []*models.Slice {
	keys := make([]SortKey, len(slices))
	idx := make([]int, len(slices))
	for i, s := range slices {
		keys[i] = KeyOf(s)
		idx[i] = i
	}

	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if ka.Less(kb) {
			return true
		}
		if kb.Less(ka) {
			return false
		}
		return slices[idx[a]].Name < slices[idx[b]].Name
	})

	out := make([]*models.Slice, len(slices))
	for i, j := range idx {
		out[i] = slices[j]
	}
	return out
}
