package axes

import (
	"slices"

	"spotdetect/internal/models"
	"spotdetect/pkg/errdefs"
)

// ToCanonical rearranges raw into a five-dimensional (c, t, z, y, x) array.
// Axes the descriptor does not mention are added as trailing singletons before
// the axes are moved into place.
func ToCanonical(raw *models.Array, d Descriptor) (*models.Array, error) {
	if err := d.Validate(raw.Rank()); err != nil {
		return nil, err
	}
	labels, err := d.Resolve()
	if err != nil {
		return nil, err
	}

	arr := raw
	for _, label := range Canonical {
		if !slices.Contains(labels, label) {
			arr = arr.ExpandDims()
			labels = append(labels, label)
		}
	}

	// order[i] is the axis of arr that currently sits at position i
	order := make([]int, len(labels))
	for i := range order {
		order[i] = i
	}
	for dst, label := range Canonical {
		src := slices.Index(labels, label)
		if src < 0 {
			return nil, errdefs.AxisAlignmentf("axis %q missing after expansion of %s", label, d)
		}
		labels = moveItem(labels, src, dst)
		order = moveItem(order, src, dst)
	}
	if !slices.Equal(labels, []string(Canonical)) {
		return nil, errdefs.AxisAlignmentf("descriptor %s rearranged to %v, want %v", d, labels, Canonical)
	}

	return arr.Transpose(order), nil
}

// Normalize rearranges raw into canonical order and returns one plane per
// (c, t, z) combination, with c outermost and z innermost.
func Normalize(raw *models.Array, d Descriptor) ([]models.TaggedPlane, error) {
	arr, err := ToCanonical(raw, d)
	if err != nil {
		return nil, err
	}

	nc, nt, nz := arr.Shape[0], arr.Shape[1], arr.Shape[2]
	planes := make([]models.TaggedPlane, 0, nc*nt*nz)
	for c := 0; c < nc; c++ {
		for t := 0; t < nt; t++ {
			for z := 0; z < nz; z++ {
				plane, err := arr.Plane(c, t, z)
				if err != nil {
					return nil, err
				}
				planes = append(planes, models.TaggedPlane{
					Tag:   models.PlaneTag{C: c, T: t, Z: z},
					Plane: plane,
				})
			}
		}
	}
	return planes, nil
}

// moveItem moves s[src] to index dst, shifting the items in between
func moveItem[T any](s []T, src, dst int) []T {
	out := slices.Clone(s)
	v := out[src]
	out = slices.Delete(out, src, src+1)
	return slices.Insert(out, dst, v)
}
