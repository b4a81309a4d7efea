// Package axes maps the axes of an N-dimensional image onto the canonical
// (c, t, z, y, x) order and slices it into 2D planes.
package axes

import (
	"slices"
	"sort"
	"strings"

	"spotdetect/pkg/errdefs"
)

// Axis labels
const (
	Channel = "c"
	Time    = "t"
	Depth   = "z"
	Row     = "y"
	Col     = "x"

	// RGB marks a colour channel axis. It plays the role of Channel.
	RGB = "3"
)

// Canonical is the axis order every image is rearranged into
var Canonical = Descriptor{Channel, Time, Depth, Row, Col}

// Descriptor names the semantic role of each axis of a raw image, in axis order
type Descriptor []string

// Parse reads a descriptor in the form "(x,y,z,t,c,3)". Parentheses and
// whitespace are optional. Only the structure of the string is checked here;
// use Validate to check it against an image.
func Parse(s string) (Descriptor, error) {
	cleaned := strings.NewReplacer("(", "", ")", "", " ", "").Replace(s)
	if cleaned == "" {
		return nil, errdefs.AxisAlignmentf("empty axis descriptor %q", s)
	}

	d := Descriptor(strings.Split(cleaned, ","))
	for _, label := range d {
		switch label {
		case Channel, Time, Depth, Row, Col, RGB:
		default:
			return nil, errdefs.AxisAlignmentf("unknown axis label %q in %q", label, s)
		}
	}
	if err := d.checkLabels(); err != nil {
		return nil, err
	}
	return d, nil
}

// String formats the descriptor the way Parse reads it
func (d Descriptor) String() string {
	return "(" + strings.Join(d, ",") + ")"
}

// HasRGB reports whether the descriptor declares a colour channel axis
func (d Descriptor) HasRGB() bool {
	return slices.Contains(d, RGB)
}

// Resolve returns a copy with the RGB marker replaced by the channel label
func (d Descriptor) Resolve() (Descriptor, error) {
	if err := d.checkLabels(); err != nil {
		return nil, err
	}
	out := slices.Clone(d)
	for i, label := range out {
		if label == RGB {
			out[i] = Channel
		}
	}
	return out, nil
}

// Validate checks the descriptor against an image of the given rank
func (d Descriptor) Validate(rank int) error {
	if err := d.checkLabels(); err != nil {
		return err
	}
	if len(d) != rank {
		return errdefs.AxisAlignmentf("descriptor %s names %d axes, image has %d", d, len(d), rank)
	}
	return nil
}

func (d Descriptor) checkLabels() error {
	seen := make(map[string]bool, len(d))
	for _, label := range d {
		if seen[label] {
			return errdefs.AxisAlignmentf("axis %q declared twice in %s", label, d)
		}
		seen[label] = true
	}
	if seen[RGB] && seen[Channel] {
		return errdefs.AxisAlignmentf("descriptor %s declares both a channel and an RGB axis", d)
	}
	if !seen[Row] || !seen[Col] {
		return errdefs.AxisAlignmentf("descriptor %s must contain both y and x", d)
	}
	return nil
}

// inferPriority is the order in which non-spatial axes are assigned roles
var inferPriority = []string{Channel, Time, Depth}

// Infer guesses a descriptor from an image shape.
//
// The two largest axes become (y, x) in the order they appear; on equal sizes
// the later axis wins, since images usually end in their spatial axes. The
// remaining axes, in order of appearance, are labelled c, then t, then z.
// Shapes with fewer than two or more than five axes cannot be described.
func Infer(shape []int) (Descriptor, error) {
	n := len(shape)
	if n < 2 || n > len(Canonical) {
		return nil, errdefs.AxisAlignmentf("cannot infer axes for a %d-dimensional image %v", n, shape)
	}

	bySize := make([]int, n)
	for i := range bySize {
		bySize[i] = i
	}
	sort.SliceStable(bySize, func(a, b int) bool {
		sa, sb := shape[bySize[a]], shape[bySize[b]]
		if sa != sb {
			return sa > sb
		}
		return bySize[a] > bySize[b]
	})
	yAxis, xAxis := min(bySize[0], bySize[1]), max(bySize[0], bySize[1])

	d := make(Descriptor, n)
	next := 0
	for i := range d {
		switch i {
		case yAxis:
			d[i] = Row
		case xAxis:
			d[i] = Col
		default:
			d[i] = inferPriority[next]
			next++
		}
	}
	return d, nil
}
