// Package maskops provides the manual edit operations the canvas applies to
// the mask under edit: morphological grow/shrink/smooth, inversion, brush
// strokes and lasso regions. Every operation returns a fresh mask and
// leaves its input untouched so the edit history can hold plain snapshots.
package maskops

import "github.com/lewtec/maskbatch/internal/domain"

// Point is a pixel coordinate on the canvas.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Op transforms a working mask into its successor state.
type Op func(domain.BinaryMask) domain.BinaryMask

// Grow dilates the foreground by radius pixels (chessboard distance).
func Grow(radius int) Op {
	return func(m domain.BinaryMask) domain.BinaryMask {
		return dilate(m, radius)
	}
}

// Shrink erodes the foreground by radius pixels (chessboard distance).
func Shrink(radius int) Op {
	return func(m domain.BinaryMask) domain.BinaryMask {
		return erode(m, radius)
	}
}

// Smooth rounds off jagged edges with a morphological open followed by a
// close, both with the given radius.
func Smooth(radius int) Op {
	return func(m domain.BinaryMask) domain.BinaryMask {
		opened := dilate(erode(m, radius), radius)
		return erode(dilate(opened, radius), radius)
	}
}

// Invert flips foreground and background.
func Invert() Op {
	return func(m domain.BinaryMask) domain.BinaryMask {
		out := m.Clone()
		for i := range out.Pix {
			out.Pix[i] = 1 - out.Pix[i]
		}
		return out
	}
}

// Brush stamps a disc of the given radius at every stroke point. With erase
// set the stroke removes foreground instead of adding it.
func Brush(stroke []Point, radius int, erase bool) Op {
	return func(m domain.BinaryMask) domain.BinaryMask {
		out := m.Clone()
		v := uint8(1)
		if erase {
			v = 0
		}
		r2 := radius * radius
		for _, p := range stroke {
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					if dx*dx+dy*dy <= r2 {
						out.Set(p.X+dx, p.Y+dy, v)
					}
				}
			}
		}
		return out
	}
}

// Lasso fills the polygon described by the vertices (even-odd rule). With
// erase set the enclosed region is removed from the foreground.
func Lasso(polygon []Point, erase bool) Op {
	return func(m domain.BinaryMask) domain.BinaryMask {
		out := m.Clone()
		if len(polygon) < 3 {
			return out
		}
		v := uint8(1)
		if erase {
			v = 0
		}
		for y := 0; y < out.Height; y++ {
			xs := scanlineCrossings(polygon, float64(y)+0.5)
			for i := 0; i+1 < len(xs); i += 2 {
				for x := int(xs[i] + 0.5); float64(x) < xs[i+1]; x++ {
					out.Set(x, y, v)
				}
			}
		}
		return out
	}
}

// scanlineCrossings returns the sorted x coordinates where the polygon's
// edges cross the horizontal line at y.
func scanlineCrossings(polygon []Point, y float64) []float64 {
	var xs []float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		a, b := polygon[i], polygon[(i+1)%n]
		ay, by := float64(a.Y), float64(b.Y)
		if (ay <= y) == (by <= y) {
			continue
		}
		t := (y - ay) / (by - ay)
		xs = append(xs, float64(a.X)+t*float64(b.X-a.X))
	}
	// insertion sort, crossing counts are tiny
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j] < xs[j-1]; j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
	return xs
}

func dilate(m domain.BinaryMask, radius int) domain.BinaryMask {
	if radius <= 0 {
		return m.Clone()
	}
	out := domain.NewBinaryMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.At(x, y) == 0 {
				continue
			}
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					out.Set(x+dx, y+dy, 1)
				}
			}
		}
	}
	return out
}

func erode(m domain.BinaryMask, radius int) domain.BinaryMask {
	if radius <= 0 {
		return m.Clone()
	}
	out := domain.NewBinaryMask(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
	pixel:
		for x := 0; x < m.Width; x++ {
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					if m.At(x+dx, y+dy) == 0 {
						continue pixel
					}
				}
			}
			out.Set(x, y, 1)
		}
	}
	return out
}
