// Package maskcodec converts between dense binary masks and their compact
// run-length storage form, and derives bounding-box geometry from the
// compact form without decoding.
package maskcodec

import (
	"fmt"

	"github.com/lewtec/maskbatch/internal/domain"
)

// Encode converts a dense binary mask to its compact run-length form. Runs
// alternate between zeros and ones, starting with zeros, in row-major scan
// order. Encoding is deterministic and round-trips exactly through Decode.
// A mask containing values other than 0 and 1 is a caller contract
// violation and fails with domain.ErrInvalidMask.
func Encode(m domain.BinaryMask) (domain.CompactMask, error) {
	if m.Empty() {
		return domain.CompactMask{Size: [2]int{0, 0}, Counts: nil}, nil
	}
	if len(m.Pix) != m.Width*m.Height {
		return domain.CompactMask{}, fmt.Errorf("%w: %dx%d mask has %d pixels",
			domain.ErrInvalidMask, m.Width, m.Height, len(m.Pix))
	}

	counts := make([]int, 0, 16)
	last := uint8(0)
	run := 0
	for _, v := range m.Pix {
		if v > 1 {
			return domain.CompactMask{}, fmt.Errorf("%w: pixel value %d is not binary",
				domain.ErrInvalidMask, v)
		}
		if v == last {
			run++
			continue
		}
		counts = append(counts, run)
		run = 1
		last = v
	}
	counts = append(counts, run)

	return domain.CompactMask{
		Size:   [2]int{m.Height, m.Width},
		Counts: counts,
	}, nil
}

// Decode expands a compact mask back to its dense form. A compact mask
// whose run-length total disagrees with its declared size fails with
// domain.ErrCorruptMask; callers performing batch work skip that one layer.
func Decode(c domain.CompactMask) (domain.BinaryMask, error) {
	height, width := c.Size[0], c.Size[1]
	if height == 0 && width == 0 && len(c.Counts) == 0 {
		return domain.BinaryMask{}, nil
	}
	if height <= 0 || width <= 0 {
		return domain.BinaryMask{}, fmt.Errorf("%w: declared size %dx%d",
			domain.ErrCorruptMask, height, width)
	}

	total := 0
	for _, n := range c.Counts {
		if n < 0 {
			return domain.BinaryMask{}, fmt.Errorf("%w: negative run length %d",
				domain.ErrCorruptMask, n)
		}
		total += n
	}
	if total != height*width {
		return domain.BinaryMask{}, fmt.Errorf("%w: runs cover %d pixels, size declares %d",
			domain.ErrCorruptMask, total, height*width)
	}

	m := domain.NewBinaryMask(width, height)
	pos := 0
	val := uint8(0)
	for _, n := range c.Counts {
		if val == 1 {
			for i := 0; i < n; i++ {
				m.Pix[pos+i] = 1
			}
		}
		pos += n
		val = 1 - val
	}
	return m, nil
}

// BBoxArea computes the tight bounding box and the foreground pixel count
// straight from the runs. A malformed compact mask (missing size or run
// data) yields a zero-extent box and zero area rather than an error: a
// handful of bad legacy rows must not abort a whole export.
func BBoxArea(c domain.CompactMask) (domain.Box, int) {
	if c.Malformed() {
		return domain.Box{}, 0
	}
	width := c.Size[1]

	minX, minY := width, c.Size[0]
	maxX, maxY := -1, -1
	area := 0

	pos := 0
	val := 0
	for _, n := range c.Counts {
		if val == 1 && n > 0 {
			area += n
			for i := pos; i < pos+n; i++ {
				x, y := i%width, i/width
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
		pos += n
		val = 1 - val
	}

	if maxX < 0 {
		return domain.Box{}, 0
	}
	return domain.Box{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX + 1,
		Height: maxY - minY + 1,
	}, area
}
