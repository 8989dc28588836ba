package domain

// BinaryMask is a dense binary mask, row-major, one byte per pixel.
// Valid pixel values are 0 and 1.
type BinaryMask struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewBinaryMask returns an all-zero mask of the given dimensions.
func NewBinaryMask(width, height int) BinaryMask {
	return BinaryMask{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// At returns the pixel at (x, y). Out-of-bounds coordinates read as 0.
func (m BinaryMask) At(x, y int) uint8 {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return 0
	}
	return m.Pix[y*m.Width+x]
}

// Set writes the pixel at (x, y). Out-of-bounds coordinates are ignored.
func (m BinaryMask) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Pix[y*m.Width+x] = v
}

// Clone returns a deep copy of the mask.
func (m BinaryMask) Clone() BinaryMask {
	pix := make([]uint8, len(m.Pix))
	copy(pix, m.Pix)
	return BinaryMask{Width: m.Width, Height: m.Height, Pix: pix}
}

// Equal reports whether two masks have identical dimensions and pixels.
func (m BinaryMask) Equal(other BinaryMask) bool {
	if m.Width != other.Width || m.Height != other.Height {
		return false
	}
	for i := range m.Pix {
		if m.Pix[i] != other.Pix[i] {
			return false
		}
	}
	return true
}

// Empty reports whether the mask has no pixels at all.
func (m BinaryMask) Empty() bool {
	return m.Width == 0 || m.Height == 0
}

// CompactMask is the run-length storage form of a binary mask. Counts
// alternate between runs of zeros and ones, starting with zeros, in
// row-major scan order. Size is [height, width].
type CompactMask struct {
	Size   [2]int `json:"size"`
	Counts []int  `json:"counts"`
}

// Malformed reports whether the compact form is missing size or run data.
// Malformed masks decode to nothing but must not abort batch operations.
func (c CompactMask) Malformed() bool {
	return c.Size[0] <= 0 || c.Size[1] <= 0 || len(c.Counts) == 0
}

// Box is an axis-aligned bounding box in pixel coordinates.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}
