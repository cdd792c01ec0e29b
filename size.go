package gpumath

import "fmt"

// Size describes a 3D extent: either an element count (Height and Depth
// equal to 1) or a compute dispatch grid.
type Size struct {
	Width  int
	Height int
	Depth  int
}

// Len returns a one-dimensional Size of n elements.
func Len(n int) Size {
	return Size{Width: n, Height: 1, Depth: 1}
}

// Size2 returns a two-dimensional Size with a depth of 1.
func Size2(width, height int) Size {
	return Size{Width: width, Height: height, Depth: 1}
}

// Size3 returns a three-dimensional Size.
func Size3(width, height, depth int) Size {
	return Size{Width: width, Height: height, Depth: depth}
}

// Len returns the total number of elements (Width * Height * Depth).
func (s Size) Len() int {
	return s.Width * s.Height * s.Depth
}

// IsEmpty reports whether all dimensions are zero.
func (s Size) IsEmpty() bool {
	return s.Width == 0 && s.Height == 0 && s.Depth == 0
}

// Valid reports whether no dimension is negative.
func (s Size) Valid() bool {
	return s.Width >= 0 && s.Height >= 0 && s.Depth >= 0
}

// Workgroups converts a thread-count Size into a dispatch grid for a kernel
// whose workgroup width is groupWidth along X. Y and Z are passed through.
func (s Size) Workgroups(groupWidth int) Size {
	if groupWidth <= 1 {
		return s
	}
	return Size{
		Width:  (s.Width + groupWidth - 1) / groupWidth,
		Height: s.Height,
		Depth:  s.Depth,
	}
}

// String returns the size as "WxHxD".
func (s Size) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Width, s.Height, s.Depth)
}
