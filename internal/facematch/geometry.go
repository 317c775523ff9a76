// Package facematch provides the geometry and name helpers shared by the recognizer,
// the storage backends and the web handlers.
package facematch

// BBox is a face bounding box in corner format [x1, y1, x2, y2], pixel coordinates.
type BBox [4]float64

// Point is a pixel coordinate in a camera frame.
type Point struct {
	X float64
	Y float64
}

// Region is a rectangular detection area of a camera frame.
type Region struct {
	X      int `yaml:"x" json:"x"`
	Y      int `yaml:"y" json:"y"`
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 { return b[3] - b[1] }

// Area returns the box area, 0 for degenerate boxes.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Center returns the midpoint of the box.
func (b BBox) Center() Point {
	return Point{X: (b[0] + b[2]) / 2, Y: (b[1] + b[3]) / 2}
}

// ComputeIoU calculates Intersection over Union between two bounding boxes.
func ComputeIoU(a, b BBox) float64 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// Valid reports whether the region has a non-negative origin and a positive size.
func (r Region) Valid() bool {
	return r.X >= 0 && r.Y >= 0 && r.Width > 0 && r.Height > 0
}

// IsZero reports whether no region was configured.
func (r Region) IsZero() bool {
	return r == Region{}
}

// Corners converts the region to corner format.
func (r Region) Corners() BBox {
	return BBox{
		float64(r.X),
		float64(r.Y),
		float64(r.X + r.Width),
		float64(r.Y + r.Height),
	}
}

// Contains reports whether p lies inside the region, edges included.
func (r Region) Contains(p Point) bool {
	c := r.Corners()
	return p.X >= c[0] && p.X <= c[2] && p.Y >= c[1] && p.Y <= c[3]
}

// ContainsFace reports whether the centre of the face box lies inside the region.
// An unset region covers the whole frame.
func (r Region) ContainsFace(b BBox) bool {
	if r.IsZero() {
		return true
	}
	return r.Contains(b.Center())
}
