// Package geometry reconciles the two coordinate spaces of the PDF viewer:
// stored coordinates (page-relative, persisted, independent of scroll and
// layout) and display coordinates (pixel offsets inside the scrollable
// container). All functions here are pure arithmetic; they run on every
// scroll tick and must stay allocation-free.
package geometry

// Point is a coordinate in either space; which one is a matter of
// convention at the call site.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned rectangle: origin plus size.
type Rect struct {
	Origin Point `json:"origin"`
	Size   Size  `json:"size"`
}

// Contains reports whether p falls inside the rectangle. The right and
// bottom edges are exclusive so adjacent page canvases never both claim a
// point on their shared edge.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Origin.X && p.X < r.Origin.X+r.Size.Width &&
		p.Y >= r.Origin.Y && p.Y < r.Origin.Y+r.Size.Height
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p translated by -q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// ClampToBounds forces a desired anchor into the container so the whole
// field stays visible, honoring the fixed padding. When the field is larger
// than the container on an axis the bounds collapse to the padding rather
// than going negative.
func ClampToBounds(desired Point, field Size, container Size, padding float64) Point {
	return Point{
		X: clampAxis(desired.X, field.Width, container.Width, padding),
		Y: clampAxis(desired.Y, field.Height, container.Height, padding),
	}
}

func clampAxis(desired, field, container, padding float64) float64 {
	max := container - field
	if max < padding {
		return padding
	}
	if desired < padding {
		return padding
	}
	if desired > max {
		return max
	}
	return desired
}

// ApplySmartOffset shifts the anchor backward when the click lands close
// enough to the far edge that the field would clip: clicking near the
// bottom-right corner anchors the field fully visible instead of cut off.
func ApplySmartOffset(desired Point, field Size, container Size, edgeMargin float64) Point {
	return Point{
		X: smartAxis(desired.X, field.Width, container.Width, edgeMargin),
		Y: smartAxis(desired.Y, field.Height, container.Height, edgeMargin),
	}
}

func smartAxis(desired, field, container, edgeMargin float64) float64 {
	farEdge := desired + field
	if farEdge > container-edgeMargin {
		return desired - (farEdge - (container - edgeMargin))
	}
	return desired
}

// ToDisplay converts a stored point to its pixel position inside the
// scrollable container given the hosting page canvas's current offset and
// the container's scroll position.
func ToDisplay(stored, canvasOffset, scroll Point) Point {
	return stored.Add(canvasOffset).Add(scroll)
}

// ToStored is the exact inverse of ToDisplay.
func ToStored(display, canvasOffset, scroll Point) Point {
	return display.Sub(scroll).Sub(canvasOffset)
}
