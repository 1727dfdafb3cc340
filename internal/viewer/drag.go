package viewer

import (
	"math"

	"github.com/google/uuid"

	"signflow/internal/geometry"
)

// Deadzone is the per-axis movement below which a release is treated as a
// click that barely moved and nothing is persisted.
const Deadzone = 1.0

// DragMetrics is the live container geometry a move is clamped against.
// ContentSize is the total scrollable content, not the visible viewport, so
// a field can travel anywhere across a multi-page document.
type DragMetrics struct {
	ContainerOrigin geometry.Point
	Scroll          geometry.Point
	ContentSize     geometry.Size
	Padding         float64
}

// PersistFunc commits a moved field's final position. pos is in the stored
// convention, page-relative to the page the field landed on, ready to write
// through the registry unconverted. Exactly one call per gesture that
// cleared the deadzone.
type PersistFunc func(fieldID uuid.UUID, page int, pos geometry.Point) error

// DragController runs the press→move→release state machine for one field.
// Listeners are acquired on press and must be released on Release or Close;
// leaking them across re-renders is a correctness bug, not a tidiness one.
type DragController struct {
	fieldID    uuid.UUID
	fieldSize  geometry.Size
	layout     *geometry.Layout
	page       int
	persist    PersistFunc
	dragging   bool
	start      geometry.Point
	current    geometry.Point
	dragOffset geometry.Point
	onDetach   func()
}

// NewDragController builds a controller for one field. layout and page tell
// Release how to convert the final content-space position back to the
// page-relative stored convention; page is the page the field starts on.
func NewDragController(fieldID uuid.UUID, fieldSize geometry.Size, layout *geometry.Layout, page int, persist PersistFunc) *DragController {
	return &DragController{
		fieldID:   fieldID,
		fieldSize: fieldSize,
		layout:    layout,
		page:      page,
		persist:   persist,
	}
}

// Dragging reports whether a gesture is in flight.
func (d *DragController) Dragging() bool {
	return d.dragging
}

// Position returns the field's current (possibly in-flight) position.
func (d *DragController) Position() geometry.Point {
	return d.current
}

// Press starts a gesture. The pointer offset inside the field's own box is
// captured so the grabbed point stays under the cursor for the whole
// gesture instead of the corner snapping to it. detach is invoked exactly
// once when the gesture ends, however it ends.
func (d *DragController) Press(pointer geometry.Point, fieldBox geometry.Rect, detach func()) {
	if d.dragging {
		return
	}
	d.dragging = true
	d.start = fieldBox.Origin
	d.current = fieldBox.Origin
	d.dragOffset = pointer.Sub(fieldBox.Origin)
	d.onDetach = detach
}

// Move recomputes the candidate position from the live pointer and clamps
// it. Local state only; no persistence call mid-gesture, this runs at
// interactive frame rate.
func (d *DragController) Move(pointer geometry.Point, m DragMetrics) {
	if !d.dragging {
		return
	}
	candidate := pointer.Sub(m.ContainerOrigin).Sub(d.dragOffset).Add(m.Scroll)
	d.current = geometry.ClampToBounds(candidate, d.fieldSize, m.ContentSize, m.Padding)
}

// Release ends the gesture. Movement beyond the deadzone on either axis
// produces exactly one persistence call with the final clamped position,
// converted to page-relative stored coordinates; anything less is
// discarded. Releasing outside a valid target still commits: clamping
// already guaranteed validity, there is no abort gesture.
func (d *DragController) Release() error {
	if !d.dragging {
		return nil
	}
	d.detach()

	if math.Abs(d.current.X-d.start.X) <= Deadzone && math.Abs(d.current.Y-d.start.Y) <= Deadzone {
		return nil
	}
	if d.persist == nil {
		return nil
	}
	page, stored := d.storedPosition()
	return d.persist(d.fieldID, page, stored)
}

// storedPosition converts the final content-space position to the stored
// convention. A drop on another page's canvas re-homes the field there;
// with no layout, or a drop between canvases, the field keeps its page and
// the position degrades to the origin page's canvas when that is mounted.
func (d *DragController) storedPosition() (int, geometry.Point) {
	if d.layout == nil {
		return d.page, d.current
	}
	if page, canvas, ok := d.layout.PageAt(d.current); ok {
		return page, d.current.Sub(canvas.Origin)
	}
	if canvas, ok := d.layout.Page(d.page); ok {
		return d.page, d.current.Sub(canvas.Origin)
	}
	return d.page, d.current
}

// Close abandons any in-flight gesture without persisting, for component
// unmount. Safe to call repeatedly.
func (d *DragController) Close() {
	if d.dragging {
		d.detach()
	}
}

func (d *DragController) detach() {
	d.dragging = false
	if d.onDetach != nil {
		d.onDetach()
		d.onDetach = nil
	}
}
