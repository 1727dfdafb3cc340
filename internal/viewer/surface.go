// Package viewer models the scrollable multi-page PDF surface: click-to-place
// of signature fields and per-render display resolution, plus the per-field
// drag gesture. It holds no document state of its own; placements and moves
// are emitted through callbacks.
package viewer

import (
	"github.com/google/uuid"

	"signflow/internal/geometry"
)

// Placement is what a click produces: the page and the page-relative stored
// anchor for the new field.
type Placement struct {
	Page     int
	Position geometry.Point
}

// ClickEvent is a pointer press on the surface. OnFieldChrome is true when
// the origin element belongs to an existing field's controls (delete button,
// drag handle); those clicks never place a field.
type ClickEvent struct {
	Page          int
	Position      geometry.Point // container-relative pixel position
	PrimaryButton bool
	OnFieldChrome bool
}

// RenderedField is a field as the surface needs to see it: identifier plus
// stored position and size.
type RenderedField struct {
	ID       uuid.UUID
	Page     int
	Position geometry.Point
	Size     geometry.Size
}

// Surface owns the viewer geometry for one open document.
type Surface struct {
	layout     *geometry.Layout
	scroll     geometry.Point
	padding    float64
	edgeMargin float64
	fieldSize  geometry.Size
	onPlace    func(Placement)
}

// Defaults matching the rendered field chrome.
const (
	DefaultPadding    = 8
	DefaultEdgeMargin = 16
)

func NewSurface(layout *geometry.Layout, fieldSize geometry.Size, onPlace func(Placement)) *Surface {
	return &Surface{
		layout:     layout,
		padding:    DefaultPadding,
		edgeMargin: DefaultEdgeMargin,
		fieldSize:  fieldSize,
		onPlace:    onPlace,
	}
}

// Scroll updates the container's scroll offset.
func (s *Surface) Scroll(offset geometry.Point) {
	s.scroll = offset
}

// Click handles a pointer press. Secondary buttons, field-chrome origins,
// clicks while the PDF has not produced any canvas yet, and clicks on
// unmounted pages are all ignored.
func (s *Surface) Click(ev ClickEvent) {
	if !ev.PrimaryButton || ev.OnFieldChrome {
		return
	}
	if !s.layout.Mounted() {
		return
	}
	canvas, ok := s.layout.Page(ev.Page)
	if !ok {
		return
	}

	// Click position relative to the page canvas, then smart-offset and
	// clamp against that canvas's rendered size.
	local := ev.Position.Sub(canvas.Origin).Sub(s.scroll)
	local = geometry.ApplySmartOffset(local, s.fieldSize, canvas.Size, s.edgeMargin)
	local = geometry.ClampToBounds(local, s.fieldSize, canvas.Size, s.padding)

	if s.onPlace != nil {
		s.onPlace(Placement{Page: ev.Page, Position: local})
	}
}

// DisplayPositions recomputes every field's display position for the current
// scroll and layout. Fields on unmounted pages render at their raw stored
// coordinates (the fallback convention); position is not a static style, it
// tracks the interplay of scroll and multi-canvas layout on every render.
func (s *Surface) DisplayPositions(fields []RenderedField) map[uuid.UUID]geometry.Point {
	out := make(map[uuid.UUID]geometry.Point, len(fields))
	for _, f := range fields {
		p, _ := s.layout.Display(f.Position, f.Page, s.scroll)
		out[f.ID] = p
	}
	return out
}
