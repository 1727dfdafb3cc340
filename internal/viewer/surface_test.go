package viewer

import (
	"testing"

	"github.com/google/uuid"

	"signflow/internal/geometry"
)

func mountedSurface(onPlace func(Placement)) (*Surface, *geometry.Layout) {
	layout := geometry.NewLayout()
	layout.MountPage(1, geometry.Rect{Origin: geometry.Point{X: 20, Y: 0}, Size: geometry.Size{Width: 600, Height: 850}})
	layout.MountPage(2, geometry.Rect{Origin: geometry.Point{X: 20, Y: 860}, Size: geometry.Size{Width: 600, Height: 850}})
	return NewSurface(layout, geometry.Size{Width: 120, Height: 60}, onPlace), layout
}

func TestClickPlacesFieldPageRelative(t *testing.T) {
	var placed []Placement
	s, _ := mountedSurface(func(p Placement) { placed = append(placed, p) })
	s.Scroll(geometry.Point{X: 0, Y: 400})

	s.Click(ClickEvent{
		Page:          2,
		Position:      geometry.Point{X: 220, Y: 1500},
		PrimaryButton: true,
	})

	if len(placed) != 1 {
		t.Fatalf("expected one placement, got %d", len(placed))
	}
	if placed[0].Page != 2 {
		t.Errorf("page = %d, want 2", placed[0].Page)
	}
	// (220,1500) - canvas origin (20,860) - scroll (0,400) = (200,240)
	want := geometry.Point{X: 200, Y: 240}
	if placed[0].Position != want {
		t.Errorf("position = %v, want %v", placed[0].Position, want)
	}
}

func TestClickNearCornerStaysVisible(t *testing.T) {
	var placed []Placement
	s, _ := mountedSurface(func(p Placement) { placed = append(placed, p) })

	// Bottom-right corner of page 1's canvas.
	s.Click(ClickEvent{
		Page:          1,
		Position:      geometry.Point{X: 615, Y: 845},
		PrimaryButton: true,
	})

	if len(placed) != 1 {
		t.Fatalf("expected one placement, got %d", len(placed))
	}
	p := placed[0].Position
	canvas := geometry.Size{Width: 600, Height: 850}
	field := geometry.Size{Width: 120, Height: 60}
	if p.X+field.Width > canvas.Width || p.Y+field.Height > canvas.Height {
		t.Errorf("field clips the canvas: anchor %v", p)
	}
	if p.X < DefaultPadding || p.Y < DefaultPadding {
		t.Errorf("anchor under padding: %v", p)
	}
}

func TestClickIgnoredCases(t *testing.T) {
	tests := []struct {
		name string
		ev   ClickEvent
	}{
		{"secondary button", ClickEvent{Page: 1, PrimaryButton: false}},
		{"field chrome origin", ClickEvent{Page: 1, PrimaryButton: true, OnFieldChrome: true}},
		{"unmounted page", ClickEvent{Page: 9, PrimaryButton: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			placed := 0
			s, _ := mountedSurface(func(Placement) { placed++ })
			s.Click(tt.ev)
			if placed != 0 {
				t.Errorf("click placed a field")
			}
		})
	}
}

func TestClickIgnoredWhileLoading(t *testing.T) {
	placed := 0
	layout := geometry.NewLayout()
	s := NewSurface(layout, geometry.Size{Width: 120, Height: 60}, func(Placement) { placed++ })

	s.Click(ClickEvent{Page: 1, Position: geometry.Point{X: 100, Y: 100}, PrimaryButton: true})
	if placed != 0 {
		t.Error("click placed a field before any canvas mounted")
	}
}

func TestDisplayPositionsTrackScroll(t *testing.T) {
	s, _ := mountedSurface(nil)

	fieldID := uuid.New()
	fields := []RenderedField{{
		ID:       fieldID,
		Page:     2,
		Position: geometry.Point{X: 100, Y: 200},
		Size:     geometry.Size{Width: 120, Height: 60},
	}}

	s.Scroll(geometry.Point{X: 0, Y: 0})
	got := s.DisplayPositions(fields)[fieldID]
	want := geometry.Point{X: 120, Y: 1060}
	if got != want {
		t.Errorf("unscrolled display = %v, want %v", got, want)
	}

	s.Scroll(geometry.Point{X: 0, Y: 500})
	got = s.DisplayPositions(fields)[fieldID]
	want = geometry.Point{X: 120, Y: 1560}
	if got != want {
		t.Errorf("scrolled display = %v, want %v", got, want)
	}
}

func TestDisplayPositionsFallBackForUnmountedPage(t *testing.T) {
	s, layout := mountedSurface(nil)
	layout.UnmountPage(2)

	fieldID := uuid.New()
	stored := geometry.Point{X: 100, Y: 200}
	got := s.DisplayPositions([]RenderedField{{ID: fieldID, Page: 2, Position: stored}})[fieldID]
	if got != stored {
		t.Errorf("fallback display = %v, want raw stored %v", got, stored)
	}
}
