package viewer

import (
	"testing"

	"github.com/google/uuid"

	"signflow/internal/geometry"
)

func testMetrics() DragMetrics {
	return DragMetrics{
		ContainerOrigin: geometry.Point{X: 100, Y: 50},
		Scroll:          geometry.Point{X: 0, Y: 300},
		ContentSize:     geometry.Size{Width: 800, Height: 3400},
		Padding:         8,
	}
}

// testDragLayout stacks two full-width page canvases filling the content
// of testMetrics.
func testDragLayout() *geometry.Layout {
	l := geometry.NewLayout()
	l.MountPage(1, geometry.Rect{Origin: geometry.Point{X: 0, Y: 0}, Size: geometry.Size{Width: 800, Height: 1700}})
	l.MountPage(2, geometry.Rect{Origin: geometry.Point{X: 0, Y: 1700}, Size: geometry.Size{Width: 800, Height: 1700}})
	return l
}

func TestDragWithinDeadzoneDoesNotPersist(t *testing.T) {
	calls := 0
	d := NewDragController(uuid.New(), geometry.Size{Width: 100, Height: 50}, testDragLayout(), 1, func(uuid.UUID, int, geometry.Point) error {
		calls++
		return nil
	})

	start := geometry.Rect{Origin: geometry.Point{X: 200, Y: 400}, Size: geometry.Size{Width: 100, Height: 50}}
	d.Press(geometry.Point{X: 220, Y: 410}, start, nil)

	// Move the pointer so the field lands 1px from where it started.
	// pointer - origin - dragOffset + scroll = (321,161) - (100,50) - (20,10) + (0,300) = (201,401)
	d.Move(geometry.Point{X: 321, Y: 161}, testMetrics())

	if err := d.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no persistence call within deadzone, got %d", calls)
	}
}

func TestDragBeyondDeadzonePersistsOnce(t *testing.T) {
	var calls int
	var gotPage int
	var gotPos geometry.Point
	fieldID := uuid.New()

	d := NewDragController(fieldID, geometry.Size{Width: 100, Height: 50}, testDragLayout(), 1, func(id uuid.UUID, page int, pos geometry.Point) error {
		calls++
		gotPage = page
		gotPos = pos
		if id != fieldID {
			t.Errorf("persisted wrong field: %s", id)
		}
		return nil
	})

	start := geometry.Rect{Origin: geometry.Point{X: 200, Y: 400}, Size: geometry.Size{Width: 100, Height: 50}}
	d.Press(geometry.Point{X: 220, Y: 410}, start, nil)

	// (400,300) - (100,50) - (20,10) + (0,300) = (280,540)
	d.Move(geometry.Point{X: 400, Y: 300}, testMetrics())

	if err := d.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one persistence call, got %d", calls)
	}
	want := geometry.Point{X: 280, Y: 540}
	if gotPage != 1 || gotPos != want {
		t.Errorf("persisted page %d at %v, want page 1 at %v", gotPage, gotPos, want)
	}
}

func TestReleasePersistsPageRelativePosition(t *testing.T) {
	var gotPage int
	var gotPos geometry.Point

	// A canvas that does not start at the content origin: the stored
	// position must subtract it.
	layout := geometry.NewLayout()
	layout.MountPage(1, geometry.Rect{Origin: geometry.Point{X: 20, Y: 20}, Size: geometry.Size{Width: 760, Height: 1660}})

	d := NewDragController(uuid.New(), geometry.Size{Width: 100, Height: 50}, layout, 1, func(_ uuid.UUID, page int, pos geometry.Point) error {
		gotPage = page
		gotPos = pos
		return nil
	})

	start := geometry.Rect{Origin: geometry.Point{X: 200, Y: 400}, Size: geometry.Size{Width: 100, Height: 50}}
	d.Press(geometry.Point{X: 220, Y: 410}, start, nil)
	// Content-space landing point: (400,300) - (100,50) - (20,10) + (0,300) = (280,540)
	d.Move(geometry.Point{X: 400, Y: 300}, testMetrics())

	if err := d.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	want := geometry.Point{X: 260, Y: 520}
	if gotPage != 1 || gotPos != want {
		t.Errorf("persisted page %d at %v, want page 1 at %v", gotPage, gotPos, want)
	}
}

func TestDragClampsAgainstContentSize(t *testing.T) {
	var gotPage int
	var gotPos geometry.Point
	d := NewDragController(uuid.New(), geometry.Size{Width: 100, Height: 50}, testDragLayout(), 1, func(_ uuid.UUID, page int, pos geometry.Point) error {
		gotPage = page
		gotPos = pos
		return nil
	})

	start := geometry.Rect{Origin: geometry.Point{X: 200, Y: 400}, Size: geometry.Size{Width: 100, Height: 50}}
	d.Press(geometry.Point{X: 200, Y: 400}, start, nil)

	// Drag far past the bottom-right of the total content.
	d.Move(geometry.Point{X: 5000, Y: 9000}, testMetrics())

	if err := d.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	// Clamped to content size minus field size, landing on the second
	// page's canvas, so the field re-homes there page-relatively.
	want := geometry.Point{X: 700, Y: 1650}
	if gotPage != 2 || gotPos != want {
		t.Errorf("clamped to page %d at %v, want page 2 at %v", gotPage, gotPos, want)
	}
}

func TestDragGrabOffsetKeepsPointUnderCursor(t *testing.T) {
	d := NewDragController(uuid.New(), geometry.Size{Width: 100, Height: 50}, testDragLayout(), 1, nil)

	start := geometry.Rect{Origin: geometry.Point{X: 200, Y: 400}, Size: geometry.Size{Width: 100, Height: 50}}
	grab := geometry.Point{X: 260, Y: 430} // grabbed 60,30 into the field
	d.Press(grab, start, nil)

	m := testMetrics()
	// Without moving the pointer, the computed position must equal the
	// start: pointer - origin - dragOffset + scroll.
	d.Move(geometry.Point{X: 360, Y: 180}, m) // (360,180)-(100,50)-(60,30)+(0,300) = (200,400)
	if d.Position() != start.Origin {
		t.Errorf("field moved on press: %v, want %v", d.Position(), start.Origin)
	}
}

func TestDragDetachRunsExactlyOnce(t *testing.T) {
	detached := 0
	d := NewDragController(uuid.New(), geometry.Size{Width: 100, Height: 50}, testDragLayout(), 1, nil)

	start := geometry.Rect{Origin: geometry.Point{X: 0, Y: 0}, Size: geometry.Size{Width: 100, Height: 50}}
	d.Press(geometry.Point{X: 10, Y: 10}, start, func() { detached++ })

	if err := d.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	d.Close()
	d.Close()

	if detached != 1 {
		t.Errorf("detach ran %d times, want 1", detached)
	}
	if d.Dragging() {
		t.Error("controller still dragging after release")
	}
}

func TestCloseAbandonsGestureWithoutPersisting(t *testing.T) {
	calls := 0
	d := NewDragController(uuid.New(), geometry.Size{Width: 100, Height: 50}, testDragLayout(), 1, func(uuid.UUID, int, geometry.Point) error {
		calls++
		return nil
	})

	start := geometry.Rect{Origin: geometry.Point{X: 0, Y: 0}, Size: geometry.Size{Width: 100, Height: 50}}
	d.Press(geometry.Point{X: 10, Y: 10}, start, nil)
	d.Move(geometry.Point{X: 500, Y: 500}, testMetrics())
	d.Close()

	if calls != 0 {
		t.Errorf("Close persisted the gesture, %d calls", calls)
	}
}
