package geometry

import "sync"

// Layout tracks which page canvases are currently mounted and where they
// sit inside the container. Pages come and go with PDF decoding and
// virtualization; conversions against an unmounted page fall back to the
// last known stored point instead of failing, degrading to a slightly
// misplaced marker rather than a crash.
type Layout struct {
	mu        sync.RWMutex
	pages     map[int]Rect
	fallbacks int
}

func NewLayout() *Layout {
	return &Layout{pages: make(map[int]Rect)}
}

// MountPage records (or updates) the canvas rectangle for a page.
func (l *Layout) MountPage(page int, canvas Rect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages[page] = canvas
}

// UnmountPage forgets a page canvas, as when it scrolls out of the
// virtualization window.
func (l *Layout) UnmountPage(page int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pages, page)
}

// Page returns the canvas rect for a page and whether it is mounted.
func (l *Layout) Page(page int) (Rect, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.pages[page]
	return r, ok
}

// PageAt returns the mounted page whose canvas contains the point hit, or
// ok false when it lands between canvases. With overlapping canvases the
// lowest page number wins, so the answer is deterministic.
func (l *Layout) PageAt(p Point) (page int, canvas Rect, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for n, r := range l.pages {
		if !r.Contains(p) {
			continue
		}
		if !ok || n < page {
			page, canvas, ok = n, r, true
		}
	}
	return page, canvas, ok
}

// Mounted reports whether any page canvas exists yet.
func (l *Layout) Mounted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pages) > 0
}

// Display resolves a stored point on a page to a display point. If the page
// is not mounted the stored point comes back unmodified and ok is false;
// the caller logs, never surfaces.
func (l *Layout) Display(stored Point, page int, scroll Point) (p Point, ok bool) {
	canvas, mounted := l.Page(page)
	if !mounted {
		l.mu.Lock()
		l.fallbacks++
		l.mu.Unlock()
		return stored, false
	}
	return ToDisplay(stored, canvas.Origin, scroll), true
}

// Stored resolves a display point on a page back to a stored point, with
// the same fallback behavior as Display.
func (l *Layout) Stored(display Point, page int, scroll Point) (p Point, ok bool) {
	canvas, mounted := l.Page(page)
	if !mounted {
		l.mu.Lock()
		l.fallbacks++
		l.mu.Unlock()
		return display, false
	}
	return ToStored(display, canvas.Origin, scroll), true
}

// Fallbacks returns how many conversions degraded to the fallback path
// since construction. Render timing noise, not an error signal.
func (l *Layout) Fallbacks() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fallbacks
}

// NormalizeLegacy converts a container-relative-at-creation-time stored
// point (the legacy persistence convention) to the canonical page-relative
// convention, given the canvas rect the page had when the point was
// persisted. Applied once at load, never at render.
func NormalizeLegacy(containerRelative Point, canvasAtCreation Rect) Point {
	return containerRelative.Sub(canvasAtCreation.Origin)
}
