package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"signflow/internal/compliance"
	"signflow/internal/document"
	"signflow/internal/geometry"
)

// recordingStore counts writes and can be told to fail, so tests can assert
// that the in-memory copy only changes after persistence succeeds.
type recordingStore struct {
	fail         bool
	creates      int
	deletes      int
	fieldWrites  int
	fieldDeletes int
}

func (s *recordingStore) err() error {
	if s.fail {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (s *recordingStore) CreateSignatory(_ context.Context, _ *document.Signatory) error {
	if err := s.err(); err != nil {
		return err
	}
	s.creates++
	return nil
}

func (s *recordingStore) DeleteSignatory(_ context.Context, _ uuid.UUID) error {
	if err := s.err(); err != nil {
		return err
	}
	s.deletes++
	return nil
}

func (s *recordingStore) CreateField(_ context.Context, _ *document.SignatureField) error {
	if err := s.err(); err != nil {
		return err
	}
	s.fieldWrites++
	return nil
}

func (s *recordingStore) UpdateField(_ context.Context, _ uuid.UUID, _ document.FieldUpdate) error {
	if err := s.err(); err != nil {
		return err
	}
	s.fieldWrites++
	return nil
}

func (s *recordingStore) DeleteField(_ context.Context, _ uuid.UUID) error {
	if err := s.err(); err != nil {
		return err
	}
	s.fieldDeletes++
	return nil
}

func draftRegistry() (*Registry, *recordingStore) {
	store := &recordingStore{}
	doc := &document.Document{
		ID:     uuid.New(),
		Name:   "contract.pdf",
		Status: document.StatusDraft,
	}
	return New(doc, store), store
}

func TestAddSignatoryValidation(t *testing.T) {
	r, store := draftRegistry()
	ctx := context.Background()

	cases := []struct {
		name, email string
		field       string
	}{
		{"", "a@example.com", "name"},
		{"   ", "a@example.com", "name"},
		{"Alice", "", "email"},
	}
	for _, tc := range cases {
		_, err := r.AddSignatory(ctx, tc.name, tc.email, "")
		var valErr *document.ValidationError
		if !errors.As(err, &valErr) || valErr.Field != tc.field {
			t.Errorf("AddSignatory(%q, %q): got %v, want ValidationError on %s", tc.name, tc.email, err, tc.field)
		}
	}
	if store.creates != 0 {
		t.Errorf("store writes = %d, want 0 for rejected input", store.creates)
	}
}

func TestAddSignatoryAssignsPaletteColors(t *testing.T) {
	r, _ := draftRegistry()
	ctx := context.Background()

	var colors []string
	for i := 0; i < 7; i++ {
		s, err := r.AddSignatory(ctx, fmt.Sprintf("Signer %d", i), fmt.Sprintf("s%d@example.com", i), "")
		if err != nil {
			t.Fatalf("AddSignatory failed: %v", err)
		}
		if s.Status != document.SignatoryPreparing {
			t.Errorf("new signatory status = %s, want preparing", s.Status)
		}
		colors = append(colors, s.Color)
	}
	if colors[0] == colors[1] {
		t.Error("consecutive signatories share a color")
	}
	// Seventh signatory wraps back to the first palette entry.
	if colors[6] != colors[0] {
		t.Errorf("palette did not wrap: %s vs %s", colors[6], colors[0])
	}
}

func TestAddSignatoryOnSentDocumentStartsPending(t *testing.T) {
	store := &recordingStore{}
	doc := &document.Document{
		ID:     uuid.New(),
		Name:   "contract.pdf",
		Status: document.StatusSent,
	}
	r := New(doc, store)

	s, err := r.AddSignatory(context.Background(), "Late Addition", "late@example.com", "")
	if err != nil {
		t.Fatalf("AddSignatory failed: %v", err)
	}
	// There is no later send to flip them pending, so they must already be
	// invitable.
	if s.Status != document.SignatoryPending {
		t.Errorf("status = %s, want pending on a sent document", s.Status)
	}
}

func TestRemoveSignatoryUnassignsFields(t *testing.T) {
	r, store := draftRegistry()
	ctx := context.Background()

	alice, err := r.AddSignatory(ctx, "Alice", "alice@example.com", "")
	if err != nil {
		t.Fatalf("AddSignatory failed: %v", err)
	}
	bob, err := r.AddSignatory(ctx, "Bob", "bob@example.com", "")
	if err != nil {
		t.Fatalf("AddSignatory failed: %v", err)
	}

	aliceField, err := r.AddField(ctx, geometry.Point{X: 50, Y: 100}, geometry.Size{Width: 120, Height: 60}, 1, document.KindSignature, &alice.ID)
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}
	if _, err := r.AddField(ctx, geometry.Point{X: 50, Y: 300}, geometry.Size{Width: 120, Height: 60}, 1, document.KindSignature, &bob.ID); err != nil {
		t.Fatalf("AddField failed: %v", err)
	}

	if err := r.RemoveSignatory(ctx, alice.ID); err != nil {
		t.Fatalf("RemoveSignatory failed: %v", err)
	}

	doc := r.Document()
	if len(doc.Signatories) != 1 {
		t.Fatalf("signatories = %d, want 1", len(doc.Signatories))
	}
	// Alice's field survives as an unassigned placeholder.
	if len(doc.Fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(doc.Fields))
	}
	orphan := doc.FieldByID(aliceField.ID)
	if orphan == nil || orphan.SignatoryID != nil {
		t.Errorf("removed signatory's field should be unassigned, got %+v", orphan)
	}
	other := doc.Fields[1]
	if other.SignatoryID == nil || *other.SignatoryID != bob.ID {
		t.Error("bob's field lost its assignment")
	}
	if store.deletes != 1 || store.fieldDeletes != 0 {
		t.Errorf("store calls: deletes=%d fieldDeletes=%d, want 1/0", store.deletes, store.fieldDeletes)
	}
}

func TestAddFieldDefaultsAndValidation(t *testing.T) {
	r, _ := draftRegistry()
	ctx := context.Background()

	f, err := r.AddField(ctx, geometry.Point{X: 10, Y: 20}, geometry.Size{Width: 120, Height: 60}, 2, document.KindParaphe, nil)
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}
	if f.Tier != compliance.TierSimple {
		t.Errorf("default tier = %s, want simple", f.Tier)
	}
	if f.Page != 2 || f.X != 10 || f.Y != 20 {
		t.Errorf("field placement wrong: %+v", f)
	}

	var valErr *document.ValidationError
	if _, err := r.AddField(ctx, geometry.Point{}, geometry.Size{}, 0, document.KindSignature, nil); !errors.As(err, &valErr) {
		t.Errorf("page 0: got %v, want ValidationError", err)
	}
	if _, err := r.AddField(ctx, geometry.Point{}, geometry.Size{}, 1, document.FieldKind("stamp"), nil); !errors.As(err, &valErr) {
		t.Errorf("unknown kind: got %v, want ValidationError", err)
	}
}

func TestUpdateFieldPartial(t *testing.T) {
	r, _ := draftRegistry()
	ctx := context.Background()

	f, err := r.AddField(ctx, geometry.Point{X: 10, Y: 20}, geometry.Size{Width: 120, Height: 60}, 1, document.KindSignature, nil)
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}

	x, y := 200.0, 340.0
	if err := r.UpdateField(ctx, f.ID, document.FieldUpdate{X: &x, Y: &y}); err != nil {
		t.Fatalf("UpdateField failed: %v", err)
	}

	got := r.Document().FieldByID(f.ID)
	if got.X != 200 || got.Y != 340 {
		t.Errorf("position = (%v, %v), want (200, 340)", got.X, got.Y)
	}
	// Members not present in the update are untouched.
	if got.Width != 120 || got.Height != 60 || got.Page != 1 {
		t.Errorf("untouched members changed: %+v", got)
	}
}

func TestPersistenceFailureLeavesCopyUntouched(t *testing.T) {
	r, store := draftRegistry()
	ctx := context.Background()

	f, err := r.AddField(ctx, geometry.Point{X: 10, Y: 20}, geometry.Size{Width: 120, Height: 60}, 1, document.KindSignature, nil)
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}

	store.fail = true

	x := 500.0
	err = r.UpdateField(ctx, f.ID, document.FieldUpdate{X: &x})
	var persErr *document.PersistenceError
	if !errors.As(err, &persErr) {
		t.Fatalf("got %v, want PersistenceError", err)
	}
	if got := r.Document().FieldByID(f.ID); got.X != 10 {
		t.Errorf("in-memory copy mutated despite failed write: X = %v", got.X)
	}

	if _, err := r.AddSignatory(ctx, "Alice", "alice@example.com", ""); !errors.As(err, &persErr) {
		t.Errorf("got %v, want PersistenceError", err)
	}
	if len(r.Document().Signatories) != 0 {
		t.Error("signatory appended despite failed write")
	}
}

func TestRemoveField(t *testing.T) {
	r, store := draftRegistry()
	ctx := context.Background()

	f, err := r.AddField(ctx, geometry.Point{X: 10, Y: 20}, geometry.Size{Width: 120, Height: 60}, 1, document.KindSignature, nil)
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}
	if err := r.RemoveField(ctx, f.ID); err != nil {
		t.Fatalf("RemoveField failed: %v", err)
	}
	if len(r.Document().Fields) != 0 {
		t.Error("field still present after removal")
	}
	if store.fieldDeletes != 1 {
		t.Errorf("fieldDeletes = %d, want 1", store.fieldDeletes)
	}

	var valErr *document.ValidationError
	if err := r.RemoveField(ctx, uuid.New()); !errors.As(err, &valErr) {
		t.Errorf("unknown field: got %v, want ValidationError", err)
	}
}
