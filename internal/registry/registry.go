// Package registry holds the in-memory working copy of one document's
// signatories and fields while it is open in the preparer's editor. Every
// mutation goes through the persistence collaborator first; the in-memory
// copy only updates after the write succeeds.
package registry

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"signflow/internal/compliance"
	"signflow/internal/document"
	"signflow/internal/geometry"
)

// Persistence is the external write path. Failures come back wrapped as
// document.PersistenceError.
type Persistence interface {
	CreateSignatory(ctx context.Context, s *document.Signatory) error
	DeleteSignatory(ctx context.Context, id uuid.UUID) error
	CreateField(ctx context.Context, f *document.SignatureField) error
	UpdateField(ctx context.Context, id uuid.UUID, update document.FieldUpdate) error
	DeleteField(ctx context.Context, id uuid.UUID) error
}

// Palette assigned to signatories in order, wrapping around.
var signatoryColors = []string{
	"#2563eb", "#16a34a", "#d97706", "#dc2626", "#7c3aed", "#0891b2",
}

// Registry is the mutable editor state for one document.
type Registry struct {
	mu    sync.Mutex
	doc   *document.Document
	store Persistence
}

func New(doc *document.Document, store Persistence) *Registry {
	return &Registry{doc: doc, store: store}
}

// Document returns the working copy.
func (r *Registry) Document() *document.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc
}

// AddSignatory validates, persists, and appends a signatory with the next
// palette color. On a draft the signatory starts preparing and waits for
// send; added to an already-sent document they enter pending immediately so
// an invite can go out right away.
func (r *Registry) AddSignatory(ctx context.Context, name, email, role string) (*document.Signatory, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &document.ValidationError{Field: "name", Msg: "required"}
	}
	if strings.TrimSpace(email) == "" {
		return nil, &document.ValidationError{Field: "email", Msg: "required"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	status := document.SignatoryPreparing
	if r.doc.Status == document.StatusSent {
		status = document.SignatoryPending
	}
	s := &document.Signatory{
		ID:         uuid.New(),
		DocumentID: r.doc.ID,
		Name:       name,
		Email:      email,
		Role:       role,
		Color:      signatoryColors[len(r.doc.Signatories)%len(signatoryColors)],
		Status:     status,
	}
	if err := r.store.CreateSignatory(ctx, s); err != nil {
		return nil, &document.PersistenceError{Op: "create signatory", Err: err}
	}
	r.doc.Signatories = append(r.doc.Signatories, *s)
	return s, nil
}

// RemoveSignatory drops a signatory. Fields they owned become unassigned
// placeholders rather than being deleted, so positional work already done
// by the preparer is not lost.
func (r *Registry) RemoveSignatory(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.doc.Signatories {
		if r.doc.Signatories[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &document.ValidationError{Field: "signatory", Msg: "not found"}
	}

	if err := r.store.DeleteSignatory(ctx, id); err != nil {
		return &document.PersistenceError{Op: "delete signatory", Err: err}
	}

	r.doc.Signatories = append(r.doc.Signatories[:idx], r.doc.Signatories[idx+1:]...)
	for i := range r.doc.Fields {
		if r.doc.Fields[i].SignatoryID != nil && *r.doc.Fields[i].SignatoryID == id {
			r.doc.Fields[i].SignatoryID = nil
		}
	}
	return nil
}

// AddField places a new field at a page-relative stored position.
func (r *Registry) AddField(ctx context.Context, pos geometry.Point, size geometry.Size, page int, kind document.FieldKind, signatoryID *uuid.UUID) (*document.SignatureField, error) {
	if kind != document.KindSignature && kind != document.KindParaphe {
		return nil, &document.ValidationError{Field: "kind", Msg: "must be signature or paraphe"}
	}
	if page < 1 {
		return nil, &document.ValidationError{Field: "page", Msg: "must be positive"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	f := &document.SignatureField{
		ID:          uuid.New(),
		DocumentID:  r.doc.ID,
		SignatoryID: signatoryID,
		Kind:        kind,
		X:           pos.X,
		Y:           pos.Y,
		Width:       size.Width,
		Height:      size.Height,
		Page:        page,
		Tier:        compliance.TierSimple,
	}
	if err := r.store.CreateField(ctx, f); err != nil {
		return nil, &document.PersistenceError{Op: "create field", Err: err}
	}
	r.doc.Fields = append(r.doc.Fields, *f)
	return f, nil
}

// UpdateField applies a partial update. This is the sole mutation path the
// drag controller commits through.
func (r *Registry) UpdateField(ctx context.Context, id uuid.UUID, update document.FieldUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	f := r.doc.FieldByID(id)
	if f == nil {
		return &document.ValidationError{Field: "field", Msg: "not found"}
	}
	if err := r.store.UpdateField(ctx, id, update); err != nil {
		return &document.PersistenceError{Op: "update field", Err: err}
	}
	update.Apply(f)
	return nil
}

// RemoveField deletes a field outright.
func (r *Registry) RemoveField(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.doc.Fields {
		if r.doc.Fields[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &document.ValidationError{Field: "field", Msg: "not found"}
	}
	if err := r.store.DeleteField(ctx, id); err != nil {
		return &document.PersistenceError{Op: "delete field", Err: err}
	}
	r.doc.Fields = append(r.doc.Fields[:idx], r.doc.Fields[idx+1:]...)
	return nil
}
