package workflow

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"signflow/internal/document"
)

// MemStore is an in-process Store keeping whole documents under a single
// mutex. It backs tests and single-node deployments without Postgres; the
// database package provides the transactional implementation.
type MemStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*document.Document
}

func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[uuid.UUID]*document.Document)}
}

// Put stores (or replaces) a document.
func (m *MemStore) Put(d *document.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[d.ID] = d
}

func (m *MemStore) GetDocument(_ context.Context, id uuid.UUID) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, &document.ValidationError{Field: "document", Msg: "not found"}
	}
	cp := cloneDocument(d)
	return cp, nil
}

// WithDocument runs fn under the store mutex against the live document, so
// the all-signed check and the completion transition are one atomic unit.
// An error from fn discards nothing — fn mutates the stored copy directly
// only on success, matching the transactional store's rollback semantics.
func (m *MemStore) WithDocument(_ context.Context, id uuid.UUID, fn func(*document.Document) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[id]
	if !ok {
		return &document.ValidationError{Field: "document", Msg: "not found"}
	}

	work := cloneDocument(d)
	if err := fn(work); err != nil {
		return err
	}

	for i := range work.Events {
		if work.Events[i].ID == uuid.Nil {
			work.Events[i].ID = uuid.New()
		}
	}
	m.docs[id] = work
	return nil
}

func cloneDocument(d *document.Document) *document.Document {
	cp := *d
	cp.Signatories = append([]document.Signatory(nil), d.Signatories...)
	cp.Fields = append([]document.SignatureField(nil), d.Fields...)
	cp.Events = append([]document.Event(nil), d.Events...)
	return &cp
}
