// Package document defines the core records of a signing dossier: the
// document itself, its signatories, the signature fields placed on the
// rendered pages, and the append-only audit trail.
package document

import (
	"time"

	"github.com/google/uuid"

	"signflow/internal/compliance"
)

// Custom types to match PostgreSQL enums
type Status string
type SignatoryStatus string
type FieldKind string
type EventType string

const (
	// Document statuses
	StatusDraft     Status = "draft"
	StatusSent      Status = "sent"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"

	// Signatory statuses
	SignatoryPreparing SignatoryStatus = "preparing"
	SignatoryPending   SignatoryStatus = "pending"
	SignatorySigned    SignatoryStatus = "signed"
	SignatoryRefused   SignatoryStatus = "refused"

	// Field kinds
	KindSignature FieldKind = "signature"
	KindParaphe   FieldKind = "paraphe"

	// Event types
	EventSent      EventType = "sent"
	EventSigned    EventType = "signed"
	EventReminded  EventType = "reminded"
	EventCancelled EventType = "cancelled"
	EventCompleted EventType = "completed"
)

// Document is one dossier moving through the signing workflow. Status only
// moves forward, except cancellation which is terminal from "sent".
type Document struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	FileKey     string           `json:"file_key"`
	FileHash    string           `json:"file_hash"`
	Status      Status           `json:"status"`
	CreatedBy   int              `json:"created_by"`
	Signatories []Signatory      `json:"signatories"`
	Fields      []SignatureField `json:"fields"`
	Events      []Event          `json:"events"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Signatory is one party expected to sign. UserID is a weak reference
// resolved by email when the document is sent; it never implies ownership.
type Signatory struct {
	ID         uuid.UUID       `json:"id"`
	DocumentID uuid.UUID       `json:"document_id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Role       string          `json:"role"`
	Color      string          `json:"color"`
	Status     SignatoryStatus `json:"status"`
	UserID     *int            `json:"user_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// SignatureField is a marker placed on a page. X and Y are page-relative
// stored coordinates (see internal/geometry); they are converted to display
// coordinates only at render time. A field without a signatory is a
// placeholder kept when its owner is removed.
type SignatureField struct {
	ID          uuid.UUID          `json:"id"`
	DocumentID  uuid.UUID          `json:"document_id"`
	SignatoryID *uuid.UUID         `json:"signatory_id,omitempty"`
	Kind        FieldKind          `json:"kind"`
	X           float64            `json:"x"`
	Y           float64            `json:"y"`
	Width       float64            `json:"width"`
	Height      float64            `json:"height"`
	Page        int                `json:"page"`
	Tier        compliance.Tier    `json:"tier"`
	Value       string             `json:"value,omitempty"`
	Compliance  *compliance.Record `json:"compliance,omitempty"`
	SignedAt    *time.Time         `json:"signed_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Signed reports whether the field already carries a signed value.
func (f *SignatureField) Signed() bool {
	return f.SignedAt != nil
}

// Event is one append-only audit entry. Events are never mutated or deleted.
type Event struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Type       EventType `json:"type"`
	ActorName  string    `json:"actor_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// SignatoryByID returns the signatory with the given id, or nil.
func (d *Document) SignatoryByID(id uuid.UUID) *Signatory {
	for i := range d.Signatories {
		if d.Signatories[i].ID == id {
			return &d.Signatories[i]
		}
	}
	return nil
}

// FieldByID returns the field with the given id, or nil.
func (d *Document) FieldByID(id uuid.UUID) *SignatureField {
	for i := range d.Fields {
		if d.Fields[i].ID == id {
			return &d.Fields[i]
		}
	}
	return nil
}

// AllSigned reports whether every signatory has reached the signed status.
// A document with no signatories is never considered fully signed.
func (d *Document) AllSigned() bool {
	if len(d.Signatories) == 0 {
		return false
	}
	for i := range d.Signatories {
		if d.Signatories[i].Status != SignatorySigned {
			return false
		}
	}
	return true
}
