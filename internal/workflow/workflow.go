// Package workflow drives document and signatory status transitions and the
// append-only audit trail. Every transition runs inside the store's
// per-document critical section so two near-simultaneous last signatures can
// never both believe they are "not last".
package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"signflow/internal/compliance"
	"signflow/internal/document"
)

// Store serializes access to one document. WithDocument loads the document,
// runs fn against it, and persists the mutations atomically; concurrent
// calls for the same document are mutually exclusive. The signature-count
// check and the completion transition happen inside one such unit.
type Store interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*document.Document, error)
	WithDocument(ctx context.Context, id uuid.UUID, fn func(*document.Document) error) error
}

// Notifier delivers signing emails. Best-effort: per-recipient failures are
// logged and never abort the transition that triggered them.
type Notifier interface {
	SendSigningInvite(ctx context.Context, email, link string) error
	SendReminder(ctx context.Context, email, link string) error
}

// Identity resolves signatory emails to platform accounts for the weak
// back-reference. A nil result means no account exists.
type Identity interface {
	FindUserByEmail(ctx context.Context, email string) (*int, error)
}

// LinkIssuer mints the per-signatory signing link embedded in emails.
type LinkIssuer interface {
	SigningLink(documentID, signatoryID uuid.UUID, email string) (string, error)
}

// Workflow is constructed once at server start and injected where needed;
// no package-level singleton.
type Workflow struct {
	store    Store
	notifier Notifier
	identity Identity
	links    LinkIssuer
	now      func() time.Time
}

func New(store Store, notifier Notifier, identity Identity, links LinkIssuer) *Workflow {
	return &Workflow{
		store:    store,
		notifier: notifier,
		identity: identity,
		links:    links,
		now:      time.Now,
	}
}

type invite struct {
	email string
	link  string
}

// Send moves a draft document to sent: every preparing signatory becomes
// pending, each gets a signing email with a per-signatory token link, and
// signatories whose email matches a platform account are weakly linked to
// it. Only the creator may send, only from draft.
func (w *Workflow) Send(ctx context.Context, docID uuid.UUID, actorID int, actorName string) error {
	var invites []invite

	err := w.store.WithDocument(ctx, docID, func(d *document.Document) error {
		if d.CreatedBy != actorID {
			return &document.AuthorizationError{Msg: "only the creator can send a document"}
		}
		if d.Status != document.StatusDraft {
			return &document.StateError{Current: d.Status, Msg: "document can only be sent from draft"}
		}
		if len(d.Signatories) == 0 {
			return &document.ValidationError{Field: "signatories", Msg: "at least one signatory is required"}
		}

		for i := range d.Signatories {
			s := &d.Signatories[i]
			if s.Status == document.SignatoryPreparing {
				s.Status = document.SignatoryPending
			}

			if userID, err := w.identity.FindUserByEmail(ctx, s.Email); err == nil && userID != nil {
				s.UserID = userID
			}

			link, err := w.links.SigningLink(d.ID, s.ID, s.Email)
			if err != nil {
				return fmt.Errorf("failed to build signing link for %s: %w", s.Email, err)
			}
			invites = append(invites, invite{email: s.Email, link: link})
		}

		d.Status = document.StatusSent
		d.Events = append(d.Events, document.Event{
			DocumentID: d.ID,
			Type:       document.EventSent,
			ActorName:  actorName,
			CreatedAt:  w.now(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	// Fire-and-forget relative to the transition: the document is sent even
	// if some emails bounce.
	for _, inv := range invites {
		if err := w.notifier.SendSigningInvite(ctx, inv.email, inv.link); err != nil {
			log.Printf("failed to send signing invite to %s: %v", inv.email, err)
		}
	}
	return nil
}

// Sign fills a field with the signed value and its compliance record,
// transitions the owning signatory to signed, and — inside the same
// critical section — completes the document when that was the last
// signature, appending exactly one completed event with actor "System".
func (w *Workflow) Sign(ctx context.Context, docID, signatoryID, fieldID uuid.UUID, value string, record *compliance.Record) error {
	return w.store.WithDocument(ctx, docID, func(d *document.Document) error {
		if d.Status == document.StatusCancelled {
			return &document.StateError{Current: d.Status, Msg: "document has been cancelled"}
		}
		if d.Status != document.StatusSent {
			return &document.StateError{Current: d.Status, Msg: "document is not open for signing"}
		}

		s := d.SignatoryByID(signatoryID)
		if s == nil {
			return &document.ValidationError{Field: "signatory", Msg: "not found"}
		}
		if s.Status == document.SignatorySigned {
			return &document.StateError{Current: d.Status, Msg: "signatory has already signed"}
		}
		if s.Status != document.SignatoryPending {
			return &document.StateError{Current: d.Status, Msg: "signatory is not pending"}
		}

		f := d.FieldByID(fieldID)
		if f == nil {
			return &document.ValidationError{Field: "field", Msg: "not found"}
		}
		if f.SignatoryID == nil || *f.SignatoryID != signatoryID {
			return &document.AuthorizationError{Msg: "field is not assigned to this signatory"}
		}
		if f.Signed() {
			return &document.StateError{Current: d.Status, Msg: "field has already been signed"}
		}

		signedAt := w.now()
		f.Value = value
		f.Compliance = record
		f.SignedAt = &signedAt

		// A signatory may own several fields (a signature plus per-page
		// paraphes); they turn signed, and the completion check runs, only
		// once their last assigned field is filled.
		if unsignedFields(d, signatoryID) == 0 {
			s.Status = document.SignatorySigned
			d.Events = append(d.Events, document.Event{
				DocumentID: d.ID,
				Type:       document.EventSigned,
				ActorName:  s.Name,
				CreatedAt:  signedAt,
			})

			if d.AllSigned() {
				d.Status = document.StatusCompleted
				d.Events = append(d.Events, document.Event{
					DocumentID: d.ID,
					Type:       document.EventCompleted,
					ActorName:  "System",
					CreatedAt:  w.now(),
				})
			}
		}
		return nil
	})
}

func unsignedFields(d *document.Document, signatoryID uuid.UUID) int {
	n := 0
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.SignatoryID != nil && *f.SignatoryID == signatoryID && !f.Signed() {
			n++
		}
	}
	return n
}

// Refuse records a signatory declining to sign. Only reachable while the
// document is sent and the signatory still pending.
func (w *Workflow) Refuse(ctx context.Context, docID, signatoryID uuid.UUID) error {
	return w.store.WithDocument(ctx, docID, func(d *document.Document) error {
		if d.Status != document.StatusSent {
			return &document.StateError{Current: d.Status, Msg: "document is not open for signing"}
		}
		s := d.SignatoryByID(signatoryID)
		if s == nil {
			return &document.ValidationError{Field: "signatory", Msg: "not found"}
		}
		if s.Status != document.SignatoryPending {
			return &document.StateError{Current: d.Status, Msg: "signatory is not pending"}
		}
		s.Status = document.SignatoryRefused
		return nil
	})
}

// Remind re-sends the signing email to signatories still pending. Creator
// only, sent only. External rate limiting applies upstream.
func (w *Workflow) Remind(ctx context.Context, docID uuid.UUID, actorID int, actorName string) error {
	var invites []invite

	err := w.store.WithDocument(ctx, docID, func(d *document.Document) error {
		if d.CreatedBy != actorID {
			return &document.AuthorizationError{Msg: "only the creator can send reminders"}
		}
		if d.Status != document.StatusSent {
			return &document.StateError{Current: d.Status, Msg: "reminders only apply to sent documents"}
		}

		for i := range d.Signatories {
			s := &d.Signatories[i]
			if s.Status != document.SignatoryPending {
				continue
			}
			link, err := w.links.SigningLink(d.ID, s.ID, s.Email)
			if err != nil {
				return fmt.Errorf("failed to build signing link for %s: %w", s.Email, err)
			}
			invites = append(invites, invite{email: s.Email, link: link})
		}

		d.Events = append(d.Events, document.Event{
			DocumentID: d.ID,
			Type:       document.EventReminded,
			ActorName:  actorName,
			CreatedAt:  w.now(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	for _, inv := range invites {
		if err := w.notifier.SendReminder(ctx, inv.email, inv.link); err != nil {
			log.Printf("failed to send reminder to %s: %v", inv.email, err)
		}
	}
	return nil
}

// Cancel terminates a sent document. No further signing is possible; any
// in-flight attempt hits the cancelled StateError in Sign.
func (w *Workflow) Cancel(ctx context.Context, docID uuid.UUID, actorID int, actorName string) error {
	return w.store.WithDocument(ctx, docID, func(d *document.Document) error {
		if d.CreatedBy != actorID {
			return &document.AuthorizationError{Msg: "only the creator can cancel a document"}
		}
		if d.Status != document.StatusSent {
			return &document.StateError{Current: d.Status, Msg: "only sent documents can be cancelled"}
		}
		d.Status = document.StatusCancelled
		d.Events = append(d.Events, document.Event{
			DocumentID: d.ID,
			Type:       document.EventCancelled,
			ActorName:  actorName,
			CreatedAt:  w.now(),
		})
		return nil
	})
}

// CanDeleteField reports whether the actor may delete a field right now:
// creator only, draft only. The HTTP layer enforces it; exposed here so the
// rule lives next to the rest of the state machine.
func (w *Workflow) CanDeleteField(d *document.Document, actorID int) bool {
	return d.CreatedBy == actorID && d.Status == document.StatusDraft
}
