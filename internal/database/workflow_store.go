package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"signflow/internal/document"
)

// WithDocument is the transactional boundary the workflow runs inside: the
// document row is locked, fn mutates the loaded document, and all resulting
// status, field, and event changes are persisted before the lock releases.
// Concurrent last-signer races serialize here, so the all-signed check can
// never fire twice.
func (s *service) WithDocument(ctx context.Context, id uuid.UUID, fn func(*document.Document) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	doc, err := loadDocument(tx, id, true)
	if err != nil {
		return err
	}
	priorEvents := len(doc.Events)

	if err := fn(doc); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1`,
		doc.ID, doc.Status,
	); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	for i := range doc.Signatories {
		sig := &doc.Signatories[i]
		var userID any
		if sig.UserID != nil {
			userID = *sig.UserID
		}
		if _, err := tx.Exec(
			`UPDATE signatories SET status = $2, user_id = $3 WHERE id = $1`,
			sig.ID, sig.Status, userID,
		); err != nil {
			return fmt.Errorf("failed to update signatory %s: %w", sig.ID, err)
		}
	}

	for i := range doc.Fields {
		f := &doc.Fields[i]
		if !f.Signed() {
			continue
		}
		complianceJSON, err := json.Marshal(f.Compliance)
		if err != nil {
			return fmt.Errorf("failed to encode compliance record: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE signature_fields SET value = $2, compliance = $3, signed_at = $4 WHERE id = $1`,
			f.ID, f.Value, complianceJSON, f.SignedAt,
		); err != nil {
			return fmt.Errorf("failed to update field %s: %w", f.ID, err)
		}
	}

	// Events are append-only: only rows added by fn are inserted.
	for i := priorEvents; i < len(doc.Events); i++ {
		e := &doc.Events[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if _, err := tx.Exec(
			`INSERT INTO document_events (id, document_id, type, actor_name, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			e.ID, e.DocumentID, e.Type, e.ActorName, e.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetDocument satisfies the workflow store interface.
func (s *service) GetDocument(_ context.Context, id uuid.UUID) (*document.Document, error) {
	return s.GetDocumentByID(id)
}
