package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"signflow/internal/compliance"
	"signflow/internal/document"
)

// CreateDocument inserts a new draft document.
func (s *service) CreateDocument(doc *document.Document) error {
	query := `
		INSERT INTO documents (id, name, file_key, file_hash, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING created_at, updated_at`

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = document.StatusDraft
	}

	err := s.db.QueryRow(query, doc.ID, doc.Name, doc.FileKey, doc.FileHash, doc.Status, doc.CreatedBy).
		Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetDocumentByID loads a document with its signatories, fields, and events.
func (s *service) GetDocumentByID(id uuid.UUID) (*document.Document, error) {
	return loadDocument(s.db, id, false)
}

type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

func loadDocument(q querier, id uuid.UUID, forUpdate bool) (*document.Document, error) {
	doc := &document.Document{}
	query := `
		SELECT id, name, file_key, file_hash, status, created_by, created_at, updated_at
		FROM documents WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	err := q.QueryRow(query, id).Scan(
		&doc.ID, &doc.Name, &doc.FileKey, &doc.FileHash, &doc.Status,
		&doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("document not found: %w", err)
	}

	signatories, err := loadSignatories(q, id)
	if err != nil {
		return nil, err
	}
	doc.Signatories = signatories

	fields, err := loadFields(q, id)
	if err != nil {
		return nil, err
	}
	doc.Fields = fields

	events, err := loadEvents(q, id)
	if err != nil {
		return nil, err
	}
	doc.Events = events

	return doc, nil
}

func loadSignatories(q querier, documentID uuid.UUID) ([]document.Signatory, error) {
	query := `
		SELECT id, document_id, name, email, role, color, status, user_id, created_at
		FROM signatories
		WHERE document_id = $1
		ORDER BY created_at ASC`

	rows, err := q.Query(query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get signatories: %w", err)
	}
	defer rows.Close()

	var signatories []document.Signatory
	for rows.Next() {
		var sig document.Signatory
		var userID sql.NullInt64
		err := rows.Scan(
			&sig.ID, &sig.DocumentID, &sig.Name, &sig.Email, &sig.Role,
			&sig.Color, &sig.Status, &userID, &sig.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signatory: %w", err)
		}
		if userID.Valid {
			v := int(userID.Int64)
			sig.UserID = &v
		}
		signatories = append(signatories, sig)
	}
	return signatories, rows.Err()
}

func loadFields(q querier, documentID uuid.UUID) ([]document.SignatureField, error) {
	query := `
		SELECT id, document_id, signatory_id, kind, x, y, width, height, page,
			   tier, COALESCE(value, ''), compliance, signed_at, created_at
		FROM signature_fields
		WHERE document_id = $1
		ORDER BY created_at ASC`

	rows, err := q.Query(query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fields: %w", err)
	}
	defer rows.Close()

	var fields []document.SignatureField
	for rows.Next() {
		var f document.SignatureField
		var signatoryID uuid.NullUUID
		var complianceJSON []byte
		var signedAt sql.NullTime
		err := rows.Scan(
			&f.ID, &f.DocumentID, &signatoryID, &f.Kind, &f.X, &f.Y,
			&f.Width, &f.Height, &f.Page, &f.Tier, &f.Value,
			&complianceJSON, &signedAt, &f.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		if signatoryID.Valid {
			v := signatoryID.UUID
			f.SignatoryID = &v
		}
		if len(complianceJSON) > 0 {
			var rec compliance.Record
			if err := json.Unmarshal(complianceJSON, &rec); err != nil {
				return nil, fmt.Errorf("failed to decode compliance record: %w", err)
			}
			f.Compliance = &rec
		}
		if signedAt.Valid {
			v := signedAt.Time
			f.SignedAt = &v
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

func loadEvents(q querier, documentID uuid.UUID) ([]document.Event, error) {
	query := `
		SELECT id, document_id, type, actor_name, created_at
		FROM document_events
		WHERE document_id = $1
		ORDER BY created_at ASC`

	rows, err := q.Query(query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []document.Event
	for rows.Next() {
		var e document.Event
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Type, &e.ActorName, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetUserDocuments lists a user's documents, most recent first, without the
// nested collections.
func (s *service) GetUserDocuments(userID int) ([]document.Document, error) {
	query := `
		SELECT id, name, file_key, file_hash, status, created_by, created_at, updated_at
		FROM documents
		WHERE created_by = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var d document.Document
		err := rows.Scan(&d.ID, &d.Name, &d.FileKey, &d.FileHash, &d.Status, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetDocumentEvents returns the audit trail for a document.
func (s *service) GetDocumentEvents(documentID uuid.UUID) ([]document.Event, error) {
	return loadEvents(s.db, documentID)
}

// CreateSignatory inserts a signatory row.
func (s *service) CreateSignatory(ctx context.Context, sig *document.Signatory) error {
	query := `
		INSERT INTO signatories (id, document_id, name, email, role, color, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at`

	if sig.ID == uuid.Nil {
		sig.ID = uuid.New()
	}
	err := s.db.QueryRowContext(ctx, query,
		sig.ID, sig.DocumentID, sig.Name, sig.Email, sig.Role, sig.Color, sig.Status,
	).Scan(&sig.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create signatory: %w", err)
	}
	return nil
}

// DeleteSignatory removes a signatory, first unassigning their fields so
// placed markers survive as placeholders. Both writes share a transaction.
func (s *service) DeleteSignatory(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE signature_fields SET signatory_id = NULL WHERE signatory_id = $1`, id); err != nil {
		return fmt.Errorf("failed to unassign fields: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM signatories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete signatory: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("signatory not found")
	}

	return tx.Commit()
}

// CreateField inserts a field row with its page-relative stored position.
func (s *service) CreateField(ctx context.Context, f *document.SignatureField) error {
	query := `
		INSERT INTO signature_fields (id, document_id, signatory_id, kind, x, y, width, height, page, tier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING created_at`

	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	var signatoryID any
	if f.SignatoryID != nil {
		signatoryID = *f.SignatoryID
	}
	err := s.db.QueryRowContext(ctx, query,
		f.ID, f.DocumentID, signatoryID, f.Kind, f.X, f.Y, f.Width, f.Height, f.Page, f.Tier,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create field: %w", err)
	}
	return nil
}

// UpdateField applies a partial field update. Unset members leave their
// columns untouched.
func (s *service) UpdateField(ctx context.Context, id uuid.UUID, update document.FieldUpdate) error {
	query := `
		UPDATE signature_fields SET
			x = COALESCE($2, x),
			y = COALESCE($3, y),
			width = COALESCE($4, width),
			height = COALESCE($5, height),
			page = COALESCE($6, page),
			signatory_id = COALESCE($7, signatory_id),
			tier = COALESCE($8, tier),
			value = COALESCE($9, value)
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		id, update.X, update.Y, update.Width, update.Height,
		update.Page, update.SignatoryID, update.Tier, update.Value,
	)
	if err != nil {
		return fmt.Errorf("failed to update field: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("field not found")
	}
	return nil
}

// DeleteField removes a field row.
func (s *service) DeleteField(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM signature_fields WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete field: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("field not found")
	}
	return nil
}
