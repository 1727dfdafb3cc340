package document

import (
	"github.com/google/uuid"

	"signflow/internal/compliance"
)

// FieldUpdate is a partial mutation of a field. Nil pointers mean "leave
// unchanged".
type FieldUpdate struct {
	X           *float64         `json:"x,omitempty"`
	Y           *float64         `json:"y,omitempty"`
	Width       *float64         `json:"width,omitempty"`
	Height      *float64         `json:"height,omitempty"`
	Page        *int             `json:"page,omitempty"`
	SignatoryID *uuid.UUID       `json:"signatory_id,omitempty"`
	Tier        *compliance.Tier `json:"tier,omitempty"`
	Value       *string          `json:"value,omitempty"`
}

// Apply copies the set members onto the field.
func (u FieldUpdate) Apply(f *SignatureField) {
	if u.X != nil {
		f.X = *u.X
	}
	if u.Y != nil {
		f.Y = *u.Y
	}
	if u.Width != nil {
		f.Width = *u.Width
	}
	if u.Height != nil {
		f.Height = *u.Height
	}
	if u.Page != nil {
		f.Page = *u.Page
	}
	if u.SignatoryID != nil {
		f.SignatoryID = u.SignatoryID
	}
	if u.Tier != nil {
		f.Tier = *u.Tier
	}
	if u.Value != nil {
		f.Value = *u.Value
	}
}
