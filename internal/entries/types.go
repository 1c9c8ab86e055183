// Package entries implements the diabetes journal: glucose readings, carb
// intake, medication doses, and activity, stored as typed log entries.
package entries

import (
	"time"

	"github.com/google/uuid"
	apperrors "github.com/glucolog/glucolog/internal/errors"
	"gorm.io/gorm"
)

// Type tags an entry. Decoding is exhaustive: an unrecognized tag is an
// error, never silently replaced with a default.
type Type string

const (
	TypeGlucose    Type = "glucose"    // blood glucose reading, mg/dL
	TypeCarbs      Type = "carbs"      // carbohydrate intake, grams
	TypeMedication Type = "medication" // insulin or oral medication dose
	TypeActivity   Type = "activity"   // physical activity, minutes
)

// ParseType decodes an entry type tag, failing loudly on anything unknown.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeGlucose, TypeCarbs, TypeMedication, TypeActivity:
		return Type(s), nil
	default:
		return "", apperrors.New(apperrors.ErrUnknownEntryType.Code, "unknown entry type: "+s)
	}
}

// DefaultUnit returns the canonical unit for the type.
func (t Type) DefaultUnit() string {
	switch t {
	case TypeGlucose:
		return "mg/dL"
	case TypeCarbs:
		return "g"
	case TypeMedication:
		return "units"
	case TypeActivity:
		return "min"
	default:
		return ""
	}
}

// Medication entry statuses.
const (
	StatusScheduled = "scheduled"
	StatusTaken     = "taken"
	StatusMissed    = "missed"
	StatusSkipped   = "skipped"
)

// ParseStatus decodes a medication status, failing on unknown values.
func ParseStatus(s string) (string, error) {
	switch s {
	case StatusScheduled, StatusTaken, StatusMissed, StatusSkipped:
		return s, nil
	default:
		return "", apperrors.New(apperrors.ErrBadRequest.Code, "unknown medication status: "+s)
	}
}

// Entry is a single journal record.
type Entry struct {
	ID     string `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"index:idx_user_type_time" json:"user_id"`

	Type  Type    `gorm:"index:idx_user_type_time" json:"type"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`

	// Medication entries only
	Name        string     `json:"name,omitempty"`
	Status      string     `json:"status,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	Context string `json:"context,omitempty"` // fasting, before_meal, after_meal, exercise
	Notes   string `json:"notes,omitempty"`

	// Source tracks provenance: manual or nightscout. ExternalID carries the
	// upstream record ID so re-imports stay idempotent.
	Source     string `json:"source,omitempty"`
	ExternalID string `gorm:"index" json:"external_id,omitempty"`

	OccurredAt time.Time `gorm:"index:idx_user_type_time" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// BeforeCreate hook for Entry
func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Unit == "" {
		e.Unit = e.Type.DefaultUnit()
	}
	if e.Source == "" {
		e.Source = "manual"
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	return nil
}
