package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a user (single user in self-hosted mode)
type User struct {
	ID          string          `gorm:"primaryKey" json:"id"`
	DisplayName string          `json:"display_name"`
	Preferences json.RawMessage `json:"preferences"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DosingProfile holds a user's insulin personalization parameters. The
// suggest endpoint falls back to these for optional fields omitted from a
// request; the zero row is seeded with the standard 10/50/100 defaults.
type DosingProfile struct {
	UserID            string    `gorm:"primaryKey" json:"user_id"`
	CarbRatio         float64   `json:"carb_ratio"`
	SensitivityFactor float64   `json:"sensitivity_factor"`
	TargetGlucose     float64   `json:"target_glucose"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DoseSuggestion is the audit record of a computed bolus suggestion. The
// calculator itself stays pure; the API layer records what it returned.
type DoseSuggestion struct {
	ID                string    `gorm:"primaryKey" json:"id"`
	UserID            string    `gorm:"index" json:"user_id"`
	Carbs             float64   `json:"carbs"`
	CurrentGlucose    float64   `json:"current_glucose"`
	CarbRatio         float64   `json:"carb_ratio"`
	SensitivityFactor float64   `json:"sensitivity_factor"`
	TargetGlucose     float64   `json:"target_glucose"`
	CarbUnits         float64   `json:"carb_units"`
	CorrectionUnits   float64   `json:"correction_units"`
	SuggestedBolus    float64   `json:"suggested_bolus"`
	CreatedAt         time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate hook for DoseSuggestion
func (d *DoseSuggestion) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
