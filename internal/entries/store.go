package entries

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/glucolog/glucolog/internal/errors"
	"gorm.io/gorm"
)

// Store handles journal persistence
type Store struct {
	db *gorm.DB
}

// NewStore creates a new entries store
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate entries schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Create validates and persists an entry. The type tag must already be one
// of the known types; callers decoding external input go through ParseType.
func (s *Store) Create(entry *Entry) error {
	if _, err := ParseType(string(entry.Type)); err != nil {
		return err
	}
	if entry.Type == TypeMedication && entry.Status != "" {
		if _, err := ParseStatus(entry.Status); err != nil {
			return err
		}
	}
	if entry.Value <= 0 {
		return apperrors.New(apperrors.ErrBadRequest.Code, "entry value must be greater than 0")
	}

	entry.CreatedAt = time.Now()
	entry.UpdatedAt = time.Now()
	return s.db.Create(entry).Error
}

// Get retrieves an entry by ID
func (s *Store) Get(userID, id string) (*Entry, error) {
	var entry Entry
	err := s.db.Where("user_id = ? AND id = ?", userID, id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrEntryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes an entry by ID
func (s *Store) Delete(userID, id string) error {
	res := s.db.Where("user_id = ? AND id = ?", userID, id).Delete(&Entry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrEntryNotFound
	}
	return nil
}

// Update persists changes to an existing entry
func (s *Store) Update(entry *Entry) error {
	entry.UpdatedAt = time.Now()
	return s.db.Save(entry).Error
}

// List retrieves entries filtered by type and time range, newest first
func (s *Store) List(userID string, entryType Type, start, end time.Time, limit int) ([]Entry, error) {
	query := s.db.Where("user_id = ?", userID)

	if entryType != "" {
		query = query.Where("type = ?", entryType)
	}
	if !start.IsZero() {
		query = query.Where("occurred_at >= ?", start)
	}
	if !end.IsZero() {
		query = query.Where("occurred_at <= ?", end)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var result []Entry
	err := query.Order("occurred_at DESC").Find(&result).Error
	return result, err
}

// GlucoseSeries returns glucose readings in a window, oldest first, for
// trend computation.
func (s *Store) GlucoseSeries(userID string, start, end time.Time) ([]Entry, error) {
	var result []Entry
	err := s.db.Where("user_id = ? AND type = ?", userID, TypeGlucose).
		Where("occurred_at >= ? AND occurred_at <= ?", start, end).
		Order("occurred_at ASC").
		Find(&result).Error
	return result, err
}

// Latest returns the most recent entry of a type, or nil when none exists
func (s *Store) Latest(userID string, entryType Type) (*Entry, error) {
	var entry Entry
	err := s.db.Where("user_id = ? AND type = ?", userID, entryType).
		Order("occurred_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// OverdueMedications returns scheduled medication entries whose scheduled
// time passed more than the grace period ago.
func (s *Store) OverdueMedications(userID string, gracePeriod time.Duration) ([]Entry, error) {
	cutoff := time.Now().Add(-gracePeriod)

	var result []Entry
	err := s.db.Where("user_id = ? AND type = ? AND status = ?", userID, TypeMedication, StatusScheduled).
		Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", cutoff).
		Find(&result).Error
	return result, err
}

// HasExternalID reports whether an imported record already exists, keeping
// Nightscout re-imports idempotent.
func (s *Store) HasExternalID(userID, externalID string) (bool, error) {
	var count int64
	err := s.db.Model(&Entry{}).
		Where("user_id = ? AND external_id = ?", userID, externalID).
		Count(&count).Error
	return count > 0, err
}

// CountByDay returns the set of distinct local days (YYYY-MM-DD) with at
// least one entry in the window, used for streak computation.
func (s *Store) CountByDay(userID string, start, end time.Time) (map[string]int, error) {
	entries, err := s.List(userID, "", start, end, 0)
	if err != nil {
		return nil, err
	}

	days := make(map[string]int)
	for _, e := range entries {
		days[e.OccurredAt.Local().Format("2006-01-02")]++
	}
	return days, nil
}
