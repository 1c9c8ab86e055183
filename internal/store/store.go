package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/glucolog/glucolog/internal/config"
	"github.com/glucolog/glucolog/internal/dosing"
	apperrors "github.com/glucolog/glucolog/internal/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultUserID identifies the single user of a self-hosted instance.
const DefaultUserID = "default"

// Store provides unified access to SQLite and BadgerDB
type Store struct {
	db     *gorm.DB
	badger *badger.DB
	config *config.StorageConfig
}

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "glucolog.db")
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&User{},
		&DosingProfile{},
		&DoseSuggestion{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	store := &Store{
		db:     db,
		badger: badgerDB,
		config: &cfg.Storage,
	}

	if err := store.createDefaultUser(); err != nil {
		return nil, fmt.Errorf("failed to create default user: %w", err)
	}

	return store, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	return s.badger.Close()
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Badger returns the BadgerDB instance
func (s *Store) Badger() *badger.DB {
	return s.badger
}

// createDefaultUser creates the default user and its dosing profile if the
// database is empty
func (s *Store) createDefaultUser() error {
	var count int64
	if err := s.db.Model(&User{}).Count(&count).Error; err != nil {
		return err
	}

	if count == 0 {
		user := &User{
			ID:          DefaultUserID,
			DisplayName: "User",
			Preferences: json.RawMessage(`{}`),
		}
		if err := s.db.Create(user).Error; err != nil {
			return err
		}
	}

	var profileCount int64
	if err := s.db.Model(&DosingProfile{}).Where("user_id = ?", DefaultUserID).Count(&profileCount).Error; err != nil {
		return err
	}

	if profileCount == 0 {
		profile := &DosingProfile{
			UserID:            DefaultUserID,
			CarbRatio:         dosing.DefaultCarbRatio,
			SensitivityFactor: dosing.DefaultSensitivityFactor,
			TargetGlucose:     dosing.DefaultTargetGlucose,
		}
		return s.db.Create(profile).Error
	}

	return nil
}

// ==================== Dosing Profile Methods ====================

// GetProfile retrieves a user's dosing profile
func (s *Store) GetProfile(userID string) (*DosingProfile, error) {
	var profile DosingProfile
	if err := s.db.First(&profile, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

// SaveProfile creates or replaces a user's dosing profile
func (s *Store) SaveProfile(profile *DosingProfile) error {
	profile.UpdatedAt = time.Now()
	return s.db.Save(profile).Error
}

// ==================== Dose Suggestion Audit ====================

// CreateSuggestion records a computed bolus suggestion
func (s *Store) CreateSuggestion(sug *DoseSuggestion) error {
	return s.db.Create(sug).Error
}

// ListSuggestions retrieves recent suggestions for a user, newest first
func (s *Store) ListSuggestions(userID string, limit int) ([]DoseSuggestion, error) {
	var sugs []DoseSuggestion
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&sugs).Error
	return sugs, err
}

// ==================== Session Methods (BadgerDB) ====================

// SetSession stores session data in BadgerDB
func (s *Store) SetSession(key string, value []byte, ttl time.Duration) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte("session:"+key), value).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// GetSession retrieves session data from BadgerDB
func (s *Store) GetSession(key string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("session:" + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	return val, err
}

// DeleteSession removes session data
func (s *Store) DeleteSession(key string) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte("session:" + key))
	})
}

// ==================== KV Methods (BadgerDB) ====================

// SetKV stores a key-value pair
func (s *Store) SetKV(key string, value []byte) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("kv:"+key), value)
	})
}

// GetKV retrieves a value by key
func (s *Store) GetKV(key string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("kv:" + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	return val, err
}
