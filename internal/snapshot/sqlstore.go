package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "drumseq.sqlite3"

type record struct {
	Name      string `gorm:"primaryKey;type:varchar(128)"`
	Value     []byte
	UpdatedAt time.Time
}

func (record) TableName() string { return "kv" }

// SQLStore keeps records in a sqlite table through gorm.
type SQLStore struct {
	DB *gorm.DB
	db *sql.DB
}

func OpenSQLStore(dbPath string) (*SQLStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	// sqlite serializes writers anyway
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&record{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLStore{DB: db, db: sqlDB}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var rec record
	err := s.DB.WithContext(ctx).Where("name = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", key, err)
	}
	return rec.Value, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte) error {
	rec := record{Name: key, Value: value}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
