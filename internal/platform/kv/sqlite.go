package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type sqliteEntry struct {
	EntryKey  string `gorm:"column:entry_key;primaryKey"`
	Value     []byte `gorm:"column:value;not null"`
	UpdatedAt time.Time
}

func (sqliteEntry) TableName() string { return "kv_entries" }

// SQLite is a single-file Store backed by gorm.
type SQLite struct {
	db *gorm.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&sqliteEntry{}); err != nil {
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key Key, out any) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	var row sqliteEntry
	err = s.db.WithContext(ctx).Where("entry_key = ?", encoded).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return unmarshal(row.Value, out)
}

func (s *SQLite) Set(ctx context.Context, key Key, value any) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	payload, err := marshal(value)
	if err != nil {
		return err
	}
	row := sqliteEntry{EntryKey: encoded, Value: payload, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (s *SQLite) Delete(ctx context.Context, key Key) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("entry_key = ?", encoded).Delete(&sqliteEntry{}).Error
}

func (s *SQLite) List(ctx context.Context, prefix Key) ([]Entry, error) {
	encodedPrefix, err := prefix.encodePrefix()
	if err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Order("entry_key")
	if encodedPrefix != "" {
		// LIKE is case-insensitive in SQLite, so bound the range instead.
		upper := strings.TrimSuffix(encodedPrefix, separator) + "\x20"
		query = query.Where("entry_key >= ? AND entry_key < ?", encodedPrefix, upper)
	}
	var rows []sqliteEntry
	err = query.Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, Entry{Key: decodeKey(row.EntryKey), Value: row.Value})
	}
	return entries, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
