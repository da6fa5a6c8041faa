package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// DB wraps the database connection
type DB struct {
	conn *gorm.DB
}

// New opens (and migrates) the sqlite database at dbPath
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	conn, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	// SQLite only supports one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := conn.AutoMigrate(&TaskHistory{}, &Setting{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertTaskHistory appends one history row
func (db *DB) InsertTaskHistory(task *TaskHistory) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if err := db.conn.Create(task).Error; err != nil {
		return fmt.Errorf("failed to insert task history: %w", err)
	}
	return nil
}

// ListTasks returns the newest history rows, optionally for one user
func (db *DB) ListTasks(userID string, limit, offset int) ([]*TaskHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	q := db.conn.Model(&TaskHistory{})
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var rows []*TaskHistory
	if err := q.Order("created_at desc, id desc").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return rows, nil
}

// GetStats aggregates the task history
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{ByKind: map[string]int64{}, ByErrorKind: map[string]int64{}}
	m := db.conn.Model(&TaskHistory{})
	if err := m.Count(&stats.TotalFiles).Error; err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	db.conn.Model(&TaskHistory{}).Where("status = ?", StatusSuccess).Count(&stats.SuccessCount)
	db.conn.Model(&TaskHistory{}).Where("status = ?", StatusFailed).Count(&stats.FailedCount)
	db.conn.Model(&TaskHistory{}).Distinct("job_id").Count(&stats.TotalJobs)

	type bucket struct {
		Bucket string
		Count  int64
	}
	var kinds []bucket
	if err := db.conn.Model(&TaskHistory{}).Select("kind as bucket, count(*) as count").Group("kind").Scan(&kinds).Error; err != nil {
		return nil, fmt.Errorf("failed to group by kind: %w", err)
	}
	for _, b := range kinds {
		stats.ByKind[b.Bucket] = b.Count
	}
	var errs []bucket
	if err := db.conn.Model(&TaskHistory{}).Select("error_kind as bucket, count(*) as count").
		Where("status = ?", StatusFailed).Group("error_kind").Scan(&errs).Error; err != nil {
		return nil, fmt.Errorf("failed to group by error kind: %w", err)
	}
	for _, b := range errs {
		stats.ByErrorKind[b.Bucket] = b.Count
	}
	return stats, nil
}

// PurgeTasks deletes history rows older than cutoff
func (db *DB) PurgeTasks(cutoff time.Time) (int64, error) {
	res := db.conn.Where("created_at < ?", cutoff).Delete(&TaskHistory{})
	return res.RowsAffected, res.Error
}

// GetSetting returns the value stored under key, or "" when absent
func (db *DB) GetSetting(key string) (string, error) {
	var s Setting
	err := db.conn.First(&s, "name = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return s.Value, nil
}

// PutSetting inserts or replaces key
func (db *DB) PutSetting(key, value string) error {
	s := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	err := db.conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes key if present
func (db *DB) DeleteSetting(key string) error {
	return db.conn.Where("name = ?", key).Delete(&Setting{}).Error
}
