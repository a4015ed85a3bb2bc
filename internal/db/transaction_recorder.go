package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	swtypes "swapwatch/pkg/types"
)

// AlertLogRecord is the relational record of one delivered alert, kept for
// audit and the periodic health summary.
type AlertLogRecord struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Token         string    `gorm:"type:varchar(42);index;not null"`
	Symbol        string    `gorm:"type:varchar(32)"`
	Pair          string    `gorm:"type:varchar(42);index;not null"`
	TxHash        string    `gorm:"type:varchar(66);index;not null"`
	USDValue      float64   `gorm:"not null"`
	Origin        string    `gorm:"type:varchar(16);not null"`
	TriggeredJSON string    `gorm:"type:text;comment:json-encoded triggered rules"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

// TableName pins the delivered-alert table name.
func (AlertLogRecord) TableName() string { return "alert_log" }

// AlertDeadLetterRecord holds an alert whose notifier delivery exhausted
// every retry attempt, for human review.
type AlertDeadLetterRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	Token       string    `gorm:"type:varchar(42);index;not null"`
	PayloadJSON string    `gorm:"type:text;not null"`
	Attempts    int       `gorm:"not null"`
	LastError   string    `gorm:"type:text"`
	FailedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName pins the dead-letter table name.
func (AlertDeadLetterRecord) TableName() string { return "alert_dead_letter_queue" }

// AlertRepository persists delivered alerts and dead-lettered failures via
// GORM (AutoMigrate on
// construction, one Create per record, %w-wrapped errors).
type AlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository dials MySQL and migrates both tables.
// dsn format: "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local"
func NewAlertRepository(dsn string) (*AlertRepository, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect mysql: %w", err)
	}
	return NewAlertRepositoryWithDB(db)
}

// NewAlertRepositoryWithDB wires a repository around an existing GORM
// handle, used by tests with sqlmock.
func NewAlertRepositoryWithDB(gdb *gorm.DB) (*AlertRepository, error) {
	if err := gdb.AutoMigrate(&AlertLogRecord{}, &AlertDeadLetterRecord{}); err != nil {
		return nil, fmt.Errorf("db: migrate schema: %w", err)
	}
	return &AlertRepository{db: gdb}, nil
}

// RecordSuccess inserts a row for a delivered alert.
func (r *AlertRepository) RecordSuccess(ctx context.Context, payload swtypes.AlertPayload) error {
	triggeredJSON, err := marshalRules(payload.TriggeredRules)
	if err != nil {
		return fmt.Errorf("db: marshal triggered rules: %w", err)
	}

	record := AlertLogRecord{
		Token:         payload.Token.Hex(),
		Symbol:        payload.Symbol,
		Pair:          payload.Pair.Hex(),
		TxHash:        payload.TxHash.Hex(),
		USDValue:      payload.USDValue,
		Origin:        payload.Origin.String(),
		TriggeredJSON: triggeredJSON,
	}
	if result := r.db.WithContext(ctx).Create(&record); result.Error != nil {
		return fmt.Errorf("db: record alert: %w", result.Error)
	}
	return nil
}

// RecordDeadLetter inserts a row for an alert that exhausted every retry
// attempt, for human review.
func (r *AlertRepository) RecordDeadLetter(ctx context.Context, payload swtypes.AlertPayload, attempts int) error {
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return fmt.Errorf("db: marshal dead-letter payload: %w", err)
	}

	record := AlertDeadLetterRecord{
		Token:       payload.Token.Hex(),
		PayloadJSON: payloadJSON,
		Attempts:    attempts,
	}
	if result := r.db.WithContext(ctx).Create(&record); result.Error != nil {
		return fmt.Errorf("db: record dead letter: %w", result.Error)
	}
	return nil
}

// CountAlerts returns the total number of delivered alerts, used by the
// periodic health summary.
func (r *AlertRepository) CountAlerts(ctx context.Context) (int64, error) {
	var count int64
	if result := r.db.WithContext(ctx).Model(&AlertLogRecord{}).Count(&count); result.Error != nil {
		return 0, fmt.Errorf("db: count alerts: %w", result.Error)
	}
	return count, nil
}

// AlertsSince returns every alert delivered at or after since, ordered
// oldest first.
func (r *AlertRepository) AlertsSince(ctx context.Context, since time.Time) ([]AlertLogRecord, error) {
	var records []AlertLogRecord
	result := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&records)
	if result.Error != nil {
		return nil, fmt.Errorf("db: alerts since %s: %w", since, result.Error)
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (r *AlertRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("db: underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
