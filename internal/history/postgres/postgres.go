// Package postgres mirrors offset-change history to a central Postgres
// database, for plants that aggregate several lines into one audit store.
package postgres

import (
	"context"
	"sync"
	"time"

	"github.com/boxboy523/inzi/internal/log"
	"github.com/boxboy523/inzi/internal/types"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage holds a Postgres-backed history store.
type Storage struct {
	db *gorm.DB
}

// New connects to Postgres and migrates the history table.
func New(ctx context.Context, connectionString string) (*Storage, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	log.Info("connecting to Postgres history database...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to create a Postgres connection:", err)
		return nil, err
	}

	if err := db.WithContext(ctx).AutoMigrate(&types.OffsetChangeRecord{}); err != nil {
		log.Warn("warning: could not migrate history table:", err)
		return nil, err
	}

	return &Storage{db: db}, nil
}

// StartHistoryEngine creates a goroutine loop to receive records and send
// them off to Postgres.
func (s *Storage) StartHistoryEngine(ctx context.Context, wg *sync.WaitGroup) chan<- types.OffsetChangeRecord {
	log.Info("starting Postgres history engine...")
	recordChan := make(chan types.OffsetChangeRecord, 10)
	go s.processRecords(ctx, wg, recordChan)
	return recordChan
}

func (s *Storage) processRecords(ctx context.Context, wg *sync.WaitGroup, rchan <-chan types.OffsetChangeRecord) {
	wg.Add(1)
	defer wg.Done()

	for {
		select {
		case r := <-rchan:
			if err := s.StoreRecord(r); err != nil {
				log.Errorf("could not store history record: %v", err)
			}
		case <-ctx.Done():
			log.Info("cancellation request received. Cancelling history record processor")
			return
		}
	}
}

// StoreRecord inserts one record.
func (s *Storage) StoreRecord(r types.OffsetChangeRecord) error {
	return s.db.Create(&r).Error
}

// Latest returns the most recent record for one tool slot, or nil.
func (s *Storage) Latest(machineID uint16, slot int16) (*types.OffsetChangeRecord, error) {
	var r types.OffsetChangeRecord
	err := s.db.Where("machine_id = ? AND tool_slot = ?", machineID, slot).
		Order("timestamp DESC").First(&r).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Recent returns up to limit records for one tool slot, newest first.
func (s *Storage) Recent(machineID uint16, slot int16, limit int) ([]types.OffsetChangeRecord, error) {
	var records []types.OffsetChangeRecord
	err := s.db.Where("machine_id = ? AND tool_slot = ?", machineID, slot).
		Order("timestamp DESC").Limit(limit).Find(&records).Error
	return records, err
}
