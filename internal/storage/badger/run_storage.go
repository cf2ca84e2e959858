package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/shellprobe/internal/interfaces"
	"github.com/ternarybob/shellprobe/internal/models"
)

// RunStorage implements interfaces.RunStorage on badgerhold
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

var _ interfaces.RunStorage = (*RunStorage)(nil)

// NewRunStorage creates a RunStorage on db
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

// SaveRun stores the persisted form of report, replacing any earlier save
func (s *RunStorage) SaveRun(ctx context.Context, report *models.RunReport) error {
	if report.ID == "" {
		return errors.New("run ID is required")
	}
	record := models.NewRunRecord(report)
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	s.logger.Debug().Str("run_id", record.ID).Bool("passed", record.Passed).Msg("Run saved")
	return nil
}

// GetRun loads one run by ID
func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var record models.RunRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &record, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	var records []models.RunRecord
	query := badgerhold.Where("ID").Ne("").SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return records, nil
}

// DeleteRun removes one run
func (s *RunStorage) DeleteRun(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, models.RunRecord{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", interfaces.ErrRunNotFound, id)
		}
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *RunStorage) Close() error {
	return s.db.Close()
}
