package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/shellprobe/internal/models"
)

// ErrRunNotFound is returned when a run ID is not in the history
var ErrRunNotFound = errors.New("run not found")

// RunStorage - interface for run history persistence
type RunStorage interface {
	SaveRun(ctx context.Context, report *models.RunReport) error
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) // Newest first
	DeleteRun(ctx context.Context, id string) error
	Close() error
}
