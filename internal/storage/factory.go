package storage

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/shellprobe/internal/common"
	"github.com/ternarybob/shellprobe/internal/interfaces"
	"github.com/ternarybob/shellprobe/internal/storage/badger"
)

// NewRunStorage opens the run history store described by config
func NewRunStorage(logger arbor.ILogger, config *common.StorageConfig) (interfaces.RunStorage, error) {
	db, err := badger.NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}
	return badger.NewRunStorage(db, logger), nil
}
