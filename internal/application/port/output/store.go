package output

import "media-agent/internal/domain/entity"

// WorkerStore persists the full worker metadata set as one snapshot. Every
// pool mutation writes the whole set synchronously before returning, so a
// crash never exposes a partial write to readers. Swapping the JSON file for
// a transactional store is a drop-in replacement behind this interface.
type WorkerStore interface {
	LoadAll() ([]entity.WorkerInfo, error)
	SaveAll(workers []entity.WorkerInfo) error
	Close() error
}
