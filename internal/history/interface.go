// Package history defines interfaces and implementations for offset-change
// history storage backends.
package history

import (
	"context"
	"sync"

	"github.com/boxboy523/inzi/internal/types"
)

// EngineInterface is an interface that provides a standardized method for
// various history storage backends. The returned channel is write-behind:
// senders never wait on the backing store.
type EngineInterface interface {
	StartHistoryEngine(context.Context, *sync.WaitGroup) chan<- types.OffsetChangeRecord
}

// Querier answers history lookups for backends that support them.
type Querier interface {
	// Latest returns the most recent record for one tool slot, or nil when
	// none exists.
	Latest(machineID uint16, slot int16) (*types.OffsetChangeRecord, error)

	// Recent returns up to limit records for one tool slot, newest first.
	Recent(machineID uint16, slot int16, limit int) ([]types.OffsetChangeRecord, error)
}
