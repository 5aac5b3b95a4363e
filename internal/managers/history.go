package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/boxboy523/inzi/internal/history"
	"github.com/boxboy523/inzi/internal/history/postgres"
	"github.com/boxboy523/inzi/internal/history/sqlite"
	"github.com/boxboy523/inzi/internal/types"
	"github.com/boxboy523/inzi/pkg/config"
)

// HistoryManager holds our active history backends
type HistoryManager struct {
	Engines           []HistoryEngine
	RecordDistributor chan types.OffsetChangeRecord
	querier           history.Querier
}

// HistoryEngine holds a backend engine's interface as well as a channel for
// passing records to the engine
type HistoryEngine struct {
	Engine history.EngineInterface
	C      chan<- types.OffsetChangeRecord
}

// NewHistoryManager creates a HistoryManager object, populated with all
// configured history backends
func NewHistoryManager(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider) (*HistoryManager, error) {
	historyConfig, err := configProvider.GetHistoryConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading history configuration: %w", err)
	}

	h := &HistoryManager{}

	// Initialize our channel for passing records to the distributor
	h.RecordDistributor = make(chan types.OffsetChangeRecord, 20)

	// Start our record distributor to fan received records out to the
	// configured backends
	go h.startRecordDistributor(ctx, wg)

	if historyConfig.SQLite != nil {
		store, err := sqlite.New(historyConfig.SQLite.Path)
		if err != nil {
			return h, fmt.Errorf("could not add SQLite history backend: %w", err)
		}
		h.addEngine(ctx, wg, store)
		h.querier = store
	}

	if historyConfig.Postgres != nil {
		store, err := postgres.New(ctx, historyConfig.Postgres.ConnectionString)
		if err != nil {
			return h, fmt.Errorf("could not add Postgres history backend: %w", err)
		}
		h.addEngine(ctx, wg, store)
		if h.querier == nil {
			h.querier = store
		}
	}

	return h, nil
}

func (h *HistoryManager) addEngine(ctx context.Context, wg *sync.WaitGroup, engine history.EngineInterface) {
	he := HistoryEngine{Engine: engine}
	he.C = engine.StartHistoryEngine(ctx, wg)
	h.Engines = append(h.Engines, he)
}

// Querier returns the query-capable backend, or nil when none is configured.
func (h *HistoryManager) Querier() history.Querier {
	return h.querier
}

// startRecordDistributor receives records from the pipeline and fans them
// out to the various history backends
func (h *HistoryManager) startRecordDistributor(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	defer wg.Done()

	for {
		select {
		case r := <-h.RecordDistributor:
			for _, e := range h.Engines {
				e.C <- r
			}
		case <-ctx.Done():
			return
		}
	}
}
