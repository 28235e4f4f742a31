package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdapterSource supplies the adapters to query for a chain, in order.
type AdapterSource interface {
	Adapters(chainID uint64) []Adapter
}

// Aggregator fans a position query out to every adapter of a chain
type Aggregator struct {
	source  AdapterSource
	metrics *Metrics
	logger  *zap.SugaredLogger
}

// NewAggregator creates a new aggregator. metrics may be nil.
func NewAggregator(source AdapterSource, metrics *Metrics, logger *zap.SugaredLogger) *Aggregator {
	return &Aggregator{
		source:  source,
		metrics: metrics,
		logger:  logger.Named("aggregator"),
	}
}

// Positions runs all adapters for chainID concurrently and returns their
// positions flattened in registration order. A failing adapter contributes
// nothing; it never fails the query.
func (a *Aggregator) Positions(ctx context.Context, chainID uint64, user common.Address) []Position {
	adapters := a.source.Adapters(chainID)
	logger := a.logger.With("requestId", uuid.NewString(), "chainId", chainID, "wallet", user.Hex())

	logger.Infow("Fetching positions", "adapters", len(adapters))

	// Each adapter owns one slot so completion order does not matter
	slots := make([][]Position, len(adapters))
	var wg sync.WaitGroup

	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter Adapter) {
			defer wg.Done()
			slots[i] = a.run(ctx, adapter, user, logger)
		}(i, adapter)
	}

	wg.Wait()

	positions := make([]Position, 0)
	for _, slot := range slots {
		positions = append(positions, slot...)
	}

	logger.Infow("Fetched positions", "count", len(positions))
	return positions
}

func (a *Aggregator) run(ctx context.Context, adapter Adapter, user common.Address, logger *zap.SugaredLogger) (positions []Position) {
	id := adapter.Descriptor().ID
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			positions = nil
			logger.Errorw("Adapter panicked", "adapter", id, "panic", fmt.Sprint(r))
			a.metrics.observe(id, outcomePanic, time.Since(start), 0)
		}
	}()

	positions, err := adapter.UserPositions(ctx, user)
	if err != nil {
		logger.Errorw("Failed to fetch positions", "adapter", id, "error", err)
		a.metrics.observe(id, outcomeError, time.Since(start), 0)
		return nil
	}

	logger.Debugw("Fetched adapter positions", "adapter", id, "count", len(positions))
	a.metrics.observe(id, outcomeOK, time.Since(start), len(positions))
	return positions
}
