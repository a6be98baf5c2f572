// Package tasks runs discovery and sync in the background, one of each at a
// time, and reports their progress as a stream of events.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"velocity-scout/agents/velocity-scout/discovery"
	"velocity-scout/internal/models"
	"velocity-scout/shared/monitoring"
)

// eventBuffer is how many events a task can queue before it waits for the
// consumer.
const eventBuffer = 64

var (
	// ErrBusy is returned when a task of the same kind is still running.
	ErrBusy = errors.New("a task of this kind is already running")
	// ErrSyncDisabled is returned by StartSync when no sync engine is configured.
	ErrSyncDisabled = errors.New("cloud sync is not configured")
)

// Discoverer runs one keyword discovery.
type Discoverer interface {
	Run(ctx context.Context, params models.SearchParams, excluded map[string]struct{}, progress discovery.ProgressFunc) ([]models.DiscoveredItem, error)
}

// Syncer runs one sync in a single direction.
type Syncer interface {
	Run(ctx context.Context, direction models.Direction) models.SyncOutcome
}

// Records is the part of the record store discovery reads and writes.
type Records interface {
	ListExcludedIDs() (map[string]struct{}, error)
	UpsertDiscoveredItems(items []models.DiscoveredItem, keyword string) error
}

// RecordsFunc returns the current record store. It is called for every use
// because a download can replace the store.
type RecordsFunc func() Records

// Orchestrator owns one discovery slot and one sync slot. Each started task
// sends any number of progress events followed by exactly one terminal event,
// after which its slot is free and its channel is closed. Consumers must
// drain the channel.
type Orchestrator struct {
	pipeline Discoverer
	syncer   Syncer
	records  RecordsFunc
	metrics  *monitoring.Collector

	mu            sync.Mutex
	discoveryBusy bool
	syncBusy      bool
	wg            sync.WaitGroup
}

// New creates an Orchestrator. syncer and metrics may be nil.
func New(pipeline Discoverer, syncer Syncer, records RecordsFunc, metrics *monitoring.Collector) *Orchestrator {
	return &Orchestrator{
		pipeline: pipeline,
		syncer:   syncer,
		records:  records,
		metrics:  metrics,
	}
}

// StartDiscovery runs a keyword discovery in the background. The results are
// ranked and saved before the Result event is sent.
func (o *Orchestrator) StartDiscovery(ctx context.Context, params models.SearchParams) (<-chan models.Event, error) {
	if !o.acquire(&o.discoveryBusy) {
		return nil, ErrBusy
	}

	runID := uuid.NewString()
	events := make(chan models.Event, eventBuffer)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(events)
		defer o.release(&o.discoveryBusy)

		progress := func(msg string) {
			events <- models.Event{Kind: models.EventProgress, RunID: runID, Message: msg}
		}
		events <- o.discover(ctx, runID, params, progress)
	}()

	return events, nil
}

// StartSync runs one sync in the background.
func (o *Orchestrator) StartSync(ctx context.Context, direction models.Direction) (<-chan models.Event, error) {
	if o.syncer == nil {
		return nil, ErrSyncDisabled
	}
	if !o.acquire(&o.syncBusy) {
		return nil, ErrBusy
	}

	runID := uuid.NewString()
	events := make(chan models.Event, eventBuffer)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer close(events)
		defer o.release(&o.syncBusy)

		log.Info().Str("run_id", runID).Str("direction", string(direction)).Msg("Sync started")
		outcome := o.syncer.Run(ctx, direction)
		if o.metrics != nil {
			o.metrics.RecordSync(string(outcome.Direction), string(outcome.Status))
		}
		events <- models.Event{Kind: models.EventSync, RunID: runID, Message: outcome.Message, Sync: &outcome}
	}()

	return events, nil
}

// Wait blocks until every started task has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) discover(ctx context.Context, runID string, params models.SearchParams, progress discovery.ProgressFunc) models.Event {
	logger := log.With().Str("run_id", runID).Str("keyword", params.Keyword).Logger()
	logger.Info().Str("order", params.Order).Int("target", params.TargetCount).Msg("Discovery started")
	start := time.Now()

	excluded, err := o.records().ListExcludedIDs()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load exclusions")
		o.recordDiscovery(0, start, err)
		return models.Event{Kind: models.EventError, RunID: runID, Message: "Failed to load excluded videos: " + err.Error()}
	}

	items, err := o.pipeline.Run(ctx, params, excluded, progress)
	if err != nil {
		logger.Error().Err(err).Msg("Discovery failed")
		o.recordDiscovery(0, start, err)
		return models.Event{Kind: models.EventError, RunID: runID, Message: "API error: " + err.Error()}
	}

	discovery.Rank(items)

	if err := o.records().UpsertDiscoveredItems(items, params.Keyword); err != nil {
		logger.Error().Err(err).Msg("Failed to save results")
		o.recordDiscovery(0, start, err)
		return models.Event{Kind: models.EventError, RunID: runID, Message: "Failed to save results: " + err.Error()}
	}

	logger.Info().Int("found", len(items)).Dur("duration", time.Since(start)).Msg("Discovery finished")
	o.recordDiscovery(len(items), start, nil)
	return models.Event{Kind: models.EventResult, RunID: runID, Items: items}
}

func (o *Orchestrator) recordDiscovery(items int, start time.Time, err error) {
	if o.metrics != nil {
		o.metrics.RecordDiscovery(items, time.Since(start), err)
	}
}

func (o *Orchestrator) acquire(slot *bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if *slot {
		return false
	}
	*slot = true
	return true
}

func (o *Orchestrator) release(slot *bool) {
	o.mu.Lock()
	*slot = false
	o.mu.Unlock()
}

// Await drains events, passing progress events to onProgress, and returns
// the terminal event. It returns false if the channel closed without one.
func Await(events <-chan models.Event, onProgress func(models.Event)) (models.Event, bool) {
	var (
		terminal models.Event
		found    bool
	)
	for ev := range events {
		if !ev.Terminal() {
			if onProgress != nil {
				onProgress(ev)
			}
			continue
		}
		terminal, found = ev, true
	}
	return terminal, found
}
