package tasks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"velocity-scout/agents/velocity-scout/cloudsync"
	"velocity-scout/agents/velocity-scout/discovery"
	"velocity-scout/internal/models"
	"velocity-scout/shared/monitoring"
	"velocity-scout/shared/storage"
)

type fakeDiscoverer struct {
	items    []models.DiscoveredItem
	err      error
	release  chan struct{}
	excluded map[string]struct{}
}

func (f *fakeDiscoverer) Run(ctx context.Context, params models.SearchParams, excluded map[string]struct{}, progress discovery.ProgressFunc) ([]models.DiscoveredItem, error) {
	f.excluded = excluded
	progress("Starting analysis with '" + params.Keyword + "' keyword... (Order: " + params.Order + ")")
	if f.release != nil {
		<-f.release
	}
	progress("[Page 1] Searching...")
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeSyncer struct {
	outcome models.SyncOutcome
	release chan struct{}
}

func (f *fakeSyncer) Run(ctx context.Context, direction models.Direction) models.SyncOutcome {
	if f.release != nil {
		<-f.release
	}
	out := f.outcome
	out.Direction = direction
	return out
}

type failingRecords struct{}

func (failingRecords) ListExcludedIDs() (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (failingRecords) UpsertDiscoveredItems(items []models.DiscoveredItem, keyword string) error {
	return errors.New("disk full")
}

func openStore(t *testing.T) *storage.RecordStore {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func recordsOf(store *storage.RecordStore) RecordsFunc {
	return func() Records { return store }
}

func params(keyword string) models.SearchParams {
	return models.SearchParams{Keyword: keyword, Order: models.OrderViewCount, MaxSubscribers: -1, TargetCount: 10}
}

func TestDiscoveryRanksAndPersistsBeforeResult(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.AddExcludedID("hidden"))

	pipeline := &fakeDiscoverer{items: []models.DiscoveredItem{
		{ID: "slow", ViewVelocity: 10},
		{ID: "fast", ViewVelocity: 500},
		{ID: "medium", ViewVelocity: 80},
	}}
	reg := prometheus.NewRegistry()
	o := New(pipeline, nil, recordsOf(store), monitoring.NewCollector(reg))

	events, err := o.StartDiscovery(context.Background(), params("drones"))
	require.NoError(t, err)

	var progress []string
	terminal, ok := Await(events, func(ev models.Event) { progress = append(progress, ev.Message) })
	require.True(t, ok)

	assert.Equal(t, models.EventResult, terminal.Kind)
	assert.NotEmpty(t, terminal.RunID)
	require.Len(t, terminal.Items, 3)
	assert.Equal(t, "fast", terminal.Items[0].ID)
	assert.Equal(t, "medium", terminal.Items[1].ID)
	assert.Equal(t, "slow", terminal.Items[2].ID)

	assert.Equal(t, []string{
		"Starting analysis with 'drones' keyword... (Order: viewCount)",
		"[Page 1] Searching...",
	}, progress)
	assert.Contains(t, pipeline.excluded, "hidden")

	stored, err := store.ListDiscoveredItems("drones")
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, "fast", stored[0].ID)
}

func TestDiscoveryAPIErrorBecomesErrorEvent(t *testing.T) {
	store := openStore(t)
	o := New(&fakeDiscoverer{err: errors.New("quotaExceeded")}, nil, recordsOf(store), nil)

	events, err := o.StartDiscovery(context.Background(), params("drones"))
	require.NoError(t, err)

	terminal, ok := Await(events, nil)
	require.True(t, ok)
	assert.Equal(t, models.EventError, terminal.Kind)
	assert.Equal(t, "API error: quotaExceeded", terminal.Message)
	assert.Empty(t, terminal.Items)

	n, err := store.CountDiscoveredItems()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDiscoveryPersistenceFailureBecomesErrorEvent(t *testing.T) {
	o := New(&fakeDiscoverer{items: []models.DiscoveredItem{{ID: "a"}}}, nil,
		func() Records { return failingRecords{} }, nil)

	events, err := o.StartDiscovery(context.Background(), params("drones"))
	require.NoError(t, err)

	terminal, ok := Await(events, nil)
	require.True(t, ok)
	assert.Equal(t, models.EventError, terminal.Kind)
	assert.Contains(t, terminal.Message, "disk full")
}

func TestExactlyOneTerminalEvent(t *testing.T) {
	o := New(&fakeDiscoverer{}, nil, recordsOf(openStore(t)), nil)

	events, err := o.StartDiscovery(context.Background(), params("drones"))
	require.NoError(t, err)

	terminals := 0
	for ev := range events {
		if ev.Terminal() {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestSlotsRejectConcurrentTasksOfSameKind(t *testing.T) {
	pipeline := &fakeDiscoverer{release: make(chan struct{})}
	syncer := &fakeSyncer{
		outcome: models.SyncOutcome{Status: models.SyncSuccess, Message: "DB file successfully uploaded to cloud."},
		release: make(chan struct{}),
	}
	o := New(pipeline, syncer, recordsOf(openStore(t)), nil)
	ctx := context.Background()

	discoveryEvents, err := o.StartDiscovery(ctx, params("first"))
	require.NoError(t, err)
	_, err = o.StartDiscovery(ctx, params("second"))
	assert.ErrorIs(t, err, ErrBusy)

	syncEvents, err := o.StartSync(ctx, models.DirectionUpload)
	require.NoError(t, err, "the sync slot is independent of the discovery slot")
	_, err = o.StartSync(ctx, models.DirectionDownload)
	assert.ErrorIs(t, err, ErrBusy)

	close(pipeline.release)
	close(syncer.release)

	terminal, ok := Await(discoveryEvents, nil)
	require.True(t, ok)
	assert.Equal(t, models.EventResult, terminal.Kind)

	terminal, ok = Await(syncEvents, nil)
	require.True(t, ok)
	assert.Equal(t, models.EventSync, terminal.Kind)
	require.NotNil(t, terminal.Sync)
	assert.Equal(t, models.DirectionUpload, terminal.Sync.Direction)
	assert.Equal(t, terminal.Sync.Message, terminal.Message)

	// Slots are free once the channel is closed.
	pipeline.release = nil
	again, err := o.StartDiscovery(ctx, params("third"))
	require.NoError(t, err)
	Await(again, nil)
	o.Wait()
}

func TestStartSyncWithoutEngine(t *testing.T) {
	o := New(&fakeDiscoverer{}, nil, recordsOf(openStore(t)), nil)
	_, err := o.StartSync(context.Background(), models.DirectionUpload)
	assert.ErrorIs(t, err, ErrSyncDisabled)
}

func TestAwaitWithoutTerminalEvent(t *testing.T) {
	events := make(chan models.Event, 1)
	events <- models.Event{Kind: models.EventProgress, Message: "working"}
	close(events)

	_, ok := Await(events, nil)
	assert.False(t, ok)
}

// pendingAuthorizer stands in for a user who has not yet finished the
// browser consent; it returns only when the sync is cancelled.
type pendingAuthorizer struct {
	waiting chan struct{}
}

func (a *pendingAuthorizer) Authorize(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	close(a.waiting)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestDiscoveryRunsWhileSyncAwaitsAuthorization(t *testing.T) {
	store := openStore(t)
	require.NoError(t, store.AddExcludedID("hidden"))

	secret := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(secret, []byte(`{"installed": {
		"client_id": "desktop-id",
		"client_secret": "desktop-secret",
		"auth_uri": "https://accounts.google.com/o/oauth2/auth",
		"token_uri": "https://oauth2.googleapis.com/token",
		"redirect_uris": ["http://localhost"]
	}}`), 0600))

	authorizer := &pendingAuthorizer{waiting: make(chan struct{})}
	engine := cloudsync.NewEngine(store, secret, authorizer, func(ctx context.Context, ts oauth2.TokenSource) (cloudsync.RemoteStore, error) {
		return nil, errors.New("remote must not be opened without a credential")
	})

	pipeline := &fakeDiscoverer{items: []models.DiscoveredItem{{ID: "fast", ViewVelocity: 500}}}
	o := New(pipeline, engine, func() Records { return engine.Store() }, nil)

	syncCtx, cancelSync := context.WithCancel(context.Background())
	defer cancelSync()
	syncEvents, err := o.StartSync(syncCtx, models.DirectionUpload)
	require.NoError(t, err)
	<-authorizer.waiting

	discoveryEvents, err := o.StartDiscovery(context.Background(), params("drones"))
	require.NoError(t, err)

	result := make(chan models.Event, 1)
	go func() {
		terminal, _ := Await(discoveryEvents, nil)
		result <- terminal
	}()

	select {
	case terminal := <-result:
		assert.Equal(t, models.EventResult, terminal.Kind, terminal.Message)
		require.Len(t, terminal.Items, 1)
		assert.Contains(t, pipeline.excluded, "hidden")
	case <-time.After(2 * time.Second):
		t.Fatal("discovery did not finish while the sync waited for authorization")
	}

	stored, err := store.ListDiscoveredItems("drones")
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	cancelSync()
	terminal, ok := Await(syncEvents, nil)
	require.True(t, ok)
	require.NotNil(t, terminal.Sync)
	assert.Equal(t, models.SyncError, terminal.Sync.Status)
	o.Wait()
}
