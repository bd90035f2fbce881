package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/espressomap/espressomap/constants"
	"github.com/espressomap/espressomap/internal/entity"
	"github.com/espressomap/espressomap/internal/queue"
	"github.com/espressomap/espressomap/internal/remote"
)

type mockClient struct {
	mu       sync.Mutex
	inflight atomic.Int32
	maxSeen  int32
	calls    []int // image payload markers, in call order
	drinks   []entity.DrinkPrice
	err      error
}

func (m *mockClient) Extract(_ context.Context, imageBytes []byte) ([]entity.DrinkPrice, error) {
	cur := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	m.mu.Lock()
	if cur > m.maxSeen {
		m.maxSeen = cur
	}
	m.calls = append(m.calls, int(imageBytes[len(imageBytes)-1]))
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.drinks, nil
}

type mockRecords struct {
	mu      sync.Mutex
	commits []entity.PriceRecord
	err     error
}

func (m *mockRecords) SaveLocation(context.Context, entity.CafeSnapshot) error { return nil }
func (m *mockRecords) GetLocation(context.Context, string) (*entity.CafeSnapshot, error) {
	return nil, remote.ErrNotFound
}
func (m *mockRecords) ListPriceRecords(context.Context, string) ([]entity.PriceRecord, error) {
	return nil, nil
}
func (m *mockRecords) DrinkPrices(context.Context, string) ([]float64, error) { return nil, nil }

func (m *mockRecords) AddPriceForLocation(_ context.Context, rec entity.PriceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.commits = append(m.commits, rec)
	return nil
}

func newTestStore(t *testing.T) *queue.FileStore {
	t.Helper()
	store, err := queue.NewFileStore(t.TempDir(), "", nil)
	require.NoError(t, err)
	return store
}

func enqueue(t *testing.T, store *queue.FileStore, cafeName string, marker byte) *entity.PendingExtraction {
	t.Helper()
	rec, err := store.QueueExtraction(context.Background(),
		entity.CafeSnapshot{ID: "cafe-" + cafeName, Name: cafeName}, []byte{0xff, 0xd8, 0xff, marker}, constants.SourceMainApp)
	require.NoError(t, err)
	return rec
}

func TestWorkerDrainsQueueInOrder(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a", 1)
	enqueue(t, store, "b", 2)

	client := &mockClient{drinks: []entity.DrinkPrice{{Name: "Espresso", Price: 2.7}}}
	records := &mockRecords{}
	w := New(store, client, records, WithInterJobDelay(0))

	require.NoError(t, w.ProcessPendingExtractions(context.Background()))

	// queue is empty, both endpoints saw each job exactly once, in order
	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs)
	require.Equal(t, []int{1, 2}, client.calls)
	require.Len(t, records.commits, 2)
	require.Equal(t, "cafe-a", records.commits[0].Cafe.ID)
	require.Equal(t, "cafe-b", records.commits[1].Cafe.ID)
	require.EqualValues(t, 1, client.maxSeen, "extraction calls must never overlap")

	// commits carry the full drinks list and the image bytes
	require.Equal(t, client.drinks, records.commits[0].Drinks)
	require.Equal(t, []byte{0xff, 0xd8, 0xff, 1}, records.commits[0].ImageBytes)
}

func TestWorkerFailsJobWithoutEspresso(t *testing.T) {
	store := newTestStore(t)
	rec := enqueue(t, store, "a", 1)

	client := &mockClient{drinks: []entity.DrinkPrice{{Name: "Doppio Espresso", Price: 4.0}, {Name: "Latte", Price: 3.5}}}
	records := &mockRecords{}
	w := New(store, client, records, WithInterJobDelay(0))

	require.NoError(t, w.ProcessPendingExtractions(context.Background()))

	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, rec.ID, jobs[0].ID)
	require.Equal(t, constants.StatusFailed, jobs[0].Status)
	require.NotNil(t, jobs[0].LastError)
	require.Equal(t, "no espresso price found", *jobs[0].LastError)
	require.Equal(t, 1, jobs[0].RetryCount)
	require.Empty(t, records.commits, "nothing may be committed without an espresso price")
}

func TestWorkerFailsJobOnExtractionError(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a", 1)

	client := &mockClient{err: errors.New("rate limit exceeded")}
	w := New(store, client, &mockRecords{}, WithInterJobDelay(0))

	require.NoError(t, w.ProcessPendingExtractions(context.Background()))

	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, constants.StatusFailed, jobs[0].Status)
	require.Equal(t, "rate limit exceeded", *jobs[0].LastError)
}

func TestWorkerFailsJobOnCommitError(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a", 1)

	client := &mockClient{drinks: []entity.DrinkPrice{{Name: "Espresso", Price: 2.5}}}
	records := &mockRecords{err: errors.New("record store unavailable")}
	w := New(store, client, records, WithInterJobDelay(0))

	require.NoError(t, w.ProcessPendingExtractions(context.Background()))

	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, constants.StatusFailed, jobs[0].Status)
	require.Equal(t, "record store unavailable", *jobs[0].LastError)

	// image must survive the failure for the retry
	_, err = store.LoadImage(context.Background(), &jobs[0])
	require.NoError(t, err)
}

func TestWorkerFailsJobOnMissingImage(t *testing.T) {
	store := newTestStore(t)
	rec := enqueue(t, store, "a", 1)
	// lose the blob behind the store's back
	require.NoError(t, os.Remove(store.ImagePath(rec.ImageFileName)))

	w := New(store, &mockClient{}, &mockRecords{}, WithInterJobDelay(0))
	require.NoError(t, w.ProcessPendingExtractions(context.Background()))

	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, constants.StatusFailed, jobs[0].Status)
	require.Equal(t, "could not load image", *jobs[0].LastError)
}

func TestWorkerCancelledBeforeStart(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockClient{drinks: []entity.DrinkPrice{{Name: "Espresso", Price: 2.5}}}
	w := New(store, client, &mockRecords{}, WithInterJobDelay(0))
	err := w.ProcessPendingExtractions(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, client.calls, "cancellation is checked before a job starts")

	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, constants.StatusQueued, jobs[0].Status)
}

func TestWorkerGuardBlocksDoubleStart(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a", 1)

	release := make(chan struct{})
	client := &blockingClient{started: make(chan struct{}), release: release}
	w := New(store, client, &mockRecords{}, WithInterJobDelay(0))

	done := make(chan error, 1)
	go func() { done <- w.ProcessPendingExtractions(context.Background()) }()

	<-client.started
	require.ErrorIs(t, w.ProcessPendingExtractions(context.Background()), ErrAlreadyRunning)
	require.True(t, w.IsProcessing())

	close(release)
	require.NoError(t, <-done)
	require.False(t, w.IsProcessing())
}

type blockingClient struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingClient) Extract(context.Context, []byte) ([]entity.DrinkPrice, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return []entity.DrinkPrice{{Name: "Espresso", Price: 2.5}}, nil
}

func TestBackgroundRunnerAlwaysReschedules(t *testing.T) {
	store := newTestStore(t)
	enqueue(t, store, "a", 1)

	client := &mockClient{drinks: []entity.DrinkPrice{{Name: "Espresso", Price: 2.5}}}
	w := New(store, client, &mockRecords{}, WithInterJobDelay(0))

	rescheduled := 0
	runner := NewBackgroundRunner(w, func() { rescheduled++ }, nil)

	require.NoError(t, runner.Run(context.Background(), time.Now().Add(5*time.Second)))
	require.Equal(t, 1, rescheduled)

	// expired deadline: nothing processed, still rescheduled, no error
	enqueue(t, store, "b", 2)
	require.NoError(t, runner.Run(context.Background(), time.Now().Add(-time.Second)))
	require.Equal(t, 2, rescheduled)

	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, constants.StatusQueued, jobs[0].Status)
}

func TestWorkerBackoffPolicyRequeuesFailedJobs(t *testing.T) {
	store := newTestStore(t)
	rec := enqueue(t, store, "a", 1)
	require.NoError(t, store.MarkAsFailed(context.Background(), rec.ID, "transient"))

	client := &mockClient{drinks: []entity.DrinkPrice{{Name: "Espresso", Price: 2.5}}}
	records := &mockRecords{}
	w := New(store, client, records,
		WithInterJobDelay(0),
		WithRetryPolicy(ExponentialBackoff{Base: time.Nanosecond, Max: time.Millisecond}))

	time.Sleep(2 * time.Millisecond) // let the backoff window elapse
	require.NoError(t, w.ProcessPendingExtractions(context.Background()))
	require.Len(t, records.commits, 1)

	jobs, err := store.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, jobs)
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second, Max: 10 * time.Second}

	d, ok := b.NextDelay(1)
	require.True(t, ok)
	require.Equal(t, time.Second, d)

	d, ok = b.NextDelay(3)
	require.True(t, ok)
	require.Equal(t, 4*time.Second, d)

	d, ok = b.NextDelay(10)
	require.True(t, ok)
	require.Equal(t, 10*time.Second, d)

	_, ok = NoRetry{}.NextDelay(1)
	require.False(t, ok)
}
