package job

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/record-sync/internal/logging"
	"github.com/record-sync/internal/models"
	"github.com/record-sync/internal/retry"
	"github.com/record-sync/internal/storage"
)

// recordingPublisher stores published jobs and can fail the first N publishes
type recordingPublisher struct {
	mu        sync.Mutex
	jobs      []*models.PersistenceJob
	failFirst int
	calls     int
	block     chan struct{}
}

func (p *recordingPublisher) Publish(ctx context.Context, job *models.PersistenceJob) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("broker unreachable")
	}
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *recordingPublisher) published() []*models.PersistenceJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.PersistenceJob(nil), p.jobs...)
}

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelFatal, logging.FormatText)
}

func fastRetry() *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func customerJob(records ...string) *models.PersistenceJob {
	raw := make([]json.RawMessage, len(records))
	for i, r := range records {
		raw[i] = json.RawMessage(r)
	}
	return models.NewPersistenceJob(models.RecordTypeCustomer, raw)
}

func TestDispatcher_PublishesInOrder(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, DispatcherConfig{BufferSize: 8, Retry: fastRetry()}, quietLogger())
	d.Start()

	jobs := []*models.PersistenceJob{customerJob(), customerJob(), customerJob()}
	for _, j := range jobs {
		require.NoError(t, d.Enqueue(context.Background(), j))
	}

	require.NoError(t, d.Stop(context.Background()))

	published := pub.published()
	require.Len(t, published, 3)
	for i := range jobs {
		assert.Equal(t, jobs[i].ID, published[i].ID)
	}
}

func TestDispatcher_RetriesPublishFailures(t *testing.T) {
	pub := &recordingPublisher{failFirst: 2}
	d := NewDispatcher(pub, DispatcherConfig{Retry: fastRetry()}, quietLogger())
	d.Start()

	require.NoError(t, d.Enqueue(context.Background(), customerJob()))
	require.NoError(t, d.Stop(context.Background()))

	assert.Len(t, pub.published(), 1)
	assert.Equal(t, 3, pub.calls)
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	pub := &recordingPublisher{failFirst: 100}
	d := NewDispatcher(pub, DispatcherConfig{Retry: fastRetry()}, quietLogger())
	d.Start()

	require.NoError(t, d.Enqueue(context.Background(), customerJob()))
	require.NoError(t, d.Stop(context.Background()))

	assert.Empty(t, pub.published())
	assert.Equal(t, 3, pub.calls)
}

func TestDispatcher_FullBufferDropsWithoutBlocking(t *testing.T) {
	pub := &recordingPublisher{block: make(chan struct{})}
	d := NewDispatcher(pub, DispatcherConfig{BufferSize: 1, Retry: fastRetry()}, quietLogger())

	// Not started, so nothing drains the buffer
	require.NoError(t, d.Enqueue(context.Background(), customerJob()))

	start := time.Now()
	err := d.Enqueue(context.Background(), customerJob())
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 1, d.Pending())
}

func TestDispatcher_EnqueueAfterStop(t *testing.T) {
	d := NewDispatcher(&recordingPublisher{}, DispatcherConfig{}, quietLogger())
	d.Start()
	require.NoError(t, d.Stop(context.Background()))

	assert.ErrorIs(t, d.Enqueue(context.Background(), customerJob()), ErrDispatcherStopped)
}

func TestMemoryBroker_FIFO(t *testing.T) {
	b := NewMemoryBroker(10)
	defer b.Close()

	first, second := customerJob(), customerJob()
	require.NoError(t, b.Publish(context.Background(), first))
	require.NoError(t, b.Publish(context.Background(), second))
	assert.Equal(t, 2, b.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := b.Consume(ctx)
	require.NoError(t, err)

	d1 := <-deliveries
	d2 := <-deliveries
	assert.Equal(t, first.ID, d1.Job.ID)
	assert.Equal(t, second.ID, d2.Job.ID)
	assert.NoError(t, d1.Ack())
}

func TestMemoryBroker_PublishAfterClose(t *testing.T) {
	b := NewMemoryBroker(1)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), customerJob()), ErrBrokerClosed)
}

func TestMemoryBroker_PublishRespectsContextWhenFull(t *testing.T) {
	b := NewMemoryBroker(1)
	defer b.Close()
	require.NoError(t, b.Publish(context.Background(), customerJob()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Publish(ctx, customerJob()), context.DeadlineExceeded)
}

// handlerFunc adapts a function to the Handler interface
type handlerFunc func(ctx context.Context, job *models.PersistenceJob) (*PersistResult, error)

func (f handlerFunc) Handle(ctx context.Context, job *models.PersistenceJob) (*PersistResult, error) {
	return f(ctx, job)
}

// sliceConsumer delivers a fixed set of jobs and counts acks
type sliceConsumer struct {
	jobs []*models.PersistenceJob
	acks int64
}

func (c *sliceConsumer) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery, len(c.jobs))
	for _, j := range c.jobs {
		out <- Delivery{Job: j, Ack: func() error {
			atomic.AddInt64(&c.acks, 1)
			return nil
		}}
	}
	close(out)
	return out, nil
}

func TestWorkerPool_AcksEveryJobWhateverTheOutcome(t *testing.T) {
	jobs := []*models.PersistenceJob{customerJob(), customerJob(), customerJob()}
	consumer := &sliceConsumer{jobs: jobs}

	var handled int64
	handler := handlerFunc(func(ctx context.Context, job *models.PersistenceJob) (*PersistResult, error) {
		n := atomic.AddInt64(&handled, 1)
		switch n {
		case 1:
			return nil, errors.New("store down")
		case 2:
			panic("unexpected payload")
		}
		return &PersistResult{JobID: job.ID}, nil
	})

	pool := NewWorkerPool(consumer, handler, 1, quietLogger())
	require.NoError(t, pool.Run(context.Background()))

	assert.Equal(t, int64(3), handled)
	assert.Equal(t, int64(3), consumer.acks)
}

func TestWorkerPool_StopsOnContextCancel(t *testing.T) {
	b := NewMemoryBroker(4)
	defer b.Close()

	processed := make(chan string, 4)
	handler := handlerFunc(func(ctx context.Context, job *models.PersistenceJob) (*PersistResult, error) {
		processed <- job.ID
		return &PersistResult{JobID: job.ID}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewWorkerPool(b, handler, 2, quietLogger()).Run(ctx)
	}()

	job := customerJob()
	require.NoError(t, b.Publish(context.Background(), job))

	select {
	case id := <-processed:
		assert.Equal(t, job.ID, id)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not stop")
	}
}

func TestWorkerPool_DrainsQueuedJobsOnCancel(t *testing.T) {
	b := NewMemoryBroker(8)
	defer b.Close()

	var queued []string
	for i := 0; i < 5; i++ {
		job := customerJob()
		queued = append(queued, job.ID)
		require.NoError(t, b.Publish(context.Background(), job))
	}

	var mu sync.Mutex
	var handled []string
	handler := handlerFunc(func(ctx context.Context, job *models.PersistenceJob) (*PersistResult, error) {
		mu.Lock()
		handled = append(handled, job.ID)
		mu.Unlock()
		return &PersistResult{JobID: job.ID}, nil
	})

	// Cancelled before the pool starts: everything already queued must still be handled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, NewWorkerPool(b, handler, 1, quietLogger()).Run(ctx))

	assert.Equal(t, queued, handled)
	assert.Equal(t, 0, b.Len())
}

func newTestStore(t *testing.T) storage.RecordStore {
	t.Helper()

	store, err := storage.NewSQLiteRecordStore(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestPersister_ContinuesAfterFailedRecord(t *testing.T) {
	store := newTestStore(t)
	p := NewPersister(store)
	ctx := context.Background()

	job := models.NewPersistenceJob(models.RecordTypeCampaign, []json.RawMessage{
		json.RawMessage(`{"id":1,"name":"Spring","status":"active","budget":100,"start_date":"2024-03-01","end_date":"2024-05-31"}`),
		json.RawMessage(`{"id":2,"name":"Broken","status":"draft","budget":-1,"start_date":"2024-06-01","end_date":"2024-06-30"}`),
		json.RawMessage(`{"id":3,"name":"Fall","status":"paused","budget":5,"start_date":"2024-09-01","end_date":"2024-11-30"}`),
	})

	result, err := p.Handle(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Persisted)
	assert.Equal(t, 1, result.Failed)

	_, err = store.GetCampaign(ctx, 1)
	assert.NoError(t, err)
	_, err = store.GetCampaign(ctx, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetCampaign(ctx, 3)
	assert.NoError(t, err)
}

func TestPersister_SkipsUndecodableRecords(t *testing.T) {
	store := newTestStore(t)
	p := NewPersister(store)
	ctx := context.Background()

	job := customerJob(
		`{"id":7,"name":"Acme","status":"active","email":"a@b.com"}`,
		`{"id":8,"name":"NoEmail","status":"active"}`,
		`not json`,
		`{"id":7,"name":"Dup","status":"active","email":"d@b.com"}`,
	)

	result, err := p.Handle(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Persisted)
	assert.Equal(t, 3, result.Failed)

	got, err := store.GetCustomer(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, &models.Customer{ID: 7, Name: "Acme", Status: "active", Email: "a@b.com"}, got)
}

func TestPersister_UnknownRecordType(t *testing.T) {
	p := NewPersister(newTestStore(t))

	_, err := p.Handle(context.Background(), &models.PersistenceJob{ID: "x", Type: "order"})
	assert.Error(t, err)
}

func TestInProcessPipeline(t *testing.T) {
	store := newTestStore(t)
	broker := NewMemoryBroker(16)
	defer broker.Close()

	dispatcher := NewDispatcher(broker, DispatcherConfig{Retry: fastRetry()}, quietLogger())
	dispatcher.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = NewWorkerPool(broker, NewPersister(store), 2, quietLogger()).Run(ctx)
	}()

	require.NoError(t, dispatcher.Enqueue(context.Background(),
		customerJob(`{"id":42,"name":"Globex","status":"lead","email":"g@x.io"}`)))

	require.Eventually(t, func() bool {
		_, err := store.GetCustomer(context.Background(), 42)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, dispatcher.Stop(context.Background()))
	cancel()
	<-done
}
