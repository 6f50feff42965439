package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secret-santa/internal/metrics"
	"secret-santa/internal/models"
	"secret-santa/internal/storage"
)

var noon = time.Date(2026, 12, 10, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]error
	count int
}

func (f *fakeGateway) Send(_ context.Context, to, body string) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[body]; err != nil {
		return nil, err
	}
	f.count++
	f.sent = append(f.sent, body)
	return &Receipt{MessageID: fmt.Sprintf("SM%03d", f.count), Status: models.StatusQueued}, nil
}

func newStore(t *testing.T) (*storage.Storage, int64) {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	s, err := storage.NewStorage(context.Background(), storage.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	p, err := s.AddParticipant(context.Background(), "Alice", "+15550000001")
	require.NoError(t, err)
	return s, p.ID
}

func newQueue(t *testing.T, gw Gateway, cfg Config, now time.Time) (*Queue, *storage.Storage, int64) {
	t.Helper()
	s, pid := newStore(t)
	if cfg.Window == (Window{}) {
		cfg.Window = Window{StartHour: 9, EndHour: 21, Location: time.UTC}
	}
	q := New(s, gw, cfg, zerolog.Nop(),
		WithClock(func() time.Time { return now }),
		WithSleep(func(context.Context, time.Duration) {}),
	)
	return q, s, pid
}

func enqueue(t *testing.T, q *Queue, pid int64, body string, priority int) int64 {
	t.Helper()
	id, err := q.Enqueue(context.Background(), Message{
		ParticipantID: pid,
		PhoneNumber:   "+15550000001",
		Type:          models.MessageTest,
		Body:          body,
		Priority:      priority,
	})
	require.NoError(t, err)
	return id
}

func TestEnqueueValidation(t *testing.T) {
	q, _, pid := newQueue(t, &fakeGateway{}, Config{Enabled: true}, noon)
	ctx := context.Background()

	cases := []Message{
		{PhoneNumber: "+1", Type: models.MessageTest, Body: "x"},
		{ParticipantID: pid, Type: models.MessageTest, Body: "x"},
		{ParticipantID: pid, PhoneNumber: "+1", Type: models.MessageTest, Body: "  "},
		{ParticipantID: pid, PhoneNumber: "+1", Body: "x"},
	}
	for _, m := range cases {
		_, err := q.Enqueue(ctx, m)
		assert.ErrorIs(t, err, ErrValidation)
	}

	id := enqueue(t, q, pid, "hello", 0)
	entries, err := q.Entries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, models.DefaultPriority, entries[0].Priority)
	assert.True(t, noon.Equal(entries[0].ScheduledFor))
}

func TestProcessQueuePriorityOrder(t *testing.T) {
	gw := &fakeGateway{}
	q, _, pid := newQueue(t, gw, Config{Enabled: true}, noon)
	ctx := context.Background()

	enqueue(t, q, pid, "p5", 5)
	enqueue(t, q, pid, "p1", 1)
	enqueue(t, q, pid, "p3", 3)

	for i := 0; i < 3; i++ {
		res, err := q.ProcessQueue(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Attempted)
	}
	assert.Equal(t, []string{"p1", "p3", "p5"}, gw.sent)

	res, err := q.ProcessQueue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)
	assert.Equal(t, "No pending messages", res.Message)
}

func TestProcessQueueFutureEntriesWait(t *testing.T) {
	gw := &fakeGateway{}
	q, _, pid := newQueue(t, gw, Config{Enabled: true}, noon)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, Message{
		ParticipantID: pid, PhoneNumber: "+1", Type: models.MessageShoppingReminder,
		Body: "later", Priority: 4, ScheduledFor: noon.Add(time.Hour),
	})
	require.NoError(t, err)

	res, err := q.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)
	assert.Empty(t, gw.sent)
}

func TestProcessQueueFailureIsAtMostOnce(t *testing.T) {
	gw := &fakeGateway{fail: map[string]error{"boom": errors.New("carrier rejected")}}
	q, s, pid := newQueue(t, gw, Config{Enabled: true}, noon)
	ctx := context.Background()

	enqueue(t, q, pid, "boom", 1)
	enqueue(t, q, pid, "ok", 2)

	res, err := q.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempted)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)

	// A second drain must not retry the failed entry.
	res, err = q.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Attempted)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 0, stats.Pending)

	logs, err := s.DeliveryLogs(ctx, &pid, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	failed := 0
	for _, l := range logs {
		if l.Body == "boom" {
			failed++
			assert.Equal(t, models.StatusFailed, l.Status)
			assert.Contains(t, l.ErrorMessage, "carrier rejected")
			assert.Empty(t, l.ProviderMessageID)
		} else {
			assert.Equal(t, models.StatusQueued, l.Status)
			assert.Equal(t, "SM001", l.ProviderMessageID)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestProcessQueueOutsideWindow(t *testing.T) {
	gw := &fakeGateway{}
	late := time.Date(2026, 12, 10, 22, 30, 0, 0, time.UTC)
	q, _, pid := newQueue(t, gw, Config{Enabled: true}, late)
	ctx := context.Background()

	enqueue(t, q, pid, "night", 1)

	res, err := q.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, res.Attempted)
	assert.Empty(t, gw.sent)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
}

func TestProcessQueueDisabled(t *testing.T) {
	q, s, pid := newQueue(t, nil, Config{Enabled: false}, noon)
	ctx := context.Background()

	enqueue(t, q, pid, "quiet", 1)

	res, err := q.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)

	logs, err := s.DeliveryLogs(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, DisabledMessageID, logs[0].ProviderMessageID)
	assert.Equal(t, models.StatusSent, logs[0].Status)
}

func TestProcessQueueMissingGateway(t *testing.T) {
	q, s, pid := newQueue(t, nil, Config{Enabled: true}, noon)
	ctx := context.Background()

	enqueue(t, q, pid, "nowhere", 1)

	res, err := q.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	logs, err := s.DeliveryLogs(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.StatusFailed, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, ErrConfiguration.Error())
}

// cancellingGateway cancels the drain's parent context on the first send and
// then behaves like a context-aware client.
type cancellingGateway struct {
	fakeGateway
	cancel context.CancelFunc
}

func (g *cancellingGateway) Send(ctx context.Context, to, body string) (*Receipt, error) {
	g.cancel()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.fakeGateway.Send(ctx, to, body)
}

func TestProcessQueueRunsBatchAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw := &cancellingGateway{cancel: cancel}
	q, s, pid := newQueue(t, gw, Config{Enabled: true}, noon)

	enqueue(t, q, pid, "one", 1)
	enqueue(t, q, pid, "two", 2)
	enqueue(t, q, pid, "three", 3)

	res, err := q.ProcessQueue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempted)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, []string{"one", "two", "three"}, gw.sent)
	require.Error(t, ctx.Err())

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 3, stats.Processed)

	logs, err := s.DeliveryLogs(context.Background(), &pid, 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	bodies := map[string]int{}
	for _, l := range logs {
		bodies[l.Body]++
	}
	assert.Equal(t, map[string]int{"one": 1, "two": 1, "three": 1}, bodies)
}

type brokenLogStore struct {
	*storage.Storage
}

func (brokenLogStore) InsertDeliveryLog(context.Context, models.DeliveryLog) (int64, error) {
	return 0, errors.New("disk full")
}

type sendRecorder struct {
	metrics.Nop
	sends []string
}

func (r *sendRecorder) RecordSend(result string) {
	r.sends = append(r.sends, result)
}

func TestProcessQueueDeliveryLogFailureIsCounted(t *testing.T) {
	s, pid := newStore(t)
	rec := &sendRecorder{}
	q := New(brokenLogStore{s}, &fakeGateway{}, Config{Enabled: true, Window: Window{StartHour: 0, EndHour: 0}},
		zerolog.Nop(), WithMetrics(rec), WithSleep(func(context.Context, time.Duration) {}))

	enqueue(t, q, pid, "unlogged", 1)

	res, err := q.ProcessQueue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempted)
	assert.Equal(t, []string{"log_failed", "sent"}, rec.sends)
}

type blockingLease struct{}

func (blockingLease) Acquire(context.Context) (func(), bool, error) { return nil, false, nil }

func TestProcessQueueLeaseHeld(t *testing.T) {
	gw := &fakeGateway{}
	s, pid := newStore(t)
	q := New(s, gw, Config{Enabled: true, Window: Window{StartHour: 0, EndHour: 0}}, zerolog.Nop(),
		WithLease(blockingLease{}))

	enqueue(t, q, pid, "waiting", 1)

	res, err := q.ProcessQueue(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, gw.sent)
}

func TestConcurrentDrainsSendOnce(t *testing.T) {
	gw := &fakeGateway{}
	s, pid := newStore(t)
	cfg := Config{Enabled: true, Window: Window{StartHour: 0, EndHour: 0}}

	// Separate queues with separate local leases stand in for two workers;
	// the per-entry claim still prevents a double send.
	q1 := New(s, gw, cfg, zerolog.Nop())
	q2 := New(s, gw, cfg, zerolog.Nop())
	for i := 0; i < 20; i++ {
		enqueue(t, q1, pid, fmt.Sprintf("m%02d", i), 1+i%5)
	}

	var wg sync.WaitGroup
	for _, q := range []*Queue{q1, q2} {
		wg.Add(1)
		go func(q *Queue) {
			defer wg.Done()
			_, err := q.ProcessQueue(context.Background(), 20)
			assert.NoError(t, err)
		}(q)
	}
	wg.Wait()

	assert.Len(t, gw.sent, 20)
	seen := make(map[string]bool)
	for _, body := range gw.sent {
		assert.False(t, seen[body], "%s sent twice", body)
		seen[body] = true
	}
}

func TestHandleStatusIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	q, s, pid := newQueue(t, gw, Config{Enabled: true}, noon)
	ctx := context.Background()

	enqueue(t, q, pid, "hello", 1)
	_, err := q.ProcessQueue(ctx, 10)
	require.NoError(t, err)

	changed, err := q.HandleStatus(ctx, "SM001", models.StatusDelivered, "")
	require.NoError(t, err)
	assert.True(t, changed)

	first, err := s.DeliveryLogByProviderID(ctx, "SM001")
	require.NoError(t, err)

	changed, err = q.HandleStatus(ctx, "SM001", models.StatusDelivered, "")
	require.NoError(t, err)
	assert.False(t, changed)

	second, err := s.DeliveryLogByProviderID(ctx, "SM001")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, models.StatusDelivered, second.Status)
	require.NotNil(t, second.DeliveredAt)
}

func TestHandleStatusFailure(t *testing.T) {
	gw := &fakeGateway{}
	q, s, pid := newQueue(t, gw, Config{Enabled: true}, noon)
	ctx := context.Background()

	enqueue(t, q, pid, "hello", 1)
	_, err := q.ProcessQueue(ctx, 10)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := q.HandleStatus(ctx, "SM001", models.StatusFailed, "Unreachable destination")
		require.NoError(t, err)
	}

	l, err := s.DeliveryLogByProviderID(ctx, "SM001")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, l.Status)
	assert.Equal(t, "Unreachable destination", l.ErrorMessage)
	assert.Nil(t, l.DeliveredAt)
}

func TestHandleStatusUnknownMessage(t *testing.T) {
	q, _, _ := newQueue(t, &fakeGateway{}, Config{Enabled: true}, noon)

	changed, err := q.HandleStatus(context.Background(), "SM-nope", models.StatusDelivered, "")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = q.HandleStatus(context.Background(), "", models.StatusDelivered, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCleanupAndCancel(t *testing.T) {
	gw := &fakeGateway{}
	q, _, pid := newQueue(t, gw, Config{Enabled: true, RetentionDays: 30}, noon)
	ctx := context.Background()

	enqueue(t, q, pid, "old", 1)
	_, err := q.ProcessQueue(ctx, 10)
	require.NoError(t, err)

	n, err := q.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	later := New(q.store, gw, q.cfg, zerolog.Nop(), WithClock(func() time.Time { return noon.AddDate(0, 0, 31) }))
	n, err = later.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	enqueue(t, q, pid, "pending", 1)
	n, err = q.CancelPending(ctx, pid, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
