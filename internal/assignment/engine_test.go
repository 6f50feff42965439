package assignment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secret-santa/internal/metrics"
	"secret-santa/internal/storage"
)

func newStore(t *testing.T) *storage.Storage {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=on"
	s, err := storage.NewStorage(context.Background(), storage.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *storage.Storage, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	for i, name := range names {
		p, err := s.AddParticipant(context.Background(), name, fmt.Sprintf("+1555%07d", i))
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	return ids
}

func exclude(t *testing.T, s *storage.Storage, from, to int64) {
	t.Helper()
	_, err := s.AddExclusion(context.Background(), from, to, "test")
	require.NoError(t, err)
}

// checkInvariants asserts the committed state has no self assignment, no
// duplicate recipient and no excluded pair.
func checkInvariants(t *testing.T, s *storage.Storage) map[int64]int64 {
	t.Helper()
	ctx := context.Background()
	participants, err := s.ListParticipants(ctx)
	require.NoError(t, err)
	pairs, err := s.ExclusionPairs(ctx)
	require.NoError(t, err)

	forbidden := make(map[[2]int64]bool)
	for _, p := range pairs {
		forbidden[[2]int64{p.ParticipantID, p.ExcludedParticipantID}] = true
	}

	assigned := make(map[int64]int64)
	seen := make(map[int64]int64)
	for _, p := range participants {
		assert.Equal(t, p.HasPicked, p.AssignedToID != nil, "has_picked mismatch for %d", p.ID)
		if p.AssignedToID == nil {
			continue
		}
		to := *p.AssignedToID
		assert.NotEqual(t, p.ID, to, "self assignment")
		assert.False(t, forbidden[[2]int64{p.ID, to}], "excluded pair %d->%d", p.ID, to)
		if prev, dup := seen[to]; dup {
			t.Errorf("recipient %d drawn by both %d and %d", to, prev, p.ID)
		}
		seen[to] = p.ID
		assigned[p.ID] = to
	}
	return assigned
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls map[int64]string
	err   error
}

func (f *fakeNotifier) NotifyAssignment(_ context.Context, santaID int64, recipientName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[int64]string)
	}
	f.calls[santaID] = recipientName
	return f.err
}

type countingMetrics struct {
	metrics.Nop
	mu      sync.Mutex
	draws   map[string]int
	retries int
}

func (c *countingMetrics) RecordDraw(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draws == nil {
		c.draws = make(map[string]int)
	}
	c.draws[outcome]++
}

func (c *countingMetrics) RecordDrawRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries++
}

func TestDrawAllParticipantsNoExclusions(t *testing.T) {
	for seedVal := uint64(1); seedVal <= 20; seedVal++ {
		t.Run(fmt.Sprintf("seed %d", seedVal), func(t *testing.T) {
			s := newStore(t)
			ids := seed(t, s, "A", "B", "C", "D", "E", "F")
			e := NewEngine(s, zerolog.Nop(), WithRand(rand.New(rand.NewPCG(seedVal, seedVal))))

			for _, id := range ids {
				res, err := e.Draw(context.Background(), id)
				require.NoError(t, err)
				assert.False(t, res.AlreadyPicked)
				assert.NotEqual(t, id, res.Recipient.ID)
			}

			assigned := checkInvariants(t, s)
			assert.Len(t, assigned, len(ids))
		})
	}
}

func TestDrawIsIdempotent(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "Alice", "Bob", "Carol")
	n := &fakeNotifier{}
	e := NewEngine(s, zerolog.Nop(), WithNotifier(n))
	ctx := context.Background()

	first, err := e.Draw(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, first.AlreadyPicked)
	before, err := s.GetParticipant(ctx, ids[0])
	require.NoError(t, err)

	second, err := e.Draw(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, second.AlreadyPicked)
	assert.Equal(t, first.Recipient, second.Recipient)

	after, err := s.GetParticipant(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// Only the first draw notifies.
	assert.Len(t, n.calls, 1)
	assert.Equal(t, first.Recipient.FirstName, n.calls[ids[0]])
}

func TestDrawNotFound(t *testing.T) {
	s := newStore(t)
	e := NewEngine(s, zerolog.Nop())

	_, err := e.Draw(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Participant not found", Reason(err))
}

func TestDrawNoCandidates(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "A", "B")
	exclude(t, s, ids[0], ids[1])
	m := &countingMetrics{}
	e := NewEngine(s, zerolog.Nop(), WithMetrics(m))

	_, err := e.Draw(context.Background(), ids[0])
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.NotEmpty(t, Reason(err))
	assert.Equal(t, 1, m.draws["no_candidates"])

	a, err := s.GetParticipant(context.Background(), ids[0])
	require.NoError(t, err)
	assert.False(t, a.HasPicked)
	assert.Nil(t, a.AssignedToID)
}

func TestDrawUnsatisfiable(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "A", "B", "C")
	// Nobody but A may give to A, so whoever A takes strands the other.
	exclude(t, s, ids[1], ids[0])
	exclude(t, s, ids[2], ids[0])
	e := NewEngine(s, zerolog.Nop())

	_, err := e.Draw(context.Background(), ids[0])
	assert.ErrorIs(t, err, ErrUnsatisfiable)
	assert.Contains(t, Reason(err), "exclusion rules")

	assigned := checkInvariants(t, s)
	assert.Empty(t, assigned)
}

func TestDrawLookaheadKeepsOthersDrawable(t *testing.T) {
	for seedVal := uint64(1); seedVal <= 20; seedVal++ {
		s := newStore(t)
		ids := seed(t, s, "A", "B", "C")
		e := NewEngine(s, zerolog.Nop(), WithRand(rand.New(rand.NewPCG(seedVal, 0))))
		ctx := context.Background()

		_, err := e.Draw(ctx, ids[0])
		require.NoError(t, err)

		for _, id := range ids[1:] {
			el, err := e.CanPick(ctx, id)
			require.NoError(t, err)
			assert.True(t, el.CanPick, "participant %d stranded with seed %d", id, seedVal)
			assert.GreaterOrEqual(t, el.AvailableCount, 1)
		}
	}
}

func TestDrawLookaheadAvoidsForcedStrand(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "A", "B", "C")
	// C may only give to B. If A took B, C would have nobody left.
	exclude(t, s, ids[2], ids[0])

	for i := uint64(0); i < 10; i++ {
		_, err := s.ResetAssignments(context.Background())
		require.NoError(t, err)
		e := NewEngine(s, zerolog.Nop(), WithRand(rand.New(rand.NewPCG(i, i))))

		res, err := e.Draw(context.Background(), ids[0])
		require.NoError(t, err)
		assert.Equal(t, ids[2], res.Recipient.ID)
	}
}

func TestDrawWithCouplesNeverRunsOutOfCandidates(t *testing.T) {
	for seedVal := uint64(1); seedVal <= 15; seedVal++ {
		t.Run(fmt.Sprintf("seed %d", seedVal), func(t *testing.T) {
			s := newStore(t)
			ids := seed(t, s, "A1", "A2", "B1", "B2", "C1", "C2", "D1")
			for i := 0; i+1 < 6; i += 2 {
				exclude(t, s, ids[i], ids[i+1])
				exclude(t, s, ids[i+1], ids[i])
			}
			r := rand.New(rand.NewPCG(seedVal, 7))
			e := NewEngine(s, zerolog.Nop(), WithRand(r))

			v, err := e.Validate(context.Background())
			require.NoError(t, err)
			require.True(t, v.Possible)

			order := append([]int64(nil), ids...)
			r.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
			for _, id := range order {
				_, err := e.Draw(context.Background(), id)
				if err != nil {
					// The lookahead guarantees every undrawn participant keeps
					// an option, so only the safe-set filter may come up empty.
					assert.ErrorIs(t, err, ErrUnsatisfiable)
				}
			}
			checkInvariants(t, s)
		})
	}
}

func TestConcurrentDrawsNeverDuplicateRecipients(t *testing.T) {
	s := newStore(t)
	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("P%02d", i)
	}
	ids := seed(t, s, names...)
	e := NewEngine(s, zerolog.Nop(), WithMaxAttempts(50))

	var wg sync.WaitGroup
	results := make([]*DrawResult, len(ids))
	errs := make([]error, len(ids))
	start := make(chan struct{})
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			<-start
			results[i], errs[i] = e.Draw(context.Background(), id)
		}(i, id)
	}
	close(start)
	wg.Wait()

	seen := make(map[int64]bool)
	succeeded := 0
	for i, res := range results {
		if errs[i] != nil {
			assert.True(t,
				errors.Is(errs[i], ErrNoCandidates) || errors.Is(errs[i], ErrUnsatisfiable) || errors.Is(errs[i], ErrInvalidState),
				"unexpected error: %v", errs[i])
			continue
		}
		succeeded++
		assert.NotEqual(t, ids[i], res.Recipient.ID)
		assert.False(t, seen[res.Recipient.ID], "recipient %d returned twice", res.Recipient.ID)
		seen[res.Recipient.ID] = true
	}
	assert.Positive(t, succeeded)

	assigned := checkInvariants(t, s)
	assert.Len(t, assigned, succeeded)
}

func TestConcurrentDrawsSameParticipant(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "A", "B", "C", "D")
	e := NewEngine(s, zerolog.Nop())

	var wg sync.WaitGroup
	results := make([]*DrawResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.Draw(context.Background(), ids[0])
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, results[0].Recipient.ID, res.Recipient.ID)
		if !res.AlreadyPicked {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	checkInvariants(t, s)
}

// racingStore lets another participant claim the chosen recipient right
// before the first commit lands.
type racingStore struct {
	*storage.Storage
	pool  []int64
	rival int64
}

func (r *racingStore) CommitAssignment(ctx context.Context, drawerID, recipientID int64, at time.Time) error {
	if r.rival == 0 {
		for _, id := range r.pool {
			if id != drawerID && id != recipientID {
				r.rival = id
				break
			}
		}
		if err := r.Storage.CommitAssignment(ctx, r.rival, recipientID, at); err != nil {
			return err
		}
	}
	return r.Storage.CommitAssignment(ctx, drawerID, recipientID, at)
}

func TestDrawRetriesAfterLosingRace(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "A", "B", "C", "D")
	m := &countingMetrics{}
	store := &racingStore{Storage: s, pool: ids[1:]}
	e := NewEngine(store, zerolog.Nop(), WithMetrics(m))

	res, err := e.Draw(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, 1, m.retries)
	assert.Equal(t, 1, m.draws["assigned"])

	assigned := checkInvariants(t, s)
	assert.Len(t, assigned, 2)
	assert.Equal(t, res.Recipient.ID, assigned[ids[0]])
	assert.NotEqual(t, assigned[store.rival], res.Recipient.ID)
}

type vanishingStore struct {
	*storage.Storage
}

func (v *vanishingStore) CommitAssignment(ctx context.Context, drawerID, recipientID int64, at time.Time) error {
	if err := v.Storage.RemoveParticipant(ctx, drawerID); err != nil {
		return err
	}
	return v.Storage.CommitAssignment(ctx, drawerID, recipientID, at)
}

func TestDrawerRemovedDuringDraw(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "A", "B", "C")
	e := NewEngine(&vanishingStore{Storage: s}, zerolog.Nop())

	_, err := e.Draw(context.Background(), ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
	checkInvariants(t, s)
}

func TestNotifierFailureDoesNotFailDraw(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "A", "B")
	n := &fakeNotifier{err: errors.New("queue down")}
	e := NewEngine(s, zerolog.Nop(), WithNotifier(n))

	res, err := e.Draw(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[1], res.Recipient.ID)
	assert.Equal(t, "B", n.calls[ids[0]])
}

func TestGetAssignmentAndCanPick(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "A", "B")
	e := NewEngine(s, zerolog.Nop())
	ctx := context.Background()

	a, err := e.GetAssignment(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, a.HasPicked)

	el, err := e.CanPick(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, el.CanPick)
	assert.Equal(t, 1, el.AvailableCount)

	_, err = e.Draw(ctx, ids[0])
	require.NoError(t, err)

	a, err = e.GetAssignment(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, a.HasPicked)
	require.NotNil(t, a.Recipient)
	assert.Equal(t, "B", a.Recipient.FirstName)

	el, err = e.CanPick(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, el.CanPick)
	assert.Equal(t, "You have already drawn your Secret Santa", el.Reason)

	el, err = e.CanPick(ctx, 999)
	require.NoError(t, err)
	assert.Equal(t, "Participant not found", el.Reason)

	_, err = e.GetAssignment(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveAndReset(t *testing.T) {
	s := newStore(t)
	ids := seed(t, s, "A", "B", "C")
	e := NewEngine(s, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, s.CommitAssignment(ctx, ids[0], ids[1], time.Now()))
	require.NoError(t, e.RemoveParticipant(ctx, ids[1]))
	assert.ErrorIs(t, e.RemoveParticipant(ctx, ids[1]), ErrNotFound)

	a, err := e.GetAssignment(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, a.HasPicked)

	_, err = e.Draw(ctx, ids[0])
	require.NoError(t, err)
	n, err := e.ResetAssignments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	status, err := e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalParticipants)
	assert.Equal(t, 0, status.PickedCount)

	require.NoError(t, e.ResetAll(ctx))
	status, err = e.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.TotalParticipants)
}

func TestReason(t *testing.T) {
	assert.Empty(t, Reason(nil))
	assert.Equal(t, "Participant not found", Reason(fmt.Errorf("wrapped: %w", ErrNotFound)))
	assert.Contains(t, Reason(ErrInvalidState), "try again")
	assert.Contains(t, Reason(errors.New("db down")), "An error occurred")
}
