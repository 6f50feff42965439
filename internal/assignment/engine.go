package assignment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"secret-santa/internal/metrics"
	"secret-santa/internal/models"
	"secret-santa/internal/storage"
)

const defaultMaxAttempts = 5

// Store is the datastore surface the engine needs.
type Store interface {
	GetParticipant(ctx context.Context, id int64) (*models.Participant, error)
	ListParticipants(ctx context.Context) ([]models.Participant, error)
	ExclusionPairs(ctx context.Context) ([]storage.ExclusionPair, error)
	CommitAssignment(ctx context.Context, drawerID, recipientID int64, at time.Time) error
	RemoveParticipant(ctx context.Context, id int64) error
	ResetAssignments(ctx context.Context) (int64, error)
	ResetAll(ctx context.Context) error
	GameStatus(ctx context.Context) (*models.GameStatus, error)
}

// Notifier is told about every new assignment. It is expected to enqueue
// and return; errors are logged and never fail the draw.
type Notifier interface {
	NotifyAssignment(ctx context.Context, santaID int64, recipientName string) error
}

// DrawResult is a successful draw. AlreadyPicked is set when the participant
// had drawn before and the existing assignment is being returned.
type DrawResult struct {
	Recipient     models.Recipient `json:"recipient"`
	AlreadyPicked bool             `json:"already_picked"`
	PickedAt      *time.Time       `json:"picked_at,omitempty"`
}

// Assignment is what a participant sees about their own draw.
type Assignment struct {
	HasPicked bool              `json:"has_picked"`
	Recipient *models.Recipient `json:"recipient,omitempty"`
	PickedAt  *time.Time        `json:"picked_at,omitempty"`
}

// Eligibility answers whether a participant may draw right now.
type Eligibility struct {
	CanPick        bool   `json:"can_pick"`
	Reason         string `json:"reason,omitempty"`
	AvailableCount int    `json:"available_count,omitempty"`
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithRand makes recipient selection deterministic for tests.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		var mu sync.Mutex
		e.intn = func(n int) int {
			mu.Lock()
			defer mu.Unlock()
			return r.IntN(n)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMaxAttempts bounds how often a draw is retried after losing the
// recipient to a concurrent draw.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// Engine draws recipients. Draws by different participants run without a
// global lock; the unique constraint on the recipient column rejects the
// loser of a race, which then recomputes its candidates.
type Engine struct {
	store       Store
	notifier    Notifier
	metrics     metrics.Recorder
	log         zerolog.Logger
	intn        func(n int) int
	now         func() time.Time
	maxAttempts int
}

// NewEngine creates an assignment engine.
func NewEngine(store Store, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		metrics:     metrics.Nop{},
		log:         log.With().Str("component", "Assignment").Logger(),
		intn:        rand.IntN,
		now:         time.Now,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Draw picks a recipient for participantID and commits it. Drawing again
// after a successful draw returns the same recipient with AlreadyPicked set.
func (e *Engine) Draw(ctx context.Context, participantID int64) (*DrawResult, error) {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		result, err := e.drawOnce(ctx, participantID)
		switch {
		case err == nil:
			if result.AlreadyPicked {
				e.metrics.RecordDraw("already_picked")
			} else {
				e.metrics.RecordDraw("assigned")
				e.notify(ctx, participantID, result.Recipient.FirstName)
			}
			return result, nil
		case errors.Is(err, storage.ErrConflict):
			e.metrics.RecordDrawRetry()
			e.log.Debug().Err(err).Int64("participant_id", participantID).Int("attempt", attempt).
				Msg("Recipient claimed concurrently, retrying")
			continue
		case errors.Is(err, storage.ErrAlreadyAssigned):
			// A parallel request for the same participant committed first.
			result, err = e.existing(ctx, participantID)
			if err != nil {
				e.recordFailure(err)
				return nil, err
			}
			e.metrics.RecordDraw("already_picked")
			return result, nil
		default:
			e.recordFailure(err)
			return nil, err
		}
	}

	e.metrics.RecordDraw("retries_exhausted")
	e.log.Warn().Int64("participant_id", participantID).Int("attempts", e.maxAttempts).
		Msg("Giving up draw after repeated conflicts")
	return nil, fmt.Errorf("%w: recipient claimed concurrently %d times", ErrInvalidState, e.maxAttempts)
}

func (e *Engine) drawOnce(ctx context.Context, participantID int64) (*DrawResult, error) {
	drawer, err := e.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}
	if drawer.AssignedToID != nil {
		return e.resultFor(ctx, drawer)
	}

	participants, err := e.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	pairs, err := e.store.ExclusionPairs(ctx)
	if err != nil {
		return nil, err
	}

	g := newGraph(participants, pairs)
	candidates := g.candidates(participantID)
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	safe := g.safe(participantID, candidates)
	if len(safe) == 0 {
		return nil, fmt.Errorf("%w: %d candidates all strand another participant", ErrUnsatisfiable, len(candidates))
	}

	recipientID := safe[e.intn(len(safe))]
	at := e.now().UTC()
	if err := e.store.CommitAssignment(ctx, participantID, recipientID, at); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	name := ""
	for _, p := range participants {
		if p.ID == recipientID {
			name = p.FirstName
			break
		}
	}

	e.log.Info().Int64("participant_id", participantID).Int("candidates", len(candidates)).
		Int("safe", len(safe)).Msg("Assignment drawn")

	return &DrawResult{
		Recipient: models.Recipient{ID: recipientID, FirstName: name},
		PickedAt:  &at,
	}, nil
}

func (e *Engine) existing(ctx context.Context, participantID int64) (*DrawResult, error) {
	drawer, err := e.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}
	if drawer.AssignedToID == nil {
		return nil, fmt.Errorf("%w: assignment vanished", ErrInvalidState)
	}
	return e.resultFor(ctx, drawer)
}

func (e *Engine) resultFor(ctx context.Context, drawer *models.Participant) (*DrawResult, error) {
	result := &DrawResult{
		Recipient:     models.Recipient{ID: *drawer.AssignedToID, FirstName: "Unknown"},
		AlreadyPicked: true,
		PickedAt:      drawer.PickedAt,
	}
	recipient, err := e.store.GetParticipant(ctx, *drawer.AssignedToID)
	if err == nil {
		result.Recipient.FirstName = recipient.FirstName
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return result, nil
}

func (e *Engine) notify(ctx context.Context, santaID int64, recipientName string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyAssignment(context.WithoutCancel(ctx), santaID, recipientName); err != nil {
		e.log.Warn().Err(err).Int64("participant_id", santaID).Msg("Failed to queue assignment notification")
	}
}

func (e *Engine) recordFailure(err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		e.metrics.RecordDraw("not_found")
	case errors.Is(err, ErrNoCandidates):
		e.metrics.RecordDraw("no_candidates")
	case errors.Is(err, ErrUnsatisfiable):
		e.metrics.RecordDraw("unsatisfiable")
	default:
		e.metrics.RecordDraw("error")
	}
}

func (e *Engine) mapStoreErr(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// GetAssignment returns the participant's current assignment, if any.
func (e *Engine) GetAssignment(ctx context.Context, participantID int64) (*Assignment, error) {
	p, err := e.store.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, e.mapStoreErr(err)
	}
	if p.AssignedToID == nil {
		return &Assignment{}, nil
	}
	result, err := e.resultFor(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Assignment{HasPicked: true, Recipient: &result.Recipient, PickedAt: p.PickedAt}, nil
}

// CanPick reports whether participantID may draw now and how many people
// they could currently receive.
func (e *Engine) CanPick(ctx context.Context, participantID int64) (*Eligibility, error) {
	p, err := e.store.GetParticipant(ctx, participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return &Eligibility{Reason: "Participant not found"}, nil
	}
	if err != nil {
		return nil, err
	}
	if p.AssignedToID != nil {
		return &Eligibility{Reason: "You have already drawn your Secret Santa"}, nil
	}

	participants, err := e.store.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	pairs, err := e.store.ExclusionPairs(ctx)
	if err != nil {
		return nil, err
	}
	n := len(newGraph(participants, pairs).candidates(participantID))
	if n == 0 {
		return &Eligibility{Reason: "No available recipients at this time"}, nil
	}
	return &Eligibility{CanPick: true, AvailableCount: n}, nil
}

// Status summarises draw progress.
func (e *Engine) Status(ctx context.Context) (*models.GameStatus, error) {
	return e.store.GameStatus(ctx)
}

// ResetAssignments clears every draw and keeps participants and exclusions.
func (e *Engine) ResetAssignments(ctx context.Context) (int64, error) {
	n, err := e.store.ResetAssignments(ctx)
	if err != nil {
		return 0, err
	}
	e.log.Warn().Int64("reset", n).Msg("All assignments reset")
	return n, nil
}

// ResetAll deletes every participant and all data hanging off them.
func (e *Engine) ResetAll(ctx context.Context) error {
	if err := e.store.ResetAll(ctx); err != nil {
		return err
	}
	e.log.Warn().Msg("Game reset, all participants removed")
	return nil
}

// RemoveParticipant deletes a participant. Their Santa, if any, goes back to
// not having drawn.
func (e *Engine) RemoveParticipant(ctx context.Context, participantID int64) error {
	if err := e.store.RemoveParticipant(ctx, participantID); err != nil {
		return e.mapStoreErr(err)
	}
	e.log.Info().Int64("participant_id", participantID).Msg("Participant removed")
	return nil
}
