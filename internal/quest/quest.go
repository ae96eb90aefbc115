// Package quest implements the player-facing operations of the game: riddle
// retrieval, proximity checks, evidence verification, and the session and
// profile lifecycle. It coordinates the pure domain types in stampquest with
// the repository and external capabilities.
package quest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/playperu/stampquest/internal/stampquest"
)

const (
	// FallbackRiddle is served whenever no riddle can be generated.
	FallbackRiddle = "I keep my secrets close to the ground. Walk on, look around, and the place will find you."

	defaultEvaluationTimeout = 20 * time.Second
	defaultRiddleConcurrency = 4

	// commitAttempts bounds retries of internal writes that lose an
	// optimistic race (riddle caching, profile reset).
	commitAttempts = 3
)

// Event types published to a player's stream.
const (
	EventSessionStarted   = "session_started"
	EventQuestCompleted   = "quest_completed"
	EventBadgeEarned      = "badge_earned"
	EventSessionCompleted = "session_completed"
)

// Event is a notification about a change to a player's game state.
type Event struct {
	Type     string    `json:"type"`
	PlayerID string    `json:"playerId"`
	At       time.Time `json:"at"`
	Data     any       `json:"data,omitempty"`
}

// Publisher fans events out to a player's subscribers.
type Publisher interface {
	Publish(playerID string, e Event)
}

type Config struct {
	UnlockRadiusMeters float64
	// Override makes every check permissive. It is OR-ed with the
	// per-request override flag.
	Override           bool
	QuestCount         int
	SearchRadiusMeters float64
	EvaluationTimeout  time.Duration
	RiddleConcurrency  int
	BadgeRules         []stampquest.BadgeRule
}

// Deps are the collaborators of a Service. Repo is required. A nil
// capability behaves as if it always failed.
type Deps struct {
	Repo    stampquest.Repository
	Riddles stampquest.RiddleGenerator
	Vision  stampquest.ImageEvaluator
	Places  stampquest.PlaceSearcher
	Archive stampquest.Archiver
	Events  Publisher
}

type Service struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	tracer trace.Tracer

	riddleFlight singleflight.Group

	now   func() time.Time
	newID func() string
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Service {
	if cfg.EvaluationTimeout <= 0 {
		cfg.EvaluationTimeout = defaultEvaluationTimeout
	}
	if cfg.RiddleConcurrency <= 0 {
		cfg.RiddleConcurrency = defaultRiddleConcurrency
	}
	if cfg.QuestCount <= 0 {
		cfg.QuestCount = 4
	}
	return &Service{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		tracer: otel.Tracer("github.com/playperu/stampquest/internal/quest"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// BadgeRules returns the configured rule set in evaluation order.
func (s *Service) BadgeRules() []stampquest.BadgeRule {
	return s.cfg.BadgeRules
}

func (s *Service) publish(playerID, typ string, data any) {
	if s.deps.Events == nil {
		return
	}
	s.deps.Events.Publish(playerID, Event{Type: typ, PlayerID: playerID, At: s.now().UTC(), Data: data})
}

// loadActive returns the player's session and its active quest, mapping a
// missing session to ErrNoActiveQuest.
func (s *Service) loadActive(ctx context.Context, playerID string) (*stampquest.Session, *stampquest.Quest, error) {
	sess, err := s.deps.Repo.LoadSession(ctx, playerID)
	if errors.Is(err, stampquest.ErrNotFound) {
		return nil, nil, stampquest.ErrNoActiveQuest
	}
	if err != nil {
		return nil, nil, err
	}
	q := sess.ActiveQuest()
	if q == nil {
		return sess, nil, stampquest.ErrNoActiveQuest
	}
	return sess, q, nil
}

// retryStale runs fn until it succeeds, fails with something other than
// ErrStaleState, or runs out of attempts.
func retryStale(ctx context.Context, fn func() error) error {
	var err error
	for range commitAttempts {
		if err = fn(); !errors.Is(err, stampquest.ErrStaleState) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", commitAttempts, err)
}
