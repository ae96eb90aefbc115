package quest

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/stampquest/internal/stampquest"
)

// ActiveQuest is the current quest together with its riddle and position.
type ActiveQuest struct {
	SessionID string           `json:"sessionId"`
	Quest     stampquest.Quest `json:"quest"`
	Riddle    string           `json:"riddle"`
	Position  int              `json:"position"`
	Total     int              `json:"total"`
}

// ActiveQuest returns the player's active quest with its riddle. A missing
// riddle is generated and cached; generation failures yield FallbackRiddle.
func (s *Service) ActiveQuest(ctx context.Context, playerID string) (*ActiveQuest, error) {
	sess, q, err := s.loadActive(ctx, playerID)
	if err != nil {
		return nil, err
	}

	riddle := s.riddleFor(ctx, sess, q)
	out := &ActiveQuest{
		SessionID: sess.ID,
		Quest:     *q,
		Riddle:    riddle,
		Position:  sess.CompletedCount() + 1,
		Total:     len(sess.Quests),
	}
	out.Quest.Riddle = riddle
	return out, nil
}

// riddleFor returns q's cached riddle, or generates one. Concurrent callers
// for the same quest share a single generation.
func (s *Service) riddleFor(ctx context.Context, sess *stampquest.Session, q *stampquest.Quest) string {
	if q.Riddle != "" {
		return q.Riddle
	}

	key := sess.PlayerID + "/" + sess.ID + "/" + q.ID
	v, _, _ := s.riddleFlight.Do(key, func() (any, error) {
		text, ok := s.generateRiddle(ctx, q)
		if !ok {
			return FallbackRiddle, nil
		}
		s.cacheRiddles(ctx, sess.PlayerID, sess.ID, map[string]string{q.ID: text})
		return text, nil
	})
	return v.(string)
}

// generateRiddle calls the text capability. ok is false when it is absent
// or failed.
func (s *Service) generateRiddle(ctx context.Context, q *stampquest.Quest) (string, bool) {
	ctx, span := s.tracer.Start(ctx, "quest.Riddle")
	defer span.End()
	span.SetAttributes(attribute.String("quest.id", q.ID), attribute.String("quest.name", q.Name))

	if s.deps.Riddles == nil {
		span.SetAttributes(attribute.Bool("riddle.fallback", true))
		return "", false
	}
	text, err := s.deps.Riddles.GenerateRiddle(ctx, q.Name, q.Category)
	if err != nil {
		s.logger.Warn("riddle generation failed", "capability", "text", "quest", q.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "riddle generation failed")
		span.SetAttributes(attribute.Bool("riddle.fallback", true))
		return "", false
	}
	return text, true
}

// cacheRiddles stores generated riddles on quests that still lack one. A
// replaced session or a persistent conflict only loses the cache entry.
func (s *Service) cacheRiddles(ctx context.Context, playerID, sessionID string, riddles map[string]string) {
	err := retryStale(ctx, func() error {
		sess, err := s.deps.Repo.LoadSession(ctx, playerID)
		if err != nil {
			return err
		}
		if sess.ID != sessionID {
			return nil
		}
		changed := false
		for id, text := range riddles {
			if q := sess.Quest(id); q != nil && q.Riddle == "" {
				q.Riddle = text
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return s.deps.Repo.Commit(ctx, stampquest.Update{Session: sess})
	})
	if err != nil && !errors.Is(err, stampquest.ErrNotFound) {
		s.logger.Warn("caching riddles failed", "player", playerID, "session", sessionID, "error", err)
	}
}

// GenerateAllRiddles fills in riddles for every quest of the current session
// that lacks one. Successes are cached in one commit. Failures get
// FallbackRiddle in the returned copy and are not cached.
func (s *Service) GenerateAllRiddles(ctx context.Context, playerID string) (*stampquest.Session, error) {
	sess, err := s.deps.Repo.LoadSession(ctx, playerID)
	if err != nil {
		return nil, err
	}

	results := make([]string, len(sess.Quests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.RiddleConcurrency)
	for i := range sess.Quests {
		q := &sess.Quests[i]
		if q.Riddle != "" {
			continue
		}
		g.Go(func() error {
			if text, ok := s.generateRiddle(gctx, q); ok {
				results[i] = text
			}
			return nil
		})
	}
	_ = g.Wait()

	generated := make(map[string]string)
	for i := range sess.Quests {
		q := &sess.Quests[i]
		if q.Riddle != "" {
			continue
		}
		if results[i] != "" {
			q.Riddle = results[i]
			generated[q.ID] = results[i]
		} else {
			q.Riddle = FallbackRiddle
		}
	}
	if len(generated) > 0 {
		s.cacheRiddles(ctx, playerID, sess.ID, generated)
	}
	return sess, nil
}
