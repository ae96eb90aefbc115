package quest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/playperu/stampquest/internal/stampquest"
)

type StartRequest struct {
	PlayerID string
	// StartLocation seeds a nearby search when Landmarks is empty.
	StartLocation      *stampquest.Coordinate
	Category           string
	SearchRadiusMeters float64
	UnlockRadiusMeters float64
	Landmarks          []stampquest.Landmark
}

// StartSession installs a new current session for the player, replacing any
// previous one. Explicit landmarks win; otherwise the nearest places around
// StartLocation are picked and ordered into a walking route.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (sess *stampquest.Session, err error) {
	ctx, span := s.tracer.Start(ctx, "quest.StartSession")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("player.id", req.PlayerID))

	category := strings.ToLower(strings.TrimSpace(req.Category))
	landmarks := req.Landmarks
	if len(landmarks) == 0 && req.StartLocation != nil {
		if err := req.StartLocation.Validate(); err != nil {
			return nil, err
		}
		radius := req.SearchRadiusMeters
		if radius <= 0 {
			radius = s.cfg.SearchRadiusMeters
		}
		found := s.searchNearby(ctx, *req.StartLocation, radius, category)
		landmarks = planRoute(*req.StartLocation, found, s.cfg.QuestCount)
	}

	unlock := req.UnlockRadiusMeters
	if unlock <= 0 {
		unlock = s.cfg.UnlockRadiusMeters
	}

	sess, err = stampquest.NewSession(s.newID(), req.PlayerID, landmarks, unlock, category, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.deps.Repo.ReplaceSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}
	span.SetAttributes(attribute.String("session.id", sess.ID), attribute.Int("session.quests", len(sess.Quests)))

	s.logger.Info("session started", "player", req.PlayerID, "session", sess.ID, "quests", len(sess.Quests))
	s.publish(req.PlayerID, EventSessionStarted, map[string]any{
		"sessionId": sess.ID,
		"quests":    len(sess.Quests),
	})
	return sess, nil
}

// CurrentSession returns the player's current session or ErrNotFound.
func (s *Service) CurrentSession(ctx context.Context, playerID string) (*stampquest.Session, error) {
	return s.deps.Repo.LoadSession(ctx, playerID)
}

type CompleteResult struct {
	Session           *stampquest.Session `json:"session"`
	Archived          bool                `json:"archived"`
	SessionsCompleted int                 `json:"sessionsCompleted"`
}

// CompleteSession archives the current session, finished or not, then
// removes it and counts it on the profile in one commit.
func (s *Service) CompleteSession(ctx context.Context, playerID string) (res *CompleteResult, err error) {
	ctx, span := s.tracer.Start(ctx, "quest.CompleteSession")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("player.id", playerID))

	sess, err := s.deps.Repo.LoadSession(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if sess.CompletedAt == nil {
		done := s.now().UTC()
		sess.CompletedAt = &done
	}

	archived := false
	if s.deps.Archive != nil {
		if err := s.deps.Archive.Archive(ctx, sess); err != nil {
			return nil, fmt.Errorf("archiving session: %w", err)
		}
		archived = true
	}

	prof, err := s.deps.Repo.LoadProfile(ctx, playerID)
	if err != nil {
		return nil, err
	}
	prof.SessionsCompleted++

	if err := s.deps.Repo.Commit(ctx, stampquest.Update{Session: sess, DeleteSession: true, Profile: prof}); err != nil {
		return nil, fmt.Errorf("committing completion: %w", err)
	}

	s.logger.Info("session completed", "player", playerID, "session", sess.ID, "quests_done", sess.CompletedCount())
	s.publish(playerID, EventSessionCompleted, map[string]any{
		"sessionId":  sess.ID,
		"questsDone": sess.CompletedCount(),
		"archived":   archived,
	})
	return &CompleteResult{Session: sess, Archived: archived, SessionsCompleted: prof.SessionsCompleted}, nil
}

// ArchivedSessions lists the player's archived sessions, newest first.
func (s *Service) ArchivedSessions(ctx context.Context, playerID string) ([]stampquest.ArchiveEntry, error) {
	if s.deps.Archive == nil {
		return []stampquest.ArchiveEntry{}, nil
	}
	return s.deps.Archive.List(ctx, playerID)
}

func (s *Service) ArchivedSession(ctx context.Context, playerID, sessionID string) (*stampquest.Session, error) {
	if s.deps.Archive == nil {
		return nil, stampquest.ErrNotFound
	}
	return s.deps.Archive.Load(ctx, playerID, sessionID)
}

// searchNearby wraps the places capability. Failures degrade to no results.
func (s *Service) searchNearby(ctx context.Context, center stampquest.Coordinate, radius float64, category string) []stampquest.Place {
	if s.deps.Places == nil {
		return nil
	}
	found, err := s.deps.Places.SearchNearby(ctx, center, radius, category)
	if err != nil {
		if !errors.Is(err, stampquest.ErrInvalidLandmark) {
			s.logger.Warn("nearby search failed", "capability", "places", "category", category, "error", err)
		}
		return nil
	}
	return found
}

// planRoute keeps the n places nearest to start and orders them by walking
// greedily to the closest unvisited place.
func planRoute(start stampquest.Coordinate, places []stampquest.Place, n int) []stampquest.Landmark {
	candidates := sortByDistance(start, places)
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	route := make([]stampquest.Landmark, 0, len(candidates))
	here := start
	for len(candidates) > 0 {
		best := 0
		bestDist := math.MaxFloat64
		for i, c := range candidates {
			d, err := stampquest.Distance(here, c.place.Location)
			if err == nil && d < bestDist {
				best, bestDist = i, d
			}
		}
		p := candidates[best].place
		route = append(route, stampquest.Landmark{
			Name:     p.Name,
			Category: p.Category,
			Location: p.Location,
			Order:    len(route) + 1,
		})
		here = p.Location
		candidates = append(candidates[:best], candidates[best+1:]...)
	}
	return route
}
