package quest

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/playperu/stampquest/internal/stampquest"
)

const (
	MessageClose = "You are close! Look for the target."
	MessageFar   = "Keep walking..."
)

// ProximityResult is the answer to a location check against the active quest.
type ProximityResult struct {
	QuestID        string  `json:"questId"`
	QuestName      string  `json:"questName"`
	DistanceMeters float64 `json:"distanceMeters"`
	RadiusMeters   float64 `json:"radiusMeters"`
	WithinRadius   bool    `json:"withinRadius"`
	CanVerify      bool    `json:"canVerify"`
	Message        string  `json:"message"`
}

// CheckProximity reports how far loc is from the active quest's target and
// whether verification may proceed.
func (s *Service) CheckProximity(ctx context.Context, playerID string, loc stampquest.Coordinate, override bool) (*ProximityResult, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	sess, q, err := s.loadActive(ctx, playerID)
	if err != nil {
		return nil, err
	}

	p, err := stampquest.CanVerify(loc, q.Target, sess.RadiusMeters, s.cfg.Override || override)
	if err != nil {
		return nil, err
	}
	msg := MessageFar
	if p.CanVerify {
		msg = MessageClose
	}
	return &ProximityResult{
		QuestID:        q.ID,
		QuestName:      q.Name,
		DistanceMeters: roundTenth(p.DistanceMeters),
		RadiusMeters:   sess.RadiusMeters,
		WithinRadius:   p.WithinRadius,
		CanVerify:      p.CanVerify,
		Message:        msg,
	}, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeTooFar   Outcome = "too_far"
	OutcomeRejected Outcome = "rejected"
)

type VerifyRequest struct {
	PlayerID string
	Location stampquest.Coordinate
	// Image is the photo evidence. It may be empty when override is set.
	Image    []byte
	Override bool
}

// VerifyResult describes a verification attempt. Only an accepted outcome
// changes state.
type VerifyResult struct {
	Outcome          Outcome           `json:"outcome"`
	Message          string            `json:"message"`
	DistanceMeters   float64           `json:"distanceMeters"`
	CompletedQuest   *stampquest.Quest `json:"completedQuest,omitempty"`
	NextQuest        *stampquest.Quest `json:"nextQuest,omitempty"`
	SessionCompleted bool              `json:"sessionCompleted"`
	StampAdded       bool              `json:"stampAdded"`
	NewBadges        []string          `json:"newBadges"`
	PointsAwarded    int               `json:"pointsAwarded"`
	TotalPoints      int               `json:"totalPoints"`
}

// Verify runs the proximity gate and evidence check for the active quest.
// On acceptance it advances the session and records the stamp in a single
// commit. A concurrent change to either document yields ErrStaleState and
// nothing is written; the caller retries the whole request.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (res *VerifyResult, err error) {
	ctx, span := s.tracer.Start(ctx, "quest.Verify")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("quest.outcome", string(res.Outcome)))
		}
		span.End()
	}()
	span.SetAttributes(attribute.String("player.id", req.PlayerID))

	if err := req.Location.Validate(); err != nil {
		return nil, err
	}
	sess, q, err := s.loadActive(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", sess.ID), attribute.String("quest.id", q.ID))

	override := s.cfg.Override || req.Override
	p, err := stampquest.CanVerify(req.Location, q.Target, sess.RadiusMeters, override)
	if err != nil {
		return nil, err
	}
	distance := roundTenth(p.DistanceMeters)
	if !p.CanVerify {
		return &VerifyResult{
			Outcome:        OutcomeTooFar,
			Message:        fmt.Sprintf("You are %.1f m away. Get within %.0f m of the target.", distance, sess.RadiusMeters),
			DistanceMeters: distance,
			NewBadges:      []string{},
		}, nil
	}

	if !override && !s.evidenceAccepted(ctx, req.Image, q.Name) {
		return &VerifyResult{
			Outcome:        OutcomeRejected,
			Message:        fmt.Sprintf("That doesn't look like %s. Try again!", q.Name),
			DistanceMeters: distance,
			NewBadges:      []string{},
		}, nil
	}

	prof, err := s.deps.Repo.LoadProfile(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	adv := sess.Advance(now)
	if !adv.Advanced {
		return nil, stampquest.ErrNoActiveQuest
	}
	stamp := prof.AddStamp(adv.Completed.Name, adv.Completed.Category, now, s.cfg.BadgeRules)
	prof.Points += adv.Completed.PointValue

	if err := s.deps.Repo.Commit(ctx, stampquest.Update{Session: sess, Profile: prof}); err != nil {
		return nil, fmt.Errorf("committing verification: %w", err)
	}

	s.logger.Info("quest completed",
		"player", req.PlayerID,
		"session", sess.ID,
		"quest", adv.Completed.ID,
		"override", override,
		"new_badges", stamp.NewBadges,
	)
	s.publish(req.PlayerID, EventQuestCompleted, map[string]any{
		"sessionId":        sess.ID,
		"questId":          adv.Completed.ID,
		"questName":        adv.Completed.Name,
		"sessionCompleted": adv.SessionCompleted,
	})
	for _, b := range stamp.NewBadges {
		s.publish(req.PlayerID, EventBadgeEarned, map[string]any{"badgeId": b})
	}

	res = &VerifyResult{
		Outcome:          OutcomeAccepted,
		Message:          fmt.Sprintf("Stamp collected: %s!", adv.Completed.Name),
		DistanceMeters:   distance,
		CompletedQuest:   adv.Completed,
		NextQuest:        adv.Next,
		SessionCompleted: adv.SessionCompleted,
		StampAdded:       stamp.Added,
		NewBadges:        stamp.NewBadges,
		PointsAwarded:    adv.Completed.PointValue,
		TotalPoints:      prof.Points,
	}
	if res.NewBadges == nil {
		res.NewBadges = []string{}
	}
	return res, nil
}

// evidenceAccepted asks the vision capability about image. Missing evidence,
// an absent capability, a failure, and anything but an affirmative verdict
// all reject.
func (s *Service) evidenceAccepted(ctx context.Context, image []byte, placeName string) bool {
	if len(image) == 0 || s.deps.Vision == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EvaluationTimeout)
	defer cancel()

	v, err := s.deps.Vision.EvaluateImage(ctx, image, placeName)
	if err != nil {
		s.logger.Warn("image evaluation failed", "capability", "vision", "place", placeName, "error", err)
		return false
	}
	return v == stampquest.VerdictAffirmative
}
