package quest

import (
	"context"
	"sort"
	"strings"

	"github.com/playperu/stampquest/internal/stampquest"
)

type NearbyPlace struct {
	stampquest.Place
	DistanceMeters float64 `json:"distanceMeters"`
}

type rankedPlace struct {
	place    stampquest.Place
	distance float64
}

func sortByDistance(center stampquest.Coordinate, places []stampquest.Place) []rankedPlace {
	out := make([]rankedPlace, 0, len(places))
	for _, p := range places {
		d, err := stampquest.Distance(center, p.Location)
		if err != nil {
			continue
		}
		out = append(out, rankedPlace{place: p, distance: d})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].distance < out[j].distance })
	return out
}

// NearbyLandmarks lists candidate places around center, nearest first, for
// planning a session. Lookup failures return an empty list.
func (s *Service) NearbyLandmarks(ctx context.Context, center stampquest.Coordinate, category string, radiusMeters float64) ([]NearbyPlace, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = s.cfg.SearchRadiusMeters
	}

	ranked := sortByDistance(center, s.searchNearby(ctx, center, radiusMeters, strings.ToLower(category)))
	out := make([]NearbyPlace, len(ranked))
	for i, r := range ranked {
		out[i] = NearbyPlace{Place: r.place, DistanceMeters: roundTenth(r.distance)}
	}
	return out, nil
}

// Profile returns the player's profile, fresh if none is stored yet.
func (s *Service) Profile(ctx context.Context, playerID string) (*stampquest.Profile, error) {
	p, err := s.deps.Repo.LoadProfile(ctx, playerID)
	if err != nil {
		return nil, err
	}
	normalizeProfile(p)
	return p, nil
}

// ResetProfile clears stamps, badges, points and the completed-session count.
func (s *Service) ResetProfile(ctx context.Context, playerID string) (*stampquest.Profile, error) {
	var fresh *stampquest.Profile
	err := retryStale(ctx, func() error {
		cur, err := s.deps.Repo.LoadProfile(ctx, playerID)
		if err != nil {
			return err
		}
		fresh = stampquest.NewProfile(playerID, s.now())
		fresh.Version = cur.Version
		return s.deps.Repo.Commit(ctx, stampquest.Update{Profile: fresh})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile reset", "player", playerID)
	normalizeProfile(fresh)
	return fresh, nil
}

// normalizeProfile replaces nil collections so they encode as [].
func normalizeProfile(p *stampquest.Profile) {
	if p.Stamps == nil {
		p.Stamps = []stampquest.Stamp{}
	}
	if p.Badges == nil {
		p.Badges = []stampquest.EarnedBadge{}
	}
}

type BadgeProgress struct {
	BadgeID     string `json:"badgeId"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Count       int    `json:"count"`
	Required    int    `json:"required"`
	Earned      bool   `json:"earned"`
}

type Stats struct {
	TotalStamps       int             `json:"totalStamps"`
	Points            int             `json:"points"`
	SessionsCompleted int             `json:"sessionsCompleted"`
	BadgesEarned      int             `json:"badgesEarned"`
	ByCategory        map[string]int  `json:"byCategory"`
	Badges            []BadgeProgress `json:"badges"`
}

// Stats summarizes the profile: per-category stamp counts and progress
// towards each configured badge, in rule order.
func (s *Service) Stats(ctx context.Context, playerID string) (*Stats, error) {
	p, err := s.deps.Repo.LoadProfile(ctx, playerID)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		TotalStamps:       len(p.Stamps),
		Points:            p.Points,
		SessionsCompleted: p.SessionsCompleted,
		BadgesEarned:      len(p.Badges),
		ByCategory:        make(map[string]int),
		Badges:            make([]BadgeProgress, 0, len(s.cfg.BadgeRules)),
	}
	for _, stamp := range p.Stamps {
		st.ByCategory[strings.ToLower(stamp.Category)]++
	}
	for _, rule := range s.cfg.BadgeRules {
		st.Badges = append(st.Badges, BadgeProgress{
			BadgeID:     rule.BadgeID,
			Name:        rule.Name,
			Description: rule.Description,
			Category:    rule.RequiredCategory,
			Count:       min(p.CountFor(rule), rule.RequiredCount),
			Required:    rule.RequiredCount,
			Earned:      p.HasBadge(rule.BadgeID),
		})
	}
	return st, nil
}
