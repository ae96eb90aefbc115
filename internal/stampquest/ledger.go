package stampquest

import (
	"strings"
	"time"
)

// AnyCategory in a BadgeRule counts stamps of every category.
const AnyCategory = "*"

type Stamp struct {
	POIName     string    `json:"poiName"`
	Category    string    `json:"category"`
	CollectedAt time.Time `json:"collectedAt"`
}

// BadgeRule grants BadgeID once a player holds RequiredCount stamps in
// RequiredCategory. Rules are static configuration.
type BadgeRule struct {
	BadgeID          string `json:"badgeId" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Description      string `json:"description" yaml:"description"`
	RequiredCategory string `json:"requiredCategory" yaml:"category"`
	RequiredCount    int    `json:"requiredCount" yaml:"count"`
}

// Matches reports whether a stamp of category counts toward the rule.
func (r BadgeRule) Matches(category string) bool {
	return r.RequiredCategory == AnyCategory || strings.EqualFold(r.RequiredCategory, category)
}

type EarnedBadge struct {
	BadgeID  string    `json:"badgeId"`
	EarnedAt time.Time `json:"earnedAt"`
}

// Profile is the stamp ledger of one player.
type Profile struct {
	PlayerID          string        `json:"playerId"`
	Stamps            []Stamp       `json:"stamps"`
	Badges            []EarnedBadge `json:"badges"`
	Points            int           `json:"points"`
	SessionsCompleted int           `json:"sessionsCompleted"`
	CreatedAt         time.Time     `json:"createdAt"`

	Version int64 `json:"-"`
}

func NewProfile(playerID string, now time.Time) *Profile {
	return &Profile{
		PlayerID:  playerID,
		Stamps:    []Stamp{},
		Badges:    []EarnedBadge{},
		CreatedAt: now.UTC(),
	}
}

// HasStamp matches poiName exactly.
func (p *Profile) HasStamp(poiName string) bool {
	for _, s := range p.Stamps {
		if s.POIName == poiName {
			return true
		}
	}
	return false
}

func (p *Profile) HasBadge(badgeID string) bool {
	for _, b := range p.Badges {
		if b.BadgeID == badgeID {
			return true
		}
	}
	return false
}

// CountFor returns how many held stamps count toward rule.
func (p *Profile) CountFor(rule BadgeRule) int {
	n := 0
	for _, s := range p.Stamps {
		if rule.Matches(s.Category) {
			n++
		}
	}
	return n
}

type AddStampResult struct {
	Added bool
	// NewBadges lists badges granted by this add, in rule order.
	NewBadges []string
}

// NewBadge returns the first badge granted by the add, if any.
func (r AddStampResult) NewBadge() (string, bool) {
	if len(r.NewBadges) == 0 {
		return "", false
	}
	return r.NewBadges[0], true
}

// AddStamp records a stamp for poiName unless one already exists, then
// evaluates rules in order. A rule grants its badge when the badge is not yet
// held and the category count has reached the threshold.
func (p *Profile) AddStamp(poiName, category string, at time.Time, rules []BadgeRule) AddStampResult {
	if p.HasStamp(poiName) {
		return AddStampResult{}
	}

	p.Stamps = append(p.Stamps, Stamp{
		POIName:     poiName,
		Category:    category,
		CollectedAt: at.UTC(),
	})

	res := AddStampResult{Added: true}
	for _, rule := range rules {
		if rule.RequiredCount <= 0 || !rule.Matches(category) || p.HasBadge(rule.BadgeID) {
			continue
		}
		if p.CountFor(rule) >= rule.RequiredCount {
			p.Badges = append(p.Badges, EarnedBadge{BadgeID: rule.BadgeID, EarnedAt: at.UTC()})
			res.NewBadges = append(res.NewBadges, rule.BadgeID)
		}
	}
	return res
}
