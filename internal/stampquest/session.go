package stampquest

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultPointValue is awarded for a quest whose landmark carries no value.
const DefaultPointValue = 100

type QuestStatus string

const (
	QuestStatusLocked    QuestStatus = "locked"
	QuestStatusActive    QuestStatus = "active"
	QuestStatusCompleted QuestStatus = "completed"
)

type Quest struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Target     Coordinate  `json:"target"`
	Category   string      `json:"category"`
	Riddle     string      `json:"riddle,omitempty"`
	Status     QuestStatus `json:"status"`
	PointValue int         `json:"pointValue"`
	Order      int         `json:"order"`
}

// Landmark is one entry of the ordered list a session is started from.
type Landmark struct {
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	Location   Coordinate `json:"location"`
	Order      int        `json:"order"`
	PointValue int        `json:"pointValue,omitempty"`
}

// Session is a player's ordered run through a set of quests. Exactly one
// quest is active until all of them are completed.
type Session struct {
	ID           string     `json:"id"`
	PlayerID     string     `json:"playerId"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	Quests       []Quest    `json:"quests"`
	RadiusMeters float64    `json:"radiusMeters"`
	Category     string     `json:"category,omitempty"`

	// Version is the stored revision this value was loaded at. Repositories
	// own it; zero means never stored.
	Version int64 `json:"-"`
}

// NewSession builds a fresh session from landmarks sorted by Order. The
// first quest is active and the rest are locked.
func NewSession(id, playerID string, landmarks []Landmark, radiusMeters float64, category string, now time.Time) (*Session, error) {
	if len(landmarks) == 0 {
		return nil, ErrEmptySession
	}

	sorted := slices.Clone(landmarks)
	slices.SortStableFunc(sorted, func(a, b Landmark) int { return a.Order - b.Order })

	quests := make([]Quest, 0, len(sorted))
	for i, lm := range sorted {
		name := strings.TrimSpace(lm.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: landmark %d has no name", ErrInvalidLandmark, i+1)
		}
		if err := lm.Location.Validate(); err != nil {
			return nil, fmt.Errorf("landmark %q: %w", name, err)
		}
		points := lm.PointValue
		if points <= 0 {
			points = DefaultPointValue
		}
		status := QuestStatusLocked
		if i == 0 {
			status = QuestStatusActive
		}
		quests = append(quests, Quest{
			ID:         fmt.Sprintf("%s-%02d", id, i+1),
			Name:       name,
			Target:     lm.Location,
			Category:   strings.TrimSpace(lm.Category),
			Status:     status,
			PointValue: points,
			Order:      i + 1,
		})
	}

	return &Session{
		ID:           id,
		PlayerID:     playerID,
		StartedAt:    now.UTC(),
		Quests:       quests,
		RadiusMeters: radiusMeters,
		Category:     category,
	}, nil
}

// ActiveQuest returns the active quest, or nil once every quest is completed.
func (s *Session) ActiveQuest() *Quest {
	if s == nil {
		return nil
	}
	for i := range s.Quests {
		if s.Quests[i].Status == QuestStatusActive {
			return &s.Quests[i]
		}
	}
	return nil
}

// Quest looks a quest up by id.
func (s *Session) Quest(id string) *Quest {
	for i := range s.Quests {
		if s.Quests[i].ID == id {
			return &s.Quests[i]
		}
	}
	return nil
}

// CompletedCount is the number of quests already completed.
func (s *Session) CompletedCount() int {
	n := 0
	for _, q := range s.Quests {
		if q.Status == QuestStatusCompleted {
			n++
		}
	}
	return n
}

type AdvanceResult struct {
	Advanced         bool
	Completed        *Quest
	Next             *Quest
	SessionCompleted bool
}

// Advance completes the active quest and activates the next one by order.
// When the last quest completes, CompletedAt is set. With no active quest it
// is a no-op reporting Advanced=false.
func (s *Session) Advance(now time.Time) AdvanceResult {
	idx := -1
	for i := range s.Quests {
		if s.Quests[i].Status == QuestStatusActive {
			idx = i
			break
		}
	}
	if idx < 0 {
		return AdvanceResult{}
	}

	s.Quests[idx].Status = QuestStatusCompleted
	completed := s.Quests[idx]
	res := AdvanceResult{Advanced: true, Completed: &completed}

	if next := idx + 1; next < len(s.Quests) {
		s.Quests[next].Status = QuestStatusActive
		nq := s.Quests[next]
		res.Next = &nq
		return res
	}

	done := now.UTC()
	s.CompletedAt = &done
	res.SessionCompleted = true
	return res
}
