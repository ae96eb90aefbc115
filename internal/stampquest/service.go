package stampquest

import "context"

// Update is a set of document writes applied as one atomic unit. Nil
// documents are left untouched.
type Update struct {
	Session *Session
	// DeleteSession removes Session instead of writing it.
	DeleteSession bool
	Profile       *Profile
}

// Repository persists sessions and profiles keyed by player id.
//
// Commit is optimistic: every document in the update must still be at the
// version it was loaded at (and, for sessions, still carry the same id).
// Otherwise nothing is written and ErrStaleState is returned. On success the
// versions of the passed documents are advanced.
type Repository interface {
	// LoadSession returns the player's current session or ErrNotFound.
	LoadSession(ctx context.Context, playerID string) (*Session, error)
	// LoadProfile returns the stored profile or a fresh unsaved one.
	LoadProfile(ctx context.Context, playerID string) (*Profile, error)
	// ReplaceSession installs s as the player's current session.
	ReplaceSession(ctx context.Context, s *Session) error
	Commit(ctx context.Context, u Update) error
}

// Archiver is the durable blob store for finished sessions.
type Archiver interface {
	Archive(ctx context.Context, s *Session) error
	List(ctx context.Context, playerID string) ([]ArchiveEntry, error)
	Load(ctx context.Context, playerID, sessionID string) (*Session, error)
}

type ArchiveEntry struct {
	SessionID  string `json:"sessionId"`
	ArchivedAt string `json:"archivedAt"`
	SizeBytes  int64  `json:"sizeBytes"`
}

// RiddleGenerator produces a cryptic clue for a place.
type RiddleGenerator interface {
	GenerateRiddle(ctx context.Context, placeName, category string) (string, error)
}

type Verdict int

const (
	VerdictNegative Verdict = iota
	VerdictAffirmative
)

func (v Verdict) String() string {
	if v == VerdictAffirmative {
		return "affirmative"
	}
	return "negative"
}

// ImageEvaluator judges whether a photo shows placeName.
type ImageEvaluator interface {
	EvaluateImage(ctx context.Context, image []byte, placeName string) (Verdict, error)
}

type Place struct {
	Name     string     `json:"name"`
	Category string     `json:"category,omitempty"`
	Location Coordinate `json:"location"`
}

// PlaceSearcher looks up named places around a point.
type PlaceSearcher interface {
	SearchNearby(ctx context.Context, center Coordinate, radiusMeters float64, category string) ([]Place, error)
}
