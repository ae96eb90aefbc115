package stampquest

import "errors"

var (
	// ErrInvalidCoordinate marks malformed location input.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrNoActiveQuest is returned when the player has no session or every
	// quest in it is already completed.
	ErrNoActiveQuest = errors.New("no active quest")

	// ErrEmptySession is returned when a session is started without landmarks.
	ErrEmptySession = errors.New("session requires at least one landmark")

	// ErrInvalidLandmark marks a malformed landmark or unknown landmark category.
	ErrInvalidLandmark = errors.New("invalid landmark")

	// ErrStaleState is returned when a document changed between load and
	// write. Callers retry the whole operation from a fresh load.
	ErrStaleState = errors.New("stale state")

	// ErrNotFound is returned when a session or archived session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCapability wraps every failure of an external capability
	// (text generation, vision, places lookup).
	ErrCapability = errors.New("external capability failure")
)
