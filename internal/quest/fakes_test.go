package quest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/playperu/stampquest/internal/badges"
	"github.com/playperu/stampquest/internal/stampquest"
)

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

// Points around Lima's centre. Each landmark is a few hundred metres from
// the next.
var (
	plaza     = stampquest.Coordinate{Lat: -12.0464, Lng: -77.0428}
	cathedral = stampquest.Coordinate{Lat: -12.0459, Lng: -77.0300}
	sanFran   = stampquest.Coordinate{Lat: -12.0453, Lng: -77.0275}
)

func testLandmarks() []stampquest.Landmark {
	return []stampquest.Landmark{
		{Name: "Plaza de Armas", Category: "landmark", Location: plaza, Order: 1},
		{Name: "Cafe Cathedral", Category: "cafe", Location: cathedral, Order: 2, PointValue: 150},
		{Name: "San Francisco", Category: "attraction", Location: sanFran, Order: 3},
	}
}

type stored struct {
	id      string
	version int64
	data    []byte
}

// memRepo is an in-memory stampquest.Repository with the same optimistic
// semantics as the real adapters. Documents are stored as JSON so callers
// never share memory with the store.
type memRepo struct {
	mu       sync.Mutex
	sessions map[string]stored
	profiles map[string]stored
	commits  int
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: map[string]stored{}, profiles: map[string]stored{}}
}

func (r *memRepo) LoadSession(_ context.Context, playerID string) (*stampquest.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[playerID]
	if !ok {
		return nil, stampquest.ErrNotFound
	}
	var s stampquest.Session
	if err := json.Unmarshal(st.data, &s); err != nil {
		return nil, err
	}
	s.Version = st.version
	return &s, nil
}

func (r *memRepo) LoadProfile(_ context.Context, playerID string) (*stampquest.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.profiles[playerID]
	if !ok {
		return stampquest.NewProfile(playerID, testNow), nil
	}
	var p stampquest.Profile
	if err := json.Unmarshal(st.data, &p); err != nil {
		return nil, err
	}
	p.Version = st.version
	return &p, nil
}

func (r *memRepo) ReplaceSession(_ context.Context, s *stampquest.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.PlayerID] = stored{id: s.ID, version: 1, data: data}
	s.Version = 1
	return nil
}

func (r *memRepo) Commit(_ context.Context, u stampquest.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.Session != nil {
		cur, ok := r.sessions[u.Session.PlayerID]
		if !ok || cur.id != u.Session.ID || cur.version != u.Session.Version {
			return stampquest.ErrStaleState
		}
	}
	if u.Profile != nil {
		cur := r.profiles[u.Profile.PlayerID]
		if cur.version != u.Profile.Version {
			return stampquest.ErrStaleState
		}
	}

	if u.Session != nil {
		if u.DeleteSession {
			delete(r.sessions, u.Session.PlayerID)
		} else {
			data, err := json.Marshal(u.Session)
			if err != nil {
				return err
			}
			u.Session.Version++
			r.sessions[u.Session.PlayerID] = stored{id: u.Session.ID, version: u.Session.Version, data: data}
		}
	}
	if u.Profile != nil {
		data, err := json.Marshal(u.Profile)
		if err != nil {
			return err
		}
		u.Profile.Version++
		r.profiles[u.Profile.PlayerID] = stored{version: u.Profile.Version, data: data}
	}
	r.commits++
	return nil
}

type riddleFunc func(ctx context.Context, placeName, category string) (string, error)

func (f riddleFunc) GenerateRiddle(ctx context.Context, placeName, category string) (string, error) {
	return f(ctx, placeName, category)
}

type visionFunc func(ctx context.Context, image []byte, placeName string) (stampquest.Verdict, error)

func (f visionFunc) EvaluateImage(ctx context.Context, image []byte, placeName string) (stampquest.Verdict, error) {
	return f(ctx, image, placeName)
}

type placesFunc func(ctx context.Context, center stampquest.Coordinate, radius float64, category string) ([]stampquest.Place, error)

func (f placesFunc) SearchNearby(ctx context.Context, center stampquest.Coordinate, radius float64, category string) ([]stampquest.Place, error) {
	return f(ctx, center, radius, category)
}

func alwaysVerdict(v stampquest.Verdict) visionFunc {
	return func(context.Context, []byte, string) (stampquest.Verdict, error) { return v, nil }
}

var errUpstream = errors.New("upstream down")

type memArchive struct {
	mu       sync.Mutex
	sessions map[string]*stampquest.Session
}

func (a *memArchive) Archive(_ context.Context, s *stampquest.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sessions == nil {
		a.sessions = map[string]*stampquest.Session{}
	}
	cp := *s
	a.sessions[s.PlayerID+"/"+s.ID] = &cp
	return nil
}

func (a *memArchive) List(_ context.Context, playerID string) ([]stampquest.ArchiveEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []stampquest.ArchiveEntry
	for _, s := range a.sessions {
		if s.PlayerID == playerID {
			out = append(out, stampquest.ArchiveEntry{SessionID: s.ID})
		}
	}
	return out, nil
}

func (a *memArchive) Load(_ context.Context, playerID, sessionID string) (*stampquest.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[playerID+"/"+sessionID]
	if !ok {
		return nil, stampquest.ErrNotFound
	}
	return s, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ string, e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func testConfig() Config {
	return Config{
		UnlockRadiusMeters: 50,
		QuestCount:         3,
		SearchRadiusMeters: 2000,
		EvaluationTimeout:  time.Second,
		BadgeRules:         badges.Defaults(),
	}
}

func newTestService(t *testing.T, cfg Config, deps Deps) *Service {
	t.Helper()
	if deps.Repo == nil {
		deps.Repo = newMemRepo()
	}
	svc := New(cfg, deps, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return testNow }
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("sess-%d", n)
	}
	return svc
}

// startTestSession starts the three-landmark Lima route for player.
func startTestSession(t *testing.T, svc *Service, player string) *stampquest.Session {
	t.Helper()
	sess, err := svc.StartSession(context.Background(), StartRequest{PlayerID: player, Landmarks: testLandmarks()})
	require.NoError(t, err)
	return sess
}
