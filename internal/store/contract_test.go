package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/stampquest/internal/stampquest"
)

var testNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func testSession(t *testing.T, id, playerID string) *stampquest.Session {
	t.Helper()
	sess, err := stampquest.NewSession(id, playerID, []stampquest.Landmark{
		{Name: "Plaza de Armas", Category: "landmark", Location: stampquest.Coordinate{Lat: -12.0464, Lng: -77.0428}, Order: 1},
		{Name: "Parque Kennedy", Category: "park", Location: stampquest.Coordinate{Lat: -12.1211, Lng: -77.0297}, Order: 2},
	}, 50, "", testNow)
	require.NoError(t, err)
	return sess
}

// runRepositoryContract exercises the behavior every stampquest.Repository
// must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) stampquest.Repository) {
	ctx := context.Background()

	t.Run("missing session", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.LoadSession(ctx, "nobody")
		assert.ErrorIs(t, err, stampquest.ErrNotFound)
	})

	t.Run("missing profile is fresh", func(t *testing.T) {
		repo := newRepo(t)
		p, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.PlayerID)
		assert.Zero(t, p.Version)
		assert.Empty(t, p.Stamps)
	})

	t.Run("replace then load", func(t *testing.T) {
		repo := newRepo(t)
		sess := testSession(t, "s1", "p1")
		require.NoError(t, repo.ReplaceSession(ctx, sess))
		assert.Equal(t, int64(1), sess.Version)

		got, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "s1", got.ID)
		assert.Equal(t, int64(1), got.Version)
		require.Len(t, got.Quests, 2)
		assert.Equal(t, stampquest.QuestStatusActive, got.Quests[0].Status)
	})

	t.Run("replace overwrites previous session", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s1", "p1")))
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s2", "p1")))

		got, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "s2", got.ID)
	})

	t.Run("commit session and profile", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s1", "p1")))

		sess, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		prof, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)

		sess.Advance(testNow)
		prof.AddStamp("Plaza de Armas", "landmark", testNow, nil)
		prof.Points += 100

		require.NoError(t, repo.Commit(ctx, stampquest.Update{Session: sess, Profile: prof}))
		assert.Equal(t, int64(2), sess.Version)
		assert.Equal(t, int64(1), prof.Version)

		gotSess, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, gotSess.CompletedCount())
		assert.Equal(t, int64(2), gotSess.Version)

		gotProf, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 100, gotProf.Points)
		assert.True(t, gotProf.HasStamp("Plaza de Armas"))
		assert.Equal(t, int64(1), gotProf.Version)
	})

	t.Run("stale session rejected", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s1", "p1")))

		a, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		b, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)

		a.Advance(testNow)
		require.NoError(t, repo.Commit(ctx, stampquest.Update{Session: a}))

		b.Advance(testNow)
		err = repo.Commit(ctx, stampquest.Update{Session: b})
		assert.ErrorIs(t, err, stampquest.ErrStaleState)
		assert.Equal(t, int64(1), b.Version)
	})

	t.Run("concurrent commits: one wins", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s1", "p1")))

		const writers = 8
		updates := make([]stampquest.Update, writers)
		for i := range updates {
			sess, err := repo.LoadSession(ctx, "p1")
			require.NoError(t, err)
			prof, err := repo.LoadProfile(ctx, "p1")
			require.NoError(t, err)
			sess.Advance(testNow)
			prof.AddStamp("Plaza de Armas", "landmark", testNow, nil)
			prof.Points += 100
			updates[i] = stampquest.Update{Session: sess, Profile: prof}
		}

		start := make(chan struct{})
		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := range updates {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				errs[i] = repo.Commit(ctx, updates[i])
			}()
		}
		close(start)
		wg.Wait()

		var ok int
		for _, err := range errs {
			if err == nil {
				ok++
				continue
			}
			assert.ErrorIs(t, err, stampquest.ErrStaleState)
		}
		assert.Equal(t, 1, ok)

		got, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 100, got.Points)
		gotSess, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, gotSess.CompletedCount())
	})

	t.Run("stale commit leaves profile untouched", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s1", "p1")))

		stale, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s2", "p1")))

		prof, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)
		prof.Points = 500

		err = repo.Commit(ctx, stampquest.Update{Session: stale, Profile: prof})
		assert.ErrorIs(t, err, stampquest.ErrStaleState)

		got, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)
		assert.Zero(t, got.Points)
	})

	t.Run("concurrent profile creation", func(t *testing.T) {
		repo := newRepo(t)
		a, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)
		b, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)

		a.Points = 1
		require.NoError(t, repo.Commit(ctx, stampquest.Update{Profile: a}))

		b.Points = 2
		err = repo.Commit(ctx, stampquest.Update{Profile: b})
		assert.ErrorIs(t, err, stampquest.ErrStaleState)
	})

	t.Run("delete session", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s1", "p1")))

		sess, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		prof, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)
		prof.SessionsCompleted++

		require.NoError(t, repo.Commit(ctx, stampquest.Update{Session: sess, DeleteSession: true, Profile: prof}))

		_, err = repo.LoadSession(ctx, "p1")
		assert.True(t, errors.Is(err, stampquest.ErrNotFound), "expected ErrNotFound, got %v", err)

		got, err := repo.LoadProfile(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.SessionsCompleted)
	})

	t.Run("delete replaced session is stale", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s1", "p1")))
		old, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s2", "p1")))

		err = repo.Commit(ctx, stampquest.Update{Session: old, DeleteSession: true})
		assert.ErrorIs(t, err, stampquest.ErrStaleState)

		got, err := repo.LoadSession(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "s2", got.ID)
	})

	t.Run("players are isolated", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.ReplaceSession(ctx, testSession(t, "s1", "p1")))
		_, err := repo.LoadSession(ctx, "p2")
		assert.ErrorIs(t, err, stampquest.ErrNotFound)
	})
}
