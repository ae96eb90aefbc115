package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playperu/stampquest/internal/stampquest"
)

// DocStore implements stampquest.Repository on libSQL tables holding one
// JSONB document per row plus a version column for optimistic writes.
// Tables are created by the migrations package.
type DocStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ stampquest.Repository = (*DocStore)(nil)

func NewDocStore(db *sql.DB) *DocStore {
	return &DocStore{db: db, now: time.Now}
}

// Ping reports whether the database is reachable.
func (s *DocStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DocStore) LoadSession(ctx context.Context, playerID string) (*stampquest.Session, error) {
	var data string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data), version FROM sessions WHERE player_id = ?`, playerID,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stampquest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	var sess stampquest.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	sess.Version = version
	return &sess, nil
}

func (s *DocStore) LoadProfile(ctx context.Context, playerID string) (*stampquest.Profile, error) {
	var data string
	var version int64
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data), version FROM profiles WHERE player_id = ?`, playerID,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return stampquest.NewProfile(playerID, s.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	var p stampquest.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	p.Version = version
	return &p, nil
}

func (s *DocStore) ReplaceSession(ctx context.Context, sess *stampquest.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, player_id, version, data) VALUES (?, ?, 1, jsonb(?))
		 ON CONFLICT(player_id) DO UPDATE SET id = excluded.id, version = 1, data = excluded.data`,
		sess.ID, sess.PlayerID, string(data),
	)
	if err != nil {
		return fmt.Errorf("replacing session: %w", err)
	}
	sess.Version = 1
	return nil
}

// Commit applies u in one transaction. Each statement is guarded by the
// loaded version, so a concurrent writer makes it affect zero rows.
func (s *DocStore) Commit(ctx context.Context, u stampquest.Update) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeErr("beginning transaction", err)
	}
	defer tx.Rollback()

	if u.Session != nil {
		if err := s.writeSession(ctx, tx, u.Session, u.DeleteSession); err != nil {
			return err
		}
	}
	if u.Profile != nil {
		if err := s.writeProfile(ctx, tx, u.Profile); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return writeErr("committing", err)
	}

	if u.Session != nil && !u.DeleteSession {
		u.Session.Version++
	}
	if u.Profile != nil {
		u.Profile.Version++
	}
	return nil
}

func (s *DocStore) writeSession(ctx context.Context, tx *sql.Tx, sess *stampquest.Session, del bool) error {
	var (
		res sql.Result
		err error
	)
	if del {
		res, err = tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE id = ? AND player_id = ? AND version = ?`,
			sess.ID, sess.PlayerID, sess.Version,
		)
	} else {
		data, merr := json.Marshal(sess)
		if merr != nil {
			return merr
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE sessions SET version = version + 1, data = jsonb(?)
			 WHERE id = ? AND player_id = ? AND version = ?`,
			string(data), sess.ID, sess.PlayerID, sess.Version,
		)
	}
	if err != nil {
		return writeErr("writing session", err)
	}
	return expectOneRow(res, "session")
}

func (s *DocStore) writeProfile(ctx context.Context, tx *sql.Tx, p *stampquest.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	var res sql.Result
	if p.Version == 0 {
		res, err = tx.ExecContext(ctx,
			`INSERT INTO profiles (player_id, version, data) VALUES (?, 1, jsonb(?))
			 ON CONFLICT(player_id) DO NOTHING`,
			p.PlayerID, string(data),
		)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE profiles SET version = version + 1, data = jsonb(?)
			 WHERE player_id = ? AND version = ?`,
			string(data), p.PlayerID, p.Version,
		)
	}
	if err != nil {
		return writeErr("writing profile", err)
	}
	return expectOneRow(res, "profile")
}

func expectOneRow(res sql.Result, doc string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("writing %s: %w", doc, err)
	}
	if n != 1 {
		return fmt.Errorf("%s changed concurrently: %w", doc, stampquest.ErrStaleState)
	}
	return nil
}

// writeErr wraps err for op. A write rejected because another connection
// holds the database lock is reported as stale state so the caller reloads.
func writeErr(op string, err error) error {
	if isLocked(err) {
		return fmt.Errorf("%s: %w: %v", op, stampquest.ErrStaleState, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isLocked(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "sqlite_locked")
}
