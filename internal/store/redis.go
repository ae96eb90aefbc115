package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playperu/stampquest/internal/stampquest"
)

const keyPrefix = "stampquest:"

// envelope is the stored form of a document: the payload plus the fields
// optimistic writes compare against.
type envelope struct {
	ID      string          `json:"id,omitempty"`
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// RedisStore implements stampquest.Repository on Redis string keys. Commits
// run under WATCH so a concurrent writer aborts the MULTI block.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

var _ stampquest.Repository = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger, now: time.Now}
}

// OpenRedis parses rawURL, connects and pings.
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

func sessionKey(playerID string) string { return keyPrefix + "session:" + playerID }
func profileKey(playerID string) string { return keyPrefix + "profile:" + playerID }

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) LoadSession(ctx context.Context, playerID string) (*stampquest.Session, error) {
	env, err := readEnvelope(ctx, s.client, sessionKey(playerID))
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if env == nil {
		return nil, stampquest.ErrNotFound
	}

	var sess stampquest.Session
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	sess.Version = env.Version
	return &sess, nil
}

func (s *RedisStore) LoadProfile(ctx context.Context, playerID string) (*stampquest.Profile, error) {
	env, err := readEnvelope(ctx, s.client, profileKey(playerID))
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	if env == nil {
		return stampquest.NewProfile(playerID, s.now()), nil
	}

	var p stampquest.Profile
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	p.Version = env.Version
	return &p, nil
}

func (s *RedisStore) ReplaceSession(ctx context.Context, sess *stampquest.Session) error {
	raw, err := encodeEnvelope(sess.ID, 1, sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(sess.PlayerID), raw, 0).Err(); err != nil {
		return fmt.Errorf("replacing session: %w", err)
	}
	sess.Version = 1
	return nil
}

func (s *RedisStore) Commit(ctx context.Context, u stampquest.Update) error {
	var keys []string
	if u.Session != nil {
		keys = append(keys, sessionKey(u.Session.PlayerID))
	}
	if u.Profile != nil {
		keys = append(keys, profileKey(u.Profile.PlayerID))
	}
	if len(keys) == 0 {
		return nil
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		if u.Session != nil {
			cur, err := readEnvelope(ctx, tx, sessionKey(u.Session.PlayerID))
			if err != nil {
				return err
			}
			if cur == nil || cur.ID != u.Session.ID || cur.Version != u.Session.Version {
				return fmt.Errorf("session changed concurrently: %w", stampquest.ErrStaleState)
			}
		}
		if u.Profile != nil {
			cur, err := readEnvelope(ctx, tx, profileKey(u.Profile.PlayerID))
			if err != nil {
				return err
			}
			var stored int64
			if cur != nil {
				stored = cur.Version
			}
			if stored != u.Profile.Version {
				return fmt.Errorf("profile changed concurrently: %w", stampquest.ErrStaleState)
			}
		}

		var sessRaw, profRaw []byte
		if u.Session != nil && !u.DeleteSession {
			raw, err := encodeEnvelope(u.Session.ID, u.Session.Version+1, u.Session)
			if err != nil {
				return err
			}
			sessRaw = raw
		}
		if u.Profile != nil {
			raw, err := encodeEnvelope("", u.Profile.Version+1, u.Profile)
			if err != nil {
				return err
			}
			profRaw = raw
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if u.Session != nil {
				if u.DeleteSession {
					pipe.Del(ctx, sessionKey(u.Session.PlayerID))
				} else {
					pipe.Set(ctx, sessionKey(u.Session.PlayerID), sessRaw, 0)
				}
			}
			if u.Profile != nil {
				pipe.Set(ctx, profileKey(u.Profile.PlayerID), profRaw, 0)
			}
			return nil
		})
		return err
	}, keys...)

	if errors.Is(err, redis.TxFailedErr) {
		s.logger.Debug("redis commit lost race", "keys", keys)
		return fmt.Errorf("watched key modified: %w", stampquest.ErrStaleState)
	}
	if err != nil {
		if errors.Is(err, stampquest.ErrStaleState) {
			return err
		}
		return fmt.Errorf("committing: %w", err)
	}

	if u.Session != nil && !u.DeleteSession {
		u.Session.Version++
	}
	if u.Profile != nil {
		u.Profile.Version++
	}
	return nil
}

func encodeEnvelope(id string, version int64, doc any) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{ID: id, Version: version, Data: data})
}

// readEnvelope returns nil, nil when key does not exist.
func readEnvelope(ctx context.Context, c redis.Cmdable, key string) (*envelope, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &env, nil
}
