// Package redisstore implements session.Store and session.Locker on Redis.
//
// Each session is a hash holding its JSON document and a version counter.
// Two sorted sets index it: one per user with the active session ids scored
// by creation time, and one global set scored by PurgeAt for the sweeper.
// Creation and compare-and-swap updates run as Lua scripts so the document
// and its indexes always change together. All keys share the {sessions}
// hash tag, which keeps the scripts within one slot on Redis Cluster.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/sessionguard/pkg/session"
)

// hashTag pins every store key to one cluster slot.
const hashTag = "{sessions}"

const (
	fieldData    = "data"
	fieldVersion = "version"
	fieldUser    = "user_id"
)

// createScript inserts a session unless the id is taken.
//
// KEYS: session, user index, expiry index
// ARGV: data, id, user id, created score, purge score, active flag
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'version', 1, 'user_id', ARGV[3])
if ARGV[6] == '1' then
	redis.call('ZADD', KEYS[2], ARGV[4], ARGV[2])
end
redis.call('ZADD', KEYS[3], ARGV[5], ARGV[2])
return 1
`)

// updateScript replaces the document if the version still matches.
// Returns the new version, 0 on conflict and -1 when the session is gone.
//
// KEYS: session, user index, expiry index
// ARGV: expected version, data, id, created score, purge score, active flag
var updateScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'version')
if not current then
	return -1
end
if current ~= ARGV[1] then
	return 0
end
local next = tonumber(current) + 1
redis.call('HSET', KEYS[1], 'data', ARGV[2], 'version', next)
if ARGV[6] == '1' then
	redis.call('ZADD', KEYS[2], ARGV[4], ARGV[3])
else
	redis.call('ZREM', KEYS[2], ARGV[3])
end
redis.call('ZADD', KEYS[3], ARGV[5], ARGV[3])
return next
`)

// Store is a Redis-backed session.Store.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New creates a Store. Keys are namespaced with prefix, which must not
// contain braces.
func New(client redis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) sessionKey(id string) string {
	return s.prefix + hashTag + ":s:" + id
}

func (s *Store) userKey(userID string) string {
	return s.prefix + hashTag + ":u:" + userID
}

func (s *Store) expiryKey() string {
	return s.prefix + hashTag + ":exp"
}

func (s *Store) keys(sess *session.Session) []string {
	return []string{s.sessionKey(sess.ID), s.userKey(sess.UserID), s.expiryKey()}
}

// Create inserts sess; it fails with session.ErrAlreadyExists if the id is taken.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return session.ErrInvalidSession
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redisstore: encode session: %w", err)
	}

	created, err := createScript.Run(ctx, s.client, s.keys(sess),
		data, sess.ID, sess.UserID, score(sess.CreatedAt), score(sess.PurgeAt()), flag(sess.IsActive),
	).Int64()
	if err != nil {
		return mapError(err)
	}
	if created == 0 {
		return session.ErrAlreadyExists
	}

	sess.Version = 1
	return nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	fields, err := s.client.HMGet(ctx, s.sessionKey(id), fieldData, fieldVersion).Result()
	if err != nil {
		return nil, mapError(err)
	}
	return decode(fields)
}

// Update applies fn to a copy of the session and writes it back only if
// no other write happened in between.
func (s *Store) Update(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID, next.UserID = current.ID, current.UserID

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("redisstore: encode session: %w", err)
	}

	version, err := updateScript.Run(ctx, s.client, s.keys(next),
		current.Version, data, next.ID, score(next.CreatedAt), score(next.PurgeAt()), flag(next.IsActive),
	).Int64()
	if err != nil {
		return nil, mapError(err)
	}

	switch version {
	case -1:
		return nil, session.ErrNotFound
	case 0:
		return nil, session.ErrConflict
	}

	next.Version = version
	return next, nil
}

// ListActive returns the active sessions of a user, oldest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*session.Session, error) {
	ids, err := s.client.ZRange(ctx, s.userKey(userID), 0, -1).Result()
	if err != nil {
		return nil, mapError(err)
	}
	if len(ids) == 0 {
		return []*session.Session{}, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	if _, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HMGet(ctx, s.sessionKey(id), fieldData, fieldVersion)
		}
		return nil
	}); err != nil {
		return nil, mapError(err)
	}

	result := make([]*session.Session, 0, len(ids))
	for _, cmd := range cmds {
		sess, err := decode(cmd.Val())
		if errors.Is(err, session.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.IsActive {
			result = append(result, sess)
		}
	}

	// The index is ordered by score then member, which is already
	// created_at then id; sorting again guards against sub-microsecond ties.
	session.SortByCreation(result)
	return result, nil
}

// Delete removes a session and its index entries. Deleting a missing
// session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	userID, err := s.client.HGet(ctx, s.sessionKey(id), fieldUser).Result()
	if errors.Is(err, redis.Nil) {
		// Clean a dangling expiry entry left by an interrupted delete.
		return mapError(s.client.ZRem(ctx, s.expiryKey(), id).Err())
	}
	if err != nil {
		return mapError(err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.sessionKey(id))
		p.ZRem(ctx, s.userKey(userID), id)
		p.ZRem(ctx, s.expiryKey(), id)
		return nil
	})
	return mapError(err)
}

// ListExpiredBefore returns ids whose purge time is before ts.
func (s *Store) ListExpiredBefore(ctx context.Context, ts time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(ts.UnixMicro(), 10),
	}).Result()
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

func decode(fields []any) (*session.Session, error) {
	if len(fields) != 2 || fields[0] == nil || fields[1] == nil {
		return nil, session.ErrNotFound
	}

	data, _ := fields[0].(string)
	rawVersion, _ := fields[1].(string)

	var sess session.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("redisstore: decode session: %w", err)
	}

	version, err := strconv.ParseInt(rawVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redisstore: decode version: %w", err)
	}
	sess.Version = version
	return &sess, nil
}

func score(t time.Time) int64 {
	return t.UnixMicro()
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// transientReplies are server error codes that mean the node cannot
// serve the request right now: loading a dataset, a read-only replica after
// failover, a lost primary or an in-flight cluster resharding.
var transientReplies = []string{
	"LOADING", "READONLY", "MASTERDOWN", "TRYAGAIN", "CLUSTERDOWN",
	"BUSY", "NOREPLICAS", "NOTREADY",
}

// mapError classifies go-redis errors. Replies that signal an unavailable
// node and connection failures wrap session.ErrStoreUnavailable; other
// server replies are returned as-is.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return session.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) && !isTransientReply(replyErr) {
		return fmt.Errorf("redisstore: %w", err)
	}
	return errors.Join(session.ErrStoreUnavailable, err)
}

func isTransientReply(err redis.Error) bool {
	code, _, _ := strings.Cut(err.Error(), " ")
	return slices.Contains(transientReplies, code)
}
