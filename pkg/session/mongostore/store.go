// Package mongostore implements session.Store and session.Locker on MongoDB.
//
// Each session is one document keyed by its id. The document carries the
// computed purge_at time so the sweeper can query it through an index, and
// a version field that guards replacements.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	pkgmongo "github.com/dmitrymomot/sessionguard/pkg/mongo"
	"github.com/dmitrymomot/sessionguard/pkg/session"
)

// DefaultCollection is used when New is given an empty collection name.
const DefaultCollection = "sessions"

type document struct {
	session.Session `bson:",inline"`
	PurgeAt         time.Time `bson:"purge_at"`
}

func toDocument(s *session.Session) document {
	return document{Session: *s.Clone(), PurgeAt: s.PurgeAt()}
}

// Store is a MongoDB-backed session.Store.
type Store struct {
	coll *mongo.Collection
}

// New creates a Store over the given collection of db.
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{coll: db.Collection(collection)}
}

// EnsureIndexes creates the indexes the store relies on. It is safe to call
// on every start.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "public_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "is_active", Value: 1},
				{Key: "created_at", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "purge_at", Value: 1}},
		},
	})
	return mapError(err)
}

// Create inserts sess; it fails with session.ErrAlreadyExists if the id is taken.
func (s *Store) Create(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return session.ErrInvalidSession
	}

	doc := toDocument(sess)
	doc.Version = 1
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return mapError(err)
	}

	sess.Version = 1
	return nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var doc document
	if err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc); err != nil {
		return nil, mapError(err)
	}
	return &doc.Session, nil
}

// Update applies fn to a copy of the session and writes it back only if
// the stored version is unchanged.
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
	next.Version = current.Version + 1

	res, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: id}, {Key: "version", Value: current.Version}},
		toDocument(next),
	)
	if err != nil {
		return nil, mapError(err)
	}
	if res.MatchedCount == 0 {
		n, err := s.coll.CountDocuments(ctx, bson.D{{Key: "_id", Value: id}})
		if err != nil {
			return nil, mapError(err)
		}
		if n == 0 {
			return nil, session.ErrNotFound
		}
		return nil, session.ErrConflict
	}

	return next, nil
}

// ListActive returns the active sessions of a user, oldest first.
func (s *Store) ListActive(ctx context.Context, userID string) ([]*session.Session, error) {
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "user_id", Value: userID}, {Key: "is_active", Value: true}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, mapError(err)
	}

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapError(err)
	}

	result := make([]*session.Session, 0, len(docs))
	for i := range docs {
		result = append(result, &docs[i].Session)
	}
	// BSON dates keep milliseconds only; ties are broken by id.
	session.SortByCreation(result)
	return result, nil
}

// Delete removes the document. Missing ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	return mapError(err)
}

// ListExpiredBefore returns ids of sessions whose purge time is before ts.
func (s *Store) ListExpiredBefore(ctx context.Context, ts time.Time) ([]string, error) {
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "purge_at", Value: bson.D{{Key: "$lt", Value: ts}}}},
		options.Find().
			SetProjection(bson.D{{Key: "_id", Value: 1}}).
			SetSort(bson.D{{Key: "purge_at", Value: 1}}),
	)
	if err != nil {
		return nil, mapError(err)
	}

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, mapError(err)
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// mapError translates driver errors into the store contract.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return session.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return session.ErrAlreadyExists
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case pkgmongo.IsUnavailable(err):
		return errors.Join(session.ErrStoreUnavailable, err)
	default:
		return fmt.Errorf("mongostore: %w", err)
	}
}

var _ session.Store = (*Store)(nil)
