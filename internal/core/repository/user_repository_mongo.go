package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/duynhne/flow-auth/internal/core/domain"
)

// DefaultUserCollection is the collection the course service keeps accounts in.
const DefaultUserCollection = "User"

// mongoCollection is the subset of *mongo.Collection used by the repository.
type mongoCollection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
}

// MongoUserRepository implements domain.UserStore on a MongoDB collection.
// Documents carry username, email and permanent_token (the password hash).
type MongoUserRepository struct {
	coll mongoCollection
}

// NewMongoUserRepository creates a new MongoUserRepository.
func NewMongoUserRepository(coll mongoCollection) *MongoUserRepository {
	return &MongoUserRepository{coll: coll}
}

// EnsureUserIndexes creates the unique indexes InsertUser relies on to
// detect duplicate accounts.
func EnsureUserIndexes(ctx context.Context, coll *mongo.Collection) error {
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// FindUser returns the user whose username or email matches nameOrEmail.
// Returns (nil, nil) when no user is found.
func (r *MongoUserRepository) FindUser(ctx context.Context, nameOrEmail string) (*domain.User, error) {
	var u domain.User
	err := r.coll.FindOne(ctx, userFilter(nameOrEmail)).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// InsertUser inserts a new user document. Duplicate keys are reported as
// domain.ErrUserExists.
func (r *MongoUserRepository) InsertUser(ctx context.Context, username, passwordHash, email string) error {
	_, err := r.coll.InsertOne(ctx, bson.D{
		{Key: "username", Value: username},
		{Key: "permanent_token", Value: passwordHash},
		{Key: "email", Value: email},
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("insert user %q: %w", username, domain.ErrUserExists)
		}
		return err
	}
	return nil
}

func userFilter(nameOrEmail string) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "username", Value: nameOrEmail}},
		bson.D{{Key: "email", Value: nameOrEmail}},
	}}}
}
