package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladapp/backend/core"
)

const (
	studentsCollection = "students"
	teachersCollection = "teachers"
	schoolsCollection  = "schools"
)

const connectTimeout = 10 * time.Second

// DB wraps the Mongo client and the application database.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

func Connect(ctx context.Context, conf *core.Config) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.Database.URI))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}
	if err = client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "pinging mongodb")
	}

	db := &DB{client: client, db: client.Database(conf.Database.Name)}
	if err = db.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) Disconnect(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// identities are unique per account kind; students and teachers live in
// separate collections so a plain unique index per collection is enough.
func (db *DB) ensureIndexes(ctx context.Context) error {
	identityIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "identity", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	for _, coll := range []string{studentsCollection, teachersCollection} {
		if _, err := db.db.Collection(coll).Indexes().CreateOne(ctx, identityIdx); err != nil {
			return errors.Wrapf(err, "creating identity index on %s", coll)
		}
	}
	return nil
}
