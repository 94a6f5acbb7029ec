package mongodb

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vladapp/backend/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	FirstName    string             `bson:"firstName"`
	LastName     string             `bson:"lastName"`
	Identity     string             `bson:"identity"`
	Email        string             `bson:"email"`
	Sex          string             `bson:"sex"`
	Birthdate    time.Time          `bson:"birthdate,omitempty"`
	Group        string             `bson:"group,omitempty"`
	PasswordHash []byte             `bson:"passwordHash"`
	RefreshToken string             `bson:"refreshToken,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func newUserDoc(usr user.User) userDoc {
	return userDoc{
		FirstName:    usr.FirstName,
		LastName:     usr.LastName,
		Identity:     usr.Identity,
		Email:        usr.Email,
		Sex:          usr.Sex,
		Birthdate:    usr.Birthdate,
		Group:        usr.Group,
		PasswordHash: usr.PasswordHash,
		RefreshToken: usr.RefreshToken,
		CreatedAt:    usr.CreatedAt,
		UpdatedAt:    usr.UpdatedAt,
	}
}

func (doc userDoc) user(kind string) user.User {
	return user.User{
		ID:           doc.ID.Hex(),
		Kind:         kind,
		FirstName:    doc.FirstName,
		LastName:     doc.LastName,
		Identity:     doc.Identity,
		Email:        doc.Email,
		Sex:          doc.Sex,
		Birthdate:    doc.Birthdate,
		Group:        doc.Group,
		PasswordHash: doc.PasswordHash,
		RefreshToken: doc.RefreshToken,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func (repo *userRepository) collection(kind string) *mongo.Collection {
	if kind == user.KindTeacher {
		return repo.db.db.Collection(teachersCollection)
	}
	return repo.db.db.Collection(studentsCollection)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	res, err := repo.collection(usr.Kind).InsertOne(ctx, newUserDoc(usr))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return user.User{}, user.ErrIdentityExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return usr, nil
}

func (repo *userRepository) CountIdentityPrefix(ctx context.Context, kind, prefix string) (int, error) {
	filter := bson.M{"identity": primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(prefix) + `\d*$`,
	}}
	n, err := repo.collection(kind).CountDocuments(ctx, filter)
	if err != nil {
		return 0, errors.Wrap(err, "counting identities")
	}
	return int(n), nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	query := bson.M{}
	if filter.ID != "" {
		oid, err := primitive.ObjectIDFromHex(filter.ID)
		if err != nil {
			return user.User{}, user.ErrNotFound
		}
		query["_id"] = oid
	}
	if filter.IdentityOrEmail != "" {
		query["$or"] = bson.A{
			bson.M{"identity": filter.IdentityOrEmail},
			bson.M{"email": filter.IdentityOrEmail},
		}
	}

	kinds := []string{filter.Kind}
	if filter.Kind == "" {
		kinds = []string{user.KindStudent, user.KindTeacher}
	}
	for _, kind := range kinds {
		var doc userDoc
		err := repo.collection(kind).FindOne(ctx, query).Decode(&doc)
		if err == nil {
			return doc.user(kind), nil
		}
		if err != mongo.ErrNoDocuments {
			return user.User{}, errors.Wrap(err, "fetching user")
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	oid, err := primitive.ObjectIDFromHex(usr.ID)
	if err != nil {
		return user.User{}, user.ErrNotFound
	}

	// only save set fields
	set := bson.M{"updatedAt": usr.UpdatedAt}
	if usr.PasswordHash != nil {
		set["passwordHash"] = usr.PasswordHash
	}
	if usr.RefreshToken != "" {
		set["refreshToken"] = usr.RefreshToken
	}
	if usr.Email != "" {
		set["email"] = usr.Email
	}
	if usr.Group != "" {
		set["group"] = usr.Group
	}

	var doc userDoc
	err = repo.collection(usr.Kind).
		FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$set": set}).
		Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID, Kind: usr.Kind})
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) error {
	oids := make(bson.A, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	filter := bson.M{"_id": bson.M{"$in": oids}}
	for _, coll := range []string{studentsCollection, teachersCollection} {
		if _, err := repo.db.db.Collection(coll).DeleteMany(ctx, filter); err != nil {
			return errors.Wrap(err, "deleting users")
		}
	}
	return nil
}
