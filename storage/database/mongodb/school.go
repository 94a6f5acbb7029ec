package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vladapp/backend/core/school"
)

type schoolRepository struct {
	db *DB
}

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

type schoolDoc struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty"`
	Name                 string             `bson:"name"`
	Email                string             `bson:"email"`
	Siret                string             `bson:"siret"`
	Groups               []string           `bson:"groups"`
	Students             []string           `bson:"students"`
	Teachers             []string           `bson:"teachers"`
	ManagedBy            []string           `bson:"managedBy"`
	StripeCustomerID     string             `bson:"stripeCustomerId"`
	StripeSubscriptionID string             `bson:"stripeSubscriptionId"`
	CreatedAt            time.Time          `bson:"createdAt"`
	UpdatedAt            time.Time          `bson:"updatedAt"`
}

func newSchoolDoc(sch school.School) schoolDoc {
	return schoolDoc{
		Name:                 sch.Name,
		Email:                sch.Email,
		Siret:                sch.Siret,
		Groups:               sch.Groups,
		Students:             sch.Students,
		Teachers:             sch.Teachers,
		ManagedBy:            sch.ManagedBy,
		StripeCustomerID:     sch.StripeCustomerID,
		StripeSubscriptionID: sch.StripeSubscriptionID,
		CreatedAt:            sch.CreatedAt,
		UpdatedAt:            sch.UpdatedAt,
	}
}

func (doc schoolDoc) school() school.School {
	return school.School{
		ID:                   doc.ID.Hex(),
		Name:                 doc.Name,
		Email:                doc.Email,
		Siret:                doc.Siret,
		Groups:               doc.Groups,
		Students:             doc.Students,
		Teachers:             doc.Teachers,
		ManagedBy:            doc.ManagedBy,
		StripeCustomerID:     doc.StripeCustomerID,
		StripeSubscriptionID: doc.StripeSubscriptionID,
		CreatedAt:            doc.CreatedAt,
		UpdatedAt:            doc.UpdatedAt,
	}
}

func (repo *schoolRepository) collection() *mongo.Collection {
	return repo.db.db.Collection(schoolsCollection)
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School) (school.School, error) {
	res, err := repo.collection().InsertOne(ctx, newSchoolDoc(sch))
	if err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	sch.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return sch, nil
}

func (repo *schoolRepository) GetSchoolByID(ctx context.Context, id string) (school.School, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return school.School{}, school.ErrNotFound
	}
	var doc schoolDoc
	err = repo.collection().FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return school.School{}, school.ErrNotFound
		}
		return school.School{}, errors.Wrap(err, "fetching school")
	}
	return doc.school(), nil
}

func (repo *schoolRepository) QueryAllSchools(ctx context.Context) ([]school.School, error) {
	cur, err := repo.collection().Find(ctx, bson.M{})
	if err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	defer cur.Close(ctx)

	var schools []school.School
	for cur.Next(ctx) {
		var doc schoolDoc
		if err = cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, "decoding school")
		}
		schools = append(schools, doc.school())
	}
	return schools, errors.Wrap(cur.Err(), "iterating schools")
}

func (repo *schoolRepository) DeleteSchoolsByID(ctx context.Context, ids ...string) error {
	oids := make(bson.A, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	_, err := repo.collection().DeleteMany(ctx, bson.M{"_id": bson.M{"$in": oids}})
	return errors.Wrap(err, "deleting schools")
}
