package membership

import (
	"context"
	"fmt"

	"labslot/pkg/config"
	"labslot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoDirectory struct {
	cfg         *config.Config
	users       *mongo.Collection
	memberships *mongo.Collection
}

func NewMongoDirectory(cfg *config.Config) Directory {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDirectory{
		cfg:         cfg,
		users:       db.Collection(UsersCollection),
		memberships: db.Collection(MembershipsCollection),
	}
}

func (d *mongoDirectory) ActivePrivilegedMembers(ctx context.Context, labID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ReadTimeout)
	defer cancel()

	memberIDs, err := d.memberships.Distinct(ctx, "user_id", bson.M{
		"lab_id": labID,
		"status": model.MembershipActive,
	})
	if err != nil {
		return nil, fmt.Errorf("find lab memberships: %w", err)
	}
	if len(memberIDs) == 0 {
		return nil, nil
	}

	return d.findUserIDs(ctx, bson.M{
		"_id":  bson.M{"$in": memberIDs},
		"role": bson.M{"$in": model.PrivilegedRoles},
	})
}

func (d *mongoDirectory) PrivilegedUsers(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ReadTimeout)
	defer cancel()

	return d.findUserIDs(ctx, bson.M{"role": bson.M{"$in": model.PrivilegedRoles}})
}

func (d *mongoDirectory) findUserIDs(ctx context.Context, filter bson.M) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cursor, err := d.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []model.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids, nil
}
