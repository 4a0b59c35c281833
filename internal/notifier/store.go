package notifier

import (
	"context"
	"time"

	"labslot/pkg/config"
	"labslot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	NotificationsCollection = "Notifications"
	AuditLogsCollection     = "Audit_logs"
)

// Store persists delivered events. Saves are keyed by event id, so a
// redelivered message overwrites its earlier copy instead of duplicating it.
type Store interface {
	SaveNotification(ctx context.Context, n model.Notification) error
	SaveAudit(ctx context.Context, rec model.AuditRecord) error
}

type mongoStore struct {
	notifications *mongo.Collection
	audits        *mongo.Collection
	timeout       time.Duration
}

func NewMongoStore(cfg *config.Config) Store {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoStore{
		notifications: db.Collection(NotificationsCollection),
		audits:        db.Collection(AuditLogsCollection),
		timeout:       cfg.MongoConnTimeout,
	}
}

func (s *mongoStore) SaveNotification(ctx context.Context, n model.Notification) error {
	return s.upsert(ctx, s.notifications, n.ID, n)
}

func (s *mongoStore) SaveAudit(ctx context.Context, rec model.AuditRecord) error {
	return s.upsert(ctx, s.audits, rec.ID, rec)
}

func (s *mongoStore) upsert(ctx context.Context, coll *mongo.Collection, id string, doc any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}
