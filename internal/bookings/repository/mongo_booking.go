package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "labslot/internal/bookings/errors"
	"labslot/pkg/config"
	mongotx "labslot/pkg/db/mongo"
	apperrors "labslot/pkg/errors"
	"labslot/pkg/interval"
	"labslot/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName      = "Bookings"
	LockCollectionName  = "Resource_locks"
	ResourcesCollection = "Resources"
)

type mongoBookingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	locks      *mongo.Collection
	txManager  mongotx.TransactionManager
	now        func() time.Time
}

func NewMongoBookingRepository(cfg *config.Config) BookingRepository {
	return newMongoBookingRepository(cfg, cfg.Client.Mongo.Database(cfg.MongoDatabaseName))
}

func newMongoBookingRepository(cfg *config.Config, db *mongo.Database) *mongoBookingRepository {
	return &mongoBookingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		locks:      db.Collection(LockCollectionName),
		txManager:  mongotx.NewTransactionManager(db.Client()),
		now:        time.Now,
	}
}

func (r *mongoBookingRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, mongo.SessionFromContext(ctx) != nil, timeout)
}

func (r *mongoBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := prepareForInsert(booking, r.now()); err != nil {
		return err
	}
	if _, err := r.collection.InsertOne(ctx, booking); err != nil {
		return storeError("create booking", err)
	}
	return nil
}

func (r *mongoBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return nil, err
	}

	var booking model.Booking
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&booking)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, storeError("find booking", err)
	}

	return &booking, nil
}

func (r *mongoBookingRepository) FindActive(ctx context.Context, resourceID string, window *interval.Interval) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id": resourceID,
		"status":      bson.M{"$in": model.ActiveStatuses},
	}
	if window != nil {
		filter["start_time"] = bson.M{"$lt": window.End}
		filter["end_time"] = bson.M{"$gt": window.Start}
	}

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *mongoBookingRepository) FindWaitlisted(ctx context.Context, resourceID string) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"resource_id": resourceID,
		"status":      model.StatusWaitlisted,
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	return r.find(ctx, filter, opts)
}

func (r *mongoBookingRepository) FindByResource(ctx context.Context, resourceID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "start_time", Value: 1}, {Key: "created_at", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)
	return r.find(ctx, resourceFilter(resourceID, status), opts)
}

func (r *mongoBookingRepository) CountByResource(ctx context.Context, resourceID string, status model.BookingStatus) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, resourceFilter(resourceID, status))
	if err != nil {
		return 0, storeError("count bookings", err)
	}
	return count, nil
}

func (r *mongoBookingRepository) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, resolution *model.Resolution) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return err
	}

	set := bson.M{
		"status":     to,
		"updated_at": r.now().UTC().Truncate(time.Millisecond),
	}
	if resolution != nil {
		set["resolution"] = resolution
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set})
	if err != nil {
		return storeError("update booking status", err)
	}
	if result.MatchedCount == 0 {
		count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return storeError("update booking status", err)
		}
		if count == 0 {
			return bookingserrors.ErrNotFound
		}
		return bookingserrors.ErrStatusChanged
	}
	return nil
}

// LockResource bumps the resource's lock document. Two transactions writing
// the same document conflict, so the driver aborts and retries one of them.
func (r *mongoBookingRepository) LockResource(ctx context.Context, resourceID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	var lock model.ResourceLock
	err := r.locks.FindOneAndUpdate(ctx,
		bson.M{"_id": resourceID},
		bson.M{
			"$inc": bson.M{"version": 1},
			"$set": bson.M{"updated_at": r.now().UTC()},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&lock)
	if err != nil {
		return storeError("lock resource", err)
	}
	r.cfg.Log.Debug("Resource locked", "resource_id", lock.ID, "version", lock.Version)
	return nil
}

func (r *mongoBookingRepository) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func (r *mongoBookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Booking, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError("find bookings", err)
	}
	defer cursor.Close(ctx)

	bookings := []*model.Booking{}
	if err = cursor.All(ctx, &bookings); err != nil {
		return nil, storeError("decode bookings", err)
	}
	return bookings, nil
}

func resourceFilter(resourceID string, status model.BookingStatus) bson.M {
	filter := bson.M{"resource_id": resourceID}
	if status != "" {
		filter["status"] = status
	}
	return filter
}

func storeError(op string, err error) error {
	if mongotx.IsUnavailable(err) {
		return apperrors.StoreUnavailable("failed to "+op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
