package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	bookingserrors "labslot/internal/bookings/errors"
	pgtx "labslot/pkg/db/postgres"
	apperrors "labslot/pkg/errors"
	"labslot/pkg/interval"
	"labslot/pkg/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type bookingRow struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)"`
	ResourceID string    `gorm:"type:varchar(64);not null;index:idx_bookings_resource_status,priority:1"`
	UserID     string    `gorm:"type:varchar(64);not null;index"`
	StartTime  time.Time `gorm:"not null"`
	EndTime    time.Time `gorm:"not null"`
	Status     string    `gorm:"type:varchar(16);not null;index:idx_bookings_resource_status,priority:2"`
	Notes      string
	CreatedAt  time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime:false"`

	Resolution resolutionColumns `gorm:"embedded;embeddedPrefix:resolution_"`
}

func (bookingRow) TableName() string { return "bookings" }

type resolutionColumns struct {
	Action    string
	ActorKind string
	ActorID   string
	ActorName string
	Reason    string
	At        *time.Time
}

type resourceRow struct {
	ID            string `gorm:"primaryKey;type:varchar(64)"`
	Name          string `gorm:"not null"`
	LabID         string `gorm:"type:varchar(64);index"`
	AllowQueueing bool   `gorm:"not null;default:true"`
}

func (resourceRow) TableName() string { return "resources" }

func toBookingRow(b *model.Booking) *bookingRow {
	row := &bookingRow{
		ID:         b.ID,
		ResourceID: b.ResourceID,
		UserID:     b.UserID,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		Status:     string(b.Status),
		Notes:      b.Notes,
		CreatedAt:  b.CreatedAt,
		UpdatedAt:  b.UpdatedAt,
	}
	if b.Resolution != nil {
		row.Resolution = toResolutionColumns(b.Resolution)
	}
	return row
}

func toResolutionColumns(r *model.Resolution) resolutionColumns {
	at := r.At
	return resolutionColumns{
		Action:    r.Action,
		ActorKind: string(r.ActorKind),
		ActorID:   r.ActorID,
		ActorName: r.ActorName,
		Reason:    r.Reason,
		At:        &at,
	}
}

func (row *bookingRow) toModel() *model.Booking {
	b := &model.Booking{
		ID:         row.ID,
		ResourceID: row.ResourceID,
		UserID:     row.UserID,
		StartTime:  row.StartTime.UTC(),
		EndTime:    row.EndTime.UTC(),
		Status:     model.BookingStatus(row.Status),
		Notes:      row.Notes,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if row.Resolution.Action != "" {
		b.Resolution = &model.Resolution{
			Action:    row.Resolution.Action,
			ActorKind: model.ActorKind(row.Resolution.ActorKind),
			ActorID:   row.Resolution.ActorID,
			ActorName: row.Resolution.ActorName,
			Reason:    row.Resolution.Reason,
		}
		if row.Resolution.At != nil {
			b.Resolution.At = row.Resolution.At.UTC()
		}
	}
	return b
}

// AutoMigrate creates or updates the tables backing the Postgres stores.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&resourceRow{}, &bookingRow{})
}

type postgresBookingRepository struct {
	db        *gorm.DB
	txManager pgtx.TransactionManager
	readTimeout  time.Duration
	writeTimeout time.Duration
	now          func() time.Time
}

func NewPostgresBookingRepository(db *gorm.DB, readTimeout, writeTimeout time.Duration) BookingRepository {
	return newPostgresBookingRepository(db, readTimeout, writeTimeout)
}

func newPostgresBookingRepository(db *gorm.DB, readTimeout, writeTimeout time.Duration) *postgresBookingRepository {
	return &postgresBookingRepository{
		db:           db,
		txManager:    pgtx.NewTransactionManager(db),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		now:          time.Now,
	}
}

func (r *postgresBookingRepository) conn(ctx context.Context, timeout time.Duration) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := withTimeout(ctx, pgtx.InTransaction(ctx), timeout)
	return pgtx.Conn(ctx, r.db), cancel
}

func (r *postgresBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	db, cancel := r.conn(ctx, r.writeTimeout)
	defer cancel()

	if err := prepareForInsert(booking, r.now()); err != nil {
		return err
	}
	if err := db.Create(toBookingRow(booking)).Error; err != nil {
		return sqlError("create booking", err)
	}
	return nil
}

func (r *postgresBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	db, cancel := r.conn(ctx, r.readTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return nil, err
	}

	var row bookingRow
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingserrors.ErrNotFound
		}
		return nil, sqlError("find booking", err)
	}
	return row.toModel(), nil
}

func (r *postgresBookingRepository) FindActive(ctx context.Context, resourceID string, window *interval.Interval) ([]*model.Booking, error) {
	db, cancel := r.conn(ctx, r.readTimeout)
	defer cancel()

	q := db.Where("resource_id = ? AND status IN ?", resourceID, activeStatusValues())
	if window != nil {
		q = q.Where("start_time < ? AND end_time > ?", window.End, window.Start)
	}
	return r.find(q.Order("start_time ASC"))
}

func (r *postgresBookingRepository) FindWaitlisted(ctx context.Context, resourceID string) ([]*model.Booking, error) {
	db, cancel := r.conn(ctx, r.readTimeout)
	defer cancel()

	q := db.Where("resource_id = ? AND status = ?", resourceID, model.StatusWaitlisted).
		Order("created_at ASC").
		Order("id ASC")
	return r.find(q)
}

func (r *postgresBookingRepository) FindByResource(ctx context.Context, resourceID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, error) {
	db, cancel := r.conn(ctx, r.readTimeout)
	defer cancel()

	q := r.resourceScope(db, resourceID, status).
		Order("start_time ASC").
		Order("created_at ASC").
		Limit(limit).
		Offset(int(offset))
	return r.find(q)
}

func (r *postgresBookingRepository) CountByResource(ctx context.Context, resourceID string, status model.BookingStatus) (int64, error) {
	db, cancel := r.conn(ctx, r.readTimeout)
	defer cancel()

	var count int64
	if err := r.resourceScope(db.Model(&bookingRow{}), resourceID, status).Count(&count).Error; err != nil {
		return 0, sqlError("count bookings", err)
	}
	return count, nil
}

func (r *postgresBookingRepository) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, resolution *model.Resolution) error {
	db, cancel := r.conn(ctx, r.writeTimeout)
	defer cancel()

	if err := validateID(id); err != nil {
		return err
	}

	updates := map[string]any{
		"status":     string(to),
		"updated_at": r.now().UTC().Truncate(time.Millisecond),
	}
	if resolution != nil {
		cols := toResolutionColumns(resolution)
		updates["resolution_action"] = cols.Action
		updates["resolution_actor_kind"] = cols.ActorKind
		updates["resolution_actor_id"] = cols.ActorID
		updates["resolution_actor_name"] = cols.ActorName
		updates["resolution_reason"] = cols.Reason
		updates["resolution_at"] = cols.At
	}

	result := db.Model(&bookingRow{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if result.Error != nil {
		return sqlError("update booking status", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := db.Model(&bookingRow{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return sqlError("update booking status", err)
		}
		if count == 0 {
			return bookingserrors.ErrNotFound
		}
		return bookingserrors.ErrStatusChanged
	}
	return nil
}

// LockResource takes a row lock on the resource for the rest of the transaction.
func (r *postgresBookingRepository) LockResource(ctx context.Context, resourceID string) error {
	db, cancel := r.conn(ctx, r.writeTimeout)
	defer cancel()

	var row resourceRow
	err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", resourceID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bookingserrors.ErrResourceNotFound
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", bookingserrors.ErrLockTimeout, resourceID)
		}
		return sqlError("lock resource", err)
	}
	return nil
}

func (r *postgresBookingRepository) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func (r *postgresBookingRepository) resourceScope(db *gorm.DB, resourceID string, status model.BookingStatus) *gorm.DB {
	q := db.Where("resource_id = ?", resourceID)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	return q
}

func (r *postgresBookingRepository) find(q *gorm.DB) ([]*model.Booking, error) {
	var rows []bookingRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, sqlError("find bookings", err)
	}
	bookings := make([]*model.Booking, 0, len(rows))
	for i := range rows {
		bookings = append(bookings, rows[i].toModel())
	}
	return bookings, nil
}

type postgresResourceRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewPostgresResourceRepository(db *gorm.DB, timeout time.Duration) ResourceRepository {
	return &postgresResourceRepository{db: db, timeout: timeout}
}

func (r *postgresResourceRepository) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	ctx, cancel := withTimeout(ctx, pgtx.InTransaction(ctx), r.timeout)
	defer cancel()

	var row resourceRow
	if err := pgtx.Conn(ctx, r.db).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, bookingserrors.ErrResourceNotFound
		}
		return nil, sqlError("find resource", err)
	}
	return &model.Resource{
		ID:            row.ID,
		Name:          row.Name,
		LabID:         row.LabID,
		AllowQueueing: row.AllowQueueing,
	}, nil
}

func activeStatusValues() []string {
	values := make([]string, 0, len(model.ActiveStatuses))
	for _, s := range model.ActiveStatuses {
		values = append(values, string(s))
	}
	return values
}

func sqlError(op string, err error) error {
	if pgtx.IsUnavailable(err) {
		return apperrors.StoreUnavailable("failed to "+op, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
