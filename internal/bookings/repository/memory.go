package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	bookingserrors "labslot/internal/bookings/errors"
	apperrors "labslot/pkg/errors"
	"labslot/pkg/interval"
	"labslot/pkg/model"
)

type memoryEntry struct {
	booking model.Booking
	seq     uint64
}

type memoryTx struct {
	held   []string
	staged map[string]*memoryEntry
}

type memoryTxKey struct{}

// MemoryStore is a process-local booking store. Units of work hold a
// per-resource semaphore from LockResource until they finish, and their
// writes become visible to other callers only on commit.
type MemoryStore struct {
	mu        sync.Mutex
	bookings  map[string]*memoryEntry
	resources map[string]model.Resource
	locks     map[string]chan struct{}
	seq       uint64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:  make(map[string]*memoryEntry),
		resources: make(map[string]model.Resource),
		locks:     make(map[string]chan struct{}),
		now:       time.Now,
	}
}

// WithClock replaces the time source used for created_at and updated_at.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) AddResource(resource model.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[resource.ID] = resource
}

func (s *MemoryStore) Resources() ResourceRepository {
	return memoryResources{store: s}
}

func (s *MemoryStore) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	tx := &memoryTx{staged: make(map[string]*memoryEntry)}
	defer s.release(tx)

	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.StoreUnavailable("transaction aborted before commit", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range tx.staged {
		s.bookings[id] = entry
	}
	return nil
}

func (s *MemoryStore) LockResource(ctx context.Context, resourceID string) error {
	tx := txFrom(ctx)
	if tx == nil {
		return nil
	}
	for _, held := range tx.held {
		if held == resourceID {
			return nil
		}
	}

	s.mu.Lock()
	sem, ok := s.locks[resourceID]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[resourceID] = sem
	}
	s.mu.Unlock()

	select {
	case sem <- struct{}{}:
		tx.held = append(tx.held, resourceID)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", bookingserrors.ErrLockTimeout, resourceID)
	}
}

func (s *MemoryStore) release(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tx.held {
		<-s.locks[id]
	}
	tx.held = nil
}

func (s *MemoryStore) Create(ctx context.Context, booking *model.Booking) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := prepareForInsert(booking, s.now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	entry := &memoryEntry{booking: copyBooking(booking), seq: s.seq}
	if tx := txFrom(ctx); tx != nil {
		tx.staged[booking.ID] = entry
	} else {
		s.bookings[booking.ID] = entry
	}
	return nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.lookup(ctx, id)
	if entry == nil {
		return nil, bookingserrors.ErrNotFound
	}
	b := copyBooking(&entry.booking)
	return &b, nil
}

func (s *MemoryStore) FindActive(ctx context.Context, resourceID string, window *interval.Interval) ([]*model.Booking, error) {
	entries, err := s.collect(ctx, func(b *model.Booking) bool {
		if b.ResourceID != resourceID || !b.Status.IsActive() {
			return false
		}
		return window == nil || interval.Overlaps(b.Interval(), *window)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].booking.StartTime.Before(entries[j].booking.StartTime)
	})
	return toBookings(entries), nil
}

func (s *MemoryStore) FindWaitlisted(ctx context.Context, resourceID string) ([]*model.Booking, error) {
	entries, err := s.collect(ctx, func(b *model.Booking) bool {
		return b.ResourceID == resourceID && b.Status == model.StatusWaitlisted
	})
	if err != nil {
		return nil, err
	}
	return toBookings(entries), nil
}

func (s *MemoryStore) FindByResource(ctx context.Context, resourceID string, status model.BookingStatus, limit int, offset int64) ([]*model.Booking, error) {
	entries, err := s.collect(ctx, func(b *model.Booking) bool {
		return b.ResourceID == resourceID && (status == "" || b.Status == status)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].booking.StartTime.Before(entries[j].booking.StartTime)
	})

	if offset >= int64(len(entries)) {
		return []*model.Booking{}, nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return toBookings(entries), nil
}

func (s *MemoryStore) CountByResource(ctx context.Context, resourceID string, status model.BookingStatus) (int64, error) {
	entries, err := s.collect(ctx, func(b *model.Booking) bool {
		return b.ResourceID == resourceID && (status == "" || b.Status == status)
	})
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, from, to model.BookingStatus, resolution *model.Resolution) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.lookup(ctx, id)
	if current == nil {
		return bookingserrors.ErrNotFound
	}
	if current.booking.Status != from {
		return bookingserrors.ErrStatusChanged
	}

	updated := &memoryEntry{booking: copyBooking(&current.booking), seq: current.seq}
	updated.booking.Status = to
	updated.booking.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
	if resolution != nil {
		r := *resolution
		updated.booking.Resolution = &r
	}

	if tx := txFrom(ctx); tx != nil {
		tx.staged[id] = updated
	} else {
		s.bookings[id] = updated
	}
	return nil
}

// lookup returns the entry visible to ctx. Callers hold s.mu.
func (s *MemoryStore) lookup(ctx context.Context, id string) *memoryEntry {
	if tx := txFrom(ctx); tx != nil {
		if entry, ok := tx.staged[id]; ok {
			return entry
		}
	}
	return s.bookings[id]
}

// collect returns the entries visible to ctx that match keep, in arrival order.
func (s *MemoryStore) collect(ctx context.Context, keep func(*model.Booking) bool) ([]*memoryEntry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	visible := make(map[string]*memoryEntry, len(s.bookings))
	for id, entry := range s.bookings {
		visible[id] = entry
	}
	if tx := txFrom(ctx); tx != nil {
		for id, entry := range tx.staged {
			visible[id] = entry
		}
	}

	var entries []*memoryEntry
	for _, entry := range visible {
		if keep(&entry.booking) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].booking.CreatedAt, entries[j].booking.CreatedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return entries[i].seq < entries[j].seq
	})
	return entries, nil
}

type memoryResources struct {
	store *MemoryStore
}

func (r memoryResources) FindByID(ctx context.Context, id string) (*model.Resource, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	resource, ok := r.store.resources[id]
	if !ok {
		return nil, bookingserrors.ErrResourceNotFound
	}
	return &resource, nil
}

func txFrom(ctx context.Context) *memoryTx {
	tx, _ := ctx.Value(memoryTxKey{}).(*memoryTx)
	return tx
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StoreUnavailable("store call abandoned", err)
	}
	return nil
}

func copyBooking(b *model.Booking) model.Booking {
	c := *b
	if b.Resolution != nil {
		r := *b.Resolution
		c.Resolution = &r
	}
	return c
}

func toBookings(entries []*memoryEntry) []*model.Booking {
	bookings := make([]*model.Booking, 0, len(entries))
	for _, entry := range entries {
		b := copyBooking(&entry.booking)
		bookings = append(bookings, &b)
	}
	return bookings
}
