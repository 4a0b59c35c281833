package membership

import (
	"context"
	"sync"

	"labslot/pkg/model"
)

// MemoryDirectory is an in-process Directory for the memory store backend
// and tests.
type MemoryDirectory struct {
	mu          sync.RWMutex
	users       map[string]model.User
	memberships map[string]model.LabMembership // keyed by lab_id + "/" + user_id
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:       make(map[string]model.User),
		memberships: make(map[string]model.LabMembership),
	}
}

func (d *MemoryDirectory) AddUser(u model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// SetMembership inserts or replaces the membership of m.UserID in m.LabID.
func (d *MemoryDirectory) SetMembership(m model.LabMembership) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memberships[m.LabID+"/"+m.UserID] = m
}

func (d *MemoryDirectory) ActivePrivilegedMembers(ctx context.Context, labID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for _, m := range d.memberships {
		if m.LabID != labID || m.Status != model.MembershipActive {
			continue
		}
		if u, ok := d.users[m.UserID]; ok && u.Role.IsPrivileged() {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (d *MemoryDirectory) PrivilegedUsers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var ids []string
	for _, u := range d.users {
		if u.Role.IsPrivileged() {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}
