package membership

import (
	"context"
	"fmt"
	"time"

	"labslot/pkg/model"

	"gorm.io/gorm"
)

type userRow struct {
	ID        string `gorm:"primaryKey;type:text"`
	Name      string `gorm:"type:text;not null"`
	Role      string `gorm:"type:text;not null;index"`
	CreatedAt time.Time
}

func (userRow) TableName() string { return "users" }

type membershipRow struct {
	UserID    string `gorm:"primaryKey;type:text"`
	LabID     string `gorm:"primaryKey;type:text;index"`
	Status    string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (membershipRow) TableName() string { return "lab_memberships" }

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&userRow{}, &membershipRow{})
}

type postgresDirectory struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewPostgresDirectory(db *gorm.DB, timeout time.Duration) Directory {
	return &postgresDirectory{db: db, timeout: timeout}
}

func (d *postgresDirectory) ActivePrivilegedMembers(ctx context.Context, labID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var ids []string
	err := d.db.WithContext(ctx).
		Model(&userRow{}).
		Joins("JOIN lab_memberships ON lab_memberships.user_id = users.id").
		Where("lab_memberships.lab_id = ? AND lab_memberships.status = ?", labID, string(model.MembershipActive)).
		Where("users.role IN ?", privilegedRoleValues()).
		Pluck("users.id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("find lab members: %w", err)
	}
	return ids, nil
}

func (d *postgresDirectory) PrivilegedUsers(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var ids []string
	err := d.db.WithContext(ctx).
		Model(&userRow{}).
		Where("role IN ?", privilegedRoleValues()).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("find privileged users: %w", err)
	}
	return ids, nil
}

func privilegedRoleValues() []string {
	values := make([]string, 0, len(model.PrivilegedRoles))
	for _, r := range model.PrivilegedRoles {
		values = append(values, string(r))
	}
	return values
}
