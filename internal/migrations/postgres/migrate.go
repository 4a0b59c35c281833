package postgres

import (
	"fmt"

	"labslot/internal/bookings/repository"
	"labslot/internal/membership"

	"gorm.io/gorm"
)

// RunMigration creates or updates every relational table the bookings
// service reads or writes.
func RunMigration(db *gorm.DB) error {
	fmt.Println("🚀 Running labslot Postgres migrations")

	if err := repository.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate booking tables: %w", err)
	}
	if err := membership.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate membership tables: %w", err)
	}

	fmt.Println("✅ All migrations applied successfully.")
	return nil
}
