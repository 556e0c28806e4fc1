package db

import (
	"fmt"

	"github.com/Singhary/chaty/models"

	"gorm.io/gorm"
)

// Migrate creates the tables backing strings, sets and sorted sets.
func Migrate(orm *gorm.DB) error {
	if err := orm.AutoMigrate(&models.KVEntry{}, &models.KVSetMember{}, &models.KVSortedMember{}); err != nil {
		return fmt.Errorf("failed to migrate kv tables: %w", err)
	}
	return nil
}
