package db

import (
	"errors"
	"fmt"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/comet/internal/access"
	"github.com/suPer8Hu/comet/internal/moderation"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrStorageFatal marks failures that must abort startup.
var ErrStorageFatal = errors.New("storage unavailable")

// Connect opens the database for driver "sqlite" (dsn is a file path or sqlite URI)
// or "mysql" (dsn is a go-sql-driver DSN).
func Connect(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		dialector = gormsqlite.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: unsupported DB_DRIVER=%q", ErrStorageFatal, driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageFatal, driver, err)
	}
	return gdb, nil
}

// Migrate creates the access_control and moderation tables when missing.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&access.Entry{}, &moderation.Record{}); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrStorageFatal, err)
	}
	return nil
}
