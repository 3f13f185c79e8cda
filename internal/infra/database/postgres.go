package database

import (
	"io"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/totegamma/jsonkeeper/internal/infra/database/models"
)

// ActivityHeadID is the primary key of the single activity head row.
const ActivityHeadID = 1

func NewPostgres(dsn string, out io.Writer) (*gorm.DB, error) {
	gormLogger := logger.New(
		log.New(out, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             300 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger,
	})
	return db, err
}

func MigratePostgres(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Document{},
		&models.Activity{},
		&models.ActivityHead{},
	)
	if err != nil {
		return err
	}

	return db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.ActivityHead{ID: ActivityHeadID}).Error
}
