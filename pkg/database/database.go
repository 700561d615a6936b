package database

import (
	"log"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Init opens the Postgres connection from DATABASE_URL.
// TranslateError is on so unique-index violations surface as
// gorm.ErrDuplicatedKey instead of driver-specific errors.
func Init() *gorm.DB {
	dsn := os.Getenv("DATABASE_URL")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("failed to connect database:", err)
	}
	return db
}
