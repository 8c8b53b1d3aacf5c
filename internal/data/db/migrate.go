package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/data/migrations"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/data/models"
)

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded SQL migrations with goose.
func Migrate(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// AutoMigrateAll creates the schema from the gorm models. Used for SQLite in tests and
// local development where the goose SQL (Postgres dialect) does not apply.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ContentArtifactRow{},
		&models.UserPreferences{},
	)
}
