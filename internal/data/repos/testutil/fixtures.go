package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/data/models"
)

func SeedPreferences(tb testing.TB, ctx context.Context, tx *gorm.DB, userKey, timezone string) *models.UserPreferences {
	tb.Helper()
	p := &models.UserPreferences{
		UserKey:   userKey,
		Timezone:  timezone,
		Language:  "en-US",
		Astrology: datatypes.JSON(`{}`),
		UpdatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed preferences: %v", err)
	}
	return p
}

// SeedArtifactRow inserts a row directly, bypassing the repo. A nil stamp is
// stored as NULL, the shape rows take before the date stamp column existed.
func SeedArtifactRow(tb testing.TB, ctx context.Context, tx *gorm.DB, userKey, kind string, stamp *string, createdAt time.Time) *models.ContentArtifactRow {
	tb.Helper()
	row := &models.ContentArtifactRow{
		ID:             uuid.New(),
		UserKey:        userKey,
		Kind:           kind,
		FullContent:    []byte(`{"text":"seeded"}`),
		BriefContent:   []byte(`{"text":"seeded"}`),
		LanguageCode:   "en-US",
		CreatedAt:      createdAt,
		LocalDateStamp: stamp,
	}
	if err := tx.WithContext(ctx).Create(row).Error; err != nil {
		tb.Fatalf("seed artifact row: %v", err)
	}
	return row
}
