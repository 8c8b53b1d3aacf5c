package user

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/data/models"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/dbctx"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
)

type PreferencesRepo interface {
	Get(dbc dbctx.Context, userKey string) (*models.UserPreferences, error)
	Upsert(dbc dbctx.Context, row *models.UserPreferences) error
	Profile(dbc dbctx.Context, userKey string) (*content.Profile, error)
}

type preferencesRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPreferencesRepo(db *gorm.DB, baseLog *logger.Logger) PreferencesRepo {
	return &preferencesRepo{db: db, log: baseLog.With("repo", "PreferencesRepo")}
}

func (r *preferencesRepo) Get(dbc dbctx.Context, userKey string) (*models.UserPreferences, error) {
	userKey = strings.TrimSpace(userKey)
	if userKey == "" {
		return nil, nil
	}
	var row models.UserPreferences
	if err := dbc.DB(r.db).Where("user_key = ?", userKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, &content.StorageError{Op: "get_preferences", Err: err}
	}
	return &row, nil
}

func (r *preferencesRepo) Upsert(dbc dbctx.Context, row *models.UserPreferences) error {
	if row == nil || strings.TrimSpace(row.UserKey) == "" {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	err := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"timezone",
				"language",
				"oracle_language",
				"display_name",
				"temporary",
				"astrology",
				"updated_at",
			}),
		}).
		Create(row).Error
	if err != nil {
		return &content.StorageError{Op: "upsert_preferences", Err: err}
	}
	return nil
}

// Profile maps the stored preferences onto a content.Profile. A user without a row
// gets the defaults (UTC, en-US).
func (r *preferencesRepo) Profile(dbc dbctx.Context, userKey string) (*content.Profile, error) {
	row, err := r.Get(dbc, userKey)
	if err != nil {
		return nil, err
	}
	p := &content.Profile{UserKey: userKey, Language: content.DefaultLanguage}
	if row == nil {
		return p, nil
	}
	p.Timezone = row.Timezone
	if strings.TrimSpace(row.Language) != "" {
		p.Language = row.Language
	}
	p.OracleLanguage = row.OracleLanguage
	p.DisplayName = row.DisplayName
	p.Temporary = row.Temporary
	if len(row.Astrology) > 0 {
		p.Astrology = []byte(row.Astrology)
	}
	return p, nil
}
