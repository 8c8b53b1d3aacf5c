package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserPreferences holds the profile fields content generation depends on.
type UserPreferences struct {
	UserKey        string         `gorm:"column:user_key;type:text;primaryKey"`
	Timezone       string         `gorm:"column:timezone;type:text;not null;default:''"`
	Language       string         `gorm:"column:language;type:text;not null;default:'en-US'"`
	OracleLanguage string         `gorm:"column:oracle_language;type:text;not null;default:''"`
	DisplayName    string         `gorm:"column:display_name;type:text;not null;default:''"`
	Temporary      bool           `gorm:"column:temporary;not null;default:false"`
	Astrology      datatypes.JSON `gorm:"column:astrology;type:jsonb"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;not null"`
}

func (UserPreferences) TableName() string { return "user_preferences" }
