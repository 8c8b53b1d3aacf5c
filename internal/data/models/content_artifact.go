package models

import (
	"time"

	"github.com/google/uuid"
)

// ContentArtifactRow is the persisted form of a content.Artifact. Content columns hold
// sealbox output (ciphertext, or plaintext JSON when no key is configured).
type ContentArtifactRow struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserKey          string    `gorm:"column:user_key;type:text;not null;index:idx_content_artifact_lookup,priority:1"`
	Kind             string    `gorm:"column:kind;type:text;not null;index:idx_content_artifact_lookup,priority:2"`
	Variant          string    `gorm:"column:variant;type:text;not null;default:'';index:idx_content_artifact_lookup,priority:3"`
	FullContent      []byte    `gorm:"column:full_content"`
	BriefContent     []byte    `gorm:"column:brief_content"`
	FullContentLang  []byte    `gorm:"column:full_content_lang"`
	BriefContentLang []byte    `gorm:"column:brief_content_lang"`
	LanguageCode     string    `gorm:"column:language_code;type:text;not null;default:''"`
	CreatedAt        time.Time `gorm:"column:created_at;not null;index:idx_content_artifact_lookup,priority:4,sort:desc"`
	LocalDateStamp   *string   `gorm:"column:local_date_stamp;type:text"`
	AttemptToken     string    `gorm:"column:attempt_token;type:text;not null;default:''"`
}

func (ContentArtifactRow) TableName() string { return "content_artifact" }
