package content

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/data/models"
	domain "github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/dbctx"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/sealbox"
)

// ArtifactRepo is the relational store of generated content. Rows are only ever
// inserted; the current artifact of a key is its most recently created row.
type ArtifactRepo interface {
	GetLatest(dbc dbctx.Context, key domain.Key) (*domain.Artifact, error)
	Put(dbc dbctx.Context, a *domain.Artifact) error
	PurgeByUser(dbc dbctx.Context, userKey string, kinds []domain.Kind) (int64, error)
	PurgeStale(dbc dbctx.Context, before time.Time) (int64, error)
	PruneHistory(dbc dbctx.Context, before time.Time) (int64, error)
}

type artifactRepo struct {
	db     *gorm.DB
	sealer *sealbox.Sealer
	log    *logger.Logger
}

func NewArtifactRepo(db *gorm.DB, sealer *sealbox.Sealer, baseLog *logger.Logger) ArtifactRepo {
	return &artifactRepo{db: db, sealer: sealer, log: baseLog.With("repo", "ArtifactRepo")}
}

func (r *artifactRepo) GetLatest(dbc dbctx.Context, key domain.Key) (*domain.Artifact, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	var row models.ContentArtifactRow
	err := dbc.DB(r.db).
		Where("user_key = ? AND kind = ? AND variant = ?", key.UserKey, string(key.Kind), key.Variant).
		Order("created_at DESC").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("get_latest", err)
	}
	a, err := r.fromRow(&row)
	if err != nil {
		// Unreadable ciphertext (rotated key) is treated as a miss so the key regenerates.
		r.log.Warn("Discarding unreadable artifact", "key", key.String(), "artifact_id", row.ID, "error", err)
		return nil, nil
	}
	return a, nil
}

func (r *artifactRepo) Put(dbc dbctx.Context, a *domain.Artifact) error {
	if a == nil {
		return storageErr("put", errors.New("nil artifact"))
	}
	if err := a.Key().Validate(); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	} else {
		a.CreatedAt = a.CreatedAt.UTC()
	}
	row, err := r.toRow(a)
	if err != nil {
		return storageErr("seal", err)
	}
	if err := dbc.DB(r.db).Create(row).Error; err != nil {
		return storageErr("put", err)
	}
	return nil
}

// PurgeByUser deletes every row of userKey whose kind is in kinds (all kinds when empty).
func (r *artifactRepo) PurgeByUser(dbc dbctx.Context, userKey string, kinds []domain.Kind) (int64, error) {
	userKey = strings.TrimSpace(userKey)
	if userKey == "" {
		return 0, nil
	}
	if len(kinds) == 0 {
		kinds = domain.AllKinds()
	}
	res := dbc.DB(r.db).
		Where("user_key = ? AND kind IN ?", userKey, domain.KindStrings(kinds)).
		Delete(&models.ContentArtifactRow{})
	if res.Error != nil {
		return 0, storageErr("purge_by_user", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeStale deletes rows without a usable local date stamp created before before.
// Such rows can never be judged fresh.
func (r *artifactRepo) PurgeStale(dbc dbctx.Context, before time.Time) (int64, error) {
	res := dbc.DB(r.db).
		Where("(local_date_stamp IS NULL OR local_date_stamp = '') AND created_at < ?", before.UTC()).
		Delete(&models.ContentArtifactRow{})
	if res.Error != nil {
		return 0, storageErr("purge_stale", res.Error)
	}
	return res.RowsAffected, nil
}

// PruneHistory deletes superseded rows older than before. The newest row of every key
// is kept regardless of age.
func (r *artifactRepo) PruneHistory(dbc dbctx.Context, before time.Time) (int64, error) {
	res := dbc.DB(r.db).Exec(`
DELETE FROM content_artifact
WHERE created_at < ?
  AND EXISTS (
    SELECT 1 FROM content_artifact newer
    WHERE newer.user_key = content_artifact.user_key
      AND newer.kind = content_artifact.kind
      AND newer.variant = content_artifact.variant
      AND newer.created_at > content_artifact.created_at
  )`, before.UTC())
	if res.Error != nil {
		return 0, storageErr("prune_history", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *artifactRepo) toRow(a *domain.Artifact) (*models.ContentArtifactRow, error) {
	aad := []byte(a.Key().String())
	row := &models.ContentArtifactRow{
		ID:           a.ID,
		UserKey:      a.UserKey,
		Kind:         string(a.Kind),
		Variant:      a.Variant,
		LanguageCode: a.LanguageCode,
		CreatedAt:    a.CreatedAt,
		AttemptToken: a.AttemptToken,
	}
	if stamp := strings.TrimSpace(a.LocalDateStamp); stamp != "" {
		row.LocalDateStamp = &stamp
	}
	var err error
	if row.FullContent, err = r.sealer.Seal(a.FullContent, aad); err != nil {
		return nil, err
	}
	if row.BriefContent, err = r.sealer.Seal(a.BriefContent, aad); err != nil {
		return nil, err
	}
	if row.FullContentLang, err = r.sealer.Seal(a.FullContentLang, aad); err != nil {
		return nil, err
	}
	if row.BriefContentLang, err = r.sealer.Seal(a.BriefContentLang, aad); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *artifactRepo) fromRow(row *models.ContentArtifactRow) (*domain.Artifact, error) {
	a := &domain.Artifact{
		ID:           row.ID,
		UserKey:      row.UserKey,
		Kind:         domain.Kind(row.Kind),
		Variant:      row.Variant,
		LanguageCode: row.LanguageCode,
		CreatedAt:    row.CreatedAt.UTC(),
		AttemptToken: row.AttemptToken,
	}
	if row.LocalDateStamp != nil {
		a.LocalDateStamp = *row.LocalDateStamp
	}
	aad := []byte(a.Key().String())
	var err error
	if a.FullContent, err = r.sealer.Open(row.FullContent, aad); err != nil {
		return nil, err
	}
	if a.BriefContent, err = r.sealer.Open(row.BriefContent, aad); err != nil {
		return nil, err
	}
	if a.FullContentLang, err = r.sealer.Open(row.FullContentLang, aad); err != nil {
		return nil, err
	}
	if a.BriefContentLang, err = r.sealer.Open(row.BriefContentLang, aad); err != nil {
		return nil, err
	}
	return a, nil
}

func storageErr(op string, err error) error {
	se := &domain.StorageError{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		se.Code = pgErr.Code
	}
	return se
}
