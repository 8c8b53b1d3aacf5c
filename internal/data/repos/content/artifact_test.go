package content_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/data/models"
	repo "github.com/wsabol/psychic-chat-poc-sub001/internal/data/repos/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/data/repos/testutil"
	domain "github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/dbctx"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/sealbox"
)

var base = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newRepo(t *testing.T, secret string) (repo.ArtifactRepo, *gorm.DB) {
	t.Helper()
	gdb := testutil.SQLite(t)
	sealer, err := sealbox.New(secret)
	require.NoError(t, err)
	return repo.NewArtifactRepo(gdb, sealer, testutil.Logger(t)), gdb
}

func artifact(userKey string, kind domain.Kind, variant, stamp string, createdAt time.Time) *domain.Artifact {
	return &domain.Artifact{
		UserKey:        userKey,
		Kind:           kind,
		Variant:        variant,
		FullContent:    json.RawMessage(`{"text":"full ` + stamp + `"}`),
		BriefContent:   json.RawMessage(`{"text":"brief"}`),
		LanguageCode:   "en-US",
		CreatedAt:      createdAt,
		LocalDateStamp: stamp,
	}
}

func countRows(t *testing.T, gdb *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Model(&models.ContentArtifactRow{}).Count(&n).Error)
	return n
}

func TestArtifactRepo_GetLatestReturnsNewestRow(t *testing.T) {
	r, gdb := newRepo(t, "")
	dbc := dbctx.New(t.Context())

	require.NoError(t, r.Put(dbc, artifact("u1", domain.KindDailyHoroscope, "", "2024-03-14", base.Add(-24*time.Hour))))
	require.NoError(t, r.Put(dbc, artifact("u1", domain.KindDailyHoroscope, "", "2024-03-15", base)))
	require.NoError(t, r.Put(dbc, artifact("u1", domain.KindMoonPhase, "full", "2024-03-10", base.Add(time.Hour))))

	got, err := r.GetLatest(dbc, domain.NewKey("u1", domain.KindDailyHoroscope, ""))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2024-03-15", got.LocalDateStamp)
	assert.JSONEq(t, `{"text":"full 2024-03-15"}`, string(got.FullContent))
	assert.True(t, got.CreatedAt.Equal(base))

	// history is kept, never overwritten
	assert.Equal(t, int64(3), countRows(t, gdb))

	moon, err := r.GetLatest(dbc, domain.NewKey("u1", domain.KindMoonPhase, "full"))
	require.NoError(t, err)
	require.NotNil(t, moon)
	assert.Equal(t, "2024-03-10", moon.LocalDateStamp)
}

func TestArtifactRepo_GetLatestMissing(t *testing.T) {
	r, _ := newRepo(t, "")
	got, err := r.GetLatest(dbctx.New(t.Context()), domain.NewKey("nobody", domain.KindLunarNodes, ""))
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = r.GetLatest(dbctx.New(t.Context()), domain.NewKey("", domain.KindLunarNodes, ""))
	assert.ErrorIs(t, err, domain.ErrInvalidKey)
}

func TestArtifactRepo_PutAssignsIDAndTimestamp(t *testing.T) {
	r, _ := newRepo(t, "")
	a := artifact("u1", domain.KindCosmicWeather, "", "", time.Time{})
	require.NoError(t, r.Put(dbctx.New(t.Context()), a))
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", a.ID.String())
	assert.False(t, a.CreatedAt.IsZero())

	got, err := r.GetLatest(dbctx.New(t.Context()), a.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.LocalDateStamp, "an empty stamp is stored as NULL")
}

func TestArtifactRepo_SealsContentAtRest(t *testing.T) {
	r, gdb := newRepo(t, "test-key")
	dbc := dbctx.New(t.Context())
	a := artifact("u1", domain.KindDailyHoroscope, "", "2024-03-15", base)
	a.FullContentLang = json.RawMessage(`{"text":"hola"}`)
	a.LanguageCode = "es-ES"
	require.NoError(t, r.Put(dbc, a))

	var row models.ContentArtifactRow
	require.NoError(t, gdb.First(&row).Error)
	assert.True(t, sealbox.IsSealed(row.FullContent))
	assert.True(t, sealbox.IsSealed(row.FullContentLang))
	assert.Nil(t, row.BriefContentLang)

	got, err := r.GetLatest(dbc, a.Key())
	require.NoError(t, err)
	require.NotNil(t, got)
	full, _ := got.ContentFor("es-ES")
	assert.JSONEq(t, `{"text":"hola"}`, string(full))
}

func TestArtifactRepo_PlaintextRowsReadableAfterKeyConfigured(t *testing.T) {
	gdb := testutil.SQLite(t)
	dbc := dbctx.New(t.Context())
	plain, _ := sealbox.New("")
	keyed, _ := sealbox.New("later-key")

	require.NoError(t, repo.NewArtifactRepo(gdb, plain, testutil.Logger(t)).
		Put(dbc, artifact("u1", domain.KindLunarNodes, "", "2024-03-15", base)))

	got, err := repo.NewArtifactRepo(gdb, keyed, testutil.Logger(t)).
		GetLatest(dbc, domain.NewKey("u1", domain.KindLunarNodes, ""))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2024-03-15", got.LocalDateStamp)
}

func TestArtifactRepo_UnreadableRowIsAMiss(t *testing.T) {
	gdb := testutil.SQLite(t)
	dbc := dbctx.New(t.Context())
	k1, _ := sealbox.New("key-one")
	k2, _ := sealbox.New("key-two")

	require.NoError(t, repo.NewArtifactRepo(gdb, k1, testutil.Logger(t)).
		Put(dbc, artifact("u1", domain.KindLunarNodes, "", "2024-03-15", base)))

	got, err := repo.NewArtifactRepo(gdb, k2, testutil.Logger(t)).
		GetLatest(dbc, domain.NewKey("u1", domain.KindLunarNodes, ""))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestArtifactRepo_PurgeByUser(t *testing.T) {
	r, gdb := newRepo(t, "")
	dbc := dbctx.New(t.Context())
	for i, k := range domain.AllKinds() {
		variant := ""
		if k.RequiresVariant() {
			variant = "full"
		}
		require.NoError(t, r.Put(dbc, artifact("u1", k, variant, "2024-03-15", base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, r.Put(dbc, artifact("u2", domain.KindDailyHoroscope, "", "2024-03-15", base)))

	n, err := r.PurgeByUser(dbc, "u1", []domain.Kind{domain.KindDailyHoroscope})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.PurgeByUser(dbc, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(len(domain.AllKinds())-1), n)

	for _, k := range domain.AllKinds() {
		variant := ""
		if k.RequiresVariant() {
			variant = "full"
		}
		got, err := r.GetLatest(dbc, domain.NewKey("u1", k, variant))
		require.NoError(t, err)
		assert.Nil(t, got, "kind %s", k)
	}
	assert.Equal(t, int64(1), countRows(t, gdb))

	n, err = r.PurgeByUser(dbc, "  ", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArtifactRepo_PurgeStale(t *testing.T) {
	r, gdb := newRepo(t, "")
	dbc := dbctx.New(t.Context())

	require.NoError(t, r.Put(dbc, artifact("u1", domain.KindDailyHoroscope, "", "", base.Add(-48*time.Hour))))
	require.NoError(t, r.Put(dbc, artifact("u2", domain.KindDailyHoroscope, "", "2024-03-13", base.Add(-48*time.Hour))))
	require.NoError(t, r.Put(dbc, artifact("u3", domain.KindDailyHoroscope, "", "", base)))
	testutil.SeedArtifactRow(t, t.Context(), gdb, "u4", string(domain.KindDailyHoroscope), nil, base.Add(-72*time.Hour))

	n, err := r.PurgeStale(dbc, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(2), countRows(t, gdb))

	got, err := r.GetLatest(dbc, domain.NewKey("u3", domain.KindDailyHoroscope, ""))
	require.NoError(t, err)
	assert.NotNil(t, got, "recent unstamped rows survive until the grace period passes")
}

func TestArtifactRepo_PruneHistoryKeepsCurrentRow(t *testing.T) {
	r, gdb := newRepo(t, "")
	dbc := dbctx.New(t.Context())
	key := domain.NewKey("u1", domain.KindWeeklyHoroscope, "")

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Put(dbc, artifact("u1", key.Kind, "", "2024-03-1"+string(rune('0'+i)), base.Add(time.Duration(i-10)*24*time.Hour))))
	}
	require.NoError(t, r.Put(dbc, artifact("u9", domain.KindWeeklyHoroscope, "", "2024-01-01", base.Add(-60*24*time.Hour))))

	n, err := r.PruneHistory(dbc, base)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, int64(2), countRows(t, gdb))

	got, err := r.GetLatest(dbc, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2024-03-12", got.LocalDateStamp)
}

func TestArtifactRepo_StorageErrorsCarrySQLState(t *testing.T) {
	gdb, mock := testutil.Mock(t)
	r := repo.NewArtifactRepo(gdb, nil, testutil.Logger(t))
	dbc := dbctx.New(t.Context())

	mock.ExpectQuery(`SELECT \* FROM "content_artifact"`).
		WillReturnError(&pgconn.PgError{Code: "57P01", Message: "terminating connection"})
	_, err := r.GetLatest(dbc, domain.NewKey("u1", domain.KindDailyHoroscope, ""))
	require.Error(t, err)
	var se *domain.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "get_latest", se.Op)
	assert.Equal(t, "57P01", se.Code)

	mock.ExpectExec(`DELETE FROM "content_artifact"`).
		WillReturnError(errors.New("connection refused"))
	_, err = r.PurgeStale(dbc, base)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "purge_stale", se.Op)
	assert.Empty(t, se.Code)

	mock.ExpectExec(`DELETE FROM "content_artifact"`).
		WillReturnResult(sqlmock.NewResult(0, 4))
	n, err := r.PurgeByUser(dbc, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	require.NoError(t, mock.ExpectationsWereMet())
}
