package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/catalog"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/database"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	db, err := database.ConnectSQLite(":memory:")
	require.NoError(t, err)
	db.Logger = logger.Default.LogMode(logger.Silent)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func appJSON(bundleID, name, category string, versions ...string) string {
	out := fmt.Sprintf(`{"name": %q, "bundleIdentifier": %q, "developerName": "Example BV", "localizedDescription": "Omschrijving", "iconURL": "https://x.nl/%s.png", "category": %q, "screenshots": ["https://x.nl/%s-1.png"], "appPermissions": {"entitlements": ["com.apple.security.app-sandbox"]}, "versions": [`, name, bundleID, bundleID, category, bundleID)
	for i, v := range versions {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out + "]}"
}

func versionJSON(v, minOS string) string {
	out := fmt.Sprintf(`{"version": %q, "date": "2024-01-01", "downloadURL": "https://x.nl/%s.ipa", "size": 10`, v, v)
	if minOS != "" {
		out += fmt.Sprintf(`, "minOSVersion": %q`, minOS)
	}
	return out + "}"
}

func decodeSource(t *testing.T, id string, apps ...string) *models.Source {
	doc := fmt.Sprintf(`{"name": "Bron %s", "identifier": %q, "sourceURL": "https://x.nl/%s.json", "apps": [`, id, id, id)
	for i, a := range apps {
		if i > 0 {
			doc += ","
		}
		doc += a
	}
	doc += "]}"
	dec := catalog.NewDecoder(catalog.Options{Environment: models.SupportEnvironment{OSVersion: models.OperatingSystemVersion{Major: 16}}})
	src, err := dec.DecodeSource([]byte(doc), "")
	require.NoError(t, err)
	return src
}

func TestSourceRepository_ReplaceAndGet(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewSourceRepository(db)
	ctx := context.Background()

	src := decodeSource(t, "main",
		appJSON("com.example.Delta", "Delta", "games", versionJSON("2.0", "17.0"), versionJSON("1.9", "")),
		appJSON("com.example.Clip", "Clip", "utilities", versionJSON("1.0", "")),
	)
	require.NoError(t, repo.ReplaceSource(ctx, src))

	got, err := repo.GetSourceWithApps(ctx, "main")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Apps, 2)
	assert.Equal(t, "com.example.Delta", got.Apps[0].BundleIdentifier)

	delta := got.Apps[0]
	require.Len(t, delta.Versions, 2)
	assert.Equal(t, "2.0", delta.Versions[0].Version)
	assert.Equal(t, "2.0", delta.Version)
	require.NotNil(t, delta.LatestSupportedVersion)
	assert.Equal(t, "1.9", delta.LatestSupportedVersion.Version)
	assert.Same(t, &delta.Versions[1], delta.LatestSupportedVersion)
	assert.Len(t, delta.Screenshots, 1)
	assert.Len(t, delta.Permissions, 1)

	byURL, err := repo.FindSourceByURL(ctx, "https://x.nl/main.json")
	require.NoError(t, err)
	require.NotNil(t, byURL)
	assert.Equal(t, "main", byURL.ID)

	missing, err := repo.GetSource(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSourceRepository_ReplaceRemovesOldApps(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewSourceRepository(db)
	ctx := context.Background()

	first := decodeSource(t, "main",
		appJSON("com.example.Delta", "Delta", "games", versionJSON("1.0", "")),
		appJSON("com.example.Gone", "Gone", "other", versionJSON("1.0", "")),
	)
	require.NoError(t, repo.ReplaceSource(ctx, first))
	created, err := repo.GetSource(ctx, "main")
	require.NoError(t, err)

	second := decodeSource(t, "main",
		appJSON("com.example.Delta", "Delta", "games", versionJSON("1.1", ""), versionJSON("1.0", "")),
	)
	require.NoError(t, repo.ReplaceSource(ctx, second))

	got, err := repo.GetSourceWithApps(ctx, "main")
	require.NoError(t, err)
	require.Len(t, got.Apps, 1)
	assert.Equal(t, "1.1", got.Apps[0].Version)
	assert.Len(t, got.Apps[0].Versions, 2)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Second)

	var versions int64
	require.NoError(t, db.Model(&models.AppVersion{}).Count(&versions).Error)
	assert.Equal(t, int64(2), versions)
	var screenshots int64
	require.NoError(t, db.Model(&models.AppScreenshot{}).Count(&screenshots).Error)
	assert.Equal(t, int64(1), screenshots)
}

func TestSourceRepository_ReplaceRollsBack(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewSourceRepository(db)
	ctx := context.Background()

	original := decodeSource(t, "main", appJSON("com.example.Delta", "Delta", "games", versionJSON("1.0", "")))
	require.NoError(t, repo.ReplaceSource(ctx, original))

	broken := decodeSource(t, "main",
		appJSON("com.example.Delta", "Delta", "games", versionJSON("2.0", "")),
		appJSON("com.example.Clip", "Clip", "games", versionJSON("1.0", "")),
	)
	// same primary key twice makes the second insert fail
	broken.Apps[1].ID = broken.Apps[0].ID
	require.Error(t, repo.ReplaceSource(ctx, broken))

	got, err := repo.GetSourceWithApps(ctx, "main")
	require.NoError(t, err)
	require.Len(t, got.Apps, 1)
	assert.Equal(t, "1.0", got.Apps[0].Version)
}

func TestSourceRepository_GetAppsFilters(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewSourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSource(ctx, decodeSource(t, "a",
		appJSON("com.example.Delta", "Delta", "games", versionJSON("1.0", "")),
		appJSON("com.example.Clip", "Clip", "utilities", versionJSON("1.0", "")),
	)))
	require.NoError(t, repo.ReplaceSource(ctx, decodeSource(t, "b",
		appJSON("com.example.Delta", "Delta", "games", versionJSON("0.9", "")),
	)))

	ptr := func(v string) *string { return &v }
	tests := []struct {
		name   string
		filter repositories.AppFilter
		expect int
	}{
		{"all", repositories.AppFilter{}, 3},
		{"source", repositories.AppFilter{SourceID: ptr("a")}, 2},
		{"category", repositories.AppFilter{Category: ptr("Games")}, 2},
		{"query", repositories.AppFilter{Query: ptr("clip")}, 1},
		{"query and source", repositories.AppFilter{Query: ptr("delta"), SourceID: ptr("b")}, 1},
	}
	for _, tc := range tests {
		current := tc
		t.Run(current.name, func(t *testing.T) {
			apps, pagination, err := repo.GetApps(ctx, current.filter, 1, 10)
			require.NoError(t, err)
			assert.Len(t, apps, current.expect)
			assert.Equal(t, current.expect, pagination.TotalRecords)
		})
	}

	apps, pagination, err := repo.GetApps(ctx, repositories.AppFilter{}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
	assert.Equal(t, 2, pagination.TotalPages)
	assert.Nil(t, pagination.Next)
	require.NotNil(t, pagination.Previous)
	assert.Equal(t, 1, *pagination.Previous)

	counts, err := repo.AppCounts(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, counts)
}

func TestSourceRepository_GetApp(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewSourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSource(ctx, decodeSource(t, "a", appJSON("com.example.Delta", "Delta", "games", versionJSON("1.0", "")))))
	require.NoError(t, repo.ReplaceSource(ctx, decodeSource(t, "b", appJSON("com.example.Delta", "Delta", "games", versionJSON("0.9", "")))))

	_, err := repo.GetApp(ctx, "com.example.Delta", nil)
	assert.ErrorIs(t, err, repositories.ErrAmbiguousApp)

	source := "b"
	app, err := repo.GetApp(ctx, "com.example.Delta", &source)
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, "0.9", app.Version)
	require.NotNil(t, app.LatestSupportedVersion)

	none, err := repo.GetApp(ctx, "com.example.Unknown", nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	versions, err := repo.GetVersions(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	require.NoError(t, repo.UpdateLatestSupported(ctx, app.ID, nil))
	app, err = repo.GetApp(ctx, "com.example.Delta", &source)
	require.NoError(t, err)
	assert.Nil(t, app.LatestSupportedVersionID)
	assert.Nil(t, app.LatestSupportedVersion)
}

func TestSourceRepository_DeleteAndTouch(t *testing.T) {
	db := setupDB(t)
	repo := repositories.NewSourceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceSource(ctx, decodeSource(t, "a", appJSON("com.example.Delta", "Delta", "games", versionJSON("1.0", "")))))

	now := time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC)
	require.NoError(t, repo.TouchSource(ctx, "a", now))
	src, err := repo.GetSource(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, src.LastRefreshedAt)
	assert.True(t, now.Equal(*src.LastRefreshedAt))

	all, err := repo.AllSources(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.DeleteSource(ctx, "a"))
	assert.ErrorIs(t, repo.DeleteSource(ctx, "a"), gorm.ErrRecordNotFound)

	var apps int64
	require.NoError(t, db.Model(&models.StoreApp{}).Count(&apps).Error)
	assert.Zero(t, apps)

	sources, pagination, err := repo.GetSources(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, sources)
	assert.Equal(t, 0, pagination.TotalRecords)
}
