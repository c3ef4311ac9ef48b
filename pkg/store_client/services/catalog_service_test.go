package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/database"
	httpclient "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/httpclient"
	problem "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/problem"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/repositories"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubRepo implements repositories.SourceRepository for testing; methods
// without a func panic through the embedded nil interface.
type stubRepo struct {
	repositories.SourceRepository
	getApp       func(ctx context.Context, bundleID string, sourceID *string) (*models.StoreApp, error)
	deleteSource func(ctx context.Context, id string) error
}

func (s *stubRepo) GetApp(ctx context.Context, bundleID string, sourceID *string) (*models.StoreApp, error) {
	return s.getApp(ctx, bundleID, sourceID)
}

func (s *stubRepo) DeleteSource(ctx context.Context, id string) error {
	return s.deleteSource(ctx, id)
}

// fakeFetcher serves catalog bodies by URL.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: map[string]string{}, calls: map[string]int{}}
}

func (f *fakeFetcher) set(url, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[url] = body
}

func (f *fakeFetcher) fetch(_ context.Context, url string) (*httpclient.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, http.StatusNotFound)
	}
	return &httpclient.FetchResult{Body: []byte(body), Hash: httpclient.Hash([]byte(body))}, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func version(v, minOS string) string {
	out := fmt.Sprintf(`{"version": %q, "date": "2024-01-01", "downloadURL": "https://x.nl/%s.ipa", "size": 10`, v, v)
	if minOS != "" {
		out += fmt.Sprintf(`, "minOSVersion": %q`, minOS)
	}
	return out + "}"
}

func app(bundleID string, versions ...string) string {
	return fmt.Sprintf(`{"name": %q, "bundleIdentifier": %q, "developerName": "Example BV", "localizedDescription": "Omschrijving", "iconURL": "https://x.nl/icon.png", "screenshots": {"iphone": ["https://x.nl/1.png"], "ipad": ["https://x.nl/2.png"]}, "versions": [%s]}`,
		bundleID, bundleID, strings.Join(versions, ","))
}

func catalogDoc(id string, apps ...string) string {
	return fmt.Sprintf(`{"name": "Bron %s", "identifier": %q, "apps": [%s]}`, id, id, strings.Join(apps, ","))
}

type fixture struct {
	repo    repositories.SourceRepository
	fetcher *fakeFetcher
	svc     *services.CatalogService
}

func newFixture(t *testing.T, env models.SupportEnvironment) *fixture {
	t.Helper()
	db, err := database.ConnectSQLite(":memory:")
	require.NoError(t, err)
	db.Logger = logger.Default.LogMode(logger.Silent)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	f := &fixture{repo: repositories.NewSourceRepository(db), fetcher: newFakeFetcher()}
	f.svc = f.service(env)
	return f
}

func (f *fixture) service(env models.SupportEnvironment) *services.CatalogService {
	c := &clock{now: time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC)}
	return services.NewCatalogService(f.repo, services.Options{
		Environment: env,
		Concurrency: 2,
		Fetch:       f.fetcher.fetch,
		Publish:     func(context.Context, *models.Source) error { return nil },
		Now:         c.Now,
	})
}

func ios(major int) models.SupportEnvironment {
	return models.SupportEnvironment{OSVersion: models.OperatingSystemVersion{Major: major}}
}

func strPtr(v string) *string { return &v }

func requireProblem(t *testing.T, err error, status int) problem.APIError {
	t.Helper()
	var apiErr problem.APIError
	require.True(t, errors.As(err, &apiErr), "expected problem, got %v", err)
	assert.Equal(t, status, apiErr.Status)
	return apiErr
}

func TestAddSource(t *testing.T) {
	f := newFixture(t, ios(16))
	ctx := context.Background()
	f.fetcher.set("https://x.nl/a.json", catalogDoc("a", app("com.example.Delta", version("2.0", "17.0"), version("1.9", "")), app("com.example.Clip", version("1.0", ""))))

	summary, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: " https://x.nl/a.json "})
	require.NoError(t, err)
	assert.Equal(t, "a", summary.Identifier)
	assert.Equal(t, 2, summary.AppCount)
	assert.Equal(t, "https://x.nl/a.json", summary.SourceURL)
	require.NotNil(t, summary.LastRefreshedAt)

	t.Run("same url", func(t *testing.T) {
		_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/a.json"})
		apiErr := requireProblem(t, err, http.StatusConflict)
		require.Len(t, apiErr.InvalidParams, 1)
		assert.Equal(t, "sourceURL", apiErr.InvalidParams[0].Name)
	})

	t.Run("same identifier", func(t *testing.T) {
		f.fetcher.set("https://mirror.x.nl/a.json", catalogDoc("a", app("com.example.Delta", version("2.0", ""))))
		_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://mirror.x.nl/a.json"})
		apiErr := requireProblem(t, err, http.StatusConflict)
		assert.Equal(t, "identifier", apiErr.InvalidParams[0].Name)
	})

	t.Run("not a web url", func(t *testing.T) {
		_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "ftp://x.nl/a.json"})
		apiErr := requireProblem(t, err, http.StatusBadRequest)
		assert.Equal(t, "sourceURL", apiErr.InvalidParams[0].Name)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/missing.json"})
		requireProblem(t, err, http.StatusBadGateway)
	})

	t.Run("invalid catalog", func(t *testing.T) {
		f.fetcher.set("https://x.nl/bad.json", catalogDoc("bad", app("com.example.Bad")))
		_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/bad.json"})
		apiErr := requireProblem(t, err, http.StatusBadRequest)
		require.Len(t, apiErr.InvalidParams, 1)
		assert.Equal(t, "apps[0].versions", apiErr.InvalidParams[0].Name)

		stored, err := f.repo.GetSource(ctx, "bad")
		require.NoError(t, err)
		assert.Nil(t, stored)
	})
}

func declaringDoc(id, declaredURL string) string {
	return fmt.Sprintf(`{"name": "Bron %s", "identifier": %q, "sourceURL": %q, "apps": [%s]}`,
		id, id, declaredURL, app("com.example."+id, version("1.0", "")))
}

func TestAddSource_StoresRegisteredURL(t *testing.T) {
	f := newFixture(t, ios(16))
	ctx := context.Background()
	f.fetcher.set("https://x.nl/a.json", declaringDoc("a", "https://cdn.nl/shared.json"))
	f.fetcher.set("https://x.nl/b.json", declaringDoc("b", "https://cdn.nl/shared.json"))

	_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/a.json"})
	require.NoError(t, err)
	summary, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/b.json"})
	require.NoError(t, err)
	assert.Equal(t, "https://x.nl/b.json", summary.SourceURL)

	stored, err := f.repo.GetSource(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "https://x.nl/a.json", stored.SourceURL)

	_, err = f.svc.RefreshSource(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, f.fetcher.calls["https://x.nl/a.json"])
	assert.Zero(t, f.fetcher.calls["https://cdn.nl/shared.json"])
}

func TestImportDocument_SourceURLTaken(t *testing.T) {
	f := newFixture(t, ios(16))
	ctx := context.Background()
	f.fetcher.set("https://x.nl/a.json", catalogDoc("a", app("com.example.a", version("1.0", ""))))
	_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/a.json"})
	require.NoError(t, err)

	src, err := f.svc.ImportDocument(ctx, []byte(declaringDoc("c", "https://x.nl/a.json")), "")
	assert.Nil(t, src)
	assert.ErrorIs(t, err, services.ErrSourceURLTaken)

	src, err = f.svc.ImportDocument(ctx, []byte(declaringDoc("a", "https://x.nl/a.json")), "")
	require.NoError(t, err)
	assert.Equal(t, "a", src.ID)
}

// duplicateRepo fails every ReplaceSource the way a unique index does when
// another request stored the same source first.
type duplicateRepo struct {
	repositories.SourceRepository
}

func (duplicateRepo) ReplaceSource(context.Context, *models.Source) error {
	return fmt.Errorf("insert source: %w", gorm.ErrDuplicatedKey)
}

func TestAddSource_DuplicateKeyIsConflict(t *testing.T) {
	f := newFixture(t, ios(16))
	f.fetcher.set("https://x.nl/a.json", catalogDoc("a", app("com.example.a", version("1.0", ""))))
	svc := services.NewCatalogService(duplicateRepo{f.repo}, services.Options{
		Environment: ios(16),
		Fetch:       f.fetcher.fetch,
	})

	_, err := svc.AddSource(context.Background(), models.SourcePost{SourceURL: "https://x.nl/a.json"})
	requireProblem(t, err, http.StatusConflict)
}

func TestRefreshSource(t *testing.T) {
	f := newFixture(t, ios(16))
	ctx := context.Background()
	url := "https://x.nl/a.json"
	f.fetcher.set(url, catalogDoc("a", app("com.example.Delta", version("1.0", ""))))

	_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: url})
	require.NoError(t, err)
	before, err := f.repo.GetSource(ctx, "a")
	require.NoError(t, err)

	t.Run("unchanged", func(t *testing.T) {
		summary, err := f.svc.RefreshSource(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.AppCount)
		require.NotNil(t, summary.LastRefreshedAt)
		assert.True(t, summary.LastRefreshedAt.After(*before.LastRefreshedAt))

		after, err := f.repo.GetSource(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, before.Hash, after.Hash)
	})

	t.Run("changed", func(t *testing.T) {
		f.fetcher.set(url, catalogDoc("a", app("com.example.Delta", version("1.1", ""), version("1.0", "")), app("com.example.Clip", version("0.1", ""))))
		summary, err := f.svc.RefreshSource(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 2, summary.AppCount)

		versions, err := f.svc.ListVersions(ctx, &models.AppParams{BundleID: "com.example.Delta"})
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, "1.1", versions[0].Version)
	})

	t.Run("identifier changed", func(t *testing.T) {
		f.fetcher.set(url, catalogDoc("b", app("com.example.Delta", version("1.2", ""))))
		_, err := f.svc.RefreshSource(ctx, "a")
		requireProblem(t, err, http.StatusBadRequest)

		stored, err := f.repo.GetSource(ctx, "b")
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("unreachable", func(t *testing.T) {
		delete(f.fetcher.bodies, url)
		_, err := f.svc.RefreshSource(ctx, "a")
		requireProblem(t, err, http.StatusBadGateway)
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := f.svc.RefreshSource(ctx, "nope")
		requireProblem(t, err, http.StatusNotFound)
	})
}

func TestRefreshAllSources_SkipsBrokenSource(t *testing.T) {
	f := newFixture(t, ios(16))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		url := "https://x.nl/" + id + ".json"
		f.fetcher.set(url, catalogDoc(id, app("com.example."+id, version("1.0", ""))))
		_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: url})
		require.NoError(t, err)
	}

	f.fetcher.set("https://x.nl/a.json", catalogDoc("a", app("com.example.a", version("1.1", ""), version("1.0", ""))))
	f.fetcher.set("https://x.nl/b.json", `{"name": "kapot"}`)

	changed, err := f.svc.RefreshAllSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	b, err := f.svc.RetrieveApp(ctx, &models.AppParams{BundleID: "com.example.b"})
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "1.0", b.LatestVersion)

	changed, err = f.svc.RefreshAllSources(ctx)
	require.NoError(t, err, "a finished run reports no error")
	assert.Zero(t, changed)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.svc.RefreshAllSources(canceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatestSupportedVersion(t *testing.T) {
	f := newFixture(t, ios(16))
	ctx := context.Background()
	f.fetcher.set("https://x.nl/a.json", catalogDoc("a", app("com.example.Delta", version("2.0", "17.0"), version("1.9", "16.0"))))
	_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/a.json"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		os     *string
		expect string
		status int
	}{
		{name: "reference device", expect: "1.9"},
		{name: "newer device", os: strPtr("17.2"), expect: "2.0"},
		{name: "too old", os: strPtr("15"), status: http.StatusNotFound},
		{name: "bad os version", os: strPtr("latest"), status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		current := tc
		t.Run(current.name, func(t *testing.T) {
			v, err := f.svc.LatestSupportedVersion(ctx, &models.AppParams{BundleID: "com.example.Delta", OSVersion: current.os})
			if current.status != 0 {
				requireProblem(t, err, current.status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, current.expect, v.Version)
			assert.True(t, v.IsSupported)
		})
	}

	_, err = f.svc.LatestSupportedVersion(ctx, &models.AppParams{BundleID: "com.example.Unknown"})
	requireProblem(t, err, http.StatusNotFound)
}

func TestLatestSupportedVersion_SelfNeverDowngrades(t *testing.T) {
	env := ios(16)
	env.SelfBundleID = "nl.example.Store"
	env.SelfVersion = "3.0"
	f := newFixture(t, env)
	ctx := context.Background()
	f.fetcher.set("https://x.nl/a.json", catalogDoc("a", app("nl.example.Store", version("3.1", "17.0"), version("2.9", ""))))
	_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/a.json"})
	require.NoError(t, err)

	_, err = f.svc.LatestSupportedVersion(ctx, &models.AppParams{BundleID: "nl.example.Store"})
	requireProblem(t, err, http.StatusNotFound)

	v, err := f.svc.LatestSupportedVersion(ctx, &models.AppParams{BundleID: "nl.example.Store", InstalledVersion: strPtr("2.5")})
	require.NoError(t, err)
	assert.Equal(t, "2.9", v.Version)
}

func TestRecomputeLatestSupported(t *testing.T) {
	f := newFixture(t, ios(16))
	ctx := context.Background()
	f.fetcher.set("https://x.nl/a.json", catalogDoc("a",
		app("com.example.Delta", version("2.0", "17.0"), version("1.9", "")),
		app("com.example.Clip", version("1.0", "")),
	))
	_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/a.json"})
	require.NoError(t, err)

	upgraded := f.service(ios(17))
	updated, err := upgraded.RecomputeLatestSupported(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	updated, err = upgraded.RecomputeLatestSupported(ctx)
	require.NoError(t, err)
	assert.Zero(t, updated)

	detail, err := upgraded.RetrieveApp(ctx, &models.AppParams{BundleID: "com.example.Delta"})
	require.NoError(t, err)
	require.NotNil(t, detail.LatestSupportedVersion)
	assert.Equal(t, "2.0", detail.LatestSupportedVersion.Version)
}

func TestRetrieveApp(t *testing.T) {
	f := newFixture(t, ios(16))
	ctx := context.Background()
	f.fetcher.set("https://x.nl/a.json", catalogDoc("a", app("com.example.Delta", version("1.0", ""))))
	_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/a.json"})
	require.NoError(t, err)

	detail, err := f.svc.RetrieveApp(ctx, &models.AppParams{BundleID: "com.example.Delta", Device: strPtr("iPad")})
	require.NoError(t, err)
	require.Len(t, detail.Screenshots, 1)
	assert.Equal(t, "https://x.nl/2.png", detail.Screenshots[0].ImageURL)

	_, err = f.svc.RetrieveApp(ctx, &models.AppParams{BundleID: "com.example.Delta", Device: strPtr("watch")})
	requireProblem(t, err, http.StatusBadRequest)

	missing, err := f.svc.RetrieveApp(ctx, &models.AppParams{BundleID: "com.example.Unknown"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestExportAndDeleteSource(t *testing.T) {
	f := newFixture(t, ios(16))
	ctx := context.Background()
	f.fetcher.set("https://x.nl/a.json", catalogDoc("a", app("com.example.Delta", version("1.1", ""), version("1.0", ""))))
	_, err := f.svc.AddSource(ctx, models.SourcePost{SourceURL: "https://x.nl/a.json"})
	require.NoError(t, err)

	doc, err := f.svc.ExportSource(ctx, "a")
	require.NoError(t, err)
	require.Len(t, doc.Apps, 1)
	assert.Equal(t, "1.1", doc.Apps[0].Version)
	assert.Len(t, doc.Apps[0].Versions, 2)

	sources, pagination, err := f.svc.ListSources(ctx, &models.ListSourcesParams{Page: 1, PerPage: 10})
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, 1, sources[0].AppCount)
	assert.Equal(t, 1, pagination.TotalRecords)

	require.NoError(t, f.svc.DeleteSource(ctx, "a"))
	requireProblem(t, f.svc.DeleteSource(ctx, "a"), http.StatusNotFound)

	missing, err := f.svc.ExportSource(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindApp_Ambiguous(t *testing.T) {
	repo := &stubRepo{
		getApp: func(ctx context.Context, bundleID string, sourceID *string) (*models.StoreApp, error) {
			return nil, repositories.ErrAmbiguousApp
		},
	}
	svc := services.NewCatalogService(repo, services.Options{Environment: ios(16)})

	_, err := svc.RetrieveApp(context.Background(), &models.AppParams{BundleID: "com.example.Delta"})
	apiErr := requireProblem(t, err, http.StatusBadRequest)
	require.Len(t, apiErr.InvalidParams, 1)
	assert.Equal(t, "source", apiErr.InvalidParams[0].Name)
}

func TestDeleteSource_RepositoryError(t *testing.T) {
	repo := &stubRepo{
		deleteSource: func(ctx context.Context, id string) error {
			return errors.New("database weg")
		},
	}
	svc := services.NewCatalogService(repo, services.Options{})

	err := svc.DeleteSource(context.Background(), "a")
	require.Error(t, err)
	var apiErr problem.APIError
	assert.False(t, errors.As(err, &apiErr))
}
