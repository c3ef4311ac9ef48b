package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/catalog"
	httpclient "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/httpclient"
	problem "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/problem"
	util "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/util"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/metrics"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/repositories"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/services/typesense"
	"github.com/developer-overheid-nl/don-app-store/pkg/tools"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// ErrIdentifierChanged is returned when a refreshed catalog names a different
// identifier than the stored source.
var ErrIdentifierChanged = errors.New("catalog identifier changed")

// ErrSourceURLTaken is returned when a catalog would be stored under a URL
// that another source is registered with.
var ErrSourceURLTaken = errors.New("source url is registered by another source")

const (
	defaultConcurrency = 2
	perSourceTimeout   = 2 * time.Minute
)

type Options struct {
	Language    string
	Environment models.SupportEnvironment
	// Concurrency bounds RefreshAllSources; defaults to 2.
	Concurrency int
	// Fetch downloads a catalog; defaults to httpclient.FetchSource.
	Fetch func(ctx context.Context, sourceURL string) (*httpclient.FetchResult, error)
	// Publish indexes a stored source; defaults to typesense.PublishSource.
	Publish func(ctx context.Context, src *models.Source) error
	// WaitForPublish makes a store block until indexing finished. Short lived
	// processes such as the import CLI set it.
	WaitForPublish bool
	Now            func() time.Time
}

// CatalogService beheert bronnen en de apps die ze aanbieden.
type CatalogService struct {
	repo        repositories.SourceRepository
	lang        string
	env         models.SupportEnvironment
	concurrency int
	fetch       func(ctx context.Context, sourceURL string) (*httpclient.FetchResult, error)
	publish     func(ctx context.Context, src *models.Source) error
	waitPublish bool
	now         func() time.Time
}

func NewCatalogService(repo repositories.SourceRepository, opts Options) *CatalogService {
	s := &CatalogService{
		repo:        repo,
		lang:        opts.Language,
		env:         opts.Environment,
		concurrency: opts.Concurrency,
		fetch:       opts.Fetch,
		publish:     opts.Publish,
		waitPublish: opts.WaitForPublish,
		now:         opts.Now,
	}
	if s.concurrency < 1 {
		s.concurrency = defaultConcurrency
	}
	if s.fetch == nil {
		s.fetch = httpclient.FetchSource
	}
	if s.publish == nil {
		s.publish = typesense.PublishSource
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *CatalogService) decoder() *catalog.Decoder {
	return catalog.NewDecoder(catalog.Options{Language: s.lang, Environment: s.env})
}

// Decode parses a catalog without storing it.
func (s *CatalogService) Decode(data []byte, sourceURL string) (*models.Source, error) {
	src, err := s.decoder().DecodeSource(data, sourceURL)
	if err != nil {
		var decErr *catalog.DecodeError
		if errors.As(err, &decErr) {
			metrics.RecordDecodeError(decErr.Key)
		}
		return nil, err
	}
	return src, nil
}

// ImportDocument decodes data and replaces whatever was stored for the
// source it describes.
func (s *CatalogService) ImportDocument(ctx context.Context, data []byte, sourceURL string) (*models.Source, error) {
	src, err := s.Decode(data, sourceURL)
	if err != nil {
		return nil, err
	}
	other, err := s.repo.FindSourceByURL(ctx, src.SourceURL)
	if err != nil {
		return nil, err
	}
	if other != nil && other.ID != src.ID {
		return nil, fmt.Errorf("%w: %s belongs to %s", ErrSourceURLTaken, src.SourceURL, other.ID)
	}
	return src, s.store(ctx, src, httpclient.Hash(data))
}

func (s *CatalogService) store(ctx context.Context, src *models.Source, hash string) error {
	now := s.now()
	src.Hash = hash
	src.LastRefreshedAt = &now
	if err := s.repo.ReplaceSource(ctx, src); err != nil {
		return fmt.Errorf("opslaan van bron %s mislukt: %w", src.ID, err)
	}
	metrics.SetStoredApps(src.ID, len(src.Apps))

	done := tools.DispatchAndWait(context.Background(), "typesense", func(ctx context.Context) error {
		err := s.publish(ctx, src)
		if errors.Is(err, typesense.ErrDisabled) {
			return nil
		}
		return err
	})
	if s.waitPublish {
		<-done
	}
	return nil
}

// AddSource registers a new catalog by URL.
func (s *CatalogService) AddSource(ctx context.Context, body models.SourcePost) (*models.SourceSummary, error) {
	started := time.Now()
	sourceURL := strings.TrimSpace(body.SourceURL)
	if u, err := url.Parse(sourceURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, problem.NewBadRequest("ongeldige sourceURL",
			problem.InvalidParam{Name: "sourceURL", Reason: "Moet een geldige http(s) URL zijn"})
	}

	if existing, err := s.repo.FindSourceByURL(ctx, sourceURL); err != nil {
		return nil, problem.NewInternalServerError("kan bron niet ophalen: " + err.Error())
	} else if existing != nil {
		return nil, problem.NewConflict(fmt.Sprintf("bron met sourceURL %s bestaat al", sourceURL),
			problem.InvalidParam{Name: "sourceURL", Reason: "is al geregistreerd als " + existing.ID})
	}

	res, err := s.fetch(ctx, sourceURL)
	if err != nil {
		return nil, problem.NewBadGateway(err.Error())
	}
	src, err := s.Decode(res.Body, sourceURL)
	if err != nil {
		metrics.RecordRefresh("unregistered", metrics.OutcomeFailed, started)
		return nil, decodeProblem(err)
	}

	if existing, err := s.repo.GetSource(ctx, src.ID); err != nil {
		return nil, problem.NewInternalServerError("kan bron niet ophalen: " + err.Error())
	} else if existing != nil {
		return nil, problem.NewConflict(fmt.Sprintf("bron %s bestaat al", src.ID),
			problem.InvalidParam{Name: "identifier", Reason: "wordt al gebruikt door " + existing.SourceURL})
	}

	if err := s.store(ctx, src, res.Hash); err != nil {
		metrics.RecordRefresh(src.ID, metrics.OutcomeFailed, started)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, problem.NewConflict(fmt.Sprintf("bron %s of sourceURL %s bestaat al", src.ID, sourceURL))
		}
		return nil, problem.NewInternalServerError(err.Error())
	}
	metrics.RecordRefresh(src.ID, metrics.OutcomeUpdated, started)
	log.Printf("[catalog] source=%s added apps=%d", src.ID, len(src.Apps))

	summary := util.ToSourceSummary(src, len(src.Apps))
	return &summary, nil
}

// RefreshSource fetches a stored source again. An unchanged document only
// bumps LastRefreshedAt.
func (s *CatalogService) RefreshSource(ctx context.Context, id string) (*models.SourceSummary, error) {
	src, err := s.repo.GetSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, problem.NewNotFound("Source not found")
	}

	if _, err := s.refresh(ctx, src); err != nil {
		var decErr *catalog.DecodeError
		switch {
		case errors.As(err, &decErr), errors.Is(err, ErrIdentifierChanged):
			return nil, decodeProblem(err)
		case errors.Is(err, errFetch):
			return nil, problem.NewBadGateway(err.Error())
		default:
			return nil, err
		}
	}

	counts, err := s.repo.AppCounts(ctx, []string{src.ID})
	if err != nil {
		return nil, err
	}
	refreshed, err := s.repo.GetSource(ctx, id)
	if err != nil || refreshed == nil {
		return nil, err
	}
	summary := util.ToSourceSummary(refreshed, counts[src.ID])
	return &summary, nil
}

var errFetch = errors.New("fetch failed")

// refresh reports whether the stored catalog changed.
func (s *CatalogService) refresh(ctx context.Context, current *models.Source) (bool, error) {
	started := time.Now()
	res, err := s.fetch(ctx, current.SourceURL)
	if err != nil {
		metrics.RecordRefresh(current.ID, metrics.OutcomeFailed, started)
		return false, fmt.Errorf("%w: %v", errFetch, err)
	}

	if res.Hash == current.Hash {
		if err := s.repo.TouchSource(ctx, current.ID, s.now()); err != nil {
			return false, err
		}
		metrics.RecordRefresh(current.ID, metrics.OutcomeUnchanged, started)
		return false, nil
	}

	src, err := s.Decode(res.Body, current.SourceURL)
	if err != nil {
		metrics.RecordRefresh(current.ID, metrics.OutcomeFailed, started)
		return false, err
	}
	if src.ID != current.ID {
		metrics.RecordRefresh(current.ID, metrics.OutcomeFailed, started)
		return false, fmt.Errorf("%w: %s is now %s", ErrIdentifierChanged, current.ID, src.ID)
	}
	src.CreatedAt = current.CreatedAt
	if err := s.store(ctx, src, res.Hash); err != nil {
		metrics.RecordRefresh(current.ID, metrics.OutcomeFailed, started)
		return false, err
	}
	metrics.RecordRefresh(current.ID, metrics.OutcomeUpdated, started)
	return true, nil
}

// RefreshAllSources refreshes every stored source and returns how many
// changed. A broken source is logged and skipped.
func (s *CatalogService) RefreshAllSources(ctx context.Context) (int, error) {
	sources, err := s.repo.AllSources(ctx)
	if err != nil {
		return 0, err
	}

	sem := semaphore.NewWeighted(int64(s.concurrency))
	g, gctx := errgroup.WithContext(ctx)
	changed := make([]bool, len(sources))

	for i := range sources {
		i, src := i, sources[i]
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			refreshCtx, cancel := context.WithTimeout(gctx, perSourceTimeout)
			defer cancel()

			ok, err := s.refresh(refreshCtx, &src)
			if err != nil {
				log.Printf("[refresh] skip source=%s: %v", src.ID, err)
				return nil
			}
			changed[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	count := 0
	for _, c := range changed {
		if c {
			count++
		}
	}
	return count, ctx.Err()
}

// RecomputeLatestSupported reselects the stored latest supported version of
// every app for the configured environment, e.g. after CATALOG_OS_VERSION
// changed. It returns how many apps were updated.
func (s *CatalogService) RecomputeLatestSupported(ctx context.Context) (int, error) {
	sources, err := s.repo.AllSources(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, meta := range sources {
		src, err := s.repo.GetSourceWithApps(ctx, meta.ID)
		if err != nil {
			return updated, err
		}
		if src == nil {
			continue
		}
		for i := range src.Apps {
			app := &src.Apps[i]
			selected := models.SelectLatestSupportedVersion(app.BundleIdentifier, app.Versions, s.env)
			var next *string
			if selected != nil {
				id := selected.ID
				next = &id
			}
			if equalIDs(app.LatestSupportedVersionID, next) {
				continue
			}
			if err := s.repo.UpdateLatestSupported(ctx, app.ID, next); err != nil {
				return updated, err
			}
			updated++
		}
	}
	return updated, nil
}

func equalIDs(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *CatalogService) ListSources(ctx context.Context, p *models.ListSourcesParams) ([]models.SourceSummary, models.Pagination, error) {
	sources, pagination, err := s.repo.GetSources(ctx, p.Page, p.PerPage)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	ids := make([]string, len(sources))
	for i := range sources {
		ids[i] = sources[i].ID
	}
	counts, err := s.repo.AppCounts(ctx, ids)
	if err != nil {
		return nil, models.Pagination{}, err
	}

	dtos := make([]models.SourceSummary, len(sources))
	for i := range sources {
		dtos[i] = util.ToSourceSummary(&sources[i], counts[sources[i].ID])
	}
	return dtos, pagination, nil
}

func (s *CatalogService) RetrieveSource(ctx context.Context, id string) (*models.SourceDetail, error) {
	src, err := s.repo.GetSourceWithApps(ctx, id)
	if err != nil || src == nil {
		return nil, err
	}
	return util.ToSourceDetail(src, s.env), nil
}

// ExportSource renders the stored catalog, legacy flattened keys included.
func (s *CatalogService) ExportSource(ctx context.Context, id string) (*catalog.Document, error) {
	src, err := s.repo.GetSourceWithApps(ctx, id)
	if err != nil || src == nil {
		return nil, err
	}
	doc := catalog.ToDocument(src)
	return &doc, nil
}

func (s *CatalogService) DeleteSource(ctx context.Context, id string) error {
	err := s.repo.DeleteSource(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return problem.NewNotFound("Source not found")
	}
	if err != nil {
		return err
	}
	metrics.ForgetSource(id)
	log.Printf("[catalog] source=%s deleted", id)
	return nil
}

func (s *CatalogService) ListApps(ctx context.Context, p *models.ListAppsParams) ([]models.StoreAppSummary, models.Pagination, error) {
	filter := repositories.AppFilter{SourceID: p.Source, Category: p.Category, Query: p.Query}
	apps, pagination, err := s.repo.GetApps(ctx, filter, p.Page, p.PerPage)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	dtos := make([]models.StoreAppSummary, len(apps))
	for i := range apps {
		dtos[i] = util.ToStoreAppSummary(&apps[i], s.env)
	}
	return dtos, pagination, nil
}

// RetrieveApp returns nil when the app does not exist.
func (s *CatalogService) RetrieveApp(ctx context.Context, p *models.AppParams) (*models.StoreAppDetail, error) {
	app, env, err := s.findApp(ctx, p)
	if err != nil || app == nil {
		return nil, err
	}
	device := models.DeviceTypeIPhone
	if p.Device != nil && strings.TrimSpace(*p.Device) != "" {
		device = models.DeviceType(strings.ToLower(strings.TrimSpace(*p.Device)))
		if device != models.DeviceTypeIPhone && device != models.DeviceTypeIPad {
			return nil, problem.NewBadRequest("onbekend apparaat",
				problem.InvalidParam{Name: "device", Reason: "moet iphone of ipad zijn"})
		}
	}
	return util.ToStoreAppDetail(app, env, device), nil
}

func (s *CatalogService) ListVersions(ctx context.Context, p *models.AppParams) ([]models.AppVersionResponse, error) {
	app, env, err := s.findApp(ctx, p)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, problem.NewNotFound("App not found")
	}
	versions, err := s.repo.GetVersions(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	out := make([]models.AppVersionResponse, len(versions))
	for i := range versions {
		out[i] = util.ToAppVersionResponse(&versions[i], env)
	}
	return out, nil
}

// LatestSupportedVersion returns the version a device described by p should
// install.
func (s *CatalogService) LatestSupportedVersion(ctx context.Context, p *models.AppParams) (*models.AppVersionResponse, error) {
	app, env, err := s.findApp(ctx, p)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, problem.NewNotFound("App not found")
	}
	if app.LatestSupportedVersion == nil {
		return nil, problem.NewNotFound(fmt.Sprintf("geen ondersteunde versie van %s voor iOS %s", app.BundleIdentifier, env.OSVersion))
	}
	v := util.ToAppVersionResponse(app.LatestSupportedVersion, env)
	return &v, nil
}

// findApp loads the app and, when the request overrides the reference
// device, reselects its latest supported version in memory.
func (s *CatalogService) findApp(ctx context.Context, p *models.AppParams) (*models.StoreApp, models.SupportEnvironment, error) {
	env, err := s.environmentFor(p)
	if err != nil {
		return nil, env, err
	}
	app, err := s.repo.GetApp(ctx, p.BundleID, p.Source)
	if errors.Is(err, repositories.ErrAmbiguousApp) {
		return nil, env, problem.NewBadRequest(err.Error(),
			problem.InvalidParam{Name: "source", Reason: "is verplicht voor deze app"})
	}
	if err != nil || app == nil {
		return nil, env, err
	}
	if env != s.env {
		app.UpdateLatestSupportedVersion(env)
	}
	return app, env, nil
}

func (s *CatalogService) environmentFor(p *models.AppParams) (models.SupportEnvironment, error) {
	env := s.env
	if p.OSVersion != nil && strings.TrimSpace(*p.OSVersion) != "" {
		v, err := models.ParseOSVersion(*p.OSVersion)
		if err != nil {
			return env, problem.NewBadRequest(err.Error(),
				problem.InvalidParam{Name: "osVersion", Reason: "verwacht major[.minor[.patch]]"})
		}
		env.OSVersion = v
	}
	if p.InstalledVersion != nil && strings.TrimSpace(*p.InstalledVersion) != "" {
		env.SelfVersion = strings.TrimSpace(*p.InstalledVersion)
	}
	return env, nil
}

func decodeProblem(err error) error {
	var decErr *catalog.DecodeError
	if errors.As(err, &decErr) {
		name := decErr.Location()
		if name == "" {
			name = "body"
		}
		return problem.NewBadRequest("catalogus is ongeldig: "+err.Error(),
			problem.InvalidParam{Name: name, Reason: decErr.Err.Error()})
	}
	return problem.NewBadRequest(err.Error())
}
