package handler

import (
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/catalog"
	problem "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/problem"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/util"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/services"
	"github.com/gin-gonic/gin"
)

// CatalogController binds HTTP requests to the CatalogService
type CatalogController struct {
	Service *services.CatalogService
}

// NewCatalogController creates a new controller
func NewCatalogController(s *services.CatalogService) *CatalogController {
	return &CatalogController{Service: s}
}

const (
	defaultPerPage = 10
	maxPerPage     = 100
	// keeps (page-1)*perPage well inside int range
	maxPage = 1_000_000
)

func pageDefaults(page, perPage *int) {
	switch {
	case *page < 1:
		*page = 1
	case *page > maxPage:
		*page = maxPage
	}
	switch {
	case *perPage < 1:
		*perPage = defaultPerPage
	case *perPage > maxPerPage:
		*perPage = maxPerPage
	}
}

// ListSources handles GET /sources
func (c *CatalogController) ListSources(ctx *gin.Context, p *models.ListSourcesParams) ([]models.SourceSummary, error) {
	pageDefaults(&p.Page, &p.PerPage)
	p.BaseURL = ctx.FullPath()
	sources, pagination, err := c.Service.ListSources(ctx.Request.Context(), p)
	if err != nil {
		return nil, err
	}
	util.SetPaginationHeaders(ctx.Request, ctx.Header, pagination)
	return sources, nil
}

// RetrieveSource handles GET /sources/:id
func (c *CatalogController) RetrieveSource(ctx *gin.Context, params *models.SourceParams) (*models.SourceDetail, error) {
	src, err := c.Service.RetrieveSource(ctx.Request.Context(), params.Id)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, problem.NewNotFound("Source not found", problem.InvalidParam{Name: "id", Reason: params.Id + " is onbekend"})
	}
	return src, nil
}

// ExportSource handles GET /sources/:id/catalog
func (c *CatalogController) ExportSource(ctx *gin.Context, params *models.SourceParams) (*catalog.Document, error) {
	doc, err := c.Service.ExportSource(ctx.Request.Context(), params.Id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, problem.NewNotFound("Source not found", problem.InvalidParam{Name: "id", Reason: params.Id + " is onbekend"})
	}
	return doc, nil
}

// CreateSource handles POST /sources
func (c *CatalogController) CreateSource(ctx *gin.Context, body *models.SourcePost) (*models.SourceSummary, error) {
	return c.Service.AddSource(ctx.Request.Context(), *body)
}

// RefreshSource handles PUT /sources/:id/refresh
func (c *CatalogController) RefreshSource(ctx *gin.Context, params *models.SourceParams) (*models.SourceSummary, error) {
	return c.Service.RefreshSource(ctx.Request.Context(), params.Id)
}

// DeleteSource handles DELETE /sources/:id
func (c *CatalogController) DeleteSource(ctx *gin.Context, params *models.SourceParams) error {
	return c.Service.DeleteSource(ctx.Request.Context(), params.Id)
}

// ListApps handles GET /apps
func (c *CatalogController) ListApps(ctx *gin.Context, p *models.ListAppsParams) ([]models.StoreAppSummary, error) {
	pageDefaults(&p.Page, &p.PerPage)
	p.BaseURL = ctx.FullPath()
	apps, pagination, err := c.Service.ListApps(ctx.Request.Context(), p)
	if err != nil {
		return nil, err
	}
	util.SetPaginationHeaders(ctx.Request, ctx.Header, pagination)
	return apps, nil
}

// RetrieveApp handles GET /apps/:bundleId
func (c *CatalogController) RetrieveApp(ctx *gin.Context, p *models.AppParams) (*models.StoreAppDetail, error) {
	app, err := c.Service.RetrieveApp(ctx.Request.Context(), p)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, problem.NewNotFound("App not found", problem.InvalidParam{Name: "bundleId", Reason: p.BundleID + " is onbekend"})
	}
	return app, nil
}

// ListVersions handles GET /apps/:bundleId/versions
func (c *CatalogController) ListVersions(ctx *gin.Context, p *models.AppParams) ([]models.AppVersionResponse, error) {
	return c.Service.ListVersions(ctx.Request.Context(), p)
}

// LatestSupportedVersion handles GET /apps/:bundleId/versions/latest
func (c *CatalogController) LatestSupportedVersion(ctx *gin.Context, p *models.AppParams) (*models.AppVersionResponse, error) {
	return c.Service.LatestSupportedVersion(ctx.Request.Context(), p)
}
