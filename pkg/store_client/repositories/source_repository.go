package repositories

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAmbiguousApp = errors.New("bundle identifier is listed by more than one source")

// AppFilter narrows GetApps; nil fields are ignored.
type AppFilter struct {
	SourceID *string
	Category *string
	Query    *string
}

type SourceRepository interface {
	ReplaceSource(ctx context.Context, src *models.Source) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	GetSourceWithApps(ctx context.Context, id string) (*models.Source, error)
	FindSourceByURL(ctx context.Context, sourceURL string) (*models.Source, error)
	GetSources(ctx context.Context, page, perPage int) ([]models.Source, models.Pagination, error)
	AllSources(ctx context.Context) ([]models.Source, error)
	AppCounts(ctx context.Context, sourceIDs []string) (map[string]int, error)
	TouchSource(ctx context.Context, id string, refreshedAt time.Time) error
	DeleteSource(ctx context.Context, id string) error

	GetApps(ctx context.Context, filter AppFilter, page, perPage int) ([]models.StoreApp, models.Pagination, error)
	GetApp(ctx context.Context, bundleID string, sourceID *string) (*models.StoreApp, error)
	GetVersions(ctx context.Context, appID string) ([]models.AppVersion, error)
	UpdateLatestSupported(ctx context.Context, appID string, versionID *string) error
}

type sourceRepository struct {
	db *gorm.DB
}

func NewSourceRepository(db *gorm.DB) SourceRepository {
	return &sourceRepository{db: db}
}

// ReplaceSource stores src and its full app graph, replacing whatever was
// stored for the source before. Everything happens in one transaction.
func (r *sourceRepository) ReplaceSource(ctx context.Context, src *models.Source) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Source
		err := tx.Select("created_at").First(&existing, "id = ?", src.ID).Error
		switch {
		case err == nil:
			src.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		if err := tx.Omit(clause.Associations).Save(src).Error; err != nil {
			return fmt.Errorf("save source %s: %w", src.ID, err)
		}
		if err := deleteChildren(tx, src.ID); err != nil {
			return err
		}

		for i := range src.Apps {
			app := &src.Apps[i]
			app.SourceID = src.ID
			if err := tx.Omit(clause.Associations).Create(app).Error; err != nil {
				return fmt.Errorf("save app %s: %w", app.BundleIdentifier, err)
			}
			if len(app.Versions) > 0 {
				if err := tx.Create(&app.Versions).Error; err != nil {
					return fmt.Errorf("save versions of %s: %w", app.BundleIdentifier, err)
				}
			}
			if len(app.Screenshots) > 0 {
				if err := tx.Create(&app.Screenshots).Error; err != nil {
					return fmt.Errorf("save screenshots of %s: %w", app.BundleIdentifier, err)
				}
			}
			if len(app.Permissions) > 0 {
				if err := tx.Create(&app.Permissions).Error; err != nil {
					return fmt.Errorf("save permissions of %s: %w", app.BundleIdentifier, err)
				}
			}
		}
		return nil
	})
}

func deleteChildren(tx *gorm.DB, sourceID string) error {
	for _, model := range []any{&models.AppPermission{}, &models.AppScreenshot{}, &models.AppVersion{}, &models.StoreApp{}} {
		if err := tx.Where("source_id = ?", sourceID).Delete(model).Error; err != nil {
			return fmt.Errorf("delete %T of source %s: %w", model, sourceID, err)
		}
	}
	return nil
}

func (r *sourceRepository) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var src models.Source
	err := r.db.WithContext(ctx).First(&src, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *sourceRepository) GetSourceWithApps(ctx context.Context, id string) (*models.Source, error) {
	var src models.Source
	err := withAppGraph(r.db.WithContext(ctx), "Apps.").
		Preload("Apps", bySortIndex).
		First(&src, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for i := range src.Apps {
		linkLatestSupported(&src.Apps[i])
	}
	return &src, nil
}

func (r *sourceRepository) FindSourceByURL(ctx context.Context, sourceURL string) (*models.Source, error) {
	var src models.Source
	err := r.db.WithContext(ctx).Where("source_url = ?", sourceURL).First(&src).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *sourceRepository) GetSources(ctx context.Context, page, perPage int) ([]models.Source, models.Pagination, error) {
	db := r.db.WithContext(ctx).Model(&models.Source{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, models.Pagination{}, err
	}

	var sources []models.Source
	if err := db.Order("name ASC, id ASC").Limit(perPage).Offset((page - 1) * perPage).Find(&sources).Error; err != nil {
		return nil, models.Pagination{}, err
	}
	return sources, newPagination(page, perPage, int(total)), nil
}

func (r *sourceRepository) AllSources(ctx context.Context) ([]models.Source, error) {
	var sources []models.Source
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&sources).Error; err != nil {
		return nil, err
	}
	return sources, nil
}

func (r *sourceRepository) AppCounts(ctx context.Context, sourceIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		SourceID string
		Total    int
	}
	err := r.db.WithContext(ctx).Model(&models.StoreApp{}).
		Select("source_id, COUNT(*) AS total").
		Where("source_id IN ?", sourceIDs).
		Group("source_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.SourceID] = row.Total
	}
	return counts, nil
}

func (r *sourceRepository) TouchSource(ctx context.Context, id string, refreshedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Source{}).
		Where("id = ?", id).
		Update("last_refreshed_at", refreshedAt).Error
}

func (r *sourceRepository) DeleteSource(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, id); err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Source{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *sourceRepository) GetApps(ctx context.Context, filter AppFilter, page, perPage int) ([]models.StoreApp, models.Pagination, error) {
	db := r.db.WithContext(ctx).Model(&models.StoreApp{})
	if filter.SourceID != nil && strings.TrimSpace(*filter.SourceID) != "" {
		db = db.Where("source_id = ?", strings.TrimSpace(*filter.SourceID))
	}
	if filter.Category != nil && strings.TrimSpace(*filter.Category) != "" {
		db = db.Where("category = ?", strings.ToLower(strings.TrimSpace(*filter.Category)))
	}
	if filter.Query != nil && strings.TrimSpace(*filter.Query) != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(*filter.Query)) + "%"
		db = db.Where("LOWER(name) LIKE ? OR LOWER(bundle_identifier) LIKE ? OR LOWER(developer_name) LIKE ?", like, like, like)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, models.Pagination{}, err
	}

	var apps []models.StoreApp
	err := db.Preload("Versions", bySortIndex).
		Order("source_id ASC, sort_index ASC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		Find(&apps).Error
	if err != nil {
		return nil, models.Pagination{}, err
	}
	for i := range apps {
		linkLatestSupported(&apps[i])
	}
	return apps, newPagination(page, perPage, int(total)), nil
}

// GetApp returns nil when no source lists bundleID and ErrAmbiguousApp when
// several do and sourceID is nil.
func (r *sourceRepository) GetApp(ctx context.Context, bundleID string, sourceID *string) (*models.StoreApp, error) {
	db := withAppGraph(r.db.WithContext(ctx), "").Where("bundle_identifier = ?", bundleID)
	if sourceID != nil && strings.TrimSpace(*sourceID) != "" {
		db = db.Where("source_id = ?", strings.TrimSpace(*sourceID))
	}

	var apps []models.StoreApp
	if err := db.Order("source_id ASC").Limit(2).Find(&apps).Error; err != nil {
		return nil, err
	}
	switch len(apps) {
	case 0:
		return nil, nil
	case 1:
		linkLatestSupported(&apps[0])
		return &apps[0], nil
	default:
		return nil, ErrAmbiguousApp
	}
}

func (r *sourceRepository) GetVersions(ctx context.Context, appID string) ([]models.AppVersion, error) {
	var versions []models.AppVersion
	err := r.db.WithContext(ctx).
		Where("app_id = ?", appID).
		Order("sort_index ASC").
		Find(&versions).Error
	return versions, err
}

func (r *sourceRepository) UpdateLatestSupported(ctx context.Context, appID string, versionID *string) error {
	return r.db.WithContext(ctx).Model(&models.StoreApp{}).
		Where("id = ?", appID).
		Update("latest_supported_version_id", versionID).Error
}

func bySortIndex(db *gorm.DB) *gorm.DB {
	return db.Order("sort_index ASC")
}

func withAppGraph(db *gorm.DB, prefix string) *gorm.DB {
	return db.
		Preload(prefix+"Versions", bySortIndex).
		Preload(prefix+"Screenshots", bySortIndex).
		Preload(prefix+"Permissions", bySortIndex)
}

// linkLatestSupported points LatestSupportedVersion into app.Versions.
func linkLatestSupported(app *models.StoreApp) {
	app.LatestSupportedVersion = nil
	if app.LatestSupportedVersionID == nil {
		return
	}
	for i := range app.Versions {
		if app.Versions[i].ID == *app.LatestSupportedVersionID {
			app.LatestSupportedVersion = &app.Versions[i]
			return
		}
	}
}

func newPagination(page, perPage, total int) models.Pagination {
	totalPages := 0
	if perPage > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(perPage)))
	}
	pagination := models.Pagination{
		CurrentPage:    page,
		RecordsPerPage: perPage,
		TotalPages:     totalPages,
		TotalRecords:   total,
	}
	if page < totalPages {
		next := page + 1
		pagination.Next = &next
	}
	if page > 1 {
		prev := page - 1
		pagination.Previous = &prev
	}
	return pagination
}
