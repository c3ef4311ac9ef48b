package util

import (
	"fmt"
	"net/url"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
)

func sourceLinks(id string) *models.Links {
	return &models.Links{
		Self: &models.Link{Href: fmt.Sprintf("/v1/sources/%s", url.PathEscape(id))},
		Apps: &models.Link{Href: fmt.Sprintf("/v1/apps?source=%s", url.QueryEscape(id))},
	}
}

func appLinks(app *models.StoreApp) *models.Links {
	bundle := url.PathEscape(app.BundleIdentifier)
	source := url.QueryEscape(app.SourceID)
	return &models.Links{
		Self:     &models.Link{Href: fmt.Sprintf("/v1/apps/%s?source=%s", bundle, source)},
		Versions: &models.Link{Href: fmt.Sprintf("/v1/apps/%s/versions?source=%s", bundle, source)},
		Source:   &models.Link{Href: fmt.Sprintf("/v1/sources/%s", url.PathEscape(app.SourceID))},
	}
}

func ToSourceSummary(src *models.Source, appCount int) models.SourceSummary {
	return models.SourceSummary{
		Identifier:      src.ID,
		Name:            src.Name,
		SourceURL:       src.SourceURL,
		Subtitle:        src.Subtitle,
		IconURL:         src.IconURL,
		AppCount:        appCount,
		LastRefreshedAt: src.LastRefreshedAt,
		Links:           sourceLinks(src.ID),
	}
}

func ToSourceDetail(src *models.Source, env models.SupportEnvironment) *models.SourceDetail {
	apps := make([]models.StoreAppSummary, 0, len(src.Apps))
	for i := range src.Apps {
		apps = append(apps, ToStoreAppSummary(&src.Apps[i], env))
	}
	return &models.SourceDetail{
		SourceSummary: ToSourceSummary(src, len(src.Apps)),
		Description:   src.Description,
		Website:       src.Website,
		TintColor:     src.TintColor,
		Apps:          apps,
	}
}

func ToAppVersionResponse(v *models.AppVersion, env models.SupportEnvironment) models.AppVersionResponse {
	return models.AppVersionResponse{
		Version:              v.Version,
		BuildVersion:         v.Build(),
		LocalizedVersion:     v.LocalizedVersion(),
		Date:                 v.Date,
		LocalizedDescription: v.LocalizedDescription,
		DownloadURL:          v.DownloadURL,
		Size:                 v.Size,
		SHA256:               v.SHA256,
		MinOSVersion:         v.MinOSVersion,
		MaxOSVersion:         v.MaxOSVersion,
		IsSupported:          v.IsSupported(env),
	}
}

func ToStoreAppSummary(app *models.StoreApp, env models.SupportEnvironment) models.StoreAppSummary {
	summary := models.StoreAppSummary{
		BundleIdentifier: app.BundleIdentifier,
		SourceIdentifier: app.SourceID,
		Name:             app.Name,
		DeveloperName:    app.DeveloperName,
		Subtitle:         app.Subtitle,
		IconURL:          app.IconURL,
		TintColor:        app.TintColor,
		Beta:             app.IsBeta,
		Pledge: models.Pledge{
			Required:            app.IsPledgeRequired,
			HiddenWithoutPledge: app.IsHiddenWithoutPledge,
			PrefersCustom:       app.PrefersCustomPledge,
			Amount:              app.PledgeAmount,
			Currency:            app.PledgeCurrency,
		},
		LatestVersion: app.Version,
		Links:         appLinks(app),
	}
	if app.Category != nil {
		summary.Category = *app.Category
	}
	if app.LatestSupportedVersion != nil {
		v := ToAppVersionResponse(app.LatestSupportedVersion, env)
		summary.LatestSupportedVersion = &v
	}
	return summary
}

// ToStoreAppDetail renders screenshots for device, falling back to the other
// device type when the app has none for it.
func ToStoreAppDetail(app *models.StoreApp, env models.SupportEnvironment, device models.DeviceType) *models.StoreAppDetail {
	versions := make([]models.AppVersionResponse, 0, len(app.Versions))
	for i := range app.Versions {
		versions = append(versions, ToAppVersionResponse(&app.Versions[i], env))
	}
	screenshots := app.ScreenshotsFor(device)
	if screenshots == nil {
		screenshots = []models.AppScreenshot{}
	}
	permissions := app.Permissions
	if permissions == nil {
		permissions = []models.AppPermission{}
	}
	return &models.StoreAppDetail{
		StoreAppSummary:      ToStoreAppSummary(app, env),
		LocalizedDescription: app.LocalizedDescription,
		Screenshots:          screenshots,
		Permissions:          permissions,
		Versions:             versions,
	}
}
