package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ErrNoVersions is returned by SetVersions for an empty version list.
var ErrNoVersions = errors.New("app must have at least one version")

type StoreCategory string

const (
	CategoryDeveloper     StoreCategory = "developer"
	CategoryEntertainment StoreCategory = "entertainment"
	CategoryGames         StoreCategory = "games"
	CategoryLifestyle     StoreCategory = "lifestyle"
	CategoryOther         StoreCategory = "other"
	CategoryPhotoVideo    StoreCategory = "photo-video"
	CategorySocial        StoreCategory = "social"
	CategoryUtilities     StoreCategory = "utilities"
)

var knownCategories = map[StoreCategory]struct{}{
	CategoryDeveloper:     {},
	CategoryEntertainment: {},
	CategoryGames:         {},
	CategoryLifestyle:     {},
	CategoryOther:         {},
	CategoryPhotoVideo:    {},
	CategorySocial:        {},
	CategoryUtilities:     {},
}

// StoreApp is an app listed by a Source.
type StoreApp struct {
	ID               string `gorm:"column:id;primaryKey" json:"id"`
	SourceID         string `gorm:"column:source_id;uniqueIndex:uniq_source_app;not null" json:"sourceId"`
	BundleIdentifier string `gorm:"column:bundle_identifier;uniqueIndex:uniq_source_app;index;not null" json:"bundleIdentifier"`
	Name             string `gorm:"column:name;not null" json:"name"`
	DeveloperName    string `gorm:"column:developer_name" json:"developerName"`

	Subtitle             *string `gorm:"column:subtitle" json:"subtitle,omitempty"`
	LocalizedDescription string  `gorm:"column:localized_description;type:text" json:"localizedDescription"`
	IconURL              string  `gorm:"column:icon_url;not null" json:"iconURL"`
	TintColor            *string `gorm:"column:tint_color;size:6" json:"tintColor,omitempty"`
	Category             *string `gorm:"column:category;index" json:"category,omitempty"`
	IsBeta               bool    `gorm:"column:is_beta" json:"beta"`
	SortIndex            int     `gorm:"column:sort_index" json:"-"`

	IsPledgeRequired      bool           `gorm:"column:is_pledge_required" json:"isPledgeRequired"`
	IsHiddenWithoutPledge bool           `gorm:"column:is_hidden_without_pledge" json:"isHiddenWithoutPledge"`
	PrefersCustomPledge   bool           `gorm:"column:prefers_custom_pledge" json:"prefersCustomPledge"`
	PledgeAmount          *float64       `gorm:"column:pledge_amount" json:"pledgeAmount,omitempty"`
	PledgeCurrency        *string        `gorm:"column:pledge_currency;size:3" json:"pledgeCurrency,omitempty"`
	PledgeTiers           datatypes.JSON `gorm:"column:pledge_tiers" json:"pledgeTiers,omitempty"`

	Screenshots []AppScreenshot `gorm:"foreignKey:AppID" json:"screenshots,omitempty"`
	Permissions []AppPermission `gorm:"foreignKey:AppID" json:"permissions,omitempty"`
	Versions    []AppVersion    `gorm:"foreignKey:AppID" json:"versions,omitempty"`

	LatestSupportedVersionID *string     `gorm:"column:latest_supported_version_id" json:"-"`
	LatestSupportedVersion   *AppVersion `gorm:"foreignKey:LatestSupportedVersionID" json:"latestSupportedVersion,omitempty"`

	// Legacy flattened fields, always equal to Versions[0].
	Version            string    `gorm:"column:version" json:"version"`
	VersionDate        time.Time `gorm:"column:version_date" json:"versionDate"`
	VersionDescription *string   `gorm:"column:version_description;type:text" json:"versionDescription,omitempty"`
	DownloadURL        string    `gorm:"column:download_url" json:"downloadURL"`
	Size               int64     `gorm:"column:size" json:"size"`

	CreatedAt time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"-"`
}

// StoreCategory maps the raw category onto a known category.
func (a *StoreApp) StoreCategory() (StoreCategory, bool) {
	if a.Category == nil {
		return "", false
	}
	c := StoreCategory(strings.ToLower(*a.Category))
	_, ok := knownCategories[c]
	return c, ok
}

// LatestVersion is the first version in catalog order.
func (a *StoreApp) LatestVersion() *AppVersion {
	if len(a.Versions) == 0 {
		return nil
	}
	return &a.Versions[0]
}

// SetVersions replaces the versions of the app, refreshes the legacy flattened
// fields and reselects the latest supported version. The app is left
// untouched when versions is empty.
func (a *StoreApp) SetVersions(versions []AppVersion, env SupportEnvironment) error {
	if len(versions) == 0 {
		return ErrNoVersions
	}
	for i := range versions {
		versions[i].AppID = a.ID
		versions[i].AppBundleID = a.BundleIdentifier
		versions[i].SourceID = a.SourceID
		versions[i].SortIndex = i
	}
	a.Versions = versions

	latest := versions[0]
	a.Version = latest.Version
	a.VersionDate = latest.Date
	a.VersionDescription = latest.LocalizedDescription
	a.DownloadURL = latest.DownloadURL
	a.Size = latest.Size

	a.UpdateLatestSupportedVersion(env)
	return nil
}

// UpdateLatestSupportedVersion points LatestSupportedVersion at the first
// version env supports, or clears it when there is none.
func (a *StoreApp) UpdateLatestSupportedVersion(env SupportEnvironment) {
	selected := SelectLatestSupportedVersion(a.BundleIdentifier, a.Versions, env)
	if selected == nil {
		a.LatestSupportedVersion = nil
		a.LatestSupportedVersionID = nil
		return
	}
	id := selected.ID
	a.LatestSupportedVersion = selected
	a.LatestSupportedVersionID = &id
}

// SelectLatestSupportedVersion walks versions in catalog order. For the store's
// own app, versions older than the installed one are skipped so it is never
// offered a downgrade.
func SelectLatestSupportedVersion(bundleID string, versions []AppVersion, env SupportEnvironment) *AppVersion {
	noDowngrade := env.SelfBundleID != "" && bundleID == env.SelfBundleID && env.SelfVersion != ""
	for i := range versions {
		v := &versions[i]
		if !v.IsSupported(env) {
			continue
		}
		if noDowngrade {
			if cmp, ok := CompareAppVersions(v.Version, env.SelfVersion); ok && cmp < 0 {
				continue
			}
		}
		return v
	}
	return nil
}

// ScreenshotsFor returns the screenshots for device, falling back to the
// other device type when the app ships none for it.
func (a *StoreApp) ScreenshotsFor(device DeviceType) []AppScreenshot {
	var preferred, fallback []AppScreenshot
	for _, s := range a.Screenshots {
		if s.DeviceType == device {
			preferred = append(preferred, s)
		} else {
			fallback = append(fallback, s)
		}
	}
	if len(preferred) > 0 {
		return preferred
	}
	return fallback
}
