package models

import (
	"fmt"
	"time"
)

// AppVersion is a single distributable build of a StoreApp.
type AppVersion struct {
	ID          string `gorm:"column:id;primaryKey" json:"id"`
	AppID       string `gorm:"column:app_id;index" json:"-"`
	AppBundleID string `gorm:"column:app_bundle_id;uniqueIndex:uniq_app_version;not null" json:"appBundleId"`
	SourceID    string `gorm:"column:source_id;uniqueIndex:uniq_app_version;index;not null" json:"sourceId"`

	Version string `gorm:"column:version;uniqueIndex:uniq_app_version;not null" json:"version"`
	// NULL != NULL in unique indexes, so an absent build version is stored as "".
	BuildVersion string `gorm:"column:build_version;uniqueIndex:uniq_app_version;not null;default:''" json:"buildVersion,omitempty"`

	Date                 time.Time `gorm:"column:date" json:"date"`
	LocalizedDescription *string   `gorm:"column:localized_description;type:text" json:"localizedDescription,omitempty"`
	DownloadURL          string    `gorm:"column:download_url;not null" json:"downloadURL"`
	Size                 int64     `gorm:"column:size" json:"size"`
	SHA256               *string   `gorm:"column:sha256;size:64" json:"sha256,omitempty"`
	MinOSVersion         *string   `gorm:"column:min_os_version" json:"minOSVersion,omitempty"`
	MaxOSVersion         *string   `gorm:"column:max_os_version" json:"maxOSVersion,omitempty"`
	SortIndex            int       `gorm:"column:sort_index" json:"-"`
}

// Build returns the build version, or nil when the catalog had none.
func (v *AppVersion) Build() *string {
	if v.BuildVersion == "" {
		return nil
	}
	b := v.BuildVersion
	return &b
}

// LocalizedVersion renders "1.2" or "1.2 (45)".
func (v *AppVersion) LocalizedVersion() string {
	if v.BuildVersion == "" {
		return v.Version
	}
	return fmt.Sprintf("%s (%s)", v.Version, v.BuildVersion)
}

// VersionID identifies a version within an app, "nil" standing in for a
// missing build version.
func (v *AppVersion) VersionID() string {
	build := v.BuildVersion
	if build == "" {
		build = "nil"
	}
	return v.Version + "|" + build
}

// IsSupported reports whether the version's OS bounds admit env.OSVersion.
// Unparseable bounds are ignored; the decoder rejects them up front.
func (v *AppVersion) IsSupported(env SupportEnvironment) bool {
	if env.OSVersion.IsZero() {
		return true
	}
	if v.MinOSVersion != nil {
		if minOS, err := ParseOSVersion(*v.MinOSVersion); err == nil && env.OSVersion.Compare(minOS) < 0 {
			return false
		}
	}
	if v.MaxOSVersion != nil {
		if maxOS, err := ParseOSVersion(*v.MaxOSVersion); err == nil && env.OSVersion.Compare(maxOS) > 0 {
			return false
		}
	}
	return true
}

// SupportEnvironment describes the device a latest supported version is
// selected for.
type SupportEnvironment struct {
	OSVersion OperatingSystemVersion
	// SelfBundleID is the store's own app; it is never offered a downgrade
	// below SelfVersion.
	SelfBundleID string
	SelfVersion  string
}
