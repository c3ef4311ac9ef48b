package models

import "time"

// Link representeert een hypermedia-link
type Link struct {
	Href string `json:"href"`
}

// Links bevat self/next/prev links volgens HAL-stijl
type Links struct {
	Self     *Link `json:"self,omitempty"`
	Apps     *Link `json:"apps,omitempty"`
	Versions *Link `json:"versions,omitempty"`
	Source   *Link `json:"source,omitempty"`
}

type Pagination struct {
	Next           *int `json:"next,omitempty"`
	Previous       *int `json:"previous,omitempty"`
	CurrentPage    int  `json:"currentPage"`
	RecordsPerPage int  `json:"recordsPerPage"`
	TotalPages     int  `json:"totalPages"`
	TotalRecords   int  `json:"totalRecords"`
}

type SourceSummary struct {
	Identifier      string     `json:"identifier"`
	Name            string     `json:"name"`
	SourceURL       string     `json:"sourceURL"`
	Subtitle        *string    `json:"subtitle,omitempty"`
	IconURL         *string    `json:"iconURL,omitempty"`
	AppCount        int        `json:"appCount"`
	LastRefreshedAt *time.Time `json:"lastRefreshedAt,omitempty"`
	Links           *Links     `json:"_links,omitempty"`
}

type SourceDetail struct {
	SourceSummary
	Description *string           `json:"description,omitempty"`
	Website     *string           `json:"website,omitempty"`
	TintColor   *string           `json:"tintColor,omitempty"`
	Apps        []StoreAppSummary `json:"apps"`
}

type AppVersionResponse struct {
	Version              string    `json:"version"`
	BuildVersion         *string   `json:"buildVersion,omitempty"`
	LocalizedVersion     string    `json:"localizedVersion"`
	Date                 time.Time `json:"date"`
	LocalizedDescription *string   `json:"localizedDescription,omitempty"`
	DownloadURL          string    `json:"downloadURL"`
	Size                 int64     `json:"size"`
	SHA256               *string   `json:"sha256,omitempty"`
	MinOSVersion         *string   `json:"minOSVersion,omitempty"`
	MaxOSVersion         *string   `json:"maxOSVersion,omitempty"`
	IsSupported          bool      `json:"isSupported"`
}

type Pledge struct {
	Required            bool     `json:"required"`
	HiddenWithoutPledge bool     `json:"hiddenWithoutPledge"`
	PrefersCustom       bool     `json:"prefersCustomPledge"`
	Amount              *float64 `json:"amount,omitempty"`
	Currency            *string  `json:"currency,omitempty"`
}

type StoreAppSummary struct {
	BundleIdentifier       string              `json:"bundleIdentifier"`
	SourceIdentifier       string              `json:"sourceIdentifier"`
	Name                   string              `json:"name"`
	DeveloperName          string              `json:"developerName"`
	Subtitle               *string             `json:"subtitle,omitempty"`
	IconURL                string              `json:"iconURL"`
	TintColor              *string             `json:"tintColor,omitempty"`
	Category               string              `json:"category,omitempty"`
	Beta                   bool                `json:"beta"`
	Pledge                 Pledge              `json:"pledge"`
	LatestVersion          string              `json:"latestVersion"`
	LatestSupportedVersion *AppVersionResponse `json:"latestSupportedVersion,omitempty"`
	Links                  *Links              `json:"_links,omitempty"`
}

type StoreAppDetail struct {
	StoreAppSummary
	LocalizedDescription string               `json:"localizedDescription"`
	Screenshots          []AppScreenshot      `json:"screenshots"`
	Permissions          []AppPermission      `json:"permissions"`
	Versions             []AppVersionResponse `json:"versions"`
}

// --- request params ---

type ListSourcesParams struct {
	Page    int    `query:"page"`
	PerPage int    `query:"perPage"`
	BaseURL string `json:"-"` // not from query, set in handler
}

type SourceParams struct {
	Id string `path:"id" binding:"required"`
}

type SourcePost struct {
	SourceURL string `json:"sourceURL" validate:"required,url"`
}

type ListAppsParams struct {
	Page     int     `query:"page"`
	PerPage  int     `query:"perPage"`
	Source   *string `query:"source"`
	Category *string `query:"category"`
	Query    *string `query:"q"`
	BaseURL  string  `json:"-"` // not from query, set in handler
}

// AppParams selects a single app. Source is required when several sources list
// the same bundle identifier. OSVersion and InstalledVersion override the
// server's reference device for the latest supported version.
type AppParams struct {
	BundleID         string  `path:"bundleId" binding:"required"`
	Source           *string `query:"source"`
	OSVersion        *string `query:"osVersion"`
	InstalledVersion *string `query:"installedVersion"`
	Device           *string `query:"device"`
}
