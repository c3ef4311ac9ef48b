package catalog

import (
	"encoding/json"
	"time"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
)

// Document is the catalog wire format written by Encode. Apps carry both the
// versions array and the legacy flattened keys so older clients that only read
// version/downloadURL keep working.
type Document struct {
	Name        string        `json:"name"`
	Identifier  string        `json:"identifier"`
	SourceURL   string        `json:"sourceURL"`
	Subtitle    *string       `json:"subtitle,omitempty"`
	Description *string       `json:"description,omitempty"`
	IconURL     *string       `json:"iconURL,omitempty"`
	Website     *string       `json:"website,omitempty"`
	TintColor   *string       `json:"tintColor,omitempty"`
	Apps        []DocumentApp `json:"apps"`
}

type DocumentApp struct {
	Name                 string               `json:"name"`
	BundleIdentifier     string               `json:"bundleIdentifier"`
	DeveloperName        string               `json:"developerName"`
	Subtitle             *string              `json:"subtitle,omitempty"`
	LocalizedDescription string               `json:"localizedDescription"`
	IconURL              string               `json:"iconURL"`
	TintColor            *string              `json:"tintColor,omitempty"`
	Category             *string              `json:"category,omitempty"`
	Beta                 bool                 `json:"beta,omitempty"`
	Screenshots          *documentScreenshots `json:"screenshots,omitempty"`
	ScreenshotURLs       []string             `json:"screenshotURLs,omitempty"`
	AppPermissions       *documentPermissions `json:"appPermissions,omitempty"`
	Patreon              *documentPatreon     `json:"patreon,omitempty"`
	Versions             []DocumentAppVersion `json:"versions"`

	Version            string    `json:"version"`
	VersionDate        time.Time `json:"versionDate"`
	VersionDescription *string   `json:"versionDescription,omitempty"`
	DownloadURL        string    `json:"downloadURL"`
	Size               int64     `json:"size"`
}

type DocumentAppVersion struct {
	Version              string    `json:"version"`
	BuildVersion         *string   `json:"buildVersion,omitempty"`
	Date                 time.Time `json:"date"`
	LocalizedDescription *string   `json:"localizedDescription,omitempty"`
	DownloadURL          string    `json:"downloadURL"`
	Size                 int64     `json:"size"`
	SHA256               *string   `json:"sha256,omitempty"`
	MinOSVersion         *string   `json:"minOSVersion,omitempty"`
	MaxOSVersion         *string   `json:"maxOSVersion,omitempty"`
}

type documentScreenshot struct {
	ImageURL string `json:"imageURL"`
	Width    *int   `json:"width,omitempty"`
	Height   *int   `json:"height,omitempty"`
}

type documentScreenshots struct {
	IPhone []documentScreenshot `json:"iphone,omitempty"`
	IPad   []documentScreenshot `json:"ipad,omitempty"`
}

type documentPermissions struct {
	Entitlements []string          `json:"entitlements,omitempty"`
	Privacy      map[string]string `json:"privacy,omitempty"`
}

type documentPatreon struct {
	Pledge   any             `json:"pledge,omitempty"`
	Currency *string         `json:"currency,omitempty"`
	Hidden   bool            `json:"hidden,omitempty"`
	Tiers    json.RawMessage `json:"tiers,omitempty"`
}

// Encode renders src back into catalog JSON. Legacy permission types are
// written as privacy entries.
func Encode(src *models.Source) ([]byte, error) {
	return json.Marshal(ToDocument(src))
}

func ToDocument(src *models.Source) Document {
	doc := Document{
		Name:        src.Name,
		Identifier:  src.ID,
		SourceURL:   src.SourceURL,
		Subtitle:    src.Subtitle,
		Description: src.Description,
		IconURL:     src.IconURL,
		Website:     src.Website,
		TintColor:   src.TintColor,
		Apps:        make([]DocumentApp, 0, len(src.Apps)),
	}
	for i := range src.Apps {
		doc.Apps = append(doc.Apps, toDocumentApp(&src.Apps[i]))
	}
	return doc
}

func toDocumentApp(app *models.StoreApp) DocumentApp {
	out := DocumentApp{
		Name:                 app.Name,
		BundleIdentifier:     app.BundleIdentifier,
		DeveloperName:        app.DeveloperName,
		Subtitle:             app.Subtitle,
		LocalizedDescription: app.LocalizedDescription,
		IconURL:              app.IconURL,
		TintColor:            app.TintColor,
		Category:             app.Category,
		Beta:                 app.IsBeta,
		Version:              app.Version,
		VersionDate:          app.VersionDate,
		VersionDescription:   app.VersionDescription,
		DownloadURL:          app.DownloadURL,
		Size:                 app.Size,
	}

	if len(app.Screenshots) > 0 {
		shots := &documentScreenshots{}
		for _, s := range app.Screenshots {
			ds := documentScreenshot{ImageURL: s.ImageURL, Width: s.Width, Height: s.Height}
			if s.DeviceType == models.DeviceTypeIPad {
				shots.IPad = append(shots.IPad, ds)
			} else {
				shots.IPhone = append(shots.IPhone, ds)
				out.ScreenshotURLs = append(out.ScreenshotURLs, s.ImageURL)
			}
		}
		out.Screenshots = shots
	}

	if len(app.Permissions) > 0 {
		perms := &documentPermissions{}
		for _, p := range app.Permissions {
			switch p.Type {
			case models.PermissionTypeEntitlement:
				perms.Entitlements = append(perms.Entitlements, p.Permission)
			default:
				if perms.Privacy == nil {
					perms.Privacy = map[string]string{}
				}
				usage := ""
				if p.UsageDescription != nil {
					usage = *p.UsageDescription
				}
				perms.Privacy[p.Permission] = usage
			}
		}
		out.AppPermissions = perms
	}

	if app.IsPledgeRequired || app.IsHiddenWithoutPledge {
		p := &documentPatreon{Hidden: app.IsHiddenWithoutPledge, Currency: app.PledgeCurrency}
		switch {
		case app.PrefersCustomPledge:
			p.Pledge = "custom"
		case app.PledgeAmount != nil:
			p.Pledge = *app.PledgeAmount
		}
		if len(app.PledgeTiers) > 0 {
			p.Tiers = json.RawMessage(app.PledgeTiers)
		}
		out.Patreon = p
	}

	out.Versions = make([]DocumentAppVersion, 0, len(app.Versions))
	for i := range app.Versions {
		v := &app.Versions[i]
		out.Versions = append(out.Versions, DocumentAppVersion{
			Version:              v.Version,
			BuildVersion:         v.Build(),
			Date:                 v.Date,
			LocalizedDescription: v.LocalizedDescription,
			DownloadURL:          v.DownloadURL,
			Size:                 v.Size,
			SHA256:               v.SHA256,
			MinOSVersion:         v.MinOSVersion,
			MaxOSVersion:         v.MaxOSVersion,
		})
	}
	return out
}
