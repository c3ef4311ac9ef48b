package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const defaultPledgeCurrency = "USD"

// Options configure a Decoder.
type Options struct {
	// Language resolves localized strings; defaults to "en".
	Language string
	// Environment selects the latest supported version of every app.
	Environment models.SupportEnvironment
	// NewID generates record IDs; defaults to uuid.NewString.
	NewID func() string
}

// Decoder turns catalog JSON into unsaved Source, StoreApp and AppVersion
// records. It never returns a partially decoded record: on error the result
// is nil.
type Decoder struct {
	lang  string
	env   models.SupportEnvironment
	newID func() string
}

func NewDecoder(opts Options) *Decoder {
	d := &Decoder{lang: opts.Language, env: opts.Environment, newID: opts.NewID}
	if strings.TrimSpace(d.lang) == "" {
		d.lang = "en"
	}
	if d.newID == nil {
		d.newID = uuid.NewString
	}
	return d
}

// DecodeSource decodes a whole catalog. sourceURL is the address the catalog
// was registered under and wins over the sourceURL the document declares; the
// declared one is only used when sourceURL is empty. One invalid app fails the
// whole source.
func (d *Decoder) DecodeSource(data []byte, sourceURL string) (*models.Source, error) {
	obj, err := parseObject("", data)
	if err != nil {
		return nil, err
	}

	src := &models.Source{}
	if src.Name, err = obj.requiredString("name"); err != nil {
		return nil, err
	}
	if src.ID, err = obj.requiredString("identifier"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(src.ID) == "" {
		return nil, invalid("", "identifier", "must not be empty")
	}
	declared, err := obj.optionalURL("sourceURL")
	if err != nil {
		return nil, err
	}
	switch {
	case sourceURL != "":
		src.SourceURL = sourceURL
	case declared != nil:
		src.SourceURL = *declared
	default:
		return nil, missing("", "sourceURL")
	}
	if src.Subtitle, err = obj.optionalLocalized(d.lang, "subtitle"); err != nil {
		return nil, err
	}
	if src.Description, err = obj.optionalLocalized(d.lang, "description", "localizedDescription"); err != nil {
		return nil, err
	}
	if src.IconURL, err = obj.optionalURL("iconURL"); err != nil {
		return nil, err
	}
	if src.Website, err = obj.optionalURL("website"); err != nil {
		return nil, err
	}
	if src.TintColor, err = obj.optionalTintColor("tintColor"); err != nil {
		return nil, err
	}

	items, ok, err := obj.array("apps")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, missing("", "apps")
	}

	seen := make(map[string]struct{}, len(items))
	apps := make([]models.StoreApp, 0, len(items))
	for i, item := range items {
		app, err := d.decodeApp(fmt.Sprintf("apps[%d]", i), src.ID, item)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[app.BundleIdentifier]; dup {
			return nil, &DecodeError{Path: fmt.Sprintf("apps[%d]", i), Key: "bundleIdentifier", Err: ErrDuplicateApp, Detail: app.BundleIdentifier}
		}
		seen[app.BundleIdentifier] = struct{}{}
		app.SortIndex = i
		apps = append(apps, *app)
	}
	src.Apps = apps
	return src, nil
}

// DecodeApp decodes a single app entry belonging to sourceID.
func (d *Decoder) DecodeApp(sourceID string, data []byte) (*models.StoreApp, error) {
	return d.decodeApp("", sourceID, data)
}

// DecodeVersion decodes a single entry of an app's versions array.
func (d *Decoder) DecodeVersion(data []byte) (*models.AppVersion, error) {
	return d.decodeVersion("", data)
}

func (d *Decoder) decodeApp(path, sourceID string, data []byte) (*models.StoreApp, error) {
	obj, err := parseObject(path, data)
	if err != nil {
		return nil, err
	}

	app := &models.StoreApp{ID: d.newID(), SourceID: sourceID}
	if app.Name, err = obj.requiredString("name"); err != nil {
		return nil, err
	}
	if app.BundleIdentifier, err = obj.requiredString("bundleIdentifier"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(app.BundleIdentifier) == "" {
		return nil, invalid(path, "bundleIdentifier", "must not be empty")
	}
	if app.DeveloperName, err = obj.requiredString("developerName"); err != nil {
		return nil, err
	}
	if app.LocalizedDescription, err = obj.requiredLocalized(d.lang, "localizedDescription", "description"); err != nil {
		return nil, err
	}
	if app.IconURL, err = obj.requiredURL("iconURL"); err != nil {
		return nil, err
	}
	if app.Subtitle, err = obj.optionalLocalized(d.lang, "subtitle"); err != nil {
		return nil, err
	}
	if app.TintColor, err = obj.optionalTintColor("tintColor"); err != nil {
		return nil, err
	}
	if category, err := obj.optionalString("category"); err != nil {
		return nil, err
	} else if category != nil {
		lower := strings.ToLower(strings.TrimSpace(*category))
		app.Category = &lower
	}
	if app.IsBeta, err = obj.optionalBool("beta"); err != nil {
		return nil, err
	}

	if app.Screenshots, err = d.decodeScreenshots(obj, app); err != nil {
		return nil, err
	}
	if app.Permissions, err = d.decodePermissions(obj, app); err != nil {
		return nil, err
	}
	if err := d.decodePledge(obj, app); err != nil {
		return nil, err
	}

	versions, err := d.decodeVersions(obj)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		versions[i].ID = d.newID()
	}
	if err := app.SetVersions(versions, d.env); err != nil {
		return nil, &DecodeError{Path: path, Key: "versions", Err: ErrEmptyVersions}
	}
	return app, nil
}

// decodeVersions reads the versions array, or builds a single version from
// the legacy flattened keys when the array is absent.
func (d *Decoder) decodeVersions(obj *object) ([]models.AppVersion, error) {
	items, ok, err := obj.array("versions")
	if err != nil {
		return nil, err
	}
	if ok {
		if len(items) == 0 {
			return nil, &DecodeError{Path: obj.path, Key: "versions", Err: ErrEmptyVersions}
		}
		versions := make([]models.AppVersion, 0, len(items))
		seen := make(map[string]struct{}, len(items))
		for i, item := range items {
			path := obj.child(fmt.Sprintf("versions[%d]", i))
			v, err := d.decodeVersion(path, item)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[v.VersionID()]; dup {
				return nil, invalid(path, "version", "version %s is listed twice", v.LocalizedVersion())
			}
			seen[v.VersionID()] = struct{}{}
			versions = append(versions, *v)
		}
		return versions, nil
	}

	legacy := models.AppVersion{}
	if legacy.Version, err = obj.requiredString("version"); err != nil {
		return nil, err
	}
	if legacy.Date, err = obj.requiredDate("versionDate"); err != nil {
		return nil, err
	}
	if legacy.LocalizedDescription, err = obj.optionalLocalized(d.lang, "versionDescription"); err != nil {
		return nil, err
	}
	if legacy.DownloadURL, err = obj.requiredURL("downloadURL"); err != nil {
		return nil, err
	}
	if legacy.Size, err = obj.requiredInt64("size"); err != nil {
		return nil, err
	}
	return []models.AppVersion{legacy}, nil
}

func (d *Decoder) decodeVersion(path string, data []byte) (*models.AppVersion, error) {
	obj, err := parseObject(path, data)
	if err != nil {
		return nil, err
	}

	v := &models.AppVersion{}
	if v.Version, err = obj.requiredString("version"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(v.Version) == "" {
		return nil, invalid(path, "version", "must not be empty")
	}
	if build, err := obj.optionalString("buildVersion"); err != nil {
		return nil, err
	} else if build != nil {
		v.BuildVersion = strings.TrimSpace(*build)
	}
	if v.Date, err = obj.requiredDate("date", "versionDate"); err != nil {
		return nil, err
	}
	if v.LocalizedDescription, err = obj.optionalLocalized(d.lang, "localizedDescription", "versionDescription"); err != nil {
		return nil, err
	}
	if v.DownloadURL, err = obj.requiredURL("downloadURL"); err != nil {
		return nil, err
	}
	if v.Size, err = obj.requiredInt64("size"); err != nil {
		return nil, err
	}
	if sum, err := obj.optionalString("sha256"); err != nil {
		return nil, err
	} else if sum != nil {
		lower := strings.ToLower(strings.TrimSpace(*sum))
		v.SHA256 = &lower
	}
	if v.MinOSVersion, err = optionalOSVersion(obj, "minOSVersion"); err != nil {
		return nil, err
	}
	if v.MaxOSVersion, err = optionalOSVersion(obj, "maxOSVersion"); err != nil {
		return nil, err
	}
	return v, nil
}

func optionalOSVersion(obj *object, key string) (*string, error) {
	s, err := obj.optionalString(key)
	if err != nil || s == nil {
		return nil, err
	}
	parsed, err := models.ParseOSVersion(*s)
	if err != nil {
		return nil, invalid(obj.path, key, "%v", err)
	}
	out := parsed.String()
	return &out, nil
}

type screenshotEntry struct {
	ImageURL string `json:"imageURL"`
	Width    *int   `json:"width"`
	Height   *int   `json:"height"`
}

func (d *Decoder) decodeScreenshots(obj *object, app *models.StoreApp) ([]models.AppScreenshot, error) {
	var out []models.AppScreenshot
	add := func(key string, device models.DeviceType, raw json.RawMessage) error {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return invalid(obj.path, key, "expected an array of screenshots")
		}
		for _, item := range list {
			entry, err := parseScreenshot(item)
			if err != nil {
				return invalid(obj.path, key, "%v", err)
			}
			out = append(out, models.AppScreenshot{
				ID:         d.newID(),
				AppID:      app.ID,
				SourceID:   app.SourceID,
				ImageURL:   entry.ImageURL,
				Width:      entry.Width,
				Height:     entry.Height,
				DeviceType: device,
				SortIndex:  len(out),
			})
		}
		return nil
	}

	if raw, ok := obj.raw("screenshots"); ok {
		trimmed := strings.TrimSpace(string(raw))
		if strings.HasPrefix(trimmed, "[") {
			if err := add("screenshots", models.DeviceTypeIPhone, raw); err != nil {
				return nil, err
			}
			return out, nil
		}
		var byDevice map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byDevice); err != nil {
			return nil, invalid(obj.path, "screenshots", "expected an array or an object keyed by device")
		}
		for _, device := range []models.DeviceType{models.DeviceTypeIPhone, models.DeviceTypeIPad} {
			if list, ok := byDevice[string(device)]; ok {
				if err := add("screenshots", device, list); err != nil {
					return nil, err
				}
			}
		}
		return out, nil
	}

	if raw, ok := obj.raw("screenshotURLs"); ok {
		if err := add("screenshotURLs", models.DeviceTypeIPhone, raw); err != nil {
			return nil, err
		}
		w, h := models.LegacyScreenshotWidth, models.LegacyScreenshotHeight
		for i := range out {
			out[i].Width, out[i].Height = &w, &h
		}
	}
	return out, nil
}

func parseScreenshot(raw json.RawMessage) (screenshotEntry, error) {
	var entry screenshotEntry
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		entry.ImageURL = s
	} else if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("screenshot must be a URL or an object with imageURL")
	}
	u, err := parseURL(entry.ImageURL)
	if err != nil {
		return entry, err
	}
	entry.ImageURL = u
	if (entry.Width == nil) != (entry.Height == nil) {
		return entry, fmt.Errorf("screenshot %s needs both width and height", u)
	}
	return entry, nil
}

type appPermissions struct {
	Entitlements []json.RawMessage `json:"entitlements"`
	Privacy      json.RawMessage   `json:"privacy"`
}

type legacyPermission struct {
	Type             string `json:"type"`
	UsageDescription string `json:"usageDescription"`
}

func (d *Decoder) decodePermissions(obj *object, app *models.StoreApp) ([]models.AppPermission, error) {
	var out []models.AppPermission
	add := func(typ models.PermissionType, name string, usage *string) {
		out = append(out, models.AppPermission{
			ID:               d.newID(),
			AppID:            app.ID,
			SourceID:         app.SourceID,
			Type:             typ,
			Permission:       name,
			UsageDescription: usage,
			SortIndex:        len(out),
		})
	}

	if raw, ok := obj.raw("appPermissions"); ok {
		var perms appPermissions
		if err := json.Unmarshal(raw, &perms); err != nil {
			return nil, invalid(obj.path, "appPermissions", "expected an object with entitlements and privacy")
		}
		for _, e := range perms.Entitlements {
			var name string
			if err := json.Unmarshal(e, &name); err != nil {
				var named struct {
					Name string `json:"name"`
				}
				if err := json.Unmarshal(e, &named); err != nil || named.Name == "" {
					return nil, invalid(obj.path, "appPermissions", "entitlement must be a string or an object with name")
				}
				name = named.Name
			}
			add(models.PermissionTypeEntitlement, name, nil)
		}
		if len(perms.Privacy) > 0 && string(perms.Privacy) != "null" {
			privacy, err := parsePrivacy(perms.Privacy)
			if err != nil {
				return nil, invalid(obj.path, "appPermissions", "%v", err)
			}
			for _, p := range privacy {
				usage := p.UsageDescription
				add(models.PermissionTypePrivacy, p.Type, &usage)
			}
		}
		return out, nil
	}

	if raw, ok := obj.raw("permissions"); ok {
		var legacy []legacyPermission
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, invalid(obj.path, "permissions", "expected an array of {type, usageDescription}")
		}
		for _, p := range legacy {
			if strings.TrimSpace(p.Type) == "" {
				return nil, invalid(obj.path, "permissions", "permission type must not be empty")
			}
			usage := p.UsageDescription
			add(models.PermissionType(strings.ToLower(p.Type)), p.Type, &usage)
		}
	}
	return out, nil
}

// parsePrivacy accepts {"NSCameraUsageDescription": "..."} or
// [{"name": "...", "usageDescription": "..."}]. The object form is sorted
// by key so records come out in a stable order.
func parsePrivacy(raw json.RawMessage) ([]legacyPermission, error) {
	var list []struct {
		Name             string `json:"name"`
		UsageDescription string `json:"usageDescription"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]legacyPermission, 0, len(list))
		for _, p := range list {
			out = append(out, legacyPermission{Type: p.Name, UsageDescription: p.UsageDescription})
		}
		return out, nil
	}
	var byKey map[string]string
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("privacy must be an object or an array")
	}
	out := make([]legacyPermission, 0, len(byKey))
	for k, v := range byKey {
		out = append(out, legacyPermission{Type: k, UsageDescription: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

type patreonParameters struct {
	Pledge   json.RawMessage `json:"pledge"`
	Currency *string         `json:"currency"`
	Hidden   *bool           `json:"hidden"`
	Tiers    []string        `json:"tiers"`
}

// decodePledge always writes every pledge flag so a refresh clears flags a
// previous catalog version had set.
func (d *Decoder) decodePledge(obj *object, app *models.StoreApp) error {
	app.IsPledgeRequired = false
	app.IsHiddenWithoutPledge = false
	app.PrefersCustomPledge = false
	app.PledgeAmount = nil
	app.PledgeCurrency = nil
	app.PledgeTiers = nil

	raw, ok := obj.raw("patreon")
	if !ok {
		return nil
	}
	var p patreonParameters
	if err := json.Unmarshal(raw, &p); err != nil {
		return invalid(obj.path, "patreon", "expected an object")
	}

	if len(p.Pledge) > 0 && string(p.Pledge) != "null" {
		var amount float64
		var keyword string
		switch {
		case json.Unmarshal(p.Pledge, &amount) == nil:
			if amount < 0 {
				return invalid(obj.child("patreon"), "pledge", "amount must not be negative")
			}
			app.IsPledgeRequired = true
			app.PledgeAmount = &amount
			currency := defaultPledgeCurrency
			if p.Currency != nil && strings.TrimSpace(*p.Currency) != "" {
				currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
			}
			app.PledgeCurrency = &currency
		case json.Unmarshal(p.Pledge, &keyword) == nil && strings.EqualFold(keyword, "custom"):
			app.IsPledgeRequired = true
			app.PrefersCustomPledge = true
		default:
			return invalid(obj.child("patreon"), "pledge", "expected an amount or \"custom\"")
		}
	}
	if len(p.Tiers) > 0 {
		tiers, err := json.Marshal(p.Tiers)
		if err != nil {
			return invalid(obj.child("patreon"), "tiers", "%v", err)
		}
		app.PledgeTiers = datatypes.JSON(tiers)
		app.IsPledgeRequired = true
	}
	if p.Hidden != nil {
		app.IsHiddenWithoutPledge = *p.Hidden
	}
	return nil
}
