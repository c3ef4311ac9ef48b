package typesense

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	httpclient "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/httpclient"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
)

const (
	defaultCollection    = "app_store"
	defaultDetailBaseURL = "https://apps.developer.overheid.nl/apps"
	defaultLanguage      = "nl"
	defaultItemPriority  = 1
)

// ErrDisabled is returned when Typesense configuration is missing.
var ErrDisabled = errors.New("typesense indexing disabled: missing endpoint, api key or collection name")

type config struct {
	endpoint       string
	apiKey         string
	collection     string
	detailBaseURL  string
	language       string
	itemPriority   int
	defaultTags    []string
	featureEnabled bool
}

func loadConfigFromEnv() config {
	endpoint := strings.TrimSpace(os.Getenv("TYPESENSE_ENDPOINT"))
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("TYPESENSE_BASE_URL"))
	}

	collection := strings.TrimSpace(os.Getenv("TYPESENSE_COLLECTION"))
	if collection == "" {
		collection = defaultCollection
	}

	detailBase := strings.TrimSpace(os.Getenv("TYPESENSE_DETAIL_BASE_URL"))
	if detailBase == "" {
		detailBase = defaultDetailBaseURL
	}

	language := strings.TrimSpace(os.Getenv("TYPESENSE_LANGUAGE"))
	if language == "" {
		language = defaultLanguage
	}

	itemPriority := defaultItemPriority
	if raw := strings.TrimSpace(os.Getenv("TYPESENSE_ITEM_PRIORITY")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			itemPriority = v
		}
	}

	return config{
		endpoint:       endpoint,
		apiKey:         strings.TrimSpace(os.Getenv("TYPESENSE_API_KEY")),
		collection:     collection,
		detailBaseURL:  detailBase,
		language:       language,
		itemPriority:   itemPriority,
		defaultTags:    parseDefaultTags(),
		featureEnabled: isFeatureEnabled(),
	}
}

func (c config) enabled() bool {
	return c.featureEnabled && c.endpoint != "" && c.apiKey != "" && c.collection != ""
}

func isFeatureEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ENABLE_TYPESENSE"))) {
	case "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// Enabled reports whether Typesense indexing is active based on env vars.
func Enabled() bool {
	return loadConfigFromEnv().enabled()
}

func parseDefaultTags() []string {
	out := make([]string, 0)
	for _, part := range strings.Split(os.Getenv("TYPESENSE_DEFAULT_TAGS"), ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"app-store", "app"}
	}
	return out
}

// PublishSource upserts one search document per app of src. Indexing stops
// at the first failing app.
func PublishSource(ctx context.Context, src *models.Source) error {
	if src == nil {
		return fmt.Errorf("typesense: source is nil")
	}
	cfg := loadConfigFromEnv()
	if !cfg.enabled() {
		return ErrDisabled
	}
	for i := range src.Apps {
		if err := publish(ctx, cfg, src, &src.Apps[i]); err != nil {
			return err
		}
	}
	return nil
}

func publish(ctx context.Context, cfg config, src *models.Source, app *models.StoreApp) error {
	payload, err := json.Marshal(buildDocument(cfg, src, app))
	if err != nil {
		return fmt.Errorf("typesense: marshal payload: %w", err)
	}

	base := strings.TrimRight(cfg.endpoint, "/")
	target := fmt.Sprintf("%s/collections/%s/documents?action=upsert", base, url.PathEscape(cfg.collection))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("typesense: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TYPESENSE-API-KEY", cfg.apiKey)

	resp, err := httpclient.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("typesense: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("typesense: indexing %s failed with status %d: %s", app.BundleIdentifier, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// documentID is stable across refreshes, unlike the app's row ID.
func documentID(app *models.StoreApp) string {
	return app.SourceID + ":" + app.BundleIdentifier
}

func buildDocument(cfg config, src *models.Source, app *models.StoreApp) map[string]any {
	doc := map[string]any{
		"id":            documentID(app),
		"type":          "app",
		"language":      cfg.language,
		"item_priority": cfg.itemPriority,
	}

	detailBase := strings.TrimRight(cfg.detailBaseURL, "/")
	if detailBase != "" {
		detailURL := fmt.Sprintf("%s/%s?source=%s", detailBase, url.PathEscape(app.BundleIdentifier), url.QueryEscape(app.SourceID))
		doc["url"] = detailURL
		doc["url_without_anchor"] = detailURL
		doc["anchor"] = nil
	}

	if name := strings.TrimSpace(app.Name); name != "" {
		doc["hierarchy.lvl0"] = name
	}
	if src != nil {
		if label := strings.TrimSpace(src.Name); label != "" {
			doc["hierarchy.lvl1"] = label
		}
	}
	if dev := strings.TrimSpace(app.DeveloperName); dev != "" {
		doc["hierarchy.lvl2"] = dev
	}
	if app.Subtitle != nil {
		if sub := strings.TrimSpace(*app.Subtitle); sub != "" {
			doc["hierarchy.lvl3"] = sub
		}
	}

	if content := buildContent(app); content != "" {
		doc["content"] = content
	}
	if tags := buildTags(cfg, app); len(tags) > 0 {
		doc["tags"] = tags
	}
	return doc
}

func buildContent(app *models.StoreApp) string {
	parts := make([]string, 0)
	if desc := strings.TrimSpace(app.LocalizedDescription); desc != "" {
		parts = append(parts, desc)
	}
	if latest := app.LatestVersion(); latest != nil {
		parts = append(parts, fmt.Sprintf("Versie: %s", latest.LocalizedVersion()))
		if latest.MinOSVersion != nil {
			parts = append(parts, fmt.Sprintf("Minimaal iOS %s", *latest.MinOSVersion))
		}
	}
	if app.IsPledgeRequired {
		switch {
		case app.PrefersCustomPledge:
			parts = append(parts, "Bijdrage: naar keuze")
		case app.PledgeAmount != nil && app.PledgeCurrency != nil:
			parts = append(parts, fmt.Sprintf("Bijdrage: %.2f %s", *app.PledgeAmount, *app.PledgeCurrency))
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(app.Name)
	}
	return strings.Join(parts, "\n\n")
}

func buildTags(cfg config, app *models.StoreApp) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(cfg.defaultTags)+5)

	for _, tag := range cfg.defaultTags {
		out = appendUnique(out, tag, seen)
	}
	out = appendUnique(out, fmt.Sprintf("bundle:%s", app.BundleIdentifier), seen)
	out = appendUnique(out, fmt.Sprintf("source:%s", app.SourceID), seen)
	if app.Category != nil {
		out = appendUnique(out, fmt.Sprintf("category:%s", *app.Category), seen)
	}
	if app.Version != "" {
		out = appendUnique(out, fmt.Sprintf("version:%s", app.Version), seen)
	}
	if app.IsBeta {
		out = appendUnique(out, "beta", seen)
	}
	return out
}

func appendUnique(tags []string, value string, seen map[string]struct{}) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return tags
	}
	if _, ok := seen[value]; ok {
		return tags
	}
	seen[value] = struct{}{}
	return append(tags, value)
}
