package sourceimport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/teris-io/shortid"

	httpclient "github.com/developer-overheid-nl/don-app-store/pkg/store_client/helpers/httpclient"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
)

type Logger interface {
	Printf(format string, v ...any)
}

// Catalog decodes and stores catalog documents; services.CatalogService
// satisfies it.
type Catalog interface {
	Decode(data []byte, sourceURL string) (*models.Source, error)
	ImportDocument(ctx context.Context, data []byte, sourceURL string) (*models.Source, error)
}

type Options struct {
	// Exactly one of File and URL is set.
	File string
	URL  string
	// SourceURL is stored for a catalog read from File; when empty the
	// catalog's own sourceURL is used.
	SourceURL string
	DryRun    bool
	Logger    Logger
	Fetch     func(ctx context.Context, sourceURL string) (*httpclient.FetchResult, error)
}

type Result struct {
	RunID    string
	SourceID string
	Apps     int
	Versions int
	// Unsupported counts apps without a latest supported version for the
	// configured environment.
	Unsupported int
	Stored      bool
}

// Import reads one catalog and stores it unless opts.DryRun is set.
func Import(ctx context.Context, cat Catalog, opts Options) (Result, error) {
	if cat == nil {
		return Result{}, errors.New("catalog is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runID, err := shortid.Generate()
	if err != nil {
		return Result{}, fmt.Errorf("failed to generate run id: %w", err)
	}
	result := Result{RunID: runID}

	data, sourceURL, err := read(ctx, opts)
	if err != nil {
		return result, err
	}

	var src *models.Source
	if opts.DryRun {
		src, err = cat.Decode(data, sourceURL)
	} else {
		src, err = cat.ImportDocument(ctx, data, sourceURL)
	}
	if err != nil {
		logger.Printf("[import] run=%s failed: %v", runID, err)
		return result, err
	}

	result.SourceID = src.ID
	result.Apps = len(src.Apps)
	for i := range src.Apps {
		result.Versions += len(src.Apps[i].Versions)
		if src.Apps[i].LatestSupportedVersion == nil {
			result.Unsupported++
			logger.Printf("[import] run=%s app=%s has no supported version", runID, src.Apps[i].BundleIdentifier)
		}
	}
	result.Stored = !opts.DryRun
	logger.Printf("[import] run=%s source=%s apps=%d versions=%d stored=%t",
		runID, result.SourceID, result.Apps, result.Versions, result.Stored)
	return result, nil
}

func read(ctx context.Context, opts Options) ([]byte, string, error) {
	file := strings.TrimSpace(opts.File)
	sourceURL := strings.TrimSpace(opts.URL)
	switch {
	case file != "" && sourceURL != "":
		return nil, "", errors.New("use either a file or a url, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read catalog: %w", err)
		}
		return data, strings.TrimSpace(opts.SourceURL), nil
	case sourceURL != "":
		fetch := opts.Fetch
		if fetch == nil {
			fetch = httpclient.FetchSource
		}
		res, err := fetch(ctx, sourceURL)
		if err != nil {
			return nil, "", err
		}
		return res.Body, sourceURL, nil
	default:
		return nil, "", errors.New("catalog file or url is required")
	}
}
