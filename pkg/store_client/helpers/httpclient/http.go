package httpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient is shared by every outgoing request; tests swap it for an
// httptest client.
var HTTPClient = &http.Client{Timeout: 30 * time.Second}

const maxCatalogSize = 32 << 20

var ErrTooLarge = errors.New("catalog exceeds size limit")

// FetchResult is a downloaded catalog document.
type FetchResult struct {
	Body []byte
	// Hash is the hex sha256 of Body.
	Hash string
}

// FetchSource downloads a catalog document.
func FetchSource(ctx context.Context, sourceURL string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "don-app-store/1")

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", sourceURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", sourceURL, err)
	}
	if len(body) > maxCatalogSize {
		return nil, ErrTooLarge
	}

	return &FetchResult{
		Body: body,
		Hash: Hash(body),
	}, nil
}

func Hash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
