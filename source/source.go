// Package source loads page models: from the backend over HTTP, from a
// directory of YAML or JSON files, or through a cache in front of either.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/GoCodeAlone/pageview/model"
)

// Source provides page models. Implementations must be safe for concurrent
// use.
type Source interface {
	// Load retrieves the page model published at url. query is the query of
	// the page request and is forwarded to the backend.
	Load(ctx context.Context, url string, query url.Values) (*model.PageModel, error)

	// Name returns a human-readable identifier for this source.
	Name() string
}

// ChangeEvent is emitted when a watched page model changes.
type ChangeEvent struct {
	Source  string
	URL     string
	OldHash string
	NewHash string
	Time    time.Time
}

// HashModel returns the SHA256 hex digest of the JSON-serialised model.
func HashModel(pm *model.PageModel) (string, error) {
	data, err := json.Marshal(pm)
	if err != nil {
		return "", fmt.Errorf("source: hash model: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// StripQuery returns rawURL without its query, the form change events and
// invalidation use.
func StripQuery(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// Key identifies a page model request.
func Key(url string, query url.Values) string {
	if len(query) == 0 {
		return url
	}
	return url + "?" + query.Encode()
}
