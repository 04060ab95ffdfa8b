// Package registry manages extension repositories: the persisted catalog of
// repository endpoints, manifest resolution, and installing extension
// payloads from them.
package registry

import (
	"context"
	"fmt"

	"github.com/kerbaras/mangetsu/pkg/data"
	"github.com/kerbaras/mangetsu/pkg/utils"
)

// manifestPath is the well-known manifest location relative to a
// repository's base URL.
const manifestPath = "/versioning.json"

// Resolver fetches repository manifests. It performs no caching: extension
// sets and versions change frequently, so every browse re-fetches.
type Resolver struct {
	api *utils.API
}

// NewResolver returns a Resolver using the given HTTP helper.
func NewResolver(api *utils.API) *Resolver {
	return &Resolver{api: api}
}

// FetchManifest performs a single fetch of the manifest for baseURL. A
// non-success status and a parse failure both collapse to an error; there is
// no retry at this layer, callers decide whether to retry.
func (r *Resolver) FetchManifest(ctx context.Context, baseURL string) (*data.Manifest, error) {
	var m data.Manifest
	if err := r.api.GetJSON(ctx, baseURL+manifestPath, &m); err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	return &m, nil
}

// PayloadURL is the location of an extension's executable payload.
func PayloadURL(baseURL, extensionID string) string {
	return fmt.Sprintf("%s/%s/source.js", baseURL, extensionID)
}

// IconURL is the location of an extension's icon.
func IconURL(baseURL, extensionID, icon string) string {
	return fmt.Sprintf("%s/%s/includes/%s", baseURL, extensionID, icon)
}
