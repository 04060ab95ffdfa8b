package registry

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/kerbaras/mangetsu/pkg/data"
	"github.com/kerbaras/mangetsu/pkg/utils"
)

// ErrAlreadyAdded is returned when a repository with the same normalized
// base URL is already in the catalog.
var ErrAlreadyAdded = errors.New("repository already added")

// InvalidRepositoryError means the endpoint did not serve a usable manifest.
// The add is aborted and no partial state is persisted.
type InvalidRepositoryError struct {
	URL string
	Err error
}

func (e *InvalidRepositoryError) Error() string {
	return fmt.Sprintf("invalid repository %s: %v", e.URL, e.Err)
}

func (e *InvalidRepositoryError) Unwrap() error {
	return e.Err
}

// Catalog persists known repository endpoints and validates new ones
// against their manifest before adding them.
type Catalog struct {
	store    *data.Store
	resolver *Resolver
	api      *utils.API
	log      *slog.Logger
}

// NewCatalog returns a Catalog backed by store.
func NewCatalog(store *data.Store, resolver *Resolver, api *utils.API, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{store: store, resolver: resolver, api: api, log: log}
}

// DefaultRepositories is the built-in repository list. It is merged into
// persisted state on every load (idempotent union, not overwrite), so new
// built-ins introduced by app updates appear without clobbering user-added
// repositories.
func DefaultRepositories() []data.Repository {
	urls := []struct{ name, url string }{
		{"Community Extensions", "https://extensions.mangetsu.moe/community"},
		{"Official Extensions", "https://extensions.mangetsu.moe/official"},
	}
	out := make([]data.Repository, 0, len(urls))
	for _, u := range urls {
		base := NormalizeBaseURL(u.url)
		out = append(out, data.Repository{ID: RepositoryID(base), Name: u.name, BaseURL: base})
	}
	return out
}

// NormalizeBaseURL strips a trailing slash and a trailing /versioning.json
// suffix, so pasted manifest URLs and base URLs resolve to the same
// repository.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	base = strings.TrimSuffix(base, manifestPath)
	base = strings.TrimSuffix(base, "/")
	return base
}

// RepositoryID derives a deterministic identifier from a normalized base
// URL by sanitizing it down to lowercase alphanumerics and dashes.
func RepositoryID(baseURL string) string {
	s := strings.ToLower(baseURL)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")

	var b strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Load merges the built-in default repositories into persisted state. Safe
// to call on every start.
func (c *Catalog) Load() error {
	return c.store.UpdateRepositories(func(list []data.Repository) ([]data.Repository, error) {
		for _, def := range DefaultRepositories() {
			found := false
			for _, r := range list {
				if r.ID == def.ID {
					found = true
					break
				}
			}
			if !found {
				list = append(list, def)
			}
		}
		return list, nil
	})
}

// ListRepositories returns the persisted repository list.
func (c *Catalog) ListRepositories() ([]data.Repository, error) {
	return c.store.Repositories()
}

// AddRepository validates the endpoint at rawURL and persists it. name is
// optional; when empty the name is resolved from the manifest, then the
// page title of the base URL, then the last path segment. Returns
// ErrAlreadyAdded for a duplicate normalized base URL and an
// InvalidRepositoryError when the manifest is unreachable or malformed.
func (c *Catalog) AddRepository(ctx context.Context, rawURL, name string) (data.Repository, error) {
	base := NormalizeBaseURL(rawURL)
	if base == "" {
		return data.Repository{}, &InvalidRepositoryError{URL: rawURL, Err: errors.New("empty URL")}
	}

	id := RepositoryID(base)

	existing, err := c.store.Repositories()
	if err != nil {
		return data.Repository{}, err
	}
	// The derived id drops the URL scheme, so http:// and https:// variants
	// of one endpoint must collide here, not coexist under one id.
	for _, r := range existing {
		if r.BaseURL == base || r.ID == id {
			return data.Repository{}, ErrAlreadyAdded
		}
	}

	// Validate before persisting: no partial state on a bad endpoint.
	manifest, err := c.resolver.FetchManifest(ctx, base)
	if err != nil {
		return data.Repository{}, &InvalidRepositoryError{URL: base, Err: err}
	}

	if name == "" {
		name = c.resolveName(ctx, base, manifest)
	}

	repo := data.Repository{ID: id, Name: name, BaseURL: base}

	err = c.store.UpdateRepositories(func(list []data.Repository) ([]data.Repository, error) {
		for _, r := range list {
			if r.BaseURL == base || r.ID == id {
				return nil, ErrAlreadyAdded
			}
		}
		return append(list, repo), nil
	})
	if err != nil {
		return data.Repository{}, err
	}

	c.log.Info("repository added", "id", repo.ID, "url", repo.BaseURL)
	return repo, nil
}

// RemoveRepository deletes the repository with the given id. Removing an
// unknown id is a no-op. Extensions installed from it stay usable; only
// repository browsing for them is gone.
func (c *Catalog) RemoveRepository(id string) error {
	return c.store.UpdateRepositories(func(list []data.Repository) ([]data.Repository, error) {
		out := list[:0]
		for _, r := range list {
			if r.ID != id {
				out = append(out, r)
			}
		}
		return out, nil
	})
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// resolveName implements the three-step name resolution: manifest-declared
// name, page-title scrape of the base URL, then the last non-empty path
// segment capitalized.
func (c *Catalog) resolveName(ctx context.Context, base string, manifest *data.Manifest) string {
	if manifest.Name != "" {
		return manifest.Name
	}

	if body, err := c.api.GetBytes(ctx, base); err == nil {
		if m := titleRe.FindSubmatch(body); m != nil {
			if title := strings.TrimSpace(html.UnescapeString(string(m[1]))); title != "" {
				return title
			}
		}
	}

	return fallbackName(base)
}

func fallbackName(base string) string {
	path := base
	host := ""
	if u, err := url.Parse(base); err == nil {
		path = u.Path
		host = u.Host
	}
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(segments[i]); s != "" && !strings.Contains(s, ".") {
			return strings.ToUpper(s[:1]) + s[1:]
		}
	}
	// Host-only URL: no usable path segment, name after the host.
	if host != "" {
		return strings.ToUpper(host[:1]) + host[1:]
	}
	return base
}
