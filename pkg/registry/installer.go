package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kerbaras/mangetsu/pkg/data"
	"github.com/kerbaras/mangetsu/pkg/utils"
)

// ErrAlreadyInstalled is returned when installing an extension whose id is
// already in the installed set.
var ErrAlreadyInstalled = errors.New("extension already installed")

// ErrNotInstalled is returned by Reinstall for an unknown extension id.
var ErrNotInstalled = errors.New("extension not installed")

// InstallError wraps a network or storage failure during install. The
// installed set is left unchanged when it is returned.
type InstallError struct {
	ExtensionID string
	Reason      string
	Err         error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("failed to install %s: %s: %v", e.ExtensionID, e.Reason, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Installer downloads extension payloads and maintains the persisted
// installed set. The list is ordered: insertion order is install order and
// drives source-tab ordering in the UI.
type Installer struct {
	store    *data.Store
	resolver *Resolver
	api      *utils.API
	log      *slog.Logger
}

// NewInstaller returns an Installer backed by store.
func NewInstaller(store *data.Store, resolver *Resolver, api *utils.API, log *slog.Logger) *Installer {
	if log == nil {
		log = slog.Default()
	}
	return &Installer{store: store, resolver: resolver, api: api, log: log}
}

// Installed returns the installed extensions in install order.
func (i *Installer) Installed() ([]data.InstalledExtension, error) {
	return i.store.Extensions()
}

// Extension returns the installed extension with the given id.
func (i *Installer) Extension(id string) (data.InstalledExtension, bool, error) {
	list, err := i.store.Extensions()
	if err != nil {
		return data.InstalledExtension{}, false, err
	}
	for _, ext := range list {
		if ext.ID == id {
			return ext, true, nil
		}
	}
	return data.InstalledExtension{}, false, nil
}

// Install downloads the payload for entry from repo and appends the new
// extension to the installed set. A duplicate id is rejected with
// ErrAlreadyInstalled; any download failure leaves the set unchanged.
func (i *Installer) Install(ctx context.Context, entry data.ManifestEntry, repo data.Repository) (data.InstalledExtension, error) {
	payload, err := i.fetchPayload(ctx, repo.BaseURL, entry.ID)
	if err != nil {
		return data.InstalledExtension{}, err
	}

	ext := data.InstalledExtension{
		ManifestEntry: entry,
		RepoID:        repo.ID,
		RepoBaseURL:   repo.BaseURL,
		Payload:       payload,
	}

	err = i.store.UpdateExtensions(func(list []data.InstalledExtension) ([]data.InstalledExtension, error) {
		for _, e := range list {
			if e.ID == entry.ID {
				return nil, ErrAlreadyInstalled
			}
		}
		return append(list, ext), nil
	})
	if err != nil {
		return data.InstalledExtension{}, err
	}

	i.log.Info("extension installed", "id", ext.ID, "version", ext.Version, "repo", repo.ID)
	return ext, nil
}

// Uninstall removes the extension with the given id, preserving the order
// of the remaining entries. Uninstalling an unknown id is a no-op.
func (i *Installer) Uninstall(id string) error {
	return i.store.UpdateExtensions(func(list []data.InstalledExtension) ([]data.InstalledExtension, error) {
		out := list[:0]
		for _, e := range list {
			if e.ID != id {
				out = append(out, e)
			}
		}
		return out, nil
	})
}

// Reinstall re-fetches the current manifest entry and payload for an
// already-installed extension and replaces it in place, keeping its list
// position. Extension authors ship in-place updates without bumping the
// version, so replace-in-place avoids UI reordering surprises.
func (i *Installer) Reinstall(ctx context.Context, id string) (data.InstalledExtension, error) {
	current, ok, err := i.Extension(id)
	if err != nil {
		return data.InstalledExtension{}, err
	}
	if !ok {
		return data.InstalledExtension{}, ErrNotInstalled
	}

	// The origin repository may have been removed; the stored base URL
	// still works as long as the endpoint is alive.
	entry := current.ManifestEntry
	if manifest, err := i.resolver.FetchManifest(ctx, current.RepoBaseURL); err == nil {
		for _, e := range manifest.Sources {
			if e.ID == id {
				entry = e
				break
			}
		}
	}

	payload, err := i.fetchPayload(ctx, current.RepoBaseURL, id)
	if err != nil {
		return data.InstalledExtension{}, err
	}

	next := data.InstalledExtension{
		ManifestEntry: entry,
		RepoID:        current.RepoID,
		RepoBaseURL:   current.RepoBaseURL,
		Payload:       payload,
	}

	err = i.store.UpdateExtensions(func(list []data.InstalledExtension) ([]data.InstalledExtension, error) {
		for idx, e := range list {
			if e.ID == id {
				list[idx] = next
				return list, nil
			}
		}
		return nil, ErrNotInstalled
	})
	if err != nil {
		return data.InstalledExtension{}, err
	}

	i.log.Info("extension reinstalled", "id", id, "version", next.Version)
	return next, nil
}

// Update describes an installed extension whose origin repository now
// serves a different version.
type Update struct {
	Extension data.InstalledExtension
	Available data.ManifestEntry
}

// Updates compares every installed extension against its origin
// repository's current manifest and returns the ones whose version
// changed. Manifests are fetched once per repository, concurrently; a
// repository that fails to respond is skipped rather than failing the
// whole check.
func (i *Installer) Updates(ctx context.Context) ([]Update, error) {
	installed, err := i.Installed()
	if err != nil {
		return nil, err
	}

	urls := make([]string, 0, len(installed))
	seen := make(map[string]bool)
	for _, ext := range installed {
		if !seen[ext.RepoBaseURL] {
			seen[ext.RepoBaseURL] = true
			urls = append(urls, ext.RepoBaseURL)
		}
	}

	var (
		mu        sync.Mutex
		manifests = make(map[string]*data.Manifest)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, baseURL := range urls {
		g.Go(func() error {
			manifest, err := i.resolver.FetchManifest(gctx, baseURL)
			if err != nil {
				i.log.Warn("update check skipped repository", "url", baseURL, "error", err)
				return nil
			}
			mu.Lock()
			manifests[baseURL] = manifest
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var updates []Update
	for _, ext := range installed {
		manifest := manifests[ext.RepoBaseURL]
		if manifest == nil {
			continue
		}
		for _, entry := range manifest.Sources {
			if entry.ID == ext.ID && entry.Version != ext.Version {
				updates = append(updates, Update{Extension: ext, Available: entry})
				break
			}
		}
	}
	return updates, nil
}

func (i *Installer) fetchPayload(ctx context.Context, baseURL, id string) (string, error) {
	body, err := i.api.GetBytes(ctx, PayloadURL(baseURL, id))
	if err != nil {
		return "", &InstallError{ExtensionID: id, Reason: "payload download failed", Err: err}
	}
	if len(body) == 0 {
		return "", &InstallError{ExtensionID: id, Reason: "empty payload", Err: errors.New("no content")}
	}
	return string(body), nil
}
