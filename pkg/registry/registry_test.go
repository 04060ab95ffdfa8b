package registry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kerbaras/mangetsu/pkg/data"
	"github.com/kerbaras/mangetsu/pkg/utils"
)

// repoServer fakes an extension repository: a manifest at /versioning.json
// and a payload per extension at /<id>/source.js.
func repoServer(t *testing.T, manifest data.Manifest, payloads map[string]string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/versioning.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(manifest)
	})
	for id := range payloads {
		// Read the map per request so tests can swap payloads mid-flight.
		mux.HandleFunc("/"+id+"/source.js", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(payloads[id]))
		})
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupRegistry(t *testing.T) (*data.Store, *Catalog, *Installer) {
	t.Helper()

	store, err := data.OpenStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	api := utils.NewAPI()
	resolver := NewResolver(api)
	catalog := NewCatalog(store, resolver, api, nil)
	installer := NewInstaller(store, resolver, api, nil)
	return store, catalog, installer
}

func testManifest() data.Manifest {
	return data.Manifest{
		Name:      "Test Extensions",
		BuildTime: "2025-06-01T00:00:00Z",
		Sources: []data.ManifestEntry{
			{ID: "mangadex", Name: "MangaDex", Version: "1.2.0", ContentRating: "EVERYONE"},
			{ID: "comick", Name: "ComicK", Version: "0.9.1", ContentRating: "EVERYONE"},
		},
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "https://x.dev/repo", NormalizeBaseURL("https://x.dev/repo"))
	assert.Equal(t, "https://x.dev/repo", NormalizeBaseURL("https://x.dev/repo/"))
	assert.Equal(t, "https://x.dev/repo", NormalizeBaseURL("https://x.dev/repo/versioning.json"))
	assert.Equal(t, "https://x.dev/repo", NormalizeBaseURL("  https://x.dev/repo/versioning.json  "))
}

func TestRepositoryID(t *testing.T) {
	assert.Equal(t, "x-dev-repo", RepositoryID("https://x.dev/repo"))
	assert.Equal(t, "x-dev-repo", RepositoryID("http://X.dev/Repo/"))
	assert.Equal(t, "extensions-mangetsu-moe-community", RepositoryID("https://extensions.mangetsu.moe/community"))
}

func TestCatalogLoadMergesDefaults(t *testing.T) {
	_, catalog, _ := setupRegistry(t)

	require.NoError(t, catalog.Load())
	repos, err := catalog.ListRepositories()
	require.NoError(t, err)
	assert.Len(t, repos, len(DefaultRepositories()))

	// Second load must not duplicate.
	require.NoError(t, catalog.Load())
	repos, err = catalog.ListRepositories()
	require.NoError(t, err)
	assert.Len(t, repos, len(DefaultRepositories()))
}

func TestCatalogLoadKeepsUserRepositories(t *testing.T) {
	store, catalog, _ := setupRegistry(t)

	err := store.UpdateRepositories(func(list []data.Repository) ([]data.Repository, error) {
		return append(list, data.Repository{ID: "mine", Name: "Mine", BaseURL: "https://mine.dev/repo"}), nil
	})
	require.NoError(t, err)

	require.NoError(t, catalog.Load())
	repos, err := catalog.ListRepositories()
	require.NoError(t, err)
	assert.Len(t, repos, len(DefaultRepositories())+1)
	assert.Equal(t, "mine", repos[0].ID)
}

func TestCatalogAddRepository(t *testing.T) {
	srv := repoServer(t, testManifest(), nil)
	_, catalog, _ := setupRegistry(t)

	repo, err := catalog.AddRepository(context.Background(), srv.URL+"/", "")
	require.NoError(t, err)
	assert.Equal(t, srv.URL, repo.BaseURL)
	assert.Equal(t, "Test Extensions", repo.Name, "name should come from the manifest")

	// Same endpoint again, even via its manifest URL, is a duplicate.
	_, err = catalog.AddRepository(context.Background(), srv.URL+"/versioning.json", "")
	assert.ErrorIs(t, err, ErrAlreadyAdded)

	repos, err := catalog.ListRepositories()
	require.NoError(t, err)
	assert.Len(t, repos, 1)
}

func TestCatalogAddRepositoryRejectsSchemeVariant(t *testing.T) {
	srv := repoServer(t, testManifest(), nil)
	_, catalog, _ := setupRegistry(t)

	repo, err := catalog.AddRepository(context.Background(), srv.URL, "")
	require.NoError(t, err)

	// The derived id drops the scheme, so the https variant of the same
	// endpoint collides with the stored http one instead of persisting a
	// second repository under the same id.
	httpsURL := "https" + strings.TrimPrefix(srv.URL, "http")
	assert.Equal(t, repo.ID, RepositoryID(NormalizeBaseURL(httpsURL)))

	_, err = catalog.AddRepository(context.Background(), httpsURL, "")
	assert.ErrorIs(t, err, ErrAlreadyAdded)

	repos, err := catalog.ListRepositories()
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, srv.URL, repos[0].BaseURL)
}

func TestCatalogAddRepositoryExplicitName(t *testing.T) {
	srv := repoServer(t, testManifest(), nil)
	_, catalog, _ := setupRegistry(t)

	repo, err := catalog.AddRepository(context.Background(), srv.URL, "My Repo")
	require.NoError(t, err)
	assert.Equal(t, "My Repo", repo.Name)
}

func TestCatalogAddInvalidRepository(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	_, catalog, _ := setupRegistry(t)

	_, err := catalog.AddRepository(context.Background(), srv.URL, "")
	var invalid *InvalidRepositoryError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, srv.URL, invalid.URL)

	repos, err := catalog.ListRepositories()
	require.NoError(t, err)
	assert.Empty(t, repos, "a failed add must not persist anything")
}

func TestCatalogRemoveRepository(t *testing.T) {
	srv := repoServer(t, testManifest(), nil)
	_, catalog, _ := setupRegistry(t)

	repo, err := catalog.AddRepository(context.Background(), srv.URL, "")
	require.NoError(t, err)

	require.NoError(t, catalog.RemoveRepository(repo.ID))
	repos, err := catalog.ListRepositories()
	require.NoError(t, err)
	assert.Empty(t, repos)

	// Removing again is a no-op.
	require.NoError(t, catalog.RemoveRepository(repo.ID))
}

func TestResolveNameFromPageTitle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/versioning.json", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(data.Manifest{Sources: []data.ManifestEntry{}})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><TITLE>  Scraped &amp; Found  </TITLE></head></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	_, catalog, _ := setupRegistry(t)
	repo, err := catalog.AddRepository(context.Background(), srv.URL, "")
	require.NoError(t, err)
	assert.Equal(t, "Scraped & Found", repo.Name)
}

func TestFallbackName(t *testing.T) {
	assert.Equal(t, "Community", fallbackName("https://x.dev/extensions/community"))
	assert.Equal(t, "Repo", fallbackName("https://x.dev/repo/"))
	// Host-only URLs name after the host, never the scheme.
	assert.Equal(t, "Example.com", fallbackName("https://example.com"))
	assert.Equal(t, "Example.com", fallbackName("http://example.com/"))
}

func TestFetchManifest(t *testing.T) {
	srv := repoServer(t, testManifest(), nil)
	resolver := NewResolver(utils.NewAPI())

	m, err := resolver.FetchManifest(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, m.Sources, 2)
	assert.Equal(t, "mangadex", m.Sources[0].ID)
}

func TestFetchManifestRoundTripsAllFields(t *testing.T) {
	manifest := data.Manifest{
		Name:      "Full Fixture",
		BuildTime: "2025-06-01T12:34:56Z",
		Sources: []data.ManifestEntry{
			{
				ID:             "mangadex",
				Name:           "MangaDex",
				Author:         "community",
				Desc:           "The largest community source",
				Version:        "1.2.0",
				Icon:           "icon.png",
				Tags:           []string{"recommended", "multi-language"},
				ContentRating:  "MATURE",
				WebsiteBaseURL: "https://mangadex.org",
				Intents:        53,
			},
		},
		BuiltWith: data.BuildInfo{Toolchain: "0.8.0", Types: "0.8.0"},
	}
	srv := repoServer(t, manifest, nil)

	got, err := NewResolver(utils.NewAPI()).FetchManifest(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, manifest, *got, "every manifest field must survive the fetch")
}

func TestPayloadAndIconURLs(t *testing.T) {
	assert.Equal(t, "https://x.dev/repo/mangadex/source.js", PayloadURL("https://x.dev/repo", "mangadex"))
	assert.Equal(t, "https://x.dev/repo/mangadex/includes/icon.png", IconURL("https://x.dev/repo", "mangadex", "icon.png"))
}

func TestInstallerInstall(t *testing.T) {
	srv := repoServer(t, testManifest(), map[string]string{"mangadex": "module.exports = {}"})
	_, _, installer := setupRegistry(t)

	repo := data.Repository{ID: "test", BaseURL: srv.URL}
	entry := testManifest().Sources[0]

	ext, err := installer.Install(context.Background(), entry, repo)
	require.NoError(t, err)
	assert.Equal(t, "mangadex", ext.ID)
	assert.Equal(t, "module.exports = {}", ext.Payload)
	assert.Equal(t, srv.URL, ext.RepoBaseURL)

	_, err = installer.Install(context.Background(), entry, repo)
	assert.ErrorIs(t, err, ErrAlreadyInstalled)

	got, ok, err := installer.Extension("mangadex")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.2.0", got.Version)
}

func TestInstallerInstallFailureLeavesSetUnchanged(t *testing.T) {
	// Manifest is fine but the payload endpoint is missing.
	srv := repoServer(t, testManifest(), nil)
	_, _, installer := setupRegistry(t)

	repo := data.Repository{ID: "test", BaseURL: srv.URL}
	_, err := installer.Install(context.Background(), testManifest().Sources[0], repo)

	var instErr *InstallError
	require.ErrorAs(t, err, &instErr)
	assert.Equal(t, "mangadex", instErr.ExtensionID)

	installed, err := installer.Installed()
	require.NoError(t, err)
	assert.Empty(t, installed)
}

func TestInstallerUninstallKeepsOrder(t *testing.T) {
	srv := repoServer(t, testManifest(), map[string]string{
		"mangadex": "a", "comick": "b",
	})
	_, _, installer := setupRegistry(t)
	repo := data.Repository{ID: "test", BaseURL: srv.URL}

	for _, entry := range testManifest().Sources {
		_, err := installer.Install(context.Background(), entry, repo)
		require.NoError(t, err)
	}

	require.NoError(t, installer.Uninstall("mangadex"))
	installed, err := installer.Installed()
	require.NoError(t, err)
	require.Len(t, installed, 1)
	assert.Equal(t, "comick", installed[0].ID)

	// Unknown id is a no-op.
	require.NoError(t, installer.Uninstall("nope"))
}

func TestInstallerReinstallKeepsPosition(t *testing.T) {
	manifest := testManifest()
	payloads := map[string]string{"mangadex": "v1", "comick": "v1"}
	srv := repoServer(t, manifest, payloads)
	_, _, installer := setupRegistry(t)
	repo := data.Repository{ID: "test", BaseURL: srv.URL}

	for _, entry := range manifest.Sources {
		_, err := installer.Install(context.Background(), entry, repo)
		require.NoError(t, err)
	}

	payloads["mangadex"] = "v2"
	ext, err := installer.Reinstall(context.Background(), "mangadex")
	require.NoError(t, err)
	assert.Equal(t, "v2", ext.Payload)

	installed, err := installer.Installed()
	require.NoError(t, err)
	require.Len(t, installed, 2)
	assert.Equal(t, "mangadex", installed[0].ID, "reinstall must keep list position")
	assert.Equal(t, "v2", installed[0].Payload)
}

func TestInstallerReinstallUnknown(t *testing.T) {
	_, _, installer := setupRegistry(t)

	_, err := installer.Reinstall(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotInstalled)
}

func TestInstallerUpdates(t *testing.T) {
	manifest := testManifest()
	srv := repoServer(t, manifest, map[string]string{"mangadex": "v1", "comick": "v1"})
	_, _, installer := setupRegistry(t)
	repo := data.Repository{ID: "test", BaseURL: srv.URL}

	// Install an older version of mangadex and the current comick.
	old := manifest.Sources[0]
	old.Version = "1.0.0"
	_, err := installer.Install(context.Background(), old, repo)
	require.NoError(t, err)
	_, err = installer.Install(context.Background(), manifest.Sources[1], repo)
	require.NoError(t, err)

	updates, err := installer.Updates(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "mangadex", updates[0].Extension.ID)
	assert.Equal(t, "1.0.0", updates[0].Extension.Version)
	assert.Equal(t, "1.2.0", updates[0].Available.Version)
}

func TestInstallerUpdatesSkipsDeadRepository(t *testing.T) {
	store, _, installer := setupRegistry(t)

	err := store.UpdateExtensions(func(list []data.InstalledExtension) ([]data.InstalledExtension, error) {
		ext := data.InstalledExtension{
			ManifestEntry: data.ManifestEntry{ID: "ghost", Version: "1.0.0"},
			RepoBaseURL:   "http://127.0.0.1:1",
		}
		return append(list, ext), nil
	})
	require.NoError(t, err)

	updates, err := installer.Updates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, updates)
}

func TestDefaultRepositoriesWellFormed(t *testing.T) {
	for _, repo := range DefaultRepositories() {
		assert.NotEmpty(t, repo.ID)
		assert.NotEmpty(t, repo.Name)
		assert.Equal(t, repo.BaseURL, NormalizeBaseURL(repo.BaseURL))
	}
}

func TestInvalidRepositoryErrorUnwrap(t *testing.T) {
	base := errors.New("base")
	err := &InvalidRepositoryError{URL: "x", Err: base}
	assert.ErrorIs(t, err, base)
}
