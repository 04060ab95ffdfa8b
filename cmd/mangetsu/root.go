// Package cmd wires the CLI to the core: repository catalog, extension
// installer, runtime bridge, preload pipeline and download queue.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/kerbaras/mangetsu/pkg/data"
	"github.com/kerbaras/mangetsu/pkg/reader"
	"github.com/kerbaras/mangetsu/pkg/registry"
	"github.com/kerbaras/mangetsu/pkg/runtime"
	"github.com/kerbaras/mangetsu/pkg/services"
	"github.com/kerbaras/mangetsu/pkg/utils"
)

const appName = "mangetsu"

var (
	flagDataDir   string
	flagJSRuntime string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "mangetsu",
	Short: "A manga reader powered by community extensions",
	Long:  "Install community source extensions from third-party repositories and read or download manga through them",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if flagVerbose {
			level = slog.LevelDebug
		}
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		slog.SetDefault(slog.New(handler))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", filepath.Join(xdg.DataHome, appName), "Data directory")
	rootCmd.PersistentFlags().StringVar(&flagJSRuntime, "js-runtime", "node", "JavaScript runtime command used to execute extensions")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// core holds the wired-up subsystems. Commands open it, use what they need
// and close it before exiting.
type core struct {
	store     *data.Store
	library   *data.Library
	catalog   *registry.Catalog
	resolver  *registry.Resolver
	installer *registry.Installer
	bridge    *runtime.Bridge
	preloader *reader.Preloader
	queue     *services.Queue

	downloadDir string
}

func openCore() (*core, error) {
	log := slog.Default()

	store, err := data.OpenStore(filepath.Join(flagDataDir, "mangetsu.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	library, err := data.OpenLibrary(filepath.Join(flagDataDir, "library.duckdb"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	api := utils.NewAPI()
	resolver := registry.NewResolver(api)
	catalog := registry.NewCatalog(store, resolver, api, log)
	installer := registry.NewInstaller(store, resolver, api, log)

	invoker := runtime.NewProcessInvoker(flagJSRuntime)
	bridge := runtime.NewBridge(invoker, installer, log)
	drm := runtime.NewDRMResolver(bridge, log)
	preloader := reader.NewPreloader(drm, log)

	downloadDir := filepath.Join(flagDataDir, "downloads")
	queue := services.NewQueue(store, library, bridge, preloader, downloadDir, log)

	if err := catalog.Load(); err != nil {
		_ = library.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to load repository catalog: %w", err)
	}
	if err := queue.Restore(); err != nil {
		_ = library.Close()
		_ = store.Close()
		return nil, fmt.Errorf("failed to restore download queue: %w", err)
	}

	return &core{
		store:       store,
		library:     library,
		catalog:     catalog,
		resolver:    resolver,
		installer:   installer,
		bridge:      bridge,
		preloader:   preloader,
		queue:       queue,
		downloadDir: downloadDir,
	}, nil
}

func (c *core) Close() {
	_ = c.library.Close()
	_ = c.store.Close()
}

// stopOnSignal derives a context cancelled by SIGINT or SIGTERM so the
// queue runner shuts down cleanly when the monitor exits.
func stopOnSignal(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
