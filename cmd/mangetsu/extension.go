package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kerbaras/mangetsu/pkg/data"
	"github.com/kerbaras/mangetsu/pkg/registry"
)

var extCmd = &cobra.Command{
	Use:   "ext",
	Short: "Manage installed extensions",
}

var extListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed extensions",
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		exts, err := c.installer.Installed()
		cobra.CheckErr(err)

		if len(exts) == 0 {
			fmt.Println("No extensions installed.")
			fmt.Println("💡 Browse a repository with: mangetsu ext browse <repo-id>")
			return
		}

		t := newTable("ID", "Name", "Version", "Repository")
		for _, e := range exts {
			t.Row(e.ID, e.Name, e.Version, e.RepoID)
		}
		fmt.Println(t)
	},
}

var extBrowseCmd = &cobra.Command{
	Use:   "browse [repo-id]",
	Short: "List extensions available from a repository",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		repos, err := c.catalog.ListRepositories()
		cobra.CheckErr(err)

		for _, r := range repos {
			if r.ID != args[0] {
				continue
			}

			manifest, err := c.resolver.FetchManifest(cmd.Context(), r.BaseURL)
			cobra.CheckErr(err)

			t := newTable("ID", "Name", "Version", "Rating")
			for _, e := range manifest.Sources {
				t.Row(e.ID, e.Name, e.Version, e.ContentRating)
			}
			fmt.Println(t)
			return
		}
		cobra.CheckErr(fmt.Errorf("unknown repository: %s", args[0]))
	},
}

var extInstallCmd = &cobra.Command{
	Use:   "install [repo-id] [extension-id]",
	Short: "Install an extension from a repository",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		repoID, extID := args[0], args[1]

		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		repos, err := c.catalog.ListRepositories()
		cobra.CheckErr(err)

		var repo *data.Repository
		for i := range repos {
			if repos[i].ID == repoID {
				repo = &repos[i]
				break
			}
		}
		if repo == nil {
			cobra.CheckErr(fmt.Errorf("unknown repository: %s", repoID))
		}

		manifest, err := c.resolver.FetchManifest(cmd.Context(), repo.BaseURL)
		cobra.CheckErr(err)

		var entry *data.ManifestEntry
		for i := range manifest.Sources {
			if manifest.Sources[i].ID == extID {
				entry = &manifest.Sources[i]
				break
			}
		}
		if entry == nil {
			cobra.CheckErr(fmt.Errorf("repository %s does not publish %s", repoID, extID))
		}

		ext, err := c.installer.Install(cmd.Context(), *entry, *repo)
		if errors.Is(err, registry.ErrAlreadyInstalled) {
			fmt.Printf("ℹ️  %s is already installed. Use: mangetsu ext reinstall %s\n", extID, extID)
			return
		}
		cobra.CheckErr(err)

		fmt.Printf("✅ Installed %s v%s\n", ext.Name, ext.Version)
	},
}

var extUninstallCmd = &cobra.Command{
	Use:   "uninstall [extension-id]",
	Short: "Uninstall an extension",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		cobra.CheckErr(c.installer.Uninstall(args[0]))
		fmt.Printf("✅ Uninstalled %s\n", args[0])
	},
}

var extReinstallCmd = &cobra.Command{
	Use:   "reinstall [extension-id]",
	Short: "Re-download an installed extension's payload in place",
	Long:  "Extension authors ship in-place updates; reinstall refreshes the payload while keeping the extension's position",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		ext, err := c.installer.Reinstall(cmd.Context(), args[0])
		if errors.Is(err, registry.ErrNotInstalled) {
			cobra.CheckErr(fmt.Errorf("%s is not installed", args[0]))
		}
		cobra.CheckErr(err)

		fmt.Printf("✅ Reinstalled %s v%s\n", ext.Name, ext.Version)
	},
}

var applyUpdates bool

var extUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check installed extensions for newer versions",
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		updates, err := c.installer.Updates(cmd.Context())
		cobra.CheckErr(err)

		if len(updates) == 0 {
			fmt.Println("✅ All extensions are up to date.")
			return
		}

		t := newTable("ID", "Name", "Installed", "Available")
		for _, u := range updates {
			t.Row(u.Extension.ID, u.Extension.Name, u.Extension.Version, u.Available.Version)
		}
		fmt.Println(t)

		if !applyUpdates {
			fmt.Println("💡 Apply with: mangetsu ext update --apply")
			return
		}
		for _, u := range updates {
			ext, err := c.installer.Reinstall(cmd.Context(), u.Extension.ID)
			if err != nil {
				fmt.Printf("❌ %s: %v\n", u.Extension.ID, err)
				continue
			}
			fmt.Printf("✅ Updated %s to v%s\n", ext.Name, ext.Version)
		}
	},
}

func init() {
	extUpdateCmd.Flags().BoolVar(&applyUpdates, "apply", false, "reinstall every outdated extension")

	extCmd.AddCommand(extListCmd)
	extCmd.AddCommand(extBrowseCmd)
	extCmd.AddCommand(extInstallCmd)
	extCmd.AddCommand(extUninstallCmd)
	extCmd.AddCommand(extReinstallCmd)
	extCmd.AddCommand(extUpdateCmd)
	rootCmd.AddCommand(extCmd)
}
