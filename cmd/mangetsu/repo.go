package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/kerbaras/mangetsu/pkg/registry"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage extension repositories",
}

var repoAddCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add an extension repository",
	Long:  "Validate and add an extension repository by its base URL (a versioning.json URL works too)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")

		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		repo, err := c.catalog.AddRepository(cmd.Context(), args[0], name)
		if errors.Is(err, registry.ErrAlreadyAdded) {
			fmt.Println("ℹ️  That repository is already added.")
			return
		}
		var invalid *registry.InvalidRepositoryError
		if errors.As(err, &invalid) {
			cobra.CheckErr(fmt.Errorf("repository did not serve a valid manifest: %w", err))
		}
		cobra.CheckErr(err)

		fmt.Printf("✅ Added repository '%s' (%s)\n", repo.Name, repo.ID)
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove [repo-id]",
	Short: "Remove an extension repository",
	Long:  "Remove a repository; extensions installed from it stay usable",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		cobra.CheckErr(c.catalog.RemoveRepository(args[0]))
		fmt.Printf("✅ Removed repository %s\n", args[0])
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known repositories",
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		repos, err := c.catalog.ListRepositories()
		cobra.CheckErr(err)

		if len(repos) == 0 {
			fmt.Println("No repositories added.")
			return
		}

		t := newTable("ID", "Name", "URL")
		for _, r := range repos {
			t.Row(r.ID, r.Name, r.BaseURL)
		}
		fmt.Println(t)
	},
}

// newTable builds the standard purple-headed lipgloss table.
func newTable(headers ...string) *table.Table {
	purple := lipgloss.Color("99")
	headerStyle := lipgloss.NewStyle().Foreground(purple).Bold(true).Align(lipgloss.Center)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(purple)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

func init() {
	repoAddCmd.Flags().StringP("name", "n", "", "Display name for the repository")

	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoRemoveCmd)
	repoCmd.AddCommand(repoListCmd)
	rootCmd.AddCommand(repoCmd)
}
