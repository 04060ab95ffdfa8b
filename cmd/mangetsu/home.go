package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var homeCmd = &cobra.Command{
	Use:   "home [extension-id]",
	Short: "Show an extension's landing shelves",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		sections := c.bridge.GetHomeSections(cmd.Context(), args[0])
		if len(sections) == 0 {
			fmt.Println("No sections available.")
			return
		}

		for _, section := range sections {
			fmt.Printf("📚 %s\n", section.Title)
			t := newTable("Title", "ID")
			for _, manga := range section.Items {
				t.Row(truncateString(manga.Title, 40), manga.ID)
			}
			fmt.Println(t)
		}
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags [extension-id]",
	Short: "List an extension's browsable tags",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		tags := c.bridge.GetTags(cmd.Context(), args[0])
		if len(tags) == 0 {
			fmt.Println("No tags available.")
			return
		}

		t := newTable("Tag", "ID")
		for _, tag := range tags {
			t.Row(tag.Label, tag.ID)
		}
		fmt.Println(t)
	},
}

func init() {
	homeCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(homeCmd)
}
