package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kerbaras/mangetsu/pkg/integrations"
)

var exportOutputDir string
var exportTitle string

var exportCmd = &cobra.Command{
	Use:   "export [chapter-id]",
	Short: "Export a downloaded chapter as an EPUB",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		chapterID := args[0]

		c, err := openCore()
		cobra.CheckErr(err)
		defer c.Close()

		ch, err := c.library.GetChapter(chapterID)
		cobra.CheckErr(err)
		if ch == nil {
			cobra.CheckErr(fmt.Errorf("chapter %s is not downloaded", chapterID))
		}

		outDir := exportOutputDir
		if outDir == "" {
			outDir = filepath.Join(flagDataDir, "exports")
		}

		fmt.Println("📦 Building EPUB...")
		exporter := integrations.NewEPUBExporter(outDir)
		path, err := exporter.Export(*ch, exportTitle)
		cobra.CheckErr(err)
		fmt.Printf("✅ Exported to %s\n", path)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutputDir, "output", "o", "", "output directory (default: <data-dir>/exports)")
	exportCmd.Flags().StringVarP(&exportTitle, "title", "t", "", "EPUB title (default: derived from the chapter)")
	rootCmd.AddCommand(exportCmd)
}
