package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bulkimport",
		Short: "bulkimport - paginated bulk import pipelines",
		Long: `bulkimport migrates entities between SQL databases, MongoDB and paginated HTTP sources.
Each entity runs a list of pipelines that resume from their last page, skip records already
imported and record per-item failures for later inspection.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewImportCmd())

	return rootCmd
}
