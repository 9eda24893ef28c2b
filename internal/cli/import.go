package cli

import (
	"github.com/spf13/cobra"
)

type ImportOptions struct {
	PipelineFile string
	EntityIDs    []string
	SourcePaths  []string
	SourceType   string
	JobID        string
	Dry          bool
}

func NewImportCmd() *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Bulk import operations",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run every pipeline of the given entities",
		Long: `Run creates one entity per --source-path (or resumes the entities given with --entity-id)
and runs all pipelines from the pipeline file for each of them.`,
		RunE: func(c *cobra.Command, args []string) error {
			return runImport(c, opts)
		},
	}
	run.Flags().StringVarP(&opts.PipelineFile, "file", "f", "configs/pipelines.yaml", "Path to pipeline definition file (JSON or YAML)")
	run.Flags().StringSliceVar(&opts.EntityIDs, "entity-id", nil, "Resume existing entities")
	run.Flags().StringSliceVar(&opts.SourcePaths, "source-path", nil, "Source full path of a new entity")
	run.Flags().StringVar(&opts.SourceType, "source-type", "group", "Source type recorded on new entities")
	run.Flags().StringVar(&opts.JobID, "job-id", "", "Job id for new entities (generated when empty)")
	run.Flags().BoolVar(&opts.Dry, "dry-run", false, "Keep entity, tracker and failure state in memory")

	status := &cobra.Command{
		Use:   "status <entity-id>",
		Short: "Show an entity and its pipeline trackers",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return showStatus(c, args[0])
		},
	}

	failures := &cobra.Command{
		Use:   "failures [entity-id]",
		Short: "List recorded item failures",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			entityID := ""
			if len(args) == 1 {
				entityID = args[0]
			}
			return listFailures(c, entityID)
		},
	}

	cmd.AddCommand(run, status, failures)
	return cmd
}
