package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/BartekS5/bulkimport/internal/config"
	"github.com/BartekS5/bulkimport/internal/importer"
	"github.com/BartekS5/bulkimport/internal/store"
	"github.com/BartekS5/bulkimport/pkg/database"
	"github.com/BartekS5/bulkimport/pkg/logger"
	"github.com/BartekS5/bulkimport/pkg/models"
)

// backends are the open connections of one command invocation.
type backends struct {
	cfg      *config.Config
	sqlDB    *sql.DB
	mongo    *mongo.Client
	mongoDB  *mongo.Database
	failures *store.SQLFailures
}

func openBackends(ctx context.Context) (*backends, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.ConnectSQL(ctx, cfg.SQLDriver, cfg.SQLConnString)
	if err != nil {
		return nil, err
	}
	mongoClient, err := database.ConnectMongo(ctx, cfg.MongoConnString)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &backends{
		cfg:      cfg,
		sqlDB:    sqlDB,
		mongo:    mongoClient,
		mongoDB:  mongoClient.Database(cfg.MongoDatabase),
		failures: store.NewSQLFailures(sqlDB, cfg.SQLDriver),
	}, nil
}

func (b *backends) Close() {
	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.mongo.Disconnect(disconnectCtx); err != nil {
		logger.Warnf("mongo disconnect: %v", err)
	}
	if err := b.sqlDB.Close(); err != nil {
		logger.Warnf("sql close: %v", err)
	}
}

// stores returns persistent stores, or in-memory ones for dry runs.
func (b *backends) stores(ctx context.Context, dry bool) (importer.Stores, error) {
	identity := store.NewMemoryIdentityMapper(store.NewMongoIdentityResolver(b.mongoDB, ""))
	if dry {
		return importer.Stores{
			Entities:       store.NewMemoryEntities(),
			Trackers:       store.NewMemoryTrackers(),
			Failures:       store.NewMemoryFailures(),
			Dedup:          store.NewMemoryDedup(),
			IdentityMapper: identity,
		}, nil
	}

	trackers := store.NewMongoTrackers(b.mongoDB)
	if err := trackers.EnsureIndexes(ctx); err != nil {
		return importer.Stores{}, err
	}
	if err := b.failures.EnsureSchema(ctx); err != nil {
		return importer.Stores{}, err
	}
	return importer.Stores{
		Entities:       store.NewMongoEntities(b.mongoDB),
		Trackers:       trackers,
		Failures:       b.failures,
		Dedup:          store.NewMongoDedup(b.mongoDB),
		IdentityMapper: identity,
	}, nil
}

func (b *backends) settings() importer.Settings {
	return importer.Settings{
		MaxAttempts:   b.cfg.MaxAttempts,
		RetryDelay:    b.cfg.RetryDelay,
		Concurrency:   b.cfg.Concurrency,
		SourceBaseURL: b.cfg.SourceBaseURL,
	}
}

func runImport(c *cobra.Command, opts *ImportOptions) error {
	ctx := c.Context()
	if len(opts.EntityIDs) == 0 && len(opts.SourcePaths) == 0 {
		return fmt.Errorf("nothing to import: pass --entity-id or --source-path")
	}

	file, err := config.LoadPipelineFile(opts.PipelineFile)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	stores, err := b.stores(ctx, opts.Dry)
	if err != nil {
		return err
	}
	registry, err := importer.BuildRegistry(file, importer.Backends{
		SQL:       b.sqlDB,
		SQLDriver: b.cfg.SQLDriver,
		Mongo:     b.mongoDB,
	})
	if err != nil {
		return err
	}

	imp := importer.New(registry, stores, b.settings(), logger.Named("importer"))

	jobID := opts.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	ids := append([]string(nil), opts.EntityIDs...)
	for _, path := range opts.SourcePaths {
		e, err := imp.Submit(ctx, opts.SourceType, path, jobID)
		if err != nil {
			return err
		}
		ids = append(ids, e.ID)
	}

	logger.Infof("Starting import of %d entities with %d pipelines (job %s)...", len(ids), len(registry.Names()), jobID)
	results, err := imp.ImportAll(ctx, ids)
	printResults(c.OutOrStdout(), results)
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.State != models.StateFinished {
			return fmt.Errorf("entity %s ended in state %s", r.EntityID, r.State)
		}
	}
	fmt.Fprintln(c.OutOrStdout(), "Import finished successfully.")
	return nil
}

func printResults(w io.Writer, results []importer.EntityResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tPIPELINE\tOUTCOME\tATTEMPTS\tPAGES\tIMPORTED\tFAILURES")
	for _, r := range results {
		for _, p := range r.Pipelines {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n", r.EntityID, p.Pipeline,
				p.Outcome.Kind, p.Attempts, p.Outcome.Pages, p.Outcome.Imported, p.Outcome.Failures)
		}
	}
	tw.Flush()
}

func showStatus(c *cobra.Command, entityID string) error {
	ctx := c.Context()
	b, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	stores, err := b.stores(ctx, false)
	if err != nil {
		return err
	}
	imp := importer.New(nil, stores, b.settings(), logger.Named("importer"))

	entity, trackers, err := imp.Status(ctx, entityID)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	fmt.Fprintf(out, "Entity %s (%s %s): %s\n", entity.ID, entity.SourceType, entity.SourceFullPath, entity.State)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PIPELINE\tSTATE\tSOURCE\tFETCHED\tIMPORTED\tNEXT PAGE")
	for _, t := range trackers {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			t.Pipeline, t.State, t.SourceCount, t.FetchedCount, t.ImportedCount, t.NextPage)
	}
	return tw.Flush()
}

func listFailures(c *cobra.Command, entityID string) error {
	ctx := c.Context()
	b, err := openBackends(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	failures, err := b.failures.ListFailures(ctx, entityID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tPIPELINE\tSTAGE\tCLASS\tMESSAGE\tTITLE\tURL")
	for _, f := range failures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", f.CreatedAt.Format(time.RFC3339),
			f.PipelineName, f.Stage, f.ErrorClass, f.Message, f.SourceTitle, f.SourceURL)
	}
	return tw.Flush()
}
