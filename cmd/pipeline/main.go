package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/permitlink/internal/arcgis"
	"github.com/permitlink/internal/archive"
	"github.com/permitlink/internal/bulkload"
	"github.com/permitlink/internal/config"
	"github.com/permitlink/internal/db"
	"github.com/permitlink/internal/extract"
	"github.com/permitlink/internal/logging"
	"github.com/permitlink/internal/model"
	"github.com/permitlink/internal/pipeline"
	"github.com/permitlink/internal/store"
	"github.com/permitlink/internal/web"
)

var (
	cfg    *config.Config
	logger *zap.Logger
	dbConn *db.Connection
)

func main() {
	var err error

	cfg, err = config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err = logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dbConn, err = db.NewConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	rootCmd := &cobra.Command{
		Use:   "pipeline",
		Short: "County property and permit ingestion pipeline",
		Long:  `Discovers GIS portal layers, extracts parcel and permit records, links permits to properties, and serves the results`,
	}

	rootCmd.AddCommand(createPingCmd())
	rootCmd.AddCommand(createMigrateCmd())
	rootCmd.AddCommand(createDiscoverCmd())
	rootCmd.AddCommand(createExtractCmd())
	rootCmd.AddCommand(createLinkCmd())
	rootCmd.AddCommand(createRescoreCmd())
	rootCmd.AddCommand(createBulkImportCmd())
	rootCmd.AddCommand(createCheckpointCmd())
	rootCmd.AddCommand(createServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func newService() *pipeline.Service {
	client := arcgis.NewClient(cfg.Discovery.HTTPTimeout, cfg.Discovery.Token, logger)
	discoverer := arcgis.NewDiscoverer(client, cfg.Discovery.Keywords, cfg.Discovery.FolderWorkers, logger)

	var archiver extract.Archiver
	if cfg.Archive.Enabled {
		raw, err := archive.NewRawStore(cfg.Archive, logger)
		if err != nil {
			log.Fatalf("Failed to initialize raw archive: %v", err)
		}
		archiver = raw
	}

	// Extraction gets its own client: page queries on large layers need
	// a longer timeout than directory listings.
	extractClient := arcgis.NewClient(cfg.Extract.HTTPTimeout, cfg.Discovery.Token, logger)
	checkpoints := store.NewCheckpointStore(dbConn.DB)
	extractor := extract.NewExtractor(extractClient, checkpoints, archiver, cfg.Extract, logger)

	return pipeline.NewService(
		discoverer,
		extractor,
		store.NewPropertyStore(dbConn.DB),
		store.NewPermitStore(dbConn.DB),
		store.NewRunStore(dbConn.DB),
		logger,
	)
}

func jurisdictionFlags(cmd *cobra.Command, state, county *string) {
	cmd.Flags().StringVar(state, "state", "", "State code, e.g. TN")
	cmd.Flags().StringVar(county, "county", "", "County name")
	_ = cmd.MarkFlagRequired("state")
	_ = cmd.MarkFlagRequired("county")
}

func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Database connection successful!")

			var count int
			if err := dbConn.DB.QueryRow("SELECT COUNT(*) FROM properties WHERE active").Scan(&count); err != nil {
				log.Printf("Error counting properties: %v", err)
			} else {
				fmt.Printf("Active properties: %d\n", count)
			}

			if err := dbConn.DB.QueryRow("SELECT COUNT(*) FROM permits").Scan(&count); err != nil {
				log.Printf("Error counting permits: %v", err)
			} else {
				fmt.Printf("Permits loaded: %d\n", count)
			}
		},
	}
}

func createMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Run: func(cmd *cobra.Command, args []string) {
			if err := db.RunMigrations(dbConn.DB, cfg.Database.MigrationsPath, logger); err != nil {
				log.Fatalf("Migration failed: %v", err)
			}
			fmt.Println("Migrations applied")
		},
	}
}

func createDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover [root-url]",
		Short: "Discover matching layers on a GIS portal",
		Long:  `Walk a portal's service catalog and list the layers whose names match the configured keywords`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService()
			layers, err := svc.Discover(cmd.Context(), args[0])
			if err != nil {
				log.Fatalf("Discovery failed: %v", err)
			}

			fmt.Printf("\n=== Discovered Layers (%d) ===\n", len(layers))
			fmt.Println("Layer                          | Records | Query URL")
			fmt.Println("-------------------------------|---------|----------")
			for _, l := range layers {
				fmt.Printf("%-30s | %7d | %s\n", l.Key(), l.RecordCount, l.QueryURL)
			}
		},
	}
}

func createExtractCmd() *cobra.Command {
	var state, county, portal, kind string

	cmd := &cobra.Command{
		Use:   "extract [root-url]",
		Short: "Discover and extract a portal's records",
		Long:  `Discover matching layers and drain them into the property or permit table, resuming from checkpoints`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService()
			j := model.Jurisdiction{State: state, County: county}

			results, err := svc.Ingest(cmd.Context(), args[0], j, portal, pipeline.RecordKind(kind))
			if err != nil {
				log.Fatalf("Extraction failed: %v", err)
			}

			fmt.Printf("\n=== Extraction Results ===\n")
			fmt.Println("Layer                          | Records | Batches | Failures | Resumed")
			fmt.Println("-------------------------------|---------|---------|----------|--------")
			failed := 0
			for _, r := range results {
				fmt.Printf("%-30s | %7d | %7d | %8d | %v\n",
					r.LayerKey, r.Records, r.Batches, r.FailedBatches, r.Resumed)
				if r.Err != nil {
					failed++
					fmt.Printf("  error: %v\n", r.Err)
				}
			}
			if failed > 0 {
				fmt.Printf("\n%d of %d layers failed; rerun to resume from checkpoints\n", failed, len(results))
				os.Exit(1)
			}
		},
	}

	jurisdictionFlags(cmd, &state, &county)
	cmd.Flags().StringVar(&portal, "portal", "", "Portal code recorded as record provenance")
	cmd.Flags().StringVar(&kind, "kind", string(pipeline.KindPermit), "Record kind: property or permit")
	_ = cmd.MarkFlagRequired("portal")

	return cmd
}

func createLinkCmd() *cobra.Command {
	var state, county string

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link unlinked permits to properties",
		Long:  `Run one linking pass over a jurisdiction: exact canonical address first, then address fingerprint`,
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService()
			report, err := svc.Link(cmd.Context(), model.Jurisdiction{State: state, County: county})
			if err != nil {
				log.Fatalf("Linking failed: %v", err)
			}

			fmt.Printf("\n=== Linking Results: %s ===\n", report.Jurisdiction)
			fmt.Printf("Permits Examined: %d\n", report.Examined)
			fmt.Printf("Linked by Address: %d\n", report.LinkedByAddress)
			fmt.Printf("Linked by Fingerprint: %d\n", report.LinkedByHash)
			fmt.Printf("Still Unlinked: %d\n", report.StillUnlinked)
			if report.Examined > 0 {
				linked := report.LinkedByAddress + report.LinkedByHash
				fmt.Printf("Coverage: %.2f%%\n", float64(linked)/float64(report.Examined)*100)
			}
		},
	}

	jurisdictionFlags(cmd, &state, &county)
	return cmd
}

func createRescoreCmd() *cobra.Command {
	var state, county string

	cmd := &cobra.Command{
		Use:   "rescore",
		Short: "Recompute quality scores for a jurisdiction",
		Run: func(cmd *cobra.Command, args []string) {
			svc := newService()
			changed, err := svc.Rescore(cmd.Context(), model.Jurisdiction{State: state, County: county})
			if err != nil {
				log.Fatalf("Rescore failed: %v", err)
			}
			fmt.Printf("Scores updated: %d\n", changed)
		},
	}

	jurisdictionFlags(cmd, &state, &county)
	return cmd
}

func createBulkImportCmd() *cobra.Command {
	var state, county, portal string

	cmd := &cobra.Command{
		Use:   "bulk-import [shapefile]",
		Short: "Import a county parcel shapefile",
		Long:  `Import a bulk parcel export directly into the property table, mapping DBF attributes the same way as portal extraction`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			loader := bulkload.NewLoader(store.NewPropertyStore(dbConn.DB), logger)
			j := model.Jurisdiction{State: state, County: county}

			imported, err := loader.LoadParcels(cmd.Context(), args[0], j, portal)
			if err != nil {
				log.Fatalf("Bulk import failed after %d features: %v", imported, err)
			}
			fmt.Printf("Features imported: %d\n", imported)
		},
	}

	jurisdictionFlags(cmd, &state, &county)
	cmd.Flags().StringVar(&portal, "portal", "", "Portal code recorded as record provenance")
	_ = cmd.MarkFlagRequired("portal")

	return cmd
}

func createCheckpointCmd() *cobra.Command {
	checkpointCmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Extraction checkpoint utilities",
	}

	checkpointCmd.AddCommand(&cobra.Command{
		Use:   "reset [layer-key]",
		Short: "Discard a layer's checkpoint so the next run starts from zero",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			checkpoints := store.NewCheckpointStore(dbConn.DB)
			if err := checkpoints.Reset(cmd.Context(), args[0]); err != nil {
				log.Fatalf("Checkpoint reset failed: %v", err)
			}
			fmt.Printf("Checkpoint reset: %s\n", args[0])
		},
	})

	return checkpointCmd
}

func createServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Run: func(cmd *cobra.Command, args []string) {
			server := web.NewServer(
				cfg.Web,
				store.NewPropertyStore(dbConn.DB),
				store.NewPermitStore(dbConn.DB),
				store.NewRunStore(dbConn.DB),
				newService(),
				logger,
			)
			if err := server.Start(); err != nil {
				log.Fatalf("Server failed: %v", err)
			}
		},
	}
}
