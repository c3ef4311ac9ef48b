package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/developer-overheid-nl/don-app-store/pkg/sourceimport"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/config"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/database"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/repositories"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/services"
)

var (
	file      string
	sourceURL string
	storedURL string
	dryRun    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "import_source",
		Short:        "Import or validate an app store catalog",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&file, "file", "", "path to a catalog JSON file")
	rootCmd.PersistentFlags().StringVar(&sourceURL, "url", "", "catalog URL to fetch")
	rootCmd.PersistentFlags().StringVar(&storedURL, "source-url", "", "sourceURL to store for a --file catalog that names none")

	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Decode a catalog and store it",
		RunE:  runImport,
	}
	importCmd.Flags().BoolVar(&dryRun, "dry-run", false, "decode without writing to the database")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Decode a catalog and report problems without a database",
		RunE:  runValidate,
	}

	rootCmd.AddCommand(importCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	svc := services.NewCatalogService(repositories.NewSourceRepository(db), services.Options{
		Language:       cfg.Language,
		Environment:    cfg.Environment,
		WaitForPublish: true,
	})
	return run(cmd.Context(), svc, dryRun)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// decoding needs no repository
	svc := services.NewCatalogService(nil, services.Options{
		Language:    cfg.Language,
		Environment: cfg.Environment,
	})
	return run(cmd.Context(), svc, true)
}

func run(ctx context.Context, svc *services.CatalogService, dry bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := sourceimport.Import(ctx, svc, sourceimport.Options{
		File:      file,
		URL:       sourceURL,
		SourceURL: storedURL,
		DryRun:    dry,
		Logger:    log.Default(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d apps, %d versions, %d without supported version (run %s)\n",
		result.SourceID, result.Apps, result.Versions, result.Unsupported, result.RunID)
	return nil
}
