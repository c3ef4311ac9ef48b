package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/maloquacious/semver"

	"github.com/developer-overheid-nl/don-app-store/pkg/jobs"
	store "github.com/developer-overheid-nl/don-app-store/pkg/store_client"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/config"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/database"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/handler"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/repositories"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/services"
	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/services/typesense"
)

var version = semver.Version{Major: 1, Build: semver.Commit()}

func init() {
	tonic.SetErrorHook(store.ErrorHook)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	db, err := database.Open(cfg.DBDriver, cfg.DSN())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repositories.NewSourceRepository(db)
	catalogService := services.NewCatalogService(repo, services.Options{
		Language:    cfg.Language,
		Environment: cfg.Environment,
		Concurrency: cfg.RefreshConcurrency,
	})

	if typesense.Enabled() {
		log.Printf("[INFO] typesense indexing enabled")
	} else {
		log.Printf("[INFO] typesense indexing disabled")
	}

	if n, err := catalogService.RecomputeLatestSupported(ctx); err != nil {
		log.Printf("[WARN] latest supported versions not recomputed: %v", err)
	} else if n > 0 {
		log.Printf("[INFO] latest supported version updated for %d apps (iOS %s)", n, cfg.Environment.OSVersion)
	}

	if _, err := jobs.ScheduleRefresh(ctx, catalogService, cfg.RefreshSchedule); err != nil {
		log.Fatalf("refresh job: %v", err)
	}
	if cfg.DailyRefresh {
		if _, err := jobs.ScheduleRefresh(ctx, catalogService, jobs.DailySchedule); err != nil {
			log.Fatalf("daily refresh job: %v", err)
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := store.NewRouter(version.String(), handler.NewCatalogController(catalogService))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Printf("Server %s is running on port %s", version.String(), cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
