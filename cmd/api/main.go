package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	accountrepo "github.com/openshelf/service-library-go/internal/account/repo"
	"github.com/openshelf/service-library-go/internal/cache"
	"github.com/openshelf/service-library-go/internal/catalog"
	catalogrepo "github.com/openshelf/service-library-go/internal/catalog/repo"
	"github.com/openshelf/service-library-go/internal/config"
	loanrepo "github.com/openshelf/service-library-go/internal/loan/repo"
	"github.com/openshelf/service-library-go/internal/router"
	"github.com/openshelf/service-library-go/pkg/database"
	"github.com/openshelf/service-library-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	// this is best-effort: if no .env exists, continue (use defaults or real env)
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.InitLogger(utilities.LoggerConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-library-go")

	cfg := config.FromEnv()

	// init db
	sqlDB, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlDB.Close()

	// wrap with sqlx for convenience in repos/services
	sqlxDB := sqlx.NewDb(sqlDB, "postgres")
	defer sqlxDB.Close()

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureTables(setupCtx, sqlxDB); err != nil {
		cancelSetup()
		sugar.Fatalf("schema setup: %v", err)
	}
	cancelSetup()

	// cache is advisory: run without it when redis is unreachable
	var listing catalog.ListingCache
	if client, err := cache.Connect(cfg.RedisURL, sugar); err != nil {
		sugar.Warnf("redis unavailable at startup: %v; book-listing cache disabled", err)
	} else {
		listing = client
		defer client.Close()
	}

	handler, services := router.Build(sugar, sqlxDB, listing, cfg)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// persist OVERDUE for loans past their due date, periodically
	services.Loans.StartSweeper(ctx, cfg.SweepInterval, sugar)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	// run server in background
	go func() {
		sugar.Infof("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// ensureTables creates missing tables in dependency order (loans reference
// users and books).
func ensureTables(ctx context.Context, db *sqlx.DB) error {
	if err := accountrepo.NewUserRepo(db).EnsureTable(ctx); err != nil {
		return err
	}
	if err := catalogrepo.NewCatalogRepo(db).EnsureTables(ctx); err != nil {
		return err
	}
	return loanrepo.NewLoanRepo(db).EnsureTable(ctx)
}
