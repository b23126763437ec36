// Command nlquery serves the natural-language-to-SQL API: schema browsing,
// judged query generation, guarded execution, and result analysis.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koustreak/nlquery/internal/analysis"
	"github.com/koustreak/nlquery/internal/config"
	"github.com/koustreak/nlquery/internal/database"
	"github.com/koustreak/nlquery/internal/database/mysql"
	"github.com/koustreak/nlquery/internal/database/postgres"
	"github.com/koustreak/nlquery/internal/judge"
	"github.com/koustreak/nlquery/internal/llm"
	"github.com/koustreak/nlquery/internal/logger"
	"github.com/koustreak/nlquery/internal/reportstore"
	reportminio "github.com/koustreak/nlquery/internal/reportstore/minio"
	"github.com/koustreak/nlquery/internal/schema"
	"github.com/koustreak/nlquery/internal/server"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "", "path to config file (default: nlquery.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if cfg.Database.DSN == "" {
		zlog.Fatal("database.dsn is required")
	}

	ctx := context.Background()

	db, dialect, err := connect(ctx, cfg)
	if err != nil {
		zlog.ErrorWith("failed to connect to database", err, nil)
		os.Exit(1)
	}
	defer db.Close()

	model := llm.New(llm.Config{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		ChatModel:  cfg.LLM.ChatModel,
		EmbedModel: cfg.LLM.EmbedModel,
		Timeout:    cfg.LLM.Timeout(),
	}, zlog)

	inspector := schema.NewInspector(db, dialect, zlog)

	pipeline := judge.NewPipeline(
		judge.NewGenerator(model, cfg.Judge.RefineQuestion, zlog),
		judge.NewSemanticValidator(model),
		judge.NewRoundTripExplainer(model),
		judge.NewSimilarityScorer(model, cfg.Judge.SimilarityThreshold),
		judge.NewExplainPrechecker(db),
		judge.Options{
			MaxIterations:     cfg.Judge.MaxIterations,
			EmbeddingBlocking: cfg.Judge.EmbeddingBlocking,
		},
		zlog,
	)

	var reports reportstore.Store
	if cfg.Reports.Enabled {
		reports, err = reportminio.New(ctx, &reportstore.Config{
			Endpoint:  cfg.Reports.Endpoint,
			AccessKey: cfg.Reports.AccessKey,
			SecretKey: cfg.Reports.SecretKey,
			UseSSL:    cfg.Reports.UseSSL,
			Bucket:    cfg.Reports.Bucket,
		})
		if err != nil {
			zlog.ErrorWith("failed to connect to report store", err, nil)
			os.Exit(1)
		}
		defer reports.Close()
	}

	srv := server.New(db, inspector, pipeline, analysis.New(model, zlog), reports,
		server.Options{RowLimit: cfg.Server.RowLimit}, zlog)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.With().Str("addr", cfg.Server.Addr).Logger().Info("listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.ErrorWith("server failed", err, nil)
			os.Exit(1)
		}
	case sig := <-stop:
		zlog.With().Str("signal", sig.String()).Logger().Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			zlog.ErrorWith("shutdown incomplete", err, nil)
		}
	}
}

// connect builds the driver named by database.driver.
func connect(ctx context.Context, cfg *config.Config) (database.DB, database.Dialect, error) {
	dbCfg := database.DefaultConfig(database.Driver(cfg.Database.Driver), cfg.Database.DSN)
	if cfg.Database.MaxConns > 0 {
		dbCfg.MaxConns = int32(cfg.Database.MaxConns)
	}
	if cfg.Database.QueryTimeoutSeconds > 0 {
		dbCfg.QueryTimeout = cfg.Database.QueryTimeout()
	}

	switch dbCfg.Driver {
	case database.DriverPostgres:
		db, err := postgres.New(ctx, dbCfg)
		return db, database.DialectPostgres, err
	default:
		db, err := mysql.New(ctx, dbCfg)
		return db, database.DialectMySQL, err
	}
}
