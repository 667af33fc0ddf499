package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/bank-reconciler/internal/api/handlers"
	"github.com/dvloznov/bank-reconciler/internal/api/middleware"
	bqexport "github.com/dvloznov/bank-reconciler/internal/export/bigquery"
	"github.com/dvloznov/bank-reconciler/internal/jobs"
	jobsmem "github.com/dvloznov/bank-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/bank-reconciler/internal/logger"
	"github.com/dvloznov/bank-reconciler/internal/recon"
	storemem "github.com/dvloznov/bank-reconciler/internal/store/inmemory"
)

func main() {
	var (
		port      = flag.String("port", envOr("PORT", "8080"), "HTTP server port")
		logLevel  = flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
		bqProject = flag.String("bq-project", os.Getenv("BQ_PROJECT"), "BigQuery project for claim export (or set BQ_PROJECT env)")
		bqDataset = flag.String("bq-dataset", envOr("BQ_DATASET", "reconciliation"), "BigQuery dataset for claim export")
		workers   = flag.Int("workers", 4, "matching job workers")
	)
	flag.Parse()

	log := logger.New(*logLevel)
	ctx := context.Background()

	// Claim export is optional; without a project the service still runs,
	// claims just stay local.
	var exporter recon.ClaimExporter = recon.NoopExporter{}
	var bq *bqexport.Exporter
	if *bqProject != "" {
		var err error
		bq, err = bqexport.NewExporter(ctx, *bqProject, *bqDataset)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery exporter")
		}
		defer bq.Close()
		exporter = bq
	} else {
		log.Warn().Msg("No BigQuery project configured - claim export disabled")
	}

	store := storemem.NewStore()
	pool := storemem.NewCandidatePool()
	claims := storemem.NewClaimRegistry()

	svc, err := recon.NewService(store, store, pool, claims, exporter, recon.DefaultConfig(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create reconciliation service")
	}

	jobStore := jobsmem.NewStore()
	jobQueue := jobsmem.NewQueue(100, *workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job *jobs.MatchStatementJob) error {
		log.Info().
			Str("job_id", job.JobID).
			Str("statement_id", job.StatementID).
			Msg("Processing matching job")

		result, err := svc.RunMatching(ctx, job.TenantID, job.StatementID)
		if err != nil {
			log.Error().
				Err(err).
				Str("job_id", job.JobID).
				Str("statement_id", job.StatementID).
				Msg("Matching job failed")
			return err
		}

		if bq != nil {
			if err := bq.ExportResult(ctx, job.JobID, job.TenantID, result); err != nil {
				log.Warn().Err(err).Str("job_id", job.JobID).Msg("Run result export failed")
			}
		}

		log.Info().
			Str("job_id", job.JobID).
			Str("statement_id", job.StatementID).
			Int("new_matches", result.NewMatches).
			Float64("match_percentage", result.MatchPercentage).
			Msg("Matching job completed")
		return nil
	}

	go func() {
		log.Info().Int("workers", *workers).Msg("Starting matching job workers")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job workers stopped with error")
		}
	}()

	reconHandler := handlers.NewReconciliationHandler(svc, jobQueue, jobStore, pool, log)

	mux := http.NewServeMux()
	reconHandler.Register(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting reconciliation API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
