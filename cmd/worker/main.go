package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	bqexport "github.com/dvloznov/bank-reconciler/internal/export/bigquery"
	"github.com/dvloznov/bank-reconciler/internal/jobs"
	jobsmem "github.com/dvloznov/bank-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/bank-reconciler/internal/logger"
	"github.com/dvloznov/bank-reconciler/internal/recon"
	storemem "github.com/dvloznov/bank-reconciler/internal/store/inmemory"
)

// Standalone matching worker. It owns its own queue; in production the queue
// would be replaced with Cloud Tasks or Pub/Sub so the API and worker share
// a broker.
func main() {
	var (
		logLevel  = flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
		bqProject = flag.String("bq-project", os.Getenv("BQ_PROJECT"), "BigQuery project for claim export (or set BQ_PROJECT env)")
		bqDataset = flag.String("bq-dataset", envOr("BQ_DATASET", "reconciliation"), "BigQuery dataset for claim export")
		workers   = flag.Int("workers", 4, "matching job workers")
	)
	flag.Parse()

	log := logger.New(*logLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	log.Info().Msg("Starting matching worker service")

	handler := func(ctx context.Context, job *jobs.MatchStatementJob) error {
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

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
