package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/importer"
	"github.com/dvloznov/bank-reconciler/internal/logger"
	"github.com/dvloznov/bank-reconciler/internal/recon"
	storemem "github.com/dvloznov/bank-reconciler/internal/store/inmemory"
)

func main() {
	log := logger.New("info")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "reconcile":
		runReconcile(log)
	case "parse":
		runParse(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Bank Reconciler CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  reconcile  Import a statement, match it against a movements file, print the result")
	fmt.Println("  parse      Parse a statement file and print the extracted lines")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// loadStatement reads a statement from a local path or gs:// URI and parses
// it by extension (.csv or .ofx/.qfx).
func loadStatement(ctx context.Context, path string) ([]domain.RawLine, error) {
	var data []byte
	var err error

	if strings.HasPrefix(path, "gs://") {
		data, err = importer.FetchFromGCS(ctx, path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read statement %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return importer.ParseCSV(bytes.NewReader(data))
	case ".ofx", ".qfx":
		return importer.ParseOFX(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported statement format %q (want .csv, .ofx or .qfx)", filepath.Ext(path))
	}
}

func loadMovements(path string) ([]domain.Movement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read movements %s: %w", path, err)
	}

	var movements []domain.Movement
	if err := json.Unmarshal(data, &movements); err != nil {
		return nil, fmt.Errorf("parse movements %s: %w", path, err)
	}
	return movements, nil
}

func runReconcile(log zerolog.Logger) {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	statementPath := fs.String("statement", "", "Statement file (.csv, .ofx, .qfx or gs:// URI)")
	movementsPath := fs.String("movements", "", "JSON file with candidate movements")
	currency := fs.String("currency", "EUR", "Account currency")
	openingBalance := fs.String("opening-balance", "0", "Account opening balance")
	fs.Parse(os.Args[2:])

	if *statementPath == "" || *movementsPath == "" {
		log.Fatal().Msg("Usage: cli reconcile -statement PATH -movements PATH")
	}

	initial, err := decimal.NewFromString(*openingBalance)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid opening balance")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	rawLines, err := loadStatement(ctx, *statementPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load statement")
	}

	movements, err := loadMovements(*movementsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load movements")
	}

	const tenant = "cli"

	store := storemem.NewStore()
	pool := storemem.NewCandidatePool()
	claims := storemem.NewClaimRegistry()

	svc, err := recon.NewService(store, store, pool, claims, recon.NoopExporter{}, recon.DefaultConfig(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create reconciliation service")
	}

	account, err := svc.CreateAccount(ctx, &domain.BankAccount{
		TenantID:       tenant,
		Name:           "cli-account",
		Type:           domain.AccountTypeChecking,
		Currency:       *currency,
		InitialBalance: initial,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create account")
	}

	for i := range movements {
		m := movements[i]
		m.TenantID = tenant
		m.AccountID = account.ID
		pool.AddMovement(&m)
	}

	statement, err := svc.ImportStatement(ctx, importer.StatementMeta{
		TenantID:  tenant,
		AccountID: account.ID,
		FileName:  filepath.Base(*statementPath),
	}, rawLines)
	if err != nil {
		log.Fatal().Err(err).Msg("Statement import failed")
	}

	result, err := svc.RunMatching(ctx, tenant, statement.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Matching run failed")
	}

	final, err := svc.GetStatement(ctx, tenant, statement.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load statement after matching")
	}

	fmt.Println("\n=== Reconciliation Result ===")
	fmt.Printf("Statement:        %s\n", statement.ID)
	fmt.Printf("Status:           %s\n", final.Status)
	fmt.Printf("Lines:            %d total, %d matched\n", result.TotalLines, result.MatchedLines)
	fmt.Printf("Match percentage: %.2f%%\n", result.MatchPercentage)
	fmt.Printf("New matches:      %d\n", result.NewMatches)

	fmt.Println("\n=== Lines ===")
	for _, line := range final.Lines {
		marker := " "
		if line.Status.IsMatched() {
			marker = "*"
		}
		fmt.Printf("%s %3d  %s  %10s  %-40s", marker, line.Seq, line.LineDate.Format("2006-01-02"), line.SignedAmount().StringFixed(2), line.Description)
		if line.MatchedMovementID != "" {
			fmt.Printf("  -> %s (%s)", line.MatchedMovementID, line.MatchedMovementKind)
		}
		fmt.Println()
	}
	fmt.Println()
}

func runParse(log zerolog.Logger) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	statementPath := fs.String("statement", "", "Statement file (.csv, .ofx, .qfx or gs:// URI)")
	fs.Parse(os.Args[2:])

	if *statementPath == "" {
		log.Fatal().Msg("Usage: cli parse -statement PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rawLines, err := loadStatement(ctx, *statementPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse statement")
	}

	fmt.Printf("\n=== Parsed Lines (%d) ===\n", len(rawLines))
	for i, line := range rawLines {
		amount := line.Credit.Sub(line.Debit)
		fmt.Printf("%3d  %s  %10s  %s", i+1, line.LineDate.Format("2006-01-02"), amount.StringFixed(2), line.Description)
		if line.Reference != "" {
			fmt.Printf("  [%s]", line.Reference)
		}
		fmt.Println()
	}
	fmt.Println()
}
