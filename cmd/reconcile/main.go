/**
 * @description
 * This is the entry point for the reconciliation sweep. It verifies the stored
 * balance of every live account against the sum of its ledger entries and
 * reports any discrepancy. Operators run it on a schedule or ad hoc after an
 * incident; a non-zero exit status means at least one account does not
 * reconcile.
 *
 * @dependencies
 * - log, flag, os: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/app, internal/config, internal/store: Internal packages for the service.
 */

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corebank/transfer-service/internal/app"
	"github.com/corebank/transfer-service/internal/config"
	"github.com/corebank/transfer-service/internal/store"
)

func main() {
	accountFlag := flag.String("account", "", "verify a single account ID instead of sweeping all accounts")
	timeoutFlag := flag.Duration("timeout", 5*time.Minute, "overall deadline for the sweep")
	flag.Parse()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()

	repo := store.NewPostgresRepository(dbpool)
	service, cleanup, err := app.NewServiceFromConfig(cfg, repo)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"service assembly failed\" err=%v", err)
	}
	defer cleanup()

	if *accountFlag != "" {
		accountID, err := uuid.Parse(*accountFlag)
		if err != nil {
			log.Fatalf("level=fatal component=reconcile msg=\"invalid account id\" value=%q err=%v", *accountFlag, err)
		}
		verification, err := service.VerifyBalance(ctx, accountID)
		if err != nil {
			log.Fatalf("level=fatal component=reconcile msg=\"balance verification failed\" account_id=%s err=%v", accountID, err)
		}
		if !verification.Matches {
			log.Printf("level=error component=reconcile msg=\"balance mismatch\" account_id=%s stored=%s ledger=%s difference=%s",
				verification.AccountID, verification.AccountBalance, verification.LedgerBalance, verification.Difference)
			os.Exit(1)
		}
		log.Printf("level=info component=reconcile msg=\"balance verified\" account_id=%s balance=%s", verification.AccountID, verification.AccountBalance)
		return
	}

	results, err := service.VerifyAllBalances(ctx)
	if err != nil {
		log.Fatalf("level=fatal component=reconcile msg=\"sweep failed\" err=%v", err)
	}

	mismatches := 0
	for _, verification := range results {
		if verification.Matches {
			continue
		}
		mismatches++
		log.Printf("level=error component=reconcile msg=\"balance mismatch\" account_id=%s stored=%s ledger=%s difference=%s debits=%s credits=%s",
			verification.AccountID, verification.AccountBalance, verification.LedgerBalance,
			verification.Difference, verification.Debits, verification.Credits)
	}

	log.Printf("level=info component=reconcile msg=\"sweep complete\" accounts=%d mismatches=%d", len(results), mismatches)
	if mismatches > 0 {
		os.Exit(1)
	}
}
