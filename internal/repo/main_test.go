package repo_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/pkordes/trip-scheduler/migrations"
	"github.com/pkordes/trip-scheduler/testutil"
)

// TestMain applies all pending migrations to the test database once for the
// whole package so individual tests never need to think about schema state.
func TestMain(m *testing.M) {
	if os.Getenv(testutil.DSNEnv) == "" {
		// No test DB configured; every test skips itself via testutil.
		os.Exit(m.Run())
	}

	// goose needs database/sql, and TestMain has no *testing.T for testutil.NewSQLDB.
	db := testutil.MustOpenSQLDB(os.Getenv(testutil.DSNEnv))

	provider, err := migrations.NewProvider(db)
	if err != nil {
		log.Fatalf("TestMain: %v", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		log.Fatalf("TestMain: run migrations: %v", err)
	}
	db.Close()

	os.Exit(m.Run())
}
