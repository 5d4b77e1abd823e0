package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/shotarokuramata/bort-scraping/pkg/storage"
)

// sixBoatResult builds a decodable result payload with boats 1-6 and a
// winner on boat 3.
func sixBoatResult() string {
	var boats []string
	for boat := 1; boat <= 6; boat++ {
		place := boat + 1
		if boat == 3 {
			place = 1
		}
		boats = append(boats, fmt.Sprintf(
			`{"racer_boat_number":%d,"racer_place_number":%d,"racer_number":%d}`,
			boat, place, 4440+boat))
	}
	return fmt.Sprintf(
		`{"race_date":"20250301","race_stadium_number":1,"race_number":1,"boats":[%s],"payouts":{"trifecta":[{"payout":125000}]}}`,
		strings.Join(boats, ","))
}

// The fetch-then-query flow: raw rows land before any migration has
// run, and the first query command must still find the normalized
// tables.
func TestOpenStoreMigratedNormalizesBeforeQuerying(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bort.sqlite")
	viper.Set("dbpath", dbPath)
	defer viper.Set("dbpath", "")

	ctx := context.Background()

	// Seed a raw result the way the fetch path does on a fresh store.
	seed, err := storage.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := seed.SaveResult(ctx, "20250301", "01", 1, nil, sixBoatResult()); err != nil {
		t.Fatalf("save raw result: %v", err)
	}
	seed.Close()

	db, err := openStoreMigrated(ctx)
	if err != nil {
		t.Fatalf("openStoreMigrated: %v", err)
	}
	defer db.Close()

	races, err := db.Search(ctx, storage.SearchParams{})
	if err != nil {
		t.Fatalf("search after migration: %v", err)
	}
	if len(races) != 1 {
		t.Fatalf("expected 1 race, got %d", len(races))
	}
	if got := races[0].Race.WinnerBoatNumber; got == nil || *got != 3 {
		t.Fatalf("winner boat = %v, want 3", got)
	}

	// Second open is a no-op pass over the applied migration.
	db2, err := openStoreMigrated(ctx)
	if err != nil {
		t.Fatalf("re-open migrated store: %v", err)
	}
	defer db2.Close()

	races, err = db2.Search(ctx, storage.SearchParams{})
	if err != nil {
		t.Fatalf("search on re-open: %v", err)
	}
	if len(races) != 1 {
		t.Fatalf("expected 1 race after re-open, got %d", len(races))
	}
}
