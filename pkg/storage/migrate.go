package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shotarokuramata/bort-scraping/internal/utils"
	"github.com/shotarokuramata/bort-scraping/pkg/openapi"
)

// Migrate runs the schema migration stages in order. Each stage is
// gated by a presence check and runs inside a single transaction, so
// re-running on an already-migrated store is a no-op and any mid-stage
// failure leaves the previous schema fully intact. Expected to run
// once at startup, before query traffic; concurrent migration of the
// same file by two processes is not defended against (see DBLock).
func (d *DB) Migrate(ctx context.Context) error {
	if err := d.migrateV2(ctx); err != nil {
		return fmt.Errorf("migration stage v2: %w", err)
	}
	if err := d.migrateV3(ctx); err != nil {
		return fmt.Errorf("migration stage v3: %w", err)
	}
	return nil
}

// migrateV2 denormalizes search columns onto the raw results table and
// backfills them from the stored payloads.
func (d *DB) migrateV2(ctx context.Context) error {
	hasResults, err := d.tableExists(ctx, "results")
	if err != nil {
		return err
	}
	if !hasResults {
		// Stage v3 already consumed the raw table.
		return nil
	}
	applied, err := d.columnExists(ctx, "results", "trifecta_payout")
	if err != nil {
		return err
	}
	if applied {
		utils.Log.Debug("v2 migration already applied, skipping")
		return nil
	}

	utils.Log.Info("running v2 migration: adding search columns to results")

	return d.withTx(ctx, func(tx *sql.Tx) error {
		columns := []string{
			"ALTER TABLE results ADD COLUMN race_wind REAL",
			"ALTER TABLE results ADD COLUMN race_wind_direction_number REAL",
			"ALTER TABLE results ADD COLUMN race_wave REAL",
			"ALTER TABLE results ADD COLUMN race_weather_number REAL",
			"ALTER TABLE results ADD COLUMN race_temperature REAL",
			"ALTER TABLE results ADD COLUMN race_water_temperature REAL",
			"ALTER TABLE results ADD COLUMN race_technique_number REAL",
			"ALTER TABLE results ADD COLUMN win_payout INTEGER",
			"ALTER TABLE results ADD COLUMN place_payout_max INTEGER",
			"ALTER TABLE results ADD COLUMN exacta_payout INTEGER",
			"ALTER TABLE results ADD COLUMN trifecta_payout INTEGER",
			"ALTER TABLE results ADD COLUMN winner_boat_number INTEGER",
			"ALTER TABLE results ADD COLUMN winner_racer_number INTEGER",
		}
		for _, stmt := range columns {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("add column: %w", err)
			}
		}

		if err := backfillResults(ctx, tx); err != nil {
			return err
		}

		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_results_trifecta_payout ON results(trifecta_payout)",
			"CREATE INDEX IF NOT EXISTS idx_results_win_payout ON results(win_payout)",
			"CREATE INDEX IF NOT EXISTS idx_results_exacta_payout ON results(exacta_payout)",
			"CREATE INDEX IF NOT EXISTS idx_results_venue ON results(venue_code)",
			"CREATE INDEX IF NOT EXISTS idx_results_date_venue ON results(date, venue_code)",
		}
		for _, stmt := range indexes {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create index: %w", err)
			}
		}
		return nil
	})
}

// backfillResults decodes every stored result payload and fills the v2
// columns. Undecodable payloads are skipped and counted, not fatal.
func backfillResults(ctx context.Context, tx *sql.Tx) error {
	records, err := rawResults(ctx, tx)
	if err != nil {
		return err
	}

	var migrated, failed int
	for _, rec := range records {
		var res openapi.RaceResult
		if err := json.Unmarshal([]byte(rec.DataJSON), &res); err != nil {
			failed++
			utils.Log.Warnf("skipping undecodable result payload: %v",
				&DecodeError{Date: rec.Date, VenueCode: rec.VenueCode, RaceNumber: rec.RaceNumber, Err: err})
			continue
		}
		dv := deriveResult(&res)
		_, err := tx.ExecContext(ctx, `
UPDATE results SET
  race_wind = ?, race_wind_direction_number = ?, race_wave = ?,
  race_weather_number = ?, race_temperature = ?, race_water_temperature = ?,
  race_technique_number = ?,
  win_payout = ?, place_payout_max = ?, exacta_payout = ?, trifecta_payout = ?,
  winner_boat_number = ?, winner_racer_number = ?
WHERE id = ?`,
			dv.wind, dv.windDir, dv.wave,
			dv.weather, dv.temp, dv.waterTemp,
			dv.technique,
			dv.win, dv.placeMax, dv.exacta, dv.trifecta,
			dv.winnerBoat, dv.winnerRacer,
			rec.ID)
		if err != nil {
			return fmt.Errorf("backfill result %d: %w", rec.ID, err)
		}
		migrated++
	}

	utils.Log.Infof("v2 backfill: %d records migrated, %d skipped", migrated, failed)
	return nil
}

// migrateV3 splits the denormalized results rows into races and
// race_participants, verifies the row-count invariants, then drops the
// raw results table.
func (d *DB) migrateV3(ctx context.Context) error {
	applied, err := d.tableExists(ctx, "races")
	if err != nil {
		return err
	}
	if applied {
		utils.Log.Debug("v3 migration already applied, skipping")
		return nil
	}

	utils.Log.Info("running v3 migration: normalizing races and participants")

	return d.withTx(ctx, func(tx *sql.Tx) error {
		if err := createNormalizedTables(ctx, tx); err != nil {
			return err
		}
		skipped, err := migrateResultsToRaces(ctx, tx)
		if err != nil {
			return err
		}
		if err := createNormalizedIndexes(ctx, tx); err != nil {
			return err
		}
		if err := verifyMigration(ctx, tx, skipped); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DROP TABLE results"); err != nil {
			return fmt.Errorf("drop raw results table: %w", err)
		}
		return nil
	})
}

func createNormalizedTables(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
CREATE TABLE races (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  race_date TEXT NOT NULL,
  venue_code TEXT NOT NULL,
  race_number INTEGER NOT NULL,
  race_wind REAL,
  race_wind_direction_number REAL,
  race_wave REAL,
  race_weather_number REAL,
  race_temperature REAL,
  race_water_temperature REAL,
  race_technique_number REAL,
  win_payout INTEGER,
  place_payout_max INTEGER,
  exacta_payout INTEGER,
  quinella_payout INTEGER,
  trifecta_payout INTEGER,
  trio_payout INTEGER,
  winner_boat_number INTEGER,
  winner_racer_number INTEGER,
  race_grade_number INTEGER,
  race_title TEXT,
  race_subtitle TEXT,
  race_distance INTEGER,
  result_data_json TEXT,
  program_data_json TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  UNIQUE(race_date, venue_code, race_number)
);
CREATE TABLE race_participants (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  race_id INTEGER NOT NULL,
  boat_number INTEGER NOT NULL,
  racer_number INTEGER,
  racer_name TEXT,
  racer_class_number INTEGER,
  racer_branch_number INTEGER,
  racer_birthplace_number INTEGER,
  racer_age INTEGER,
  racer_weight REAL,
  course_number INTEGER,
  start_timing REAL,
  entry_number INTEGER,
  place_number INTEGER,
  decision_hand TEXT,
  flying_count INTEGER,
  late_count INTEGER,
  average_start_timing REAL,
  national_top_1_percent REAL,
  national_top_2_percent REAL,
  national_top_3_percent REAL,
  local_top_1_percent REAL,
  local_top_2_percent REAL,
  local_top_3_percent REAL,
  assigned_motor_number INTEGER,
  assigned_motor_top_2_percent REAL,
  assigned_motor_top_3_percent REAL,
  assigned_boat_number INTEGER,
  assigned_boat_top_2_percent REAL,
  assigned_boat_top_3_percent REAL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  FOREIGN KEY (race_id) REFERENCES races(id) ON DELETE CASCADE,
  UNIQUE(race_id, boat_number)
);`)
	if err != nil {
		return fmt.Errorf("create normalized tables: %w", err)
	}
	return nil
}

// migrateResultsToRaces walks every raw result row, joins the sibling
// program row by race key, and inserts one race plus its six
// participants. Returns how many raw rows were skipped because their
// payload failed to decode.
func migrateResultsToRaces(ctx context.Context, tx *sql.Tx) (int64, error) {
	records, err := rawResults(ctx, tx)
	if err != nil {
		return 0, err
	}

	var races, participants, skipped int64
	for _, rec := range records {
		var res openapi.RaceResult
		if err := json.Unmarshal([]byte(rec.DataJSON), &res); err != nil {
			skipped++
			utils.Log.Warnf("skipping undecodable result payload: %v",
				&DecodeError{Date: rec.Date, VenueCode: rec.VenueCode, RaceNumber: rec.RaceNumber, Err: err})
			continue
		}

		prog, progJSON, err := programByKey(ctx, tx, rec.Date, rec.VenueCode, rec.RaceNumber)
		if err != nil {
			return 0, err
		}

		if err := upsertRace(ctx, tx, rec.Date, rec.VenueCode, rec.RaceNumber,
			&res, rec.DataJSON, prog, progJSON, rec.CreatedAt, rec.UpdatedAt); err != nil {
			return 0, err
		}
		races++
		participants += int64(len(res.Boats))
	}

	utils.Log.Infof("v3 migration: %d races and %d participants written, %d skipped", races, participants, skipped)
	return skipped, nil
}

func createNormalizedIndexes(ctx context.Context, tx *sql.Tx) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_races_date ON races(race_date)",
		"CREATE INDEX IF NOT EXISTS idx_races_venue ON races(venue_code)",
		"CREATE INDEX IF NOT EXISTS idx_races_date_venue ON races(race_date, venue_code)",
		"CREATE INDEX IF NOT EXISTS idx_races_trifecta_payout ON races(trifecta_payout)",
		"CREATE INDEX IF NOT EXISTS idx_races_win_payout ON races(win_payout)",
		"CREATE INDEX IF NOT EXISTS idx_races_exacta_payout ON races(exacta_payout)",
		"CREATE INDEX IF NOT EXISTS idx_races_wind ON races(race_wind)",
		"CREATE INDEX IF NOT EXISTS idx_races_wave ON races(race_wave)",
		"CREATE INDEX IF NOT EXISTS idx_races_winner_boat ON races(winner_boat_number)",
		"CREATE INDEX IF NOT EXISTS idx_races_winner_racer ON races(winner_racer_number)",
		"CREATE INDEX IF NOT EXISTS idx_races_grade ON races(race_grade_number)",
		"CREATE INDEX IF NOT EXISTS idx_participants_race_id ON race_participants(race_id)",
		"CREATE INDEX IF NOT EXISTS idx_participants_racer_number ON race_participants(racer_number)",
		"CREATE INDEX IF NOT EXISTS idx_participants_racer_name ON race_participants(racer_name)",
		"CREATE INDEX IF NOT EXISTS idx_participants_class ON race_participants(racer_class_number)",
		"CREATE INDEX IF NOT EXISTS idx_participants_branch ON race_participants(racer_branch_number)",
		"CREATE INDEX IF NOT EXISTS idx_participants_place ON race_participants(place_number)",
		"CREATE INDEX IF NOT EXISTS idx_participants_boat ON race_participants(boat_number)",
		"CREATE INDEX IF NOT EXISTS idx_participants_course ON race_participants(course_number)",
		"CREATE INDEX IF NOT EXISTS idx_participants_class_place ON race_participants(racer_class_number, place_number)",
		"CREATE INDEX IF NOT EXISTS idx_participants_racer_place ON race_participants(racer_number, place_number)",
	}
	for _, stmt := range indexes {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// verifyMigration enforces the row-count invariants before the raw
// table is dropped: every decodable raw result row became exactly one
// race, and every race has exactly six participants.
func verifyMigration(ctx context.Context, tx *sql.Tx, skipped int64) error {
	var rawCount, raceCount, participantCount int64
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM results").Scan(&rawCount); err != nil {
		return fmt.Errorf("count raw results: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM races").Scan(&raceCount); err != nil {
		return fmt.Errorf("count races: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM race_participants").Scan(&participantCount); err != nil {
		return fmt.Errorf("count participants: %w", err)
	}

	if raceCount+skipped != rawCount {
		return &IntegrityError{Table: "races", Expected: rawCount - skipped, Actual: raceCount}
	}
	if participantCount != raceCount*6 {
		return &IntegrityError{Table: "race_participants", Expected: raceCount * 6, Actual: participantCount}
	}

	utils.Log.Infof("v3 integrity verified: %d races, %d participants", raceCount, participantCount)
	return nil
}

func rawResults(ctx context.Context, q queryer) ([]RawRecord, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, date, venue_code, race_number, data_json, created_at, updated_at
		 FROM results ORDER BY date, venue_code, race_number`)
	if err != nil {
		return nil, fmt.Errorf("list raw results: %w", err)
	}
	defer rows.Close()

	var out []RawRecord
	for rows.Next() {
		var r RawRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.VenueCode, &r.RaceNumber, &r.DataJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
