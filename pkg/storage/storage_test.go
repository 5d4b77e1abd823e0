package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shotarokuramata/bort-scraping/pkg/openapi"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "bort.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intp(v int) *int         { return &v }
func f64p(v float64) *float64 { return &v }
func strp(v string) *string   { return &v }

// testResult builds one complete six-boat result payload. winnerBoat
// finishes first, the remaining boats fill places 2..6 in lane order.
func testResult(date, venue string, raceNo, winnerBoat, trifectaPayout int) (*openapi.RaceResult, string) {
	res := &openapi.RaceResult{
		RaceDate:             date,
		RaceStadiumNumber:    1,
		RaceNumber:           raceNo,
		RaceWind:             f64p(4),
		RaceWindDirection:    f64p(11),
		RaceWave:             f64p(2),
		RaceWeatherNumber:    f64p(2),
		RaceTemperature:      f64p(12.5),
		RaceWaterTemperature: f64p(15.0),
		RaceTechniqueNumber:  f64p(1),
		Payouts: openapi.PayoutInfo{
			Win:      []openapi.PayoutEntry{{Combination: strp(fmt.Sprint(winnerBoat)), Payout: intp(310)}},
			Place:    []openapi.PayoutEntry{{Payout: intp(150)}, {Payout: intp(210)}},
			Exacta:   []openapi.PayoutEntry{{Payout: intp(1540)}},
			Quinella: []openapi.PayoutEntry{{Payout: intp(890)}},
			Trifecta: []openapi.PayoutEntry{{Payout: intp(trifectaPayout)}},
			Trio:     []openapi.PayoutEntry{{Payout: intp(2300)}},
		},
	}
	place := 1
	for boat := 1; boat <= 6; boat++ {
		var p int
		if boat == winnerBoat {
			p = 1
		} else {
			place++
			p = place
		}
		res.Boats = append(res.Boats, openapi.ResultRacerInfo{
			RacerBoatNumber:   boat,
			RacerCourseNumber: intp(boat),
			RacerStartTiming:  f64p(0.15),
			RacerPlaceNumber:  intp(p),
			RacerNumber:       intp(4440 + boat),
			RacerName:         strp(fmt.Sprintf("racer %d", boat)),
		})
	}
	data, _ := json.Marshal(res)
	return res, string(data)
}

func testProgram(date, venue string, raceNo int) (*openapi.RaceProgram, string) {
	prog := &openapi.RaceProgram{
		RaceDate:          date,
		RaceStadiumNumber: 1,
		RaceNumber:        raceNo,
		RaceGradeNumber:   intp(5),
		RaceTitle:         strp("general race"),
		RaceSubtitle:      strp("day 1"),
		RaceDistance:      intp(1800),
	}
	for boat := 1; boat <= 6; boat++ {
		prog.Boats = append(prog.Boats, openapi.ProgramRacerInfo{
			RacerBoatNumber:          intp(boat),
			RacerName:                strp(fmt.Sprintf("racer %d", boat)),
			RacerNumber:              intp(4440 + boat),
			RacerClassNumber:         intp(1 + (boat-1)%4),
			RacerBranchNumber:        intp(12),
			RacerBirthplaceNumber:    intp(27),
			RacerAge:                 intp(28 + boat),
			RacerWeight:              f64p(52.0),
			RacerFlyingCount:         intp(0),
			RacerLateCount:           intp(0),
			RacerAverageStartTiming:  f64p(0.16),
			RacerNationalTop1Percent: f64p(6.2),
			RacerNationalTop2Percent: f64p(42.1),
			RacerNationalTop3Percent: f64p(60.5),
			RacerLocalTop1Percent:    f64p(6.5),
			RacerLocalTop2Percent:    f64p(44.0),
			RacerLocalTop3Percent:    f64p(63.2),
			RacerAssignedMotorNumber: intp(30 + boat),
			RacerAssignedMotorTop2:   f64p(35.8),
			RacerAssignedMotorTop3:   f64p(52.3),
			RacerAssignedBoatNumber:  intp(60 + boat),
			RacerAssignedBoatTop2:    f64p(33.1),
			RacerAssignedBoatTop3:    f64p(50.0),
		})
	}
	data, _ := json.Marshal(prog)
	return prog, string(data)
}

func seedRace(t *testing.T, db *DB, date, venue string, raceNo, winnerBoat, trifecta int) {
	t.Helper()
	ctx := context.Background()
	res, resJSON := testResult(date, venue, raceNo, winnerBoat, trifecta)
	prog, progJSON := testProgram(date, venue, raceNo)
	if err := db.SaveProgram(ctx, date, venue, raceNo, prog, progJSON); err != nil {
		t.Fatalf("save program: %v", err)
	}
	if err := db.SaveResult(ctx, date, venue, raceNo, res, resJSON); err != nil {
		t.Fatalf("save result: %v", err)
	}
}

func TestMigrateProducesNormalizedRaces(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	seedRace(t, db, "20250101", "01", 1, 3, 125000)
	seedRace(t, db, "20250101", "01", 2, 1, 980)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if exists, _ := db.tableExists(ctx, "results"); exists {
		t.Fatal("raw results table should be dropped after migration")
	}
	if exists, _ := db.tableExists(ctx, "races"); !exists {
		t.Fatal("races table missing after migration")
	}

	races, err := db.SearchByDateRange(ctx, "20250101", "20250101", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(races) != 2 {
		t.Fatalf("expected 2 races, got %d", len(races))
	}

	for _, rw := range races {
		if len(rw.Participants) != 6 {
			t.Fatalf("race %d: expected 6 participants, got %d", rw.Race.RaceNumber, len(rw.Participants))
		}
	}

	// Race 1: winner boat 3, trifecta 125000, place payout max 210.
	var r1 *RaceWithParticipants
	for i := range races {
		if races[i].Race.RaceNumber == 1 {
			r1 = &races[i]
		}
	}
	if r1 == nil {
		t.Fatal("race 1 not found")
	}
	if r1.Race.WinnerBoatNumber == nil || *r1.Race.WinnerBoatNumber != 3 {
		t.Fatalf("winner boat = %v, want 3", r1.Race.WinnerBoatNumber)
	}
	if r1.Race.WinnerRacerNumber == nil || *r1.Race.WinnerRacerNumber != 4443 {
		t.Fatalf("winner racer = %v, want 4443", r1.Race.WinnerRacerNumber)
	}
	if r1.Race.TrifectaPayout == nil || *r1.Race.TrifectaPayout != 125000 {
		t.Fatalf("trifecta payout = %v, want 125000", r1.Race.TrifectaPayout)
	}
	if r1.Race.PlacePayoutMax == nil || *r1.Race.PlacePayoutMax != 210 {
		t.Fatalf("place payout max = %v, want 210", r1.Race.PlacePayoutMax)
	}
	if r1.Race.RaceGradeNumber == nil || *r1.Race.RaceGradeNumber != 5 {
		t.Fatalf("race grade = %v, want 5 from program", r1.Race.RaceGradeNumber)
	}
	if r1.Race.RaceTitle == nil || *r1.Race.RaceTitle != "general race" {
		t.Fatalf("race title = %v, want program title", r1.Race.RaceTitle)
	}

	// Participants carry both result fields and program stats.
	p4 := r1.Participants[3]
	if p4.BoatNumber != 4 {
		t.Fatalf("participants not ordered by boat: got boat %d at index 3", p4.BoatNumber)
	}
	if p4.RacerNumber == nil || *p4.RacerNumber != 4444 {
		t.Fatalf("racer number = %v, want 4444", p4.RacerNumber)
	}
	if p4.RacerClassNumber == nil || *p4.RacerClassNumber != 4 {
		t.Fatalf("racer class = %v, want 4 from program", p4.RacerClassNumber)
	}
	if p4.NationalTop2Percent == nil || *p4.NationalTop2Percent != 42.1 {
		t.Fatalf("national top2 = %v, want 42.1 from program", p4.NationalTop2Percent)
	}
	if p4.PlaceNumber == nil {
		t.Fatal("place number missing from result merge")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	seedRace(t, db, "20250102", "05", 7, 2, 4300)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second migrate should be a no-op: %v", err)
	}

	races, err := db.SearchByVenue(ctx, "05", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(races) != 1 {
		t.Fatalf("expected 1 race after re-run, got %d", len(races))
	}
	if len(races[0].Participants) != 6 {
		t.Fatalf("expected 6 participants after re-run, got %d", len(races[0].Participants))
	}
}

func TestMigrateRollsBackOnParticipantMismatch(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	// Five boats instead of six violates the participant invariant.
	res, _ := testResult("20250103", "02", 4, 1, 800)
	res.Boats = res.Boats[:5]
	data, _ := json.Marshal(res)
	if err := db.SaveResult(ctx, "20250103", "02", 4, res, string(data)); err != nil {
		t.Fatalf("save result: %v", err)
	}

	err := db.Migrate(ctx)
	if err == nil {
		t.Fatal("expected migration to fail on short participant set")
	}
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}

	// The v3 transaction rolled back: raw table intact, no races table.
	if exists, _ := db.tableExists(ctx, "results"); !exists {
		t.Fatal("raw results table should survive a failed migration")
	}
	if exists, _ := db.tableExists(ctx, "races"); exists {
		t.Fatal("races table should not exist after rollback")
	}

	n, err := db.CountResultsByDate(ctx, "20250103")
	if err != nil {
		t.Fatalf("count results: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected raw row to survive rollback, got %d", n)
	}
}

func TestMigrateSkipsUndecodablePayload(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	seedRace(t, db, "20250104", "03", 1, 6, 56000)
	if err := db.SaveResult(ctx, "20250104", "03", 2, nil, "{not json"); err != nil {
		t.Fatalf("save broken payload: %v", err)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate should skip undecodable rows: %v", err)
	}

	races, err := db.SearchByDateRange(ctx, "20250104", "20250104", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(races) != 1 {
		t.Fatalf("expected 1 race (bad payload skipped), got %d", len(races))
	}
}

func TestSaveResultAfterMigration(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate empty store: %v", err)
	}

	seedRace(t, db, "20250105", "10", 11, 4, 7700)

	races, err := db.SearchByVenue(ctx, "10", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(races) != 1 {
		t.Fatalf("expected 1 race written post-migration, got %d", len(races))
	}
	if got := races[0].Race.WinnerBoatNumber; got == nil || *got != 4 {
		t.Fatalf("winner boat = %v, want 4", got)
	}
	if len(races[0].Participants) != 6 {
		t.Fatalf("expected 6 participants, got %d", len(races[0].Participants))
	}

	// Re-saving the same key replaces, not duplicates.
	seedRace(t, db, "20250105", "10", 11, 2, 9000)
	races, err = db.SearchByVenue(ctx, "10", 10)
	if err != nil {
		t.Fatalf("search after re-save: %v", err)
	}
	if len(races) != 1 {
		t.Fatalf("expected upsert to keep 1 race, got %d", len(races))
	}
	if got := races[0].Race.WinnerBoatNumber; got == nil || *got != 2 {
		t.Fatalf("winner boat after re-save = %v, want 2", got)
	}
	if len(races[0].Participants) != 6 {
		t.Fatalf("expected participant set replaced, got %d rows", len(races[0].Participants))
	}
}

func TestCountsByDate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.SavePreview(ctx, "20250106", "01", 1, `{"race_number":1}`); err != nil {
		t.Fatalf("save preview: %v", err)
	}
	seedRace(t, db, "20250106", "01", 1, 1, 500)

	n, err := db.CountPreviewsByDate(ctx, "20250106")
	if err != nil || n != 1 {
		t.Fatalf("preview count = %d, %v; want 1", n, err)
	}
	n, err = db.CountProgramsByDate(ctx, "20250106")
	if err != nil || n != 1 {
		t.Fatalf("program count = %d, %v; want 1", n, err)
	}
	n, err = db.CountResultsByDate(ctx, "20250106")
	if err != nil || n != 1 {
		t.Fatalf("raw result count = %d, %v; want 1", n, err)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Post-migration the count comes from races.
	n, err = db.CountResultsByDate(ctx, "20250106")
	if err != nil || n != 1 {
		t.Fatalf("result count after migration = %d, %v; want 1", n, err)
	}
}

func TestExportIncludesPreview(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	seedRace(t, db, "20250107", "07", 3, 5, 15000)
	previewJSON := `{"race_number":3,"boats":{}}`
	if err := db.SavePreview(ctx, "20250107", "07", 3, previewJSON); err != nil {
		t.Fatalf("save preview: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	exported, err := db.AllRacesWithParticipants(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 1 {
		t.Fatalf("expected 1 exported race, got %d", len(exported))
	}
	if exported[0].PreviewJSON == nil || *exported[0].PreviewJSON != previewJSON {
		t.Fatalf("preview payload = %v, want stored payload", exported[0].PreviewJSON)
	}
	if len(exported[0].Participants) != 6 {
		t.Fatalf("expected 6 participants in export, got %d", len(exported[0].Participants))
	}
}

func TestReset(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	seedRace(t, db, "20250108", "01", 1, 1, 600)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if exists, _ := db.tableExists(ctx, "races"); exists {
		t.Fatal("races should be gone after reset")
	}
	if exists, _ := db.tableExists(ctx, "results"); !exists {
		t.Fatal("raw results table should be recreated after reset")
	}
}
