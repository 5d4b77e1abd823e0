package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/shotarokuramata/bort-scraping/pkg/openapi"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so record helpers
// can run inside or outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// derived holds the search columns computed from one result payload.
type derived struct {
	wind, windDir, wave      *float64
	weather, temp, waterTemp *float64
	technique                *float64
	win, placeMax, exacta    *int
	quinella, trifecta, trio *int
	winnerBoat, winnerRacer  *int
}

func deriveResult(res *openapi.RaceResult) derived {
	d := derived{
		wind:      res.RaceWind,
		windDir:   res.RaceWindDirection,
		wave:      res.RaceWave,
		weather:   res.RaceWeatherNumber,
		temp:      res.RaceTemperature,
		waterTemp: res.RaceWaterTemperature,
		technique: res.RaceTechniqueNumber,
		win:       openapi.FirstPayout(res.Payouts.Win),
		placeMax:  openapi.MaxPayout(res.Payouts.Place),
		exacta:    openapi.FirstPayout(res.Payouts.Exacta),
		quinella:  openapi.FirstPayout(res.Payouts.Quinella),
		trifecta:  openapi.FirstPayout(res.Payouts.Trifecta),
		trio:      openapi.FirstPayout(res.Payouts.Trio),
	}
	if w := res.Winner(); w != nil {
		boat := w.RacerBoatNumber
		d.winnerBoat = &boat
		d.winnerRacer = w.RacerNumber
	}
	return d
}

// SavePreview upserts one raw preview payload.
func (d *DB) SavePreview(ctx context.Context, date, venueCode string, raceNumber int, dataJSON string) error {
	return d.upsertRaw(ctx, "previews", date, venueCode, raceNumber, dataJSON)
}

func (d *DB) upsertRaw(ctx context.Context, table, date, venueCode string, raceNumber int, dataJSON string) error {
	ts := now()
	_, err := d.sql.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (date, venue_code, race_number, data_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(date, venue_code, race_number)
DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at`, table),
		date, venueCode, raceNumber, dataJSON, ts, ts)
	if err != nil {
		return fmt.Errorf("upsert %s %s/%s/%d: %w", table, date, venueCode, raceNumber, err)
	}
	return nil
}

// SaveProgram upserts one raw program payload. On an already-migrated
// store it also refreshes the metadata columns of a matching race, if
// one exists.
func (d *DB) SaveProgram(ctx context.Context, date, venueCode string, raceNumber int, prog *openapi.RaceProgram, dataJSON string) error {
	if err := d.upsertRaw(ctx, "programs", date, venueCode, raceNumber, dataJSON); err != nil {
		return err
	}

	migrated, err := d.tableExists(ctx, "races")
	if err != nil {
		return err
	}
	if !migrated {
		return nil
	}

	_, err = d.sql.ExecContext(ctx, `
UPDATE races SET
  race_grade_number = ?, race_title = ?, race_subtitle = ?, race_distance = ?,
  program_data_json = ?, updated_at = ?
WHERE race_date = ? AND venue_code = ? AND race_number = ?`,
		prog.RaceGradeNumber, prog.RaceTitle, prog.RaceSubtitle, prog.RaceDistance,
		dataJSON, now(), date, venueCode, raceNumber)
	if err != nil {
		return fmt.Errorf("refresh race metadata %s/%s/%d: %w", date, venueCode, raceNumber, err)
	}
	return nil
}

// SaveResult upserts one result payload. While the store is still
// pre-migration the raw row is stored as-is (stage V2 backfills the
// derived columns later); after migration the result lands directly in
// races plus its six participants, all in one transaction.
func (d *DB) SaveResult(ctx context.Context, date, venueCode string, raceNumber int, res *openapi.RaceResult, dataJSON string) error {
	migrated, err := d.tableExists(ctx, "races")
	if err != nil {
		return err
	}
	if !migrated {
		return d.upsertRaw(ctx, "results", date, venueCode, raceNumber, dataJSON)
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		prog, progJSON, err := programByKey(ctx, tx, date, venueCode, raceNumber)
		if err != nil {
			return err
		}
		return upsertRace(ctx, tx, date, venueCode, raceNumber, res, dataJSON, prog, progJSON, now(), now())
	})
}

// upsertRace writes one races row and replaces its participant set.
func upsertRace(ctx context.Context, q queryer, date, venueCode string, raceNumber int,
	res *openapi.RaceResult, resultJSON string, prog *openapi.RaceProgram, progJSON *string,
	createdAt, updatedAt string) error {

	dv := deriveResult(res)

	var gradeNumber, distance *int
	var title, subtitle *string
	if prog != nil {
		gradeNumber = prog.RaceGradeNumber
		title = prog.RaceTitle
		subtitle = prog.RaceSubtitle
		distance = prog.RaceDistance
	}

	_, err := q.ExecContext(ctx, `
INSERT INTO races (
  race_date, venue_code, race_number,
  race_wind, race_wind_direction_number, race_wave,
  race_weather_number, race_temperature, race_water_temperature,
  race_technique_number,
  win_payout, place_payout_max, exacta_payout, quinella_payout,
  trifecta_payout, trio_payout,
  winner_boat_number, winner_racer_number,
  race_grade_number, race_title, race_subtitle, race_distance,
  result_data_json, program_data_json,
  created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(race_date, venue_code, race_number) DO UPDATE SET
  race_wind = excluded.race_wind,
  race_wind_direction_number = excluded.race_wind_direction_number,
  race_wave = excluded.race_wave,
  race_weather_number = excluded.race_weather_number,
  race_temperature = excluded.race_temperature,
  race_water_temperature = excluded.race_water_temperature,
  race_technique_number = excluded.race_technique_number,
  win_payout = excluded.win_payout,
  place_payout_max = excluded.place_payout_max,
  exacta_payout = excluded.exacta_payout,
  quinella_payout = excluded.quinella_payout,
  trifecta_payout = excluded.trifecta_payout,
  trio_payout = excluded.trio_payout,
  winner_boat_number = excluded.winner_boat_number,
  winner_racer_number = excluded.winner_racer_number,
  race_grade_number = excluded.race_grade_number,
  race_title = excluded.race_title,
  race_subtitle = excluded.race_subtitle,
  race_distance = excluded.race_distance,
  result_data_json = excluded.result_data_json,
  program_data_json = excluded.program_data_json,
  updated_at = excluded.updated_at`,
		date, venueCode, raceNumber,
		dv.wind, dv.windDir, dv.wave,
		dv.weather, dv.temp, dv.waterTemp,
		dv.technique,
		dv.win, dv.placeMax, dv.exacta, dv.quinella,
		dv.trifecta, dv.trio,
		dv.winnerBoat, dv.winnerRacer,
		gradeNumber, title, subtitle, distance,
		resultJSON, progJSON,
		createdAt, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert race %s/%s/%d: %w", date, venueCode, raceNumber, err)
	}

	var raceID int64
	err = q.QueryRowContext(ctx,
		"SELECT id FROM races WHERE race_date = ? AND venue_code = ? AND race_number = ?",
		date, venueCode, raceNumber).Scan(&raceID)
	if err != nil {
		return fmt.Errorf("look up race id %s/%s/%d: %w", date, venueCode, raceNumber, err)
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM race_participants WHERE race_id = ?", raceID); err != nil {
		return fmt.Errorf("clear participants for race %d: %w", raceID, err)
	}

	for _, boat := range res.Boats {
		if err := insertParticipant(ctx, q, raceID, &boat, prog, createdAt, updatedAt); err != nil {
			return err
		}
	}
	return nil
}

func insertParticipant(ctx context.Context, q queryer, raceID int64, boat *openapi.ResultRacerInfo,
	prog *openapi.RaceProgram, createdAt, updatedAt string) error {

	var pb *openapi.ProgramRacerInfo
	if prog != nil {
		pb = prog.Boat(boat.RacerBoatNumber)
	}

	var classNumber, branchNumber, birthplaceNumber, age *int
	var weight *float64
	var flying, late *int
	var avgST *float64
	var nat1, nat2, nat3, loc1, loc2, loc3 *float64
	var motorNumber *int
	var motor2, motor3 *float64
	var boatNumber *int
	var boat2, boat3 *float64
	if pb != nil {
		classNumber = pb.RacerClassNumber
		branchNumber = pb.RacerBranchNumber
		birthplaceNumber = pb.RacerBirthplaceNumber
		age = pb.RacerAge
		weight = pb.RacerWeight
		flying = pb.RacerFlyingCount
		late = pb.RacerLateCount
		avgST = pb.RacerAverageStartTiming
		nat1, nat2, nat3 = pb.RacerNationalTop1Percent, pb.RacerNationalTop2Percent, pb.RacerNationalTop3Percent
		loc1, loc2, loc3 = pb.RacerLocalTop1Percent, pb.RacerLocalTop2Percent, pb.RacerLocalTop3Percent
		motorNumber = pb.RacerAssignedMotorNumber
		motor2, motor3 = pb.RacerAssignedMotorTop2, pb.RacerAssignedMotorTop3
		boatNumber = pb.RacerAssignedBoatNumber
		boat2, boat3 = pb.RacerAssignedBoatTop2, pb.RacerAssignedBoatTop3
	}

	_, err := q.ExecContext(ctx, `
INSERT INTO race_participants (
  race_id, boat_number,
  racer_number, racer_name,
  racer_class_number, racer_branch_number, racer_birthplace_number,
  racer_age, racer_weight,
  course_number, start_timing, entry_number,
  place_number, decision_hand,
  flying_count, late_count, average_start_timing,
  national_top_1_percent, national_top_2_percent, national_top_3_percent,
  local_top_1_percent, local_top_2_percent, local_top_3_percent,
  assigned_motor_number, assigned_motor_top_2_percent, assigned_motor_top_3_percent,
  assigned_boat_number, assigned_boat_top_2_percent, assigned_boat_top_3_percent,
  created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		raceID, boat.RacerBoatNumber,
		boat.RacerNumber, boat.RacerName,
		classNumber, branchNumber, birthplaceNumber,
		age, weight,
		boat.RacerCourseNumber, boat.RacerStartTiming, nil,
		boat.RacerPlaceNumber, nil,
		flying, late, avgST,
		nat1, nat2, nat3,
		loc1, loc2, loc3,
		motorNumber, motor2, motor3,
		boatNumber, boat2, boat3,
		createdAt, updatedAt)
	if err != nil {
		return fmt.Errorf("insert participant boat %d for race %d: %w", boat.RacerBoatNumber, raceID, err)
	}
	return nil
}

// programByKey loads and decodes the raw program row sharing a race
// key. Absent or undecodable program data yields (nil, nil, nil):
// program-only fields simply stay null.
func programByKey(ctx context.Context, q queryer, date, venueCode string, raceNumber int) (*openapi.RaceProgram, *string, error) {
	var raw string
	err := q.QueryRowContext(ctx,
		"SELECT data_json FROM programs WHERE date = ? AND venue_code = ? AND race_number = ?",
		date, venueCode, raceNumber).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("look up program %s/%s/%d: %w", date, venueCode, raceNumber, err)
	}
	var prog openapi.RaceProgram
	if err := json.Unmarshal([]byte(raw), &prog); err != nil {
		return nil, &raw, nil
	}
	return &prog, &raw, nil
}

// CountPreviewsByDate reports how many preview rows exist for a date.
func (d *DB) CountPreviewsByDate(ctx context.Context, date string) (int, error) {
	return d.countByDate(ctx, "previews", "date", date)
}

// CountProgramsByDate reports how many program rows exist for a date.
func (d *DB) CountProgramsByDate(ctx context.Context, date string) (int, error) {
	return d.countByDate(ctx, "programs", "date", date)
}

// CountResultsByDate reports how many result rows exist for a date,
// consulting races once the raw results table has been migrated away.
func (d *DB) CountResultsByDate(ctx context.Context, date string) (int, error) {
	migrated, err := d.tableExists(ctx, "races")
	if err != nil {
		return 0, err
	}
	if migrated {
		return d.countByDate(ctx, "races", "race_date", date)
	}
	return d.countByDate(ctx, "results", "date", date)
}

func (d *DB) countByDate(ctx context.Context, table, column, date string) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", table, column), date).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s for %s: %w", table, date, err)
	}
	return n, nil
}

// AllPreviews returns every raw preview row ordered by race key.
func (d *DB) AllPreviews(ctx context.Context) ([]RawRecord, error) {
	return d.allRaw(ctx, "previews")
}

// AllPrograms returns every raw program row ordered by race key.
func (d *DB) AllPrograms(ctx context.Context) ([]RawRecord, error) {
	return d.allRaw(ctx, "programs")
}

// AllResults returns every raw result row. Once migration has moved
// results into races the raw table is gone and this errors.
func (d *DB) AllResults(ctx context.Context) ([]RawRecord, error) {
	exists, err := d.tableExists(ctx, "results")
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("raw results were migrated into races; export the normalized tables instead")
	}
	return d.allRaw(ctx, "results")
}

func (d *DB) allRaw(ctx context.Context, table string) ([]RawRecord, error) {
	rows, err := d.sql.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, date, venue_code, race_number, data_json, created_at, updated_at
		 FROM %s ORDER BY date, venue_code, race_number`, table))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
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
