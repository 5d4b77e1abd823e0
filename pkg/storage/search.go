package storage

import (
	"context"
	"fmt"
	"strings"
)

// DefaultSearchLimit caps result sets when the caller does not set one.
const DefaultSearchLimit = 100

// SearchParams is a bag of independently optional filters, combined
// with AND. Nil fields contribute no predicate.
type SearchParams struct {
	// Racer conditions
	RacerNumber *int
	RacerName   *string // substring match
	RacerClass  *int    // 1=A1, 2=A2, 3=B1, 4=B2

	// Date and venue conditions
	DateFrom  *string // YYYYMMDD, inclusive
	DateTo    *string // YYYYMMDD, inclusive
	VenueCode *string // "01"-"24"

	// Race conditions
	RaceGrade  *int // 1=SG, 2=G1, 3=G2, 4=G3, 5=regular
	RaceNumber *int

	// Payout conditions
	MinTrifectaPayout *int
	MaxTrifectaPayout *int
	MinWinPayout      *int

	// Weather conditions
	MinWind        *float64
	MaxWind        *float64
	MinWave        *float64
	MaxWave        *float64
	MinTemperature *float64
	MaxTemperature *float64

	// Winner condition
	WinnerBoatNumber *int

	// Finishing place condition (participant-level)
	PlaceNumber *int

	// Result cap; DefaultSearchLimit when <= 0.
	Limit int
}

// participantLevel reports whether any filter requires joining the
// participants table.
func (p *SearchParams) participantLevel() bool {
	return p.RacerNumber != nil || p.RacerName != nil || p.RacerClass != nil || p.PlaceNumber != nil
}

// predicate is one rendered filter: a SQL fragment with exactly its
// bound arguments. Values are always bound, never concatenated.
type predicate struct {
	expr string
	args []interface{}
}

func (p *SearchParams) predicates() []predicate {
	var preds []predicate
	add := func(expr string, args ...interface{}) {
		preds = append(preds, predicate{expr: expr, args: args})
	}

	if p.RacerNumber != nil {
		add("p.racer_number = ?", *p.RacerNumber)
	}
	if p.RacerName != nil {
		add("p.racer_name LIKE ?", "%"+*p.RacerName+"%")
	}
	if p.RacerClass != nil {
		add("p.racer_class_number = ?", *p.RacerClass)
	}
	if p.PlaceNumber != nil {
		add("p.place_number = ?", *p.PlaceNumber)
	}
	if p.DateFrom != nil {
		add("r.race_date >= ?", *p.DateFrom)
	}
	if p.DateTo != nil {
		add("r.race_date <= ?", *p.DateTo)
	}
	if p.VenueCode != nil {
		add("r.venue_code = ?", *p.VenueCode)
	}
	if p.RaceGrade != nil {
		add("r.race_grade_number = ?", *p.RaceGrade)
	}
	if p.RaceNumber != nil {
		add("r.race_number = ?", *p.RaceNumber)
	}
	if p.MinTrifectaPayout != nil {
		add("r.trifecta_payout >= ?", *p.MinTrifectaPayout)
	}
	if p.MaxTrifectaPayout != nil {
		add("r.trifecta_payout <= ?", *p.MaxTrifectaPayout)
	}
	if p.MinWinPayout != nil {
		add("r.win_payout >= ?", *p.MinWinPayout)
	}
	if p.MinWind != nil {
		add("r.race_wind >= ?", *p.MinWind)
	}
	if p.MaxWind != nil {
		add("r.race_wind <= ?", *p.MaxWind)
	}
	if p.MinWave != nil {
		add("r.race_wave >= ?", *p.MinWave)
	}
	if p.MaxWave != nil {
		add("r.race_wave <= ?", *p.MaxWave)
	}
	if p.MinTemperature != nil {
		add("r.race_temperature >= ?", *p.MinTemperature)
	}
	if p.MaxTemperature != nil {
		add("r.race_temperature <= ?", *p.MaxTemperature)
	}
	if p.WinnerBoatNumber != nil {
		add("r.winner_boat_number = ?", *p.WinnerBoatNumber)
	}
	return preds
}

const raceColumns = `r.id, r.race_date, r.venue_code, r.race_number,
r.race_wind, r.race_wind_direction_number, r.race_wave,
r.race_weather_number, r.race_temperature, r.race_water_temperature,
r.race_technique_number,
r.win_payout, r.place_payout_max, r.exacta_payout, r.quinella_payout,
r.trifecta_payout, r.trio_payout,
r.winner_boat_number, r.winner_racer_number,
r.race_grade_number, r.race_title, r.race_subtitle, r.race_distance,
r.result_data_json, r.program_data_json,
r.created_at, r.updated_at`

// Search runs the compound query: races filtered by every present
// predicate, joined to participants only when a participant-level
// filter is present, then a second pass loading the full participant
// set of each matched race.
func (d *DB) Search(ctx context.Context, params SearchParams) ([]RaceWithParticipants, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	var b strings.Builder
	var args []interface{}

	if params.participantLevel() {
		b.WriteString("SELECT DISTINCT " + raceColumns + " FROM races r JOIN race_participants p ON p.race_id = r.id")
	} else {
		b.WriteString("SELECT " + raceColumns + " FROM races r")
	}

	preds := params.predicates()
	for i, pred := range preds {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(pred.expr)
		args = append(args, pred.args...)
	}

	b.WriteString(" ORDER BY r.race_date DESC, r.venue_code, r.race_number LIMIT ?")
	args = append(args, limit)

	rows, err := d.sql.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search races: %w", err)
	}
	defer rows.Close()

	var races []Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		races = append(races, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]RaceWithParticipants, 0, len(races))
	for _, r := range races {
		participants, err := d.participantsForRace(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RaceWithParticipants{Race: r, Participants: participants})
	}
	return out, nil
}

// rowScanner lets scanRace work with both *sql.Rows and *sql.Row.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRace(rs rowScanner) (Race, error) {
	var r Race
	err := rs.Scan(
		&r.ID, &r.RaceDate, &r.VenueCode, &r.RaceNumber,
		&r.RaceWind, &r.RaceWindDirection, &r.RaceWave,
		&r.RaceWeatherNumber, &r.RaceTemperature, &r.RaceWaterTemperature,
		&r.RaceTechniqueNumber,
		&r.WinPayout, &r.PlacePayoutMax, &r.ExactaPayout, &r.QuinellaPayout,
		&r.TrifectaPayout, &r.TrioPayout,
		&r.WinnerBoatNumber, &r.WinnerRacerNumber,
		&r.RaceGradeNumber, &r.RaceTitle, &r.RaceSubtitle, &r.RaceDistance,
		&r.ResultDataJSON, &r.ProgramDataJSON,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Race{}, fmt.Errorf("scan race: %w", err)
	}
	return r, nil
}

func (d *DB) participantsForRace(ctx context.Context, raceID int64) ([]RaceParticipant, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT id, race_id, boat_number,
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
FROM race_participants WHERE race_id = ? ORDER BY boat_number`, raceID)
	if err != nil {
		return nil, fmt.Errorf("load participants for race %d: %w", raceID, err)
	}
	defer rows.Close()

	var out []RaceParticipant
	for rows.Next() {
		var p RaceParticipant
		err := rows.Scan(
			&p.ID, &p.RaceID, &p.BoatNumber,
			&p.RacerNumber, &p.RacerName,
			&p.RacerClassNumber, &p.RacerBranchNumber, &p.RacerBirthplaceNumber,
			&p.RacerAge, &p.RacerWeight,
			&p.CourseNumber, &p.StartTiming, &p.EntryNumber,
			&p.PlaceNumber, &p.DecisionHand,
			&p.FlyingCount, &p.LateCount, &p.AverageStartTiming,
			&p.NationalTop1Percent, &p.NationalTop2Percent, &p.NationalTop3Percent,
			&p.LocalTop1Percent, &p.LocalTop2Percent, &p.LocalTop3Percent,
			&p.AssignedMotorNumber, &p.AssignedMotorTop2Percent, &p.AssignedMotorTop3Percent,
			&p.AssignedBoatNumber, &p.AssignedBoatTop2Percent, &p.AssignedBoatTop3Percent,
			&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ===== Convenience wrappers: one filter group each =====

// SearchByRacer finds races containing a participant with the racer number.
func (d *DB) SearchByRacer(ctx context.Context, racerNumber, limit int) ([]RaceWithParticipants, error) {
	return d.Search(ctx, SearchParams{RacerNumber: &racerNumber, Limit: limit})
}

// SearchByRacerName finds races with a participant whose name contains the substring.
func (d *DB) SearchByRacerName(ctx context.Context, name string, limit int) ([]RaceWithParticipants, error) {
	return d.Search(ctx, SearchParams{RacerName: &name, Limit: limit})
}

// SearchByClass finds races containing a participant of the given class.
func (d *DB) SearchByClass(ctx context.Context, class, limit int) ([]RaceWithParticipants, error) {
	return d.Search(ctx, SearchParams{RacerClass: &class, Limit: limit})
}

// SearchByDateRange finds races within the inclusive date range.
func (d *DB) SearchByDateRange(ctx context.Context, from, to string, limit int) ([]RaceWithParticipants, error) {
	return d.Search(ctx, SearchParams{DateFrom: &from, DateTo: &to, Limit: limit})
}

// SearchByVenue finds races held at the venue.
func (d *DB) SearchByVenue(ctx context.Context, venueCode string, limit int) ([]RaceWithParticipants, error) {
	return d.Search(ctx, SearchParams{VenueCode: &venueCode, Limit: limit})
}

// payoutColumns maps a bet type name to its races column.
var payoutColumns = map[string]string{
	"win":      "win_payout",
	"place":    "place_payout_max",
	"exacta":   "exacta_payout",
	"quinella": "quinella_payout",
	"trifecta": "trifecta_payout",
	"trio":     "trio_payout",
}

// SearchHighPayout returns races whose payout for the given bet type
// is at least minPayout, highest payout first.
func (d *DB) SearchHighPayout(ctx context.Context, minPayout int, payoutType string, limit int) ([]Race, error) {
	column, ok := payoutColumns[payoutType]
	if !ok {
		return nil, fmt.Errorf("unknown payout type %q", payoutType)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	query := fmt.Sprintf("SELECT %s FROM races r WHERE r.%s >= ? ORDER BY r.%s DESC LIMIT ?",
		raceColumns, column, column)
	rows, err := d.sql.QueryContext(ctx, query, minPayout, limit)
	if err != nil {
		return nil, fmt.Errorf("search high payout races: %w", err)
	}
	defer rows.Close()

	var out []Race
	for rows.Next() {
		r, err := scanRace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PayoutStats summarizes trifecta and win payouts across all races.
type PayoutStats struct {
	AvgTrifecta *float64
	MaxTrifecta *int
	AvgWin      *float64
	MaxWin      *int
}

// PayoutStatistics computes payout averages and maxima over races that
// carry a trifecta payout.
func (d *DB) PayoutStatistics(ctx context.Context) (PayoutStats, error) {
	var s PayoutStats
	err := d.sql.QueryRowContext(ctx, `
SELECT AVG(trifecta_payout), MAX(trifecta_payout), AVG(win_payout), MAX(win_payout)
FROM races WHERE trifecta_payout IS NOT NULL`).
		Scan(&s.AvgTrifecta, &s.MaxTrifecta, &s.AvgWin, &s.MaxWin)
	if err != nil {
		return PayoutStats{}, fmt.Errorf("payout statistics: %w", err)
	}
	return s, nil
}

// DataSummary reports per-date record counts across the store.
type DataSummary struct {
	Date     string
	Previews int
	Races    int
	Programs int
}

// Summary returns one row per date seen anywhere in the store, newest
// date first.
func (d *DB) Summary(ctx context.Context) ([]DataSummary, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT date, SUM(previews), SUM(races), SUM(programs) FROM (
  SELECT date, COUNT(*) AS previews, 0 AS races, 0 AS programs FROM previews GROUP BY date
  UNION ALL
  SELECT race_date, 0, COUNT(*), 0 FROM races GROUP BY race_date
  UNION ALL
  SELECT date, 0, 0, COUNT(*) FROM programs GROUP BY date
) GROUP BY date ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("data summary: %w", err)
	}
	defer rows.Close()

	var out []DataSummary
	for rows.Next() {
		var s DataSummary
		if err := rows.Scan(&s.Date, &s.Previews, &s.Races, &s.Programs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
