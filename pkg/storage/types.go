package storage

import "fmt"

// RawRecord is one unprocessed feed payload keyed by
// (date, venue_code, race_number).
type RawRecord struct {
	ID         int64
	Date       string
	VenueCode  string
	RaceNumber int
	DataJSON   string
	CreatedAt  string
	UpdatedAt  string
}

// Race is one normalized race: weather readings, first-entry payouts
// per bet type, winner identifiers, program metadata, and the two
// original payloads kept for audit and export.
type Race struct {
	ID         int64
	RaceDate   string
	VenueCode  string
	RaceNumber int

	RaceWind             *float64
	RaceWindDirection    *float64
	RaceWave             *float64
	RaceWeatherNumber    *float64
	RaceTemperature      *float64
	RaceWaterTemperature *float64
	RaceTechniqueNumber  *float64

	WinPayout      *int
	PlacePayoutMax *int
	ExactaPayout   *int
	QuinellaPayout *int
	TrifectaPayout *int
	TrioPayout     *int

	WinnerBoatNumber  *int
	WinnerRacerNumber *int

	RaceGradeNumber *int
	RaceTitle       *string
	RaceSubtitle    *string
	RaceDistance    *int

	ResultDataJSON  *string
	ProgramDataJSON *string

	CreatedAt string
	UpdatedAt string
}

// RaceParticipant is one boat in one race. Owned by its Race via
// cascade delete; boat numbers run 1 through 6.
type RaceParticipant struct {
	ID         int64
	RaceID     int64
	BoatNumber int

	RacerNumber           *int
	RacerName             *string
	RacerClassNumber      *int
	RacerBranchNumber     *int
	RacerBirthplaceNumber *int
	RacerAge              *int
	RacerWeight           *float64

	CourseNumber *int
	StartTiming  *float64
	EntryNumber  *int
	PlaceNumber  *int
	DecisionHand *string

	FlyingCount        *int
	LateCount          *int
	AverageStartTiming *float64

	NationalTop1Percent *float64
	NationalTop2Percent *float64
	NationalTop3Percent *float64
	LocalTop1Percent    *float64
	LocalTop2Percent    *float64
	LocalTop3Percent    *float64

	AssignedMotorNumber      *int
	AssignedMotorTop2Percent *float64
	AssignedMotorTop3Percent *float64
	AssignedBoatNumber       *int
	AssignedBoatTop2Percent  *float64
	AssignedBoatTop3Percent  *float64

	CreatedAt string
	UpdatedAt string
}

// RaceWithParticipants pairs a race with its full participant set,
// participants ordered by boat number.
type RaceWithParticipants struct {
	Race         Race
	Participants []RaceParticipant
}

// DecodeError marks a payload that does not match the expected shape.
// During migration these are counted and skipped, never fatal.
type DecodeError struct {
	Date       string
	VenueCode  string
	RaceNumber int
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode payload for %s/%s/%d: %v", e.Date, e.VenueCode, e.RaceNumber, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IntegrityError is a post-migration row-count mismatch. It aborts and
// rolls back the whole migration stage.
type IntegrityError struct {
	Table    string
	Expected int64
	Actual   int64
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed on %s: expected %d rows, got %d", e.Table, e.Expected, e.Actual)
}
