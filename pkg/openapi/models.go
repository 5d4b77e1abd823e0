package openapi

// Feed document shapes for the three daily boatrace endpoints. Every
// field the feed may omit is a pointer so absence survives a decode
// round trip.

// DataType selects one of the three feed endpoints.
type DataType string

const (
	Previews DataType = "previews"
	Results  DataType = "results"
	Programs DataType = "programs"
)

// ParseDataType converts a user-supplied string to a DataType.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "previews":
		return Previews, true
	case "results":
		return Results, true
	case "programs":
		return Programs, true
	}
	return "", false
}

// ===== Previews =====

type PreviewsResponse struct {
	Previews []RacePreview `json:"previews"`
}

type RacePreview struct {
	RaceDate             string                      `json:"race_date"`
	RaceStadiumNumber    int                         `json:"race_stadium_number"`
	RaceNumber           int                         `json:"race_number"`
	RaceWind             *float64                    `json:"race_wind"`
	RaceWindDirection    *float64                    `json:"race_wind_direction_number"`
	RaceWave             *float64                    `json:"race_wave"`
	RaceWeatherNumber    *float64                    `json:"race_weather_number"`
	RaceTemperature      *float64                    `json:"race_temperature"`
	RaceWaterTemperature *float64                    `json:"race_water_temperature"`
	Boats                map[string]PreviewRacerInfo `json:"boats"`
}

type PreviewRacerInfo struct {
	RacerBoatNumber       *int     `json:"racer_boat_number"`
	RacerCourseNumber     *int     `json:"racer_course_number"`
	RacerStartTiming      *float64 `json:"racer_start_timing"`
	RacerWeight           *float64 `json:"racer_weight"`
	RacerWeightAdjustment *float64 `json:"racer_weight_adjustment"`
	RacerExhibitionTime   *float64 `json:"racer_exhibition_time"`
	RacerTiltAdjustment   *float64 `json:"racer_tilt_adjustment"`
}

// ===== Results =====

type ResultsResponse struct {
	Results []RaceResult `json:"results"`
}

type RaceResult struct {
	RaceDate             string            `json:"race_date"`
	RaceStadiumNumber    int               `json:"race_stadium_number"`
	RaceNumber           int               `json:"race_number"`
	RaceWind             *float64          `json:"race_wind"`
	RaceWindDirection    *float64          `json:"race_wind_direction_number"`
	RaceWave             *float64          `json:"race_wave"`
	RaceWeatherNumber    *float64          `json:"race_weather_number"`
	RaceTemperature      *float64          `json:"race_temperature"`
	RaceWaterTemperature *float64          `json:"race_water_temperature"`
	RaceTechniqueNumber  *float64          `json:"race_technique_number"`
	Boats                []ResultRacerInfo `json:"boats"`
	Payouts              PayoutInfo        `json:"payouts"`
}

type ResultRacerInfo struct {
	RacerBoatNumber   int      `json:"racer_boat_number"`
	RacerCourseNumber *int     `json:"racer_course_number"`
	RacerStartTiming  *float64 `json:"racer_start_timing"`
	RacerPlaceNumber  *int     `json:"racer_place_number"`
	RacerNumber       *int     `json:"racer_number"`
	RacerName         *string  `json:"racer_name"`
}

type PayoutInfo struct {
	Win           []PayoutEntry `json:"win"`
	Place         []PayoutEntry `json:"place"`
	Exacta        []PayoutEntry `json:"exacta"`
	Quinella      []PayoutEntry `json:"quinella"`
	QuinellaPlace []PayoutEntry `json:"quinella_place"`
	Trifecta      []PayoutEntry `json:"trifecta"`
	Trio          []PayoutEntry `json:"trio"`
}

type PayoutEntry struct {
	Combination *string `json:"combination"`
	Payout      *int    `json:"payout"`
}

// FirstPayout returns the payout of the first entry, or nil.
func FirstPayout(entries []PayoutEntry) *int {
	if len(entries) == 0 {
		return nil
	}
	return entries[0].Payout
}

// MaxPayout returns the largest payout across entries, or nil when no
// entry carries one.
func MaxPayout(entries []PayoutEntry) *int {
	var max *int
	for _, e := range entries {
		if e.Payout == nil {
			continue
		}
		if max == nil || *e.Payout > *max {
			v := *e.Payout
			max = &v
		}
	}
	return max
}

// Winner returns the boat that finished first, or nil when no boat
// holds place 1 (DNS/DNF races).
func (r *RaceResult) Winner() *ResultRacerInfo {
	for i := range r.Boats {
		if r.Boats[i].RacerPlaceNumber != nil && *r.Boats[i].RacerPlaceNumber == 1 {
			return &r.Boats[i]
		}
	}
	return nil
}

// ===== Programs =====

type ProgramsResponse struct {
	Programs []RaceProgram `json:"programs"`
}

type RaceProgram struct {
	RaceDate          string             `json:"race_date"`
	RaceStadiumNumber int                `json:"race_stadium_number"`
	RaceNumber        int                `json:"race_number"`
	RaceClosedAt      *string            `json:"race_closed_at"`
	RaceGradeNumber   *int               `json:"race_grade_number"`
	RaceTitle         *string            `json:"race_title"`
	RaceSubtitle      *string            `json:"race_subtitle"`
	RaceDistance      *int               `json:"race_distance"`
	Boats             []ProgramRacerInfo `json:"boats"`
}

type ProgramRacerInfo struct {
	RacerBoatNumber          *int     `json:"racer_boat_number"`
	RacerName                *string  `json:"racer_name"`
	RacerNumber              *int     `json:"racer_number"`
	RacerClassNumber         *int     `json:"racer_class_number"`
	RacerBranchNumber        *int     `json:"racer_branch_number"`
	RacerBirthplaceNumber    *int     `json:"racer_birthplace_number"`
	RacerAge                 *int     `json:"racer_age"`
	RacerWeight              *float64 `json:"racer_weight"`
	RacerFlyingCount         *int     `json:"racer_flying_count"`
	RacerLateCount           *int     `json:"racer_late_count"`
	RacerAverageStartTiming  *float64 `json:"racer_average_start_timing"`
	RacerNationalTop1Percent *float64 `json:"racer_national_top_1_percent"`
	RacerNationalTop2Percent *float64 `json:"racer_national_top_2_percent"`
	RacerNationalTop3Percent *float64 `json:"racer_national_top_3_percent"`
	RacerLocalTop1Percent    *float64 `json:"racer_local_top_1_percent"`
	RacerLocalTop2Percent    *float64 `json:"racer_local_top_2_percent"`
	RacerLocalTop3Percent    *float64 `json:"racer_local_top_3_percent"`
	RacerAssignedMotorNumber *int     `json:"racer_assigned_motor_number"`
	RacerAssignedMotorTop2   *float64 `json:"racer_assigned_motor_top_2_percent"`
	RacerAssignedMotorTop3   *float64 `json:"racer_assigned_motor_top_3_percent"`
	RacerAssignedBoatNumber  *int     `json:"racer_assigned_boat_number"`
	RacerAssignedBoatTop2    *float64 `json:"racer_assigned_boat_top_2_percent"`
	RacerAssignedBoatTop3    *float64 `json:"racer_assigned_boat_top_3_percent"`
}

// Boat looks up the program entry for a boat number, or nil.
func (p *RaceProgram) Boat(boatNumber int) *ProgramRacerInfo {
	for i := range p.Boats {
		if p.Boats[i].RacerBoatNumber != nil && *p.Boats[i].RacerBoatNumber == boatNumber {
			return &p.Boats[i]
		}
	}
	return nil
}
