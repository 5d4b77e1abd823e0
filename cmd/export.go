package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/shotarokuramata/bort-scraping/pkg/openapi"
	"github.com/shotarokuramata/bort-scraping/pkg/storage"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored data as CSV",
}

// exportNormalizedCmd represents the export normalized command
var exportNormalizedCmd = &cobra.Command{
	Use:   "normalized",
	Short: "Write races.csv and race_participants.csv",
	Long: `Writes one CSV row per race and one per participant. Participant rows
carry the weight adjustment, exhibition time and tilt adjustment from
the matching preview when one was stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("out")
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}

		db, err := openStoreMigrated(context.Background())
		if err != nil {
			return err
		}
		defer db.Close()

		exported, err := db.AllRacesWithParticipants(context.Background())
		if err != nil {
			return err
		}

		if err := writeRacesCSV(filepath.Join(outDir, "races.csv"), exported); err != nil {
			return err
		}
		if err := writeParticipantsCSV(filepath.Join(outDir, "race_participants.csv"), exported); err != nil {
			return err
		}

		participants := 0
		for _, e := range exported {
			participants += len(e.Participants)
		}
		fmt.Printf("exported %d races and %d participants to %s\n", len(exported), participants, outDir)
		return nil
	},
}

// exportRawCmd represents the export raw command
var exportRawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Write raw feed payload rows for one data type",
	RunE: func(cmd *cobra.Command, args []string) error {
		typeString, _ := cmd.Flags().GetString("type")
		outPath, _ := cmd.Flags().GetString("out")

		dataType, ok := openapi.ParseDataType(typeString)
		if !ok {
			return fmt.Errorf("unknown data type %q (want previews, results or programs)", typeString)
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		var records []storage.RawRecord
		switch dataType {
		case openapi.Previews:
			records, err = db.AllPreviews(ctx)
		case openapi.Results:
			records, err = db.AllResults(ctx)
		case openapi.Programs:
			records, err = db.AllPrograms(ctx)
		}
		if err != nil {
			return err
		}

		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()

		w := csv.NewWriter(f)
		if err := w.Write([]string{"date", "venue_code", "race_number", "data_type", "data_json"}); err != nil {
			return err
		}
		for _, r := range records {
			row := []string{r.Date, r.VenueCode, strconv.Itoa(r.RaceNumber), string(dataType), r.DataJSON}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}

		fmt.Printf("exported %d %s rows to %s\n", len(records), dataType, outPath)
		return nil
	},
}

func writeRacesCSV(path string, exported []storage.ExportRace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"race_date", "venue_code", "race_number",
		"race_grade_number", "race_title", "race_subtitle", "race_distance",
		"race_wind", "race_wind_direction_number", "race_wave",
		"race_weather_number", "race_temperature", "race_water_temperature",
		"win_payout", "place_payout_max", "exacta_payout", "quinella_payout",
		"trifecta_payout", "trio_payout",
		"winner_boat_number", "winner_racer_number",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, e := range exported {
		r := e.Race
		row := []string{
			r.RaceDate, r.VenueCode, strconv.Itoa(r.RaceNumber),
			csvInt(r.RaceGradeNumber), csvStr(r.RaceTitle), csvStr(r.RaceSubtitle), csvInt(r.RaceDistance),
			csvFloat(r.RaceWind), csvFloat(r.RaceWindDirection), csvFloat(r.RaceWave),
			csvFloat(r.RaceWeatherNumber), csvFloat(r.RaceTemperature), csvFloat(r.RaceWaterTemperature),
			csvInt(r.WinPayout), csvInt(r.PlacePayoutMax), csvInt(r.ExactaPayout), csvInt(r.QuinellaPayout),
			csvInt(r.TrifectaPayout), csvInt(r.TrioPayout),
			csvInt(r.WinnerBoatNumber), csvInt(r.WinnerRacerNumber),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeParticipantsCSV(path string, exported []storage.ExportRace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{
		"race_date", "venue_code", "race_number", "boat_number",
		"racer_number", "racer_name", "racer_class_number",
		"racer_branch_number", "racer_birthplace_number", "racer_age", "racer_weight",
		"course_number", "start_timing", "place_number",
		"flying_count", "late_count", "average_start_timing",
		"national_top_1_percent", "national_top_2_percent", "national_top_3_percent",
		"local_top_1_percent", "local_top_2_percent", "local_top_3_percent",
		"assigned_motor_number", "assigned_motor_top_2_percent", "assigned_motor_top_3_percent",
		"assigned_boat_number", "assigned_boat_top_2_percent", "assigned_boat_top_3_percent",
		"preview_weight_adjustment", "preview_exhibition_time", "preview_tilt_adjustment",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, e := range exported {
		for _, p := range e.Participants {
			adjustment, exhibition, tilt := previewFields(e.PreviewJSON, p.BoatNumber)
			row := []string{
				e.Race.RaceDate, e.Race.VenueCode, strconv.Itoa(e.Race.RaceNumber), strconv.Itoa(p.BoatNumber),
				csvInt(p.RacerNumber), csvStr(p.RacerName), csvInt(p.RacerClassNumber),
				csvInt(p.RacerBranchNumber), csvInt(p.RacerBirthplaceNumber), csvInt(p.RacerAge), csvFloat(p.RacerWeight),
				csvInt(p.CourseNumber), csvFloat(p.StartTiming), csvInt(p.PlaceNumber),
				csvInt(p.FlyingCount), csvInt(p.LateCount), csvFloat(p.AverageStartTiming),
				csvFloat(p.NationalTop1Percent), csvFloat(p.NationalTop2Percent), csvFloat(p.NationalTop3Percent),
				csvFloat(p.LocalTop1Percent), csvFloat(p.LocalTop2Percent), csvFloat(p.LocalTop3Percent),
				csvInt(p.AssignedMotorNumber), csvFloat(p.AssignedMotorTop2Percent), csvFloat(p.AssignedMotorTop3Percent),
				csvInt(p.AssignedBoatNumber), csvFloat(p.AssignedBoatTop2Percent), csvFloat(p.AssignedBoatTop3Percent),
				adjustment, exhibition, tilt,
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// previewFields pulls the per-boat adjustment columns out of a stored
// preview payload. Boats are keyed by boat-number string in the feed.
func previewFields(previewJSON *string, boatNumber int) (adjustment, exhibition, tilt string) {
	if previewJSON == nil {
		return "", "", ""
	}
	boat := gjson.Get(*previewJSON, "boats."+strconv.Itoa(boatNumber))
	if !boat.Exists() {
		return "", "", ""
	}
	get := func(field string) string {
		v := boat.Get(field)
		if !v.Exists() || v.Type == gjson.Null {
			return ""
		}
		return v.String()
	}
	return get("racer_weight_adjustment"), get("racer_exhibition_time"), get("racer_tilt_adjustment")
}

func csvInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func csvFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func csvStr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportNormalizedCmd)
	exportCmd.AddCommand(exportRawCmd)

	exportNormalizedCmd.Flags().StringP("out", "o", ".", "Output directory")
	exportRawCmd.Flags().StringP("type", "t", "previews", "Data type: previews, results or programs")
	exportRawCmd.Flags().StringP("out", "o", "raw_export.csv", "Output file")
}
