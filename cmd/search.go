package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shotarokuramata/bort-scraping/pkg/storage"
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search races by racer, date, venue, weather and payout conditions",
	Long: `Searches the normalized race store. Every flag is optional; the ones
you set are combined with AND. Racer and place flags match against the
participants of each race.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := searchParamsFromFlags(cmd)
		if err != nil {
			return err
		}

		db, err := openStoreMigrated(context.Background())
		if err != nil {
			return err
		}
		defer db.Close()

		races, err := db.Search(context.Background(), params)
		if err != nil {
			return err
		}
		if len(races) == 0 {
			fmt.Println("No races matched.")
			return nil
		}

		printRaces(races)
		return nil
	},
}

// searchParamsFromFlags builds SearchParams from the flags the user
// actually set, so unset flags add no predicate.
func searchParamsFromFlags(cmd *cobra.Command) (storage.SearchParams, error) {
	var p storage.SearchParams

	intFlag := func(name string, dst **int) {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetInt(name)
			*dst = &v
		}
	}
	floatFlag := func(name string, dst **float64) {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetFloat64(name)
			*dst = &v
		}
	}
	stringFlag := func(name string, dst **string) {
		if cmd.Flags().Changed(name) {
			v, _ := cmd.Flags().GetString(name)
			*dst = &v
		}
	}

	intFlag("racer", &p.RacerNumber)
	stringFlag("racer-name", &p.RacerName)
	intFlag("class", &p.RacerClass)
	stringFlag("from", &p.DateFrom)
	stringFlag("to", &p.DateTo)
	stringFlag("venue", &p.VenueCode)
	intFlag("grade", &p.RaceGrade)
	intFlag("race", &p.RaceNumber)
	intFlag("min-trifecta", &p.MinTrifectaPayout)
	intFlag("max-trifecta", &p.MaxTrifectaPayout)
	intFlag("min-win", &p.MinWinPayout)
	floatFlag("min-wind", &p.MinWind)
	floatFlag("max-wind", &p.MaxWind)
	floatFlag("min-wave", &p.MinWave)
	floatFlag("max-wave", &p.MaxWave)
	floatFlag("min-temp", &p.MinTemperature)
	floatFlag("max-temp", &p.MaxTemperature)
	intFlag("winner-boat", &p.WinnerBoatNumber)
	intFlag("place", &p.PlaceNumber)
	p.Limit, _ = cmd.Flags().GetInt("limit")

	return p, nil
}

func printRaces(races []storage.RaceWithParticipants) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "DATE\tVENUE\tRACE\tWINNER\tTRIFECTA\tWIN\t")
	for _, rw := range races {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t\n",
			rw.Race.RaceDate, rw.Race.VenueCode, rw.Race.RaceNumber,
			fmtIntPtr(rw.Race.WinnerBoatNumber),
			fmtIntPtr(rw.Race.TrifectaPayout),
			fmtIntPtr(rw.Race.WinPayout))
	}
	w.Flush()
	fmt.Printf("%d races\n", len(races))
}

func fmtIntPtr(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntP("racer", "r", 0, "Racer registration number")
	searchCmd.Flags().StringP("racer-name", "n", "", "Racer name substring")
	searchCmd.Flags().IntP("class", "c", 0, "Racer class (1=A1, 2=A2, 3=B1, 4=B2)")
	searchCmd.Flags().StringP("from", "", "", "Start date (YYYYMMDD, inclusive)")
	searchCmd.Flags().StringP("to", "", "", "End date (YYYYMMDD, inclusive)")
	searchCmd.Flags().StringP("venue", "v", "", "Venue code (01-24)")
	searchCmd.Flags().IntP("grade", "g", 0, "Race grade (1=SG, 2=G1, 3=G2, 4=G3, 5=regular)")
	searchCmd.Flags().IntP("race", "", 0, "Race number (1-12)")
	searchCmd.Flags().IntP("min-trifecta", "", 0, "Minimum trifecta payout in yen")
	searchCmd.Flags().IntP("max-trifecta", "", 0, "Maximum trifecta payout in yen")
	searchCmd.Flags().IntP("min-win", "", 0, "Minimum win payout in yen")
	searchCmd.Flags().Float64P("min-wind", "", 0, "Minimum wind speed (m/s)")
	searchCmd.Flags().Float64P("max-wind", "", 0, "Maximum wind speed (m/s)")
	searchCmd.Flags().Float64P("min-wave", "", 0, "Minimum wave height (cm)")
	searchCmd.Flags().Float64P("max-wave", "", 0, "Maximum wave height (cm)")
	searchCmd.Flags().Float64P("min-temp", "", 0, "Minimum air temperature (C)")
	searchCmd.Flags().Float64P("max-temp", "", 0, "Maximum air temperature (C)")
	searchCmd.Flags().IntP("winner-boat", "", 0, "Winning boat number (1-6)")
	searchCmd.Flags().IntP("place", "", 0, "Finishing place of the matched racer")
	searchCmd.Flags().IntP("limit", "", storage.DefaultSearchLimit, "Maximum races to return")
}
