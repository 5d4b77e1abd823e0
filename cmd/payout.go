package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// payoutCmd represents the payout command
var payoutCmd = &cobra.Command{
	Use:   "payout",
	Short: "High payout race queries and payout statistics",
}

// payoutSearchCmd represents the payout search command
var payoutSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "List races whose payout exceeds a threshold",
	RunE: func(cmd *cobra.Command, args []string) error {
		min, _ := cmd.Flags().GetInt("min")
		payoutType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		db, err := openStoreMigrated(context.Background())
		if err != nil {
			return err
		}
		defer db.Close()

		races, err := db.SearchHighPayout(context.Background(), min, payoutType, limit)
		if err != nil {
			return err
		}
		if len(races) == 0 {
			fmt.Printf("No races with %s payout >= %d.\n", payoutType, min)
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "DATE\tVENUE\tRACE\tWINNER\tTRIFECTA\tWIN\t")
		for _, r := range races {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t\n",
				r.RaceDate, r.VenueCode, r.RaceNumber,
				fmtIntPtr(r.WinnerBoatNumber), fmtIntPtr(r.TrifectaPayout), fmtIntPtr(r.WinPayout))
		}
		w.Flush()
		return nil
	},
}

// payoutStatsCmd represents the payout stats command
var payoutStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print payout averages and maxima across all races",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStoreMigrated(context.Background())
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.PayoutStatistics(context.Background())
		if err != nil {
			return err
		}
		if stats.MaxTrifecta == nil {
			fmt.Println("No payout data in the store.")
			return nil
		}

		fmt.Printf("trifecta: avg %.0f yen, max %d yen\n", *stats.AvgTrifecta, *stats.MaxTrifecta)
		if stats.MaxWin != nil {
			fmt.Printf("win:      avg %.0f yen, max %d yen\n", *stats.AvgWin, *stats.MaxWin)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(payoutCmd)
	payoutCmd.AddCommand(payoutSearchCmd)
	payoutCmd.AddCommand(payoutStatsCmd)

	payoutSearchCmd.Flags().IntP("min", "m", 100000, "Minimum payout in yen")
	payoutSearchCmd.Flags().StringP("type", "t", "trifecta", "Bet type: win, place, exacta, quinella, trifecta, trio")
	payoutSearchCmd.Flags().IntP("limit", "", 100, "Maximum races to return")
}
