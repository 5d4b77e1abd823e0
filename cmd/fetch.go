package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shotarokuramata/bort-scraping/internal/utils"
	"github.com/shotarokuramata/bort-scraping/pkg/openapi"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download feed data into the local store",
	Long: `Downloads one data type (previews, results or programs) from the open
data feed. Use --date for a single day or --from/--to for a range;
range mode skips days already present in the store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		typeString, _ := cmd.Flags().GetString("type")
		date, _ := cmd.Flags().GetString("date")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")

		dataType, ok := openapi.ParseDataType(typeString)
		if !ok {
			return fmt.Errorf("unknown data type %q (want previews, results or programs)", typeString)
		}
		if date == "" && (from == "" || to == "") {
			return fmt.Errorf("need --date, or both --from and --to")
		}

		dbPath, err := utils.GetAbsDBPath(viper.GetString("dbpath"))
		if err != nil {
			return err
		}
		lock, err := utils.NewDBLock(dbPath)
		if err != nil {
			return err
		}
		if err := lock.Lock(); err != nil {
			return err
		}
		defer lock.Unlock()

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		client := openapi.NewClient(viper.GetString("openapi.baseurl"))
		service := openapi.NewService(db)

		if date != "" {
			if err := utils.ValidateDate(date); err != nil {
				return err
			}
			doc, err := client.FetchDay(ctx, dataType, date)
			if err != nil {
				return err
			}
			n, err := service.Save(ctx, dataType, date, doc)
			if err != nil {
				return err
			}
			fmt.Printf("saved %d %s records for %s\n", n, dataType, date)
			return nil
		}

		fetcher := openapi.NewBulkFetcher(client, service)
		fetcher.Delay = time.Duration(viper.GetInt("fetch.delay_ms")) * time.Millisecond
		fetcher.OnProgress = func(p openapi.Progress) {
			if p.Status == openapi.StatusCompleted {
				fmt.Println(p.Message)
				return
			}
			fmt.Printf("[%d/%d] %s\n", p.Current, p.Total, p.Message)
		}

		summary, err := fetcher.FetchRange(ctx, dataType, from, to)
		if err != nil {
			return err
		}
		if len(summary.Errors) > 0 {
			fmt.Printf("%d of %d days failed:\n", len(summary.Errors), summary.TotalDays)
			for _, de := range summary.Errors {
				fmt.Printf("  %s\n", de.Error())
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringP("type", "t", "results", "Data type: previews, results or programs")
	fetchCmd.Flags().StringP("date", "d", "", "Single date to fetch (YYYYMMDD)")
	fetchCmd.Flags().StringP("from", "", "", "Range start date (YYYYMMDD, inclusive)")
	fetchCmd.Flags().StringP("to", "", "", "Range end date (YYYYMMDD, inclusive)")
}
