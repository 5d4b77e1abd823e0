package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shotarokuramata/bort-scraping/internal/utils"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade the store to the normalized schema",
	Long: `Runs the schema migration stages: search columns are added to the raw
results table, then every result is moved into the races and
race_participants tables. Safe to re-run; an already-migrated store is
left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		if err := db.Migrate(context.Background()); err != nil {
			return err
		}
		fmt.Println("store schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
