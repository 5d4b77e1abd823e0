package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shotarokuramata/bort-scraping/internal/utils"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the bort database",
}

// dbShellCmd represents the db shell command
var dbShellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := utils.GetAbsDBPath(viper.GetString("dbpath"))
		if err != nil {
			return err
		}
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// dbStatsCmd represents the db stats command
var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-date record counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStoreMigrated(context.Background())
		if err != nil {
			return err
		}
		defer db.Close()

		summary, err := db.Summary(context.Background())
		if err != nil {
			return err
		}
		if len(summary) == 0 {
			fmt.Println("No data in the database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "DATE\tPREVIEWS\tRACES\tPROGRAMS\t")

		var totalPreviews, totalRaces, totalPrograms int
		for _, s := range summary {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t\n", s.Date, s.Previews, s.Races, s.Programs)
			totalPreviews += s.Previews
			totalRaces += s.Races
			totalPrograms += s.Programs
		}

		fmt.Fprintln(w, " \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t\n", totalPreviews, totalRaces, totalPrograms)

		w.Flush()
		return nil
	},
}

// dbResetCmd represents the db reset command
var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every table and recreate the raw schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("this deletes all stored data; re-run with --force to confirm")
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

		if err := db.Reset(context.Background()); err != nil {
			return err
		}
		fmt.Println("database reset")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbShellCmd)
	dbCmd.AddCommand(dbStatsCmd)
	dbCmd.AddCommand(dbResetCmd)

	dbResetCmd.Flags().BoolP("force", "f", false, "Skip the confirmation check")
}
