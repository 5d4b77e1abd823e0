package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/shotarokuramata/bort-scraping/internal/utils"
	"github.com/shotarokuramata/bort-scraping/pkg/storage"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bort",
	Short: "Boatrace open data collector and query tool.",
	Long: `bort downloads the daily boatrace open data feeds (previews, results,
programs), keeps them in a local SQLite store, and answers race and
racer queries against the normalized schema.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bort.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("dbpath", "", "", "Path to the SQLite database file")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	viper.BindPFlag("dbpath", rootCmd.PersistentFlags().Lookup("dbpath"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".bort")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.bort.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	viper.SetDefault("dbpath", "")
	viper.SetDefault("openapi.baseurl", "")
	viper.SetDefault("fetch.delay_ms", 500)

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

// openStore resolves the configured database path and opens the store.
func openStore() (*storage.DB, error) {
	path, err := utils.GetAbsDBPath(viper.GetString("dbpath"))
	if err != nil {
		return nil, err
	}
	return storage.Open(path)
}

// openStoreMigrated opens the store and ensures the normalized schema
// exists before any query runs. The migration pass writes, so it runs
// under the same file lock the fetch path takes; once applied the
// gates make it a no-op.
func openStoreMigrated(ctx context.Context) (*storage.DB, error) {
	path, err := utils.GetAbsDBPath(viper.GetString("dbpath"))
	if err != nil {
		return nil, err
	}
	lock, err := utils.NewDBLock(path)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}
	defer lock.Unlock()

	db, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
