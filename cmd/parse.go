package cmd

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shotarokuramata/bort-scraping/pkg/htmltable"
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Normalize an HTML table fragment into a JSON grid",
	Long: `Reads an HTML fragment from the given file (or stdin) and prints the
first table as a dense JSON grid: rowspan and colspan cells are
expanded so every row has the same number of columns.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")

		var input []byte
		var err error
		if len(args) == 1 {
			input, err = os.ReadFile(args[0])
		} else {
			input, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if all {
			tables, err := htmltable.ParseAll(string(input))
			if err != nil {
				return err
			}
			return enc.Encode(tables)
		}

		table, err := htmltable.Parse(string(input))
		if err != nil {
			return err
		}
		return enc.Encode(table)
	},
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCmd.Flags().BoolP("all", "a", false, "Parse every table in the fragment, not just the first")
}
