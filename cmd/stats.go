package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/outletwatch/outletwatch/pkg/history"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints per-watch statistics from the history database.",
	Long:  "Prints per-watch statistics from the history database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("history-db")
		if dbPath == "" {
			dbPath = historyPathFromConfig()
		}
		if dbPath == "" {
			return fmt.Errorf("no history database: pass --history-db or set history_db in the config")
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("history database not found: %s", dbPath)
		}

		db, err := history.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(cmd.Context())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No data in the database to generate stats.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "WATCH\tITEMS\tRESTOCKS\tALERTS\t")

		var totalRestocks, totalAlerts, totalItems int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t\n", s.Watch, s.ItemCount, s.RestockCount, s.AlertCount)
			totalItems += s.ItemCount
			totalRestocks += s.RestockCount
			totalAlerts += s.AlertCount
		}

		fmt.Fprintln(w, " \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t%d\t\n", totalItems, totalRestocks, totalAlerts)

		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().String("history-db", "", "Path to the SQLite history DB (default from config)")
}
