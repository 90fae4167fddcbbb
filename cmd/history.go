package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/outletwatch/outletwatch/pkg/config"
	"github.com/outletwatch/outletwatch/pkg/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent stock events (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("history-db")
		limit, _ := cmd.Flags().GetInt("limit")
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

		events, err := db.RecentEvents(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, e := range events {
			ts := e.OccurredAt.Format("2006-01-02 15:04:05")
			fmt.Printf("%s  %-12s  %s  %s  size=%s  %s\n", ts, e.EventType, e.Watch, e.ProductID, e.SizeLabel, e.ProductURL)
		}
		return nil
	},
}

func historyPathFromConfig() string {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return ""
	}
	return cfg.HistoryDB
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().String("history-db", "", "Path to the SQLite history DB (default from config)")
	historyCmd.Flags().Int("limit", 50, "Number of recent events to show")
}
