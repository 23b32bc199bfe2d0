package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/lookout/internal/utils"
)

var (
	resetDB       bool
	resetSuspects bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Alert history, Suspect photos)",
	Long:  "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetSuspects {
			resetDB = true
			resetSuspects = true
		}

		reader := bufio.NewReader(os.Stdin)

		if resetDB {
			db, err := openStore(cmd.Context())
			switch {
			case err != nil:
				utils.ShowError("Failed to connect to database", err, nil)
				return err
			case db == nil:
				fmt.Println("ℹ️  No database configured, skipping alert history.")
			default:
				defer db.Close()
				if confirm(reader, os.Stdout, "⚠️  Are you sure you want to DROP the alert history?") {
					fmt.Println("🗑️  Clearing Database...")
					if err := db.Reset(cmd.Context()); err != nil {
						utils.ShowError("Failed to reset database", err, nil)
						return err
					}
				}
			}
		}

		if resetSuspects {
			if confirm(reader, os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete all suspect photos in %s?", cfg.SuspectsDir)) {
				fmt.Println("🗑️  Clearing Suspect Photos...")
				removeDir(cfg.SuspectsDir)
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "alerts", false, "Clear the PostgreSQL alert history")
	resetCmd.Flags().BoolVar(&resetSuspects, "suspects", false, "Delete the suspect photo directory")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
