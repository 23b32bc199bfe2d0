package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/lookout/internal/store"
	"github.com/andresmejia3/lookout/internal/types"
	"github.com/andresmejia3/lookout/internal/utils"
)

var (
	alertsLimit   int
	alertsSummary bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show the alert history stored in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		db, err := openStore(cmd.Context())
		if err != nil {
			utils.ShowError("Failed to connect to database", err, nil)
			return err
		}
		if db == nil {
			err := fmt.Errorf("no database configured (use --db or POSTGRES_HOST)")
			utils.ShowError("Alert history unavailable", err, nil)
			return err
		}
		defer db.Close()

		if alertsSummary {
			counts, err := db.CountByIdentity(cmd.Context())
			if err != nil {
				utils.ShowError("Failed to summarize alerts", err, nil)
				return err
			}
			printAlertCounts(os.Stdout, counts)
			return nil
		}

		events, err := db.Recent(cmd.Context(), alertsLimit)
		if err != nil {
			utils.ShowError("Failed to list alerts", err, nil)
			return err
		}
		printAlerts(os.Stdout, events)
		return nil
	},
}

func init() {
	alertsCmd.Flags().IntVarP(&alertsLimit, "limit", "n", 20, "Number of alerts to show")
	alertsCmd.Flags().BoolVarP(&alertsSummary, "summary", "s", false, "Show alert counts per suspect")
	rootCmd.AddCommand(alertsCmd)
}

func printAlerts(out io.Writer, events []types.AlertEvent) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No alerts recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FIRED\tSUSPECT\tSIMILARITY\tBOX")
	fmt.Fprintln(w, "-----\t-------\t----------\t---")
	for _, ev := range events {
		b := ev.Box
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d,%d,%d,%d\n",
			ev.FiredAt.Local().Format("2006-01-02 15:04:05"), ev.Identity, ev.Similarity, b.X1, b.Y1, b.X2, b.Y2)
	}
	w.Flush()
}

func printAlertCounts(out io.Writer, counts []store.IdentityCount) {
	if len(counts) == 0 {
		fmt.Fprintln(out, "No alerts recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SUSPECT\tALERTS\tLAST FIRED")
	fmt.Fprintln(w, "-------\t------\t----------")
	for _, c := range counts {
		fmt.Fprintf(w, "%s\t%d\t%s\n", c.Identity, c.Count, c.LastFired.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
