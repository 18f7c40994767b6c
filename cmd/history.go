package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent classifications",
	Long:  `Displays classifications recorded by the API server. Requires database.dsn.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := envFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if e.cfg.Database.DSN == "" {
			return errors.New("history requires database.dsn to be configured")
		}

		repo, closeRepo, err := openHistory(cmd.Context(), e.cfg, e.logger)
		if err != nil {
			return err
		}
		defer closeRepo()

		logs, err := repo.ListRecent(cmd.Context(), historyLimit)
		if err != nil {
			return fmt.Errorf("error listing history: %w", err)
		}

		if len(logs) == 0 {
			fmt.Println("No classifications found.")
			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Request ID", "Category", "Confidence", "Buds", "Offline", "Latency", "Created At"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		for _, l := range logs {
			table.Append([]string{
				l.RequestID,
				l.Category,
				strconv.Itoa(l.Confidence),
				strconv.Itoa(l.BudsReward),
				strconv.FormatBool(l.OfflineMode),
				strconv.FormatInt(l.LatencyMs, 10) + "ms",
				l.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries to show")
	rootCmd.AddCommand(historyCmd)
}
