package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/example/ecovision/internal/classification"
	"github.com/example/ecovision/internal/usecase"
)

var (
	classifyOffline bool
	classifyJSON    bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image_path>",
	Short: "Classify a single image file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := envFromContext(cmd.Context())
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}

		outcome := newDispatcher(e.cfg, e.logger, classifyOffline).Classify(cmd.Context(), data)
		if classifyJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(outcome.Result)
		}
		printOutcome(cmd.OutOrStdout(), outcome)
		return nil
	},
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyOffline, "offline", false, "skip the remote model and use the offline heuristic")
	classifyCmd.Flags().BoolVar(&classifyJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(classifyCmd)
}

func categoryColor(c classification.Category) func(format string, a ...interface{}) string {
	switch c {
	case classification.CategoryRecycle:
		return color.BlueString
	case classification.CategoryCompost:
		return color.GreenString
	case classification.CategoryLandfill:
		return color.RedString
	default:
		return color.YellowString
	}
}

func printOutcome(w io.Writer, outcome usecase.Outcome) {
	r := outcome.Result
	paint := categoryColor(r.Category)

	fmt.Fprintf(w, "Category:   %s\n", paint(strings.ToUpper(string(r.Category))))
	fmt.Fprintf(w, "Confidence: %d%%\n", r.Confidence)
	fmt.Fprintf(w, "Buds:       %d\n", r.BudsReward)
	if outcome.Source == usecase.SourceOffline {
		fmt.Fprintf(w, "Mode:       %s\n", color.YellowString("offline"))
	}
	fmt.Fprintf(w, "\n%s\n", r.Details)
	if r.EnvironmentalImpact != "" {
		fmt.Fprintf(w, "\nImpact: %s\n", r.EnvironmentalImpact)
	}
	if len(r.Tips) > 0 {
		fmt.Fprintln(w, "\nTips:")
		for _, tip := range r.Tips {
			fmt.Fprintf(w, "  - %s\n", tip)
		}
	}
	if r.Category.Disposable() {
		fmt.Fprintf(w, "\nThis item should go in the %s bin.\n", paint(string(r.Category)))
	}
}
