package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listLimit int

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a stored session",
	Long: `Show prints the state of a stored session and optionally writes its reports.

Example:
  decisio show run_2026_03_01_ab12cd34
  decisio show run_2026_03_01_ab12cd34 --md report.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false, false)
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.store.Load(context.Background(), args[0])
		if err != nil {
			return err
		}
		newPrinter(os.Stdout).Summary(sess)
		return a.writeReports(sess)
	},
}

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false, false)
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.store.List(context.Background(), listLimit)
		if err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions yet. Start one with: decisio ask \"<question>\"")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTAGE\tUPDATED\tQUESTION")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Stage, s.UpdatedAt.Local().Format("2006-01-02 15:04"), truncate(s.Question, 60))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(sessionsCmd)

	addReportFlags(showCmd)
	sessionsCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of sessions (0 for all)")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
