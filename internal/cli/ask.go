package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/pipeline"
	"github.com/ppiankov/decisio/internal/report"
	"github.com/spf13/cobra"
)

var (
	outJSON  string
	outMD    string
	timeout  time.Duration
	noFooter bool
)

// errSessionFailed makes the process exit non-zero after a FAILED
// session has been printed
var errSessionFailed = errors.New("session failed")

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Research a decision question and recommend an answer",
	Long: `Ask runs a decision question through the research pipeline:
- Split the question into focused research questions
- Search the web and extract claims from the pages found
- Rank sources by recency, credibility and claim density
- Find conflicts, unknowns and weak assumptions in the evidence
- Ask you about the gaps that matter, or recommend right away

When clarification is needed the session is saved and can be continued
with 'decisio resume'.

Example:
  decisio ask "Should we move our CI from Jenkins to GitHub Actions?"
  decisio ask "Is Postgres or MySQL the better fit for a small SaaS?" --md report.md
  decisio ask "Should we adopt Rust for our CLI tools?" --json session.json --timeout 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	addReportFlags(askCmd)
	askCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall timeout of the run")
}

// addReportFlags registers the report output flags shared by session commands
func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&outJSON, "json", "", "write the JSON report to this path")
	cmd.Flags().StringVar(&outMD, "md", "", "write the Markdown report to this path")
	cmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
}

// runContext bounds a run by d and cancels it on interrupt, so an
// aborted run is still recorded as FAILED
func runContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(true, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := runContext(timeout)
	defer cancel()

	if a.config.Output.Verbose {
		a.out.Field("Question", args[0])
		a.out.Field("Reasoner", a.config.LLM.Provider)
		a.out.Field("Search", a.config.Search.Provider)
		a.out.Field("Timeout", timeout)
		a.out.Blank()
	}

	sess, err := a.engine.Ask(ctx, args[0])
	return a.finishRun(sess, err)
}

// finishRun prints the settled session and writes the requested reports.
// A FAILED session is printed like any other before the command fails.
func (a *app) finishRun(sess *model.Session, runErr error) error {
	var failed *pipeline.FailedError
	if runErr != nil && !(errors.As(runErr, &failed) && sess != nil) {
		return runErr
	}

	newPrinter(os.Stdout).Summary(sess)
	if err := a.writeReports(sess); err != nil {
		return err
	}

	if sess.Stage == model.StageFailed {
		return fmt.Errorf("%w: %s", errSessionFailed, sess.ID)
	}
	return nil
}

func (a *app) writeReports(sess *model.Session) error {
	renderer := report.NewRenderer(a.config.Output.IncludeFooter && !noFooter)
	if outJSON != "" {
		if err := renderer.RenderJSON(sess, outJSON); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		a.out.Success("Wrote %s", outJSON)
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(sess, outMD); err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		a.out.Success("Wrote %s", outMD)
	}
	return nil
}
