package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/report"
	"github.com/ppiankov/decisio/internal/worker"
	"github.com/spf13/cobra"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	// noFooter is defined in ask.go and shared here
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Research multiple questions from a file in parallel",
	Long: `Batch runs every question of a file as its own session:
- Read questions from input file (one per line, # starts a comment)
- Run sessions in parallel with configurable worker count
- Write a JSON and a Markdown report per session

Sessions that need clarification are saved and can be finished later
with 'decisio resume'.

Example:
  decisio batch questions.txt
  decisio batch questions.txt --concurrency 4 --output-dir ./reports
  decisio batch questions.txt --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of sessions run at once")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./decisio-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	if concurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}

	a, err := newApp(true, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := runContext(batchTimeout)
	defer cancel()

	a.out.Banner("Decisio Batch Processing")
	a.out.Field("Input file", file)
	a.out.Field("Workers", concurrency)
	a.out.Field("Output dir", outputDir)
	a.out.Field("Timeout", batchTimeout)
	a.out.Field("Reasoner", a.config.LLM.Provider)
	a.out.Blank()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	processor := worker.NewBatchProcessor(a.engine, concurrency)

	a.out.Success("Running questions from %s with %d workers...", file, concurrency)
	a.out.Blank()
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	renderer := report.NewRenderer(a.config.Output.IncludeFooter && !noFooter)
	counts := map[model.Stage]int{}
	errorCount := 0

	for i, result := range results {
		if result.Session == nil {
			errorCount++
			a.out.Failure("%s: %v", result.Question, result.Error)
			continue
		}
		sess := result.Session
		counts[sess.Stage]++

		base := filepath.Join(outputDir, fmt.Sprintf("%02d-%s", i+1, sanitizeFilename(sess.Question)))
		if err := renderer.RenderJSON(sess, base+".json"); err != nil {
			a.out.Failure("%s: failed to write JSON: %v", sess.ID, err)
			continue
		}
		if err := renderer.RenderMarkdown(sess, base+".md"); err != nil {
			a.out.Failure("%s: failed to write Markdown: %v", sess.ID, err)
			continue
		}

		switch sess.Stage {
		case model.StageDone:
			if sess.Recommendation != nil {
				a.out.Success("%s (%s confidence)", sess.Question, sess.Recommendation.Confidence)
			} else {
				a.out.Success("%s", sess.Question)
			}
		case model.StageAwaitingClarification:
			a.out.Warning("%s needs clarification: decisio resume %s", sess.Question, sess.ID)
		default:
			a.out.Failure("%s: %s", sess.Question, failureMessage(sess))
		}
	}

	a.out.Banner("Batch Complete")
	a.out.Field("Total", fmt.Sprintf("%d questions", len(results)))
	a.out.Field("Done", counts[model.StageDone])
	a.out.Field("Waiting", counts[model.StageAwaitingClarification])
	a.out.Field("Failed", counts[model.StageFailed]+errorCount)
	a.out.Field("Output", outputDir)
	a.out.Blank()

	return nil
}

func failureMessage(sess *model.Session) string {
	if sess.Error == nil {
		return string(sess.Stage)
	}
	return fmt.Sprintf("failed during %s: %s", sess.Error.Stage, sess.Error.Message)
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "",
	"\"", "",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes a string for use as a filename
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	s = strings.Trim(s, ".-_")
	if s == "" {
		s = "session"
	}

	// Limit length
	if r := []rune(s); len(r) > 60 {
		s = strings.TrimRight(string(r[:60]), ".-_")
	}

	return s
}
