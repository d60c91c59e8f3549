package cli

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/decisio/internal/model"
	"github.com/spf13/cobra"
)

var (
	answers       []string
	skipClarify   bool
	resumeTimeout time.Duration
)

// resumeCmd represents the resume command
var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Answer clarification questions and finish a session",
	Long: `Resume continues a session that is waiting for clarification.

Answers may name the question they reply to ("clar_2=under 5000 EUR");
answers without a name are matched to the open questions in order.
With --skip the recommendation is drafted without your input.

Example:
  decisio resume run_2026_03_01_ab12cd34 --answer "clar_1=team of 4" --answer "clar_2=no on-call"
  decisio resume run_2026_03_01_ab12cd34 --answer "we already run Kubernetes"
  decisio resume run_2026_03_01_ab12cd34 --skip --md report.md`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)

	resumeCmd.Flags().StringArrayVar(&answers, "answer", nil, "answer to a clarification question (repeatable, optionally clar_N=text)")
	resumeCmd.Flags().BoolVar(&skipClarify, "skip", false, "skip clarification and recommend with the evidence at hand")
	resumeCmd.Flags().DurationVar(&resumeTimeout, "timeout", 2*time.Minute, "overall timeout of the run")
	addReportFlags(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	if len(answers) == 0 && !skipClarify {
		return fmt.Errorf("provide at least one --answer or --skip")
	}

	a, err := newApp(true, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := runContext(resumeTimeout)
	defer cancel()

	sess, err := a.engine.Resume(ctx, args[0], parseAnswers(answers), skipClarify)
	return a.finishRun(sess, err)
}

var answerID = regexp.MustCompile(`^(clar_\d+)\s*=\s*`)

// parseAnswers turns --answer values into answers, splitting off a
// leading "clar_N=" reference
func parseAnswers(raw []string) []model.Answer {
	out := make([]model.Answer, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if m := answerID.FindStringSubmatch(r); m != nil {
			out = append(out, model.Answer{ClarificationID: m[1], Text: r[len(m[0]):]})
			continue
		}
		out = append(out, model.Answer{Text: r})
	}
	return out
}
