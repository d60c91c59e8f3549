package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/ppiankov/decisio/internal/model"
)

const rule = "═══════════════════════════════════════════════════════════"

// printer writes user-facing status lines. Session transitions arrive
// from worker goroutines, so writes are serialised.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) status(symbol string, attr color.Attribute, format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", color.New(attr).Sprint(symbol), fmt.Sprintf(format, args...))
}

// Success prints a green check line
func (p *printer) Success(format string, args ...any) {
	p.status("✓", color.FgGreen, format, args...)
}

// Failure prints a red cross line
func (p *printer) Failure(format string, args ...any) {
	p.status("✗", color.FgRed, format, args...)
}

// Warning prints a yellow warning line
func (p *printer) Warning(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", color.YellowString("Warning:"), fmt.Sprintf(format, args...))
}

// Banner prints a framed title
func (p *printer) Banner(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\n%s\n  %s\n%s\n\n", rule, title, rule)
}

// Field prints an indented "label: value" line
func (p *printer) Field(label string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "  %-13s %v\n", label+":", value)
}

// Blank prints an empty line
func (p *printer) Blank() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w)
}

// Progress returns the transition callback that reports each persisted
// stage of a session
func (p *printer) Progress() func(*model.Session) {
	return func(sess *model.Session) {
		switch sess.Stage {
		case model.StageCreated:
			p.Success("Session %s created", sess.ID)
		case model.StageDecomposed:
			p.Success("Planned %d research questions", len(sess.SubQuestions))
		case model.StageDiscovering:
			p.Success("Found %d sources", len(sess.Sources))
		case model.StageExtracting:
			p.Success("Extracted %d of %d pages", countExtracted(sess.Sources), len(sess.Sources))
		case model.StageClaimsExtracted:
			p.Success("Extracted %d claims", len(sess.Claims))
		case model.StageRanked:
			p.Success("Ranked %d sources", countRanked(sess.Sources))
		case model.StageGapAnalyzed:
			p.Success("Found %d gaps", len(sess.Gaps))
		case model.StageAwaitingClarification:
			p.Success("Prepared %d clarification questions", len(sess.Clarifications))
		case model.StageClarified:
			p.Success("Recorded %d answers", len(sess.Answers))
		case model.StageDone:
			p.Success("Recommendation ready")
		case model.StageFailed:
			if sess.Error != nil {
				p.Failure("Failed during %s: %s", sess.Error.Stage, sess.Error.Message)
			} else {
				p.Failure("Failed")
			}
		}
	}
}

// Summary prints the outcome of a session: the recommendation, the open
// questions with the resume hint, or the failure
func (p *printer) Summary(sess *model.Session) {
	switch sess.Stage {
	case model.StageDone:
		p.Banner("Recommendation")
		rec := sess.Recommendation
		if rec == nil {
			p.Warning("session %s is done but has no recommendation", sess.ID)
			return
		}
		p.mu.Lock()
		fmt.Fprintf(p.w, "  %s\n\n", rec.Decision)
		fmt.Fprintf(p.w, "  Confidence:   %s\n", confidenceColor(rec.Confidence))
		fmt.Fprintf(p.w, "  Evidence:     %d sources\n", len(rec.Evidence))
		fmt.Fprintf(p.w, "  Caveats:      %d\n", len(rec.ResidualGaps))
		for _, reason := range rec.KeyReasons {
			fmt.Fprintf(p.w, "    - %s\n", reason)
		}
		p.mu.Unlock()
	case model.StageAwaitingClarification:
		p.Banner("Clarification Needed")
		p.mu.Lock()
		for _, c := range sess.Clarifications {
			fmt.Fprintf(p.w, "  [%s] %s\n", c.ID, c.Question)
			if c.WhyItMatters != "" {
				fmt.Fprintf(p.w, "         %s\n", color.New(color.Faint).Sprint(c.WhyItMatters))
			}
			if len(c.ExampleAnswers) > 0 {
				fmt.Fprintf(p.w, "         e.g. %s\n", strings.Join(c.ExampleAnswers, "; "))
			}
		}
		fmt.Fprintf(p.w, "\n  decisio resume %s --answer \"clar_1=...\"\n", sess.ID)
		fmt.Fprintf(p.w, "  decisio resume %s --skip\n", sess.ID)
		p.mu.Unlock()
	case model.StageFailed:
		p.Banner("Session Failed")
		if sess.Error != nil {
			p.Field("Stage", sess.Error.Stage)
			p.Field("Kind", sess.Error.Kind)
			p.Field("Error", sess.Error.Message)
		}
		p.Field("Completed", sess.LastCompletedStage)
	default:
		p.Banner("Session " + string(sess.Stage))
	}
	p.Blank()
	p.Field("Session", sess.ID)
	p.Blank()
}

func confidenceColor(c model.Confidence) string {
	switch c {
	case model.ConfidenceHigh:
		return color.GreenString(string(c))
	case model.ConfidenceMedium:
		return color.YellowString(string(c))
	default:
		return color.RedString(string(c))
	}
}

func countExtracted(sources []model.Source) int {
	n := 0
	for _, src := range sources {
		if src.Status == model.ExtractionOK {
			n++
		}
	}
	return n
}

func countRanked(sources []model.Source) int {
	n := 0
	for _, src := range sources {
		if src.RankScore != nil {
			n++
		}
	}
	return n
}
