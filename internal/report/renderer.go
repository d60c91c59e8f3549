package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/decisio/internal/model"
)

const footer = "_Generated by decisio. Rankings and gaps are derived from the listed sources; check them before acting._"

// Renderer writes session reports as JSON and Markdown
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// JSON returns the indented JSON report of sess. Cleaned page text is
// left out; everything else of the session is kept.
func (r *Renderer) JSON(sess *model.Session) ([]byte, error) {
	out := sess.Clone()
	for i := range out.Sources {
		out.Sources[i].Text = nil
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderJSON writes the JSON report to path
func (r *Renderer) RenderJSON(sess *model.Session, path string) error {
	data, err := r.JSON(sess)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// RenderMarkdown writes the Markdown report to path
func (r *Renderer) RenderMarkdown(sess *model.Session, path string) error {
	return writeFile(path, []byte(r.Markdown(sess)))
}

// Markdown returns the human-readable report of sess
func (r *Renderer) Markdown(sess *model.Session) string {
	var b strings.Builder

	b.WriteString("# Decision Report\n\n")
	fmt.Fprintf(&b, "**Question:** %s\n\n", sess.Question)
	fmt.Fprintf(&b, "- Session: `%s`\n", sess.ID)
	fmt.Fprintf(&b, "- Stage: %s\n", sess.Stage)
	fmt.Fprintf(&b, "- Created: %s\n", sess.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	b.WriteString("\n")

	if sess.Error != nil {
		b.WriteString("## Failure\n\n")
		fmt.Fprintf(&b, "The session failed during **%s** (%s): %s\n\n", sess.Error.Stage, sess.Error.Kind, sess.Error.Message)
		fmt.Fprintf(&b, "Last completed stage: %s\n\n", sess.LastCompletedStage)
	}

	if rec := sess.Recommendation; rec != nil {
		writeRecommendation(&b, sess, rec)
	}

	if sess.Stage == model.StageAwaitingClarification {
		b.WriteString("## Open Questions\n\n")
		fmt.Fprintf(&b, "Answer with `decisio resume %s --answer ...` or skip with `--skip`.\n\n", sess.ID)
	} else if len(sess.Clarifications) > 0 {
		b.WriteString("## Clarifications\n\n")
	}
	writeClarifications(&b, sess)

	if len(sess.Gaps) > 0 {
		b.WriteString("## Gaps\n\n")
		b.WriteString("| ID | Kind | Severity | Description |\n")
		b.WriteString("|----|------|----------|-------------|\n")
		for _, g := range sess.Gaps {
			fmt.Fprintf(&b, "| %s | %s | %.2f | %s |\n", g.ID, g.Kind, g.Severity, cell(g.Description))
		}
		b.WriteString("\n")
	}

	if len(sess.Sources) > 0 {
		writeSources(&b, sess)
	}

	if len(sess.SubQuestions) > 0 {
		b.WriteString("## Research Plan\n\n")
		for _, sq := range sess.SubQuestions {
			fmt.Fprintf(&b, "- %s (%d sources)", sq.Text, len(sq.SourceIDs))
			if sq.SearchError != "" {
				fmt.Fprintf(&b, " - search failed: %s", sq.SearchError)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString(footer + "\n")
	}

	return b.String()
}

func writeRecommendation(b *strings.Builder, sess *model.Session, rec *model.Recommendation) {
	b.WriteString("## Recommendation\n\n")
	fmt.Fprintf(b, "%s\n\n", rec.Decision)
	fmt.Fprintf(b, "**Confidence:** %s\n\n", rec.Confidence)

	writeList(b, "Key Reasons", rec.KeyReasons)

	if len(rec.TradeOffs) > 0 {
		b.WriteString("### Trade-offs\n\n")
		b.WriteString("| Pro | Con |\n")
		b.WriteString("|-----|-----|\n")
		for _, t := range rec.TradeOffs {
			fmt.Fprintf(b, "| %s | %s |\n", cell(t.Pro), cell(t.Con))
		}
		b.WriteString("\n")
	}

	writeList(b, "Risks", rec.Risks)
	writeList(b, "Next Steps", rec.NextSteps)

	if len(rec.Evidence) > 0 {
		b.WriteString("### Evidence\n\n")
		for i, ev := range rec.Evidence {
			title := ev.Title
			if title == "" {
				title = ev.URL
			}
			fmt.Fprintf(b, "%d. [%s](%s) (weight %.2f)", i+1, title, ev.URL, ev.Weight)
			if ev.Why != "" {
				fmt.Fprintf(b, ": %s", ev.Why)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(rec.ResidualGaps) > 0 {
		b.WriteString("### Caveats\n\n")
		for _, g := range rec.ResidualGaps {
			fmt.Fprintf(b, "- **%s** (%.2f): %s\n", g.Kind, g.Severity, g.Description)
		}
		b.WriteString("\n")
	}

	if sess.ClarificationSkipped {
		b.WriteString("_Clarification was skipped; the recommendation does not reflect your constraints._\n\n")
	}
	if rec.Disclaimer != "" {
		fmt.Fprintf(b, "> %s\n\n", rec.Disclaimer)
	}
}

func writeClarifications(b *strings.Builder, sess *model.Session) {
	if len(sess.Clarifications) == 0 {
		return
	}

	answers := make(map[string]string, len(sess.Answers))
	for _, a := range sess.Answers {
		answers[a.ClarificationID] = a.Text
	}

	for _, c := range sess.Clarifications {
		fmt.Fprintf(b, "**%s.** %s\n", c.ID, c.Question)
		if c.WhyItMatters != "" {
			fmt.Fprintf(b, "_%s_\n", c.WhyItMatters)
		}
		if len(c.ExampleAnswers) > 0 {
			fmt.Fprintf(b, "Examples: %s\n", strings.Join(c.ExampleAnswers, "; "))
		}
		if answer, ok := answers[c.ID]; ok {
			fmt.Fprintf(b, "> %s\n", answer)
		}
		b.WriteString("\n")
	}
}

func writeSources(b *strings.Builder, sess *model.Session) {
	b.WriteString("## Sources\n\n")
	b.WriteString("| Rank | Score | Source | Credibility | Status |\n")
	b.WriteString("|------|-------|--------|-------------|--------|\n")

	for _, src := range orderedSources(sess.Sources) {
		rank, score := "-", "-"
		if src.RankScore != nil {
			rank = fmt.Sprintf("%d", src.Rank)
			score = fmt.Sprintf("%.1f", *src.RankScore)
		}
		tier := "-"
		if src.Credibility != nil {
			tier = src.Credibility.Tier.String()
		}
		title := src.Title
		if title == "" {
			title = src.URL
		}
		status := string(src.Status)
		if src.Error != "" {
			status += ": " + src.Error
		}
		fmt.Fprintf(b, "| %s | %s | [%s](%s) | %s | %s |\n", rank, score, cell(title), src.URL, tier, cell(status))
	}
	b.WriteString("\n")
}

// orderedSources lists ranked sources by rank, then the rest in discovery order
func orderedSources(sources []model.Source) []model.Source {
	out := make([]model.Source, 0, len(sources))
	ranked := make([]model.Source, len(sources)+1)
	for _, src := range sources {
		if src.Rank > 0 && src.Rank <= len(sources) {
			ranked[src.Rank] = src
		}
	}
	for _, src := range ranked[1:] {
		if src.ID != "" {
			out = append(out, src)
		}
	}
	for _, src := range sources {
		if src.Rank == 0 || src.Rank > len(sources) {
			out = append(out, src)
		}
	}
	return out
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

// cell makes text safe inside a Markdown table cell
func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
