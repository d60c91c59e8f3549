package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/decisio/internal/model"
)

// Asker runs one question through the pipeline
type Asker interface {
	Ask(ctx context.Context, question string) (*model.Session, error)
}

// QuestionJob represents one independent session run
type QuestionJob struct {
	Question string
	Asker    Asker
}

// Execute executes the question job
func (j *QuestionJob) Execute(ctx context.Context) Result {
	session, err := j.Asker.Ask(ctx, j.Question)
	return &QuestionResult{
		Question: j.Question,
		Session:  session,
		Error:    err,
	}
}

// QuestionResult represents the result of a question job. Session may be
// set alongside Error when the run failed after the session was created.
type QuestionResult struct {
	Question string
	Session  *model.Session
	Error    error
}

// GetError returns the error from the question result
func (r *QuestionResult) GetError() error {
	return r.Error
}

// BatchProcessor runs multiple questions as concurrent, independent sessions
type BatchProcessor struct {
	asker       Asker
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(asker Asker, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		asker:       asker,
		concurrency: concurrency,
	}
}

// ProcessQuestions processes questions concurrently, returning results in input order
func (b *BatchProcessor) ProcessQuestions(ctx context.Context, questions []string) []*QuestionResult {
	if len(questions) == 0 {
		return []*QuestionResult{}
	}

	jobs := make([]Job, len(questions))
	for i, q := range questions {
		jobs[i] = &QuestionJob{Question: q, Asker: b.asker}
	}

	results := NewPool(b.concurrency).Run(ctx, jobs)

	out := make([]*QuestionResult, len(results))
	for i, result := range results {
		if result == nil {
			out[i] = &QuestionResult{Question: questions[i], Error: fmt.Errorf("not started: %w", ctx.Err())}
			continue
		}
		out[i] = result.(*QuestionResult)
	}

	return out
}

// ProcessFile reads questions from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*QuestionResult, error) {
	questions, err := ReadQuestionsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}

	return b.ProcessQuestions(ctx, questions), nil
}

// ReadQuestionsFromFile reads questions from a file (one per line).
// Blank lines and lines starting with # are skipped; duplicates are dropped.
func ReadQuestionsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var questions []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key := strings.ToLower(line)
		if !seen[key] {
			seen[key] = true
			questions = append(questions, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return questions, nil
}
