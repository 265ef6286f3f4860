package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"alttext/internal/models"
)

// DefaultOutputColumn is the dataset column generated alt text is written to.
const DefaultOutputColumn = "alt_text"

// maxResultLineSize bounds a single line of a batch result file.
const maxResultLineSize = 16 * 1024 * 1024

// resultLine is one line of an OpenAI batch output file.
type resultLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int                            `json:"status_code"`
		Body       *openai.ChatCompletionResponse `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResultLine turns one result line into a RowOutcome. Non-200 responses
// and empty content yield an unsuccessful outcome; malformed JSON or custom
// ids yield an error.
func ParseResultLine(line []byte) (models.RowOutcome, error) {
	var rl resultLine
	if err := json.Unmarshal(line, &rl); err != nil {
		return models.RowOutcome{}, fmt.Errorf("failed to parse result line: %w", err)
	}
	row, err := models.ParseCustomID(rl.CustomID)
	if err != nil {
		return models.RowOutcome{}, err
	}

	outcome := models.RowOutcome{SequenceID: row}
	if rl.Response == nil || rl.Response.StatusCode != http.StatusOK || rl.Response.Body == nil {
		return outcome, nil
	}
	if len(rl.Response.Body.Choices) == 0 {
		return outcome, nil
	}
	content := strings.TrimSpace(rl.Response.Body.Choices[0].Message.Content)
	if content == "" {
		return outcome, nil
	}
	outcome.Success = true
	outcome.Content = content
	return outcome, nil
}

// MergeReport summarizes one merge.
type MergeReport struct {
	Files     int
	Outcomes  int
	Merged    int
	Dropped   int
	Anomalies int
}

// Merger writes generated text from batch result files into a dataset.
type Merger struct {
	column  string
	metrics MetricsRecorder
}

// NewMerger creates a merger writing into column.
func NewMerger(column string, metrics MetricsRecorder) *Merger {
	if column == "" {
		column = DefaultOutputColumn
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Merger{column: column, metrics: metrics}
}

// Column returns the dataset column the merger writes.
func (m *Merger) Column() string { return m.column }

// Merge collects the successful outcomes of all files, later files winning on
// duplicate rows, then applies them to ds. Rows without a successful outcome
// keep their value, or the empty default if the column was absent.
func (m *Merger) Merge(ctx context.Context, paths []string, ds Dataset) (MergeReport, error) {
	report := MergeReport{Files: len(paths)}
	contents := make(map[int]string)

	for _, path := range paths {
		if err := m.collect(path, contents, &report); err != nil {
			return report, err
		}
	}

	ds.EnsureColumn(m.column, "")

	rows := make([]int, 0, len(contents))
	for row := range contents {
		rows = append(rows, row)
	}
	sort.Ints(rows)

	for _, row := range rows {
		if row >= ds.Len() {
			report.Anomalies++
			log.WithFields(log.Fields{"row": row, "rows": ds.Len()}).Warn("Result row is outside the dataset, skipping")
			continue
		}
		if err := ds.Set(row, m.column, contents[row]); err != nil {
			return report, fmt.Errorf("set row %d: %w", row, err)
		}
		report.Merged++
	}

	m.metrics.RecordRowsMerged(ctx, report.Merged, report.Dropped+report.Anomalies)
	log.WithFields(log.Fields{
		"files":     report.Files,
		"outcomes":  report.Outcomes,
		"merged":    report.Merged,
		"dropped":   report.Dropped,
		"anomalies": report.Anomalies,
		"column":    m.column,
	}).Info("Merged batch results into dataset")
	return report, nil
}

func (m *Merger) collect(path string, contents map[int]string, report *MergeReport) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open result file '%s': %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResultLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		logger := log.WithFields(log.Fields{"path": path, "line": lineNo})

		outcome, err := ParseResultLine(line)
		if err != nil {
			report.Anomalies++
			logger.WithError(err).Warn("Dropping malformed result record")
			continue
		}
		report.Outcomes++
		if !outcome.Success {
			report.Dropped++
			logger.WithField("custom_id", models.FormatCustomID(outcome.SequenceID)).Warn("Dropping failed or empty result record")
			continue
		}
		contents[outcome.SequenceID] = outcome.Content
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read result file '%s': %w", path, err)
	}
	return nil
}
