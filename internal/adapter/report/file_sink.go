// Package report writes the pipeline's outputs to the local filesystem: two
// CSV reports and the raw concatenated log text kept for audit.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/user/pulse-ops/internal/domain"
)

const filePerm = 0644

// FileSink implements domain.ReportSink on a local directory. File names
// carry a UTC timestamp so repeated runs never overwrite each other.
type FileSink struct {
	dir    string
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewFileSink creates the output directory if needed.
func NewFileSink(dir string, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &FileSink{
		dir:    dir,
		logger: logger.With("component", "report_sink"),
		now:    time.Now,
	}, nil
}

func (s *FileSink) timestamp() string {
	return s.now().UTC().Format("20060102_150405")
}

func (s *FileSink) writeCSV(name string, header []string, rows []domain.ReportRow) (string, error) {
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return "", fmt.Errorf("failed to create report file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write report header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write([]string{row.DisplayName, strconv.Itoa(row.Count)}); err != nil {
			return "", fmt.Errorf("failed to write report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush report file %s: %w", path, err)
	}

	s.logger.Info("wrote report", "path", path, "rows", len(rows))
	return path, nil
}

// WriteUserReport writes one row per user, ordered as given.
func (s *FileSink) WriteUserReport(ctx context.Context, rows []domain.ReportRow) (string, error) {
	name := fmt.Sprintf("tcm_user_subscriptions_%s.csv", s.timestamp())
	return s.writeCSV(name, []string{"username", "metrics_following"}, rows)
}

// WriteMetricReport writes one row per metric, ordered as given.
func (s *FileSink) WriteMetricReport(ctx context.Context, rows []domain.ReportRow) (string, error) {
	name := fmt.Sprintf("tcm_metric_followers_%s.csv", s.timestamp())
	return s.writeCSV(name, []string{"metric_name", "follower_count"}, rows)
}

// WriteRawLogs writes the concatenated raw log text, each file preceded by
// its originating locator for traceability.
func (s *FileSink) WriteRawLogs(ctx context.Context, header domain.RawLogHeader, files []domain.FetchedLog) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("tcm_activity_logs_%s.txt", s.timestamp()))

	var b strings.Builder
	b.WriteString("TCM Activity Logs\n")
	fmt.Fprintf(&b, "Generated: %s UTC\n", s.now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Site LUID: %s\n", header.SiteLUID)
	fmt.Fprintf(&b, "Date Range: %s to %s\n", header.Start, header.End)
	fmt.Fprintf(&b, "Total Files: %d\n", header.FileCount)
	b.WriteString(strings.Repeat("=", 80))
	b.WriteString("\n\n")

	for _, f := range files {
		fmt.Fprintf(&b, "--- %s\n", f.Locator)
		b.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			b.WriteByte('\n')
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), filePerm); err != nil {
		return "", fmt.Errorf("failed to write raw log file %s: %w", path, err)
	}

	s.logger.Info("wrote raw logs", "path", path, "files", len(files))
	return path, nil
}
