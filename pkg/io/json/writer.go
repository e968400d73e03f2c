// Package json saves alert reports as indented JSON files.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/naveedhsk/finops-ai-observability-poc/pkg/alerting"
)

// Writer writes every report to its own file in a directory.
type Writer struct {
	dir  string
	last string
}

// NewWriter creates dir if needed and returns a Writer for it.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// LastPath returns the file written by the most recent Write.
func (w *Writer) LastPath() string {
	return w.last
}

// maxSuffix bounds the numbered names tried when a report file already exists.
const maxSuffix = 1000

// Write saves report as alerts_<YYYYmmdd_HHMMSS>.json, named after its
// generation time. An existing file is never replaced: reports generated in
// the same second get a numeric suffix, alerts_<ts>_1.json and so on.
func (w *Writer) Write(report *alerting.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	f, path, err := w.create(report.GeneratedAt.Format("20060102_150405"))
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	w.last = path
	return nil
}

func (w *Writer) create(stamp string) (*os.File, string, error) {
	for i := 0; i < maxSuffix; i++ {
		name := fmt.Sprintf("alerts_%s.json", stamp)
		if i > 0 {
			name = fmt.Sprintf("alerts_%s_%d.json", stamp, i)
		}
		path := filepath.Join(w.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("creating report file: %w", err)
		}
	}
	return nil, "", fmt.Errorf("creating report file: too many reports for %s", stamp)
}

// Close releases resources.
func (w *Writer) Close() error {
	return nil
}
