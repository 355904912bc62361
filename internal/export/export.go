// Package export writes aggregated records to files in the formats
// reference managers and spreadsheets understand.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-finder/internal/domain"
)

// Format is an output format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatJSON   Format = "json"
	FormatBibTeX Format = "bibtex"
	FormatRIS    Format = "ris"
	FormatXLSX   Format = "xlsx"
	FormatYAML   Format = "yaml"
)

// ErrNoRecords is returned when there is nothing to write.
var ErrNoRecords = errors.New("no records to export")

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatBibTeX, FormatRIS, FormatXLSX, FormatYAML}
}

// ParseFormat parses a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "bibtex", "bib":
		return FormatBibTeX, nil
	case "ris":
		return FormatRIS, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", domain.NewValidationError("format", fmt.Sprintf("unsupported export format %q", s))
	}
}

// Extension returns the file extension, without the dot.
func (f Format) Extension() string {
	if f == FormatBibTeX {
		return "bib"
	}
	return string(f)
}

// ContentType returns the MIME type for HTTP responses.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatBibTeX:
		return "application/x-bibtex; charset=utf-8"
	case FormatRIS:
		return "application/x-research-info-systems"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatYAML:
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}

// Write serializes records to w.
func Write(w io.Writer, records []domain.ArticleRecord, format Format) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, records)
	case FormatJSON:
		return writeJSON(w, records)
	case FormatBibTeX:
		return writeBibTeX(w, records)
	case FormatRIS:
		return writeRIS(w, records)
	case FormatXLSX:
		return writeXLSX(w, records)
	case FormatYAML:
		return writeYAML(w, records)
	default:
		return domain.NewValidationError("format", fmt.Sprintf("unsupported export format %q", format))
	}
}

// Exporter writes result files into a directory.
type Exporter struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// New creates an Exporter writing relative file names under dir.
func New(dir string, logger zerolog.Logger) *Exporter {
	return &Exporter{
		dir:    dir,
		now:    time.Now,
		logger: logger.With().Str("component", "exporter").Logger(),
	}
}

// Path resolves the file an export would be written to. An empty filename
// becomes results_<timestamp>; the format's extension is appended when
// missing and relative names are placed under the export directory.
func (e *Exporter) Path(format Format, filename string) string {
	name := strings.TrimSpace(filename)
	if name == "" {
		name = "results_" + e.now().Format("20060102_150405")
	}
	if !strings.EqualFold(filepath.Ext(name), "."+format.Extension()) {
		name += "." + format.Extension()
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(e.dir, name)
}

// Export writes records to a file and returns its path. The file is
// written to a temporary name first and renamed into place.
func (e *Exporter) Export(records []domain.ArticleRecord, format Format, filename string) (string, error) {
	if len(records) == 0 {
		return "", ErrNoRecords
	}
	path := e.Path(format, filename)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, records, format); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", format, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move export into place: %w", err)
	}

	e.logger.Info().
		Str("format", string(format)).
		Str("path", path).
		Int("records", len(records)).
		Msg("exported results")
	return path, nil
}
