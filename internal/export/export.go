package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/models"
)

// Exporter writes scraped quotes to files in the output directory.
// Filenames carry a timestamp so repeated runs never clobber each other.
type Exporter struct {
	outputDir string
	logger    *slog.Logger
	timestamp string
}

func NewExporter(outputDir string, logger *slog.Logger) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Exporter{
		outputDir: outputDir,
		logger:    logger.With("component", "exporter"),
		timestamp: time.Now().Format("20060102_150405"),
	}, nil
}

// Dedupe removes quotes with duplicate text, keeping the first occurrence.
func Dedupe(quotes []models.Quote) []models.Quote {
	seen := make(map[string]struct{}, len(quotes))
	out := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if _, ok := seen[q.Text]; ok {
			continue
		}
		seen[q.Text] = struct{}{}
		out = append(out, q)
	}
	return out
}

// ToCSV writes quotes to a CSV file and returns its path. Tags are
// flattened to a comma separated string.
func (e *Exporter) ToCSV(quotes []models.Quote, filename string) (string, error) {
	if len(quotes) == 0 {
		e.logger.Warn("no data to export")
		return "", nil
	}

	path := e.path(filename, "csv")

	err := e.writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write([]string{"text", "author", "tags", "source_url", "scraped_at"}); err != nil {
			return err
		}
		for _, q := range quotes {
			record := []string{
				q.Text,
				q.Author,
				strings.Join(q.Tags, ", "),
				q.SourceURL,
				q.ScrapedAt.Format(time.RFC3339),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
	if err != nil {
		return "", fmt.Errorf("failed to export csv: %w", err)
	}

	e.logger.Info("exported records", "count", len(quotes), "path", path)
	return path, nil
}

// ToJSON writes quotes to an indented JSON file and returns its path.
func (e *Exporter) ToJSON(quotes []models.Quote, filename string) (string, error) {
	if len(quotes) == 0 {
		e.logger.Warn("no data to export")
		return "", nil
	}

	path := e.path(filename, "json")

	err := e.writeAtomic(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(quotes)
	})
	if err != nil {
		return "", fmt.Errorf("failed to export json: %w", err)
	}

	e.logger.Info("exported records", "count", len(quotes), "path", path)
	return path, nil
}

func (e *Exporter) path(filename, ext string) string {
	if filename == "" {
		filename = "quotes_" + e.timestamp
	}
	return filepath.Join(e.outputDir, filename+"."+ext)
}

// writeAtomic writes through a temp file and renames it into place, so a
// crash mid-write never leaves a truncated export behind.
func (e *Exporter) writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(e.outputDir, ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
