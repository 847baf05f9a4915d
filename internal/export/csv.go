package export

import (
	"encoding/csv"
	"io"

	"ideaforge/internal/domain"
)

// BOM is the UTF-8 byte order mark Excel on Windows needs to detect UTF-8.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter wraps csv.Writer for exporting extracted ideas.
type CSVWriter struct {
	out io.Writer
	csv *csv.Writer
}

// NewCSVWriter creates a CSVWriter that writes to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{out: w, csv: csv.NewWriter(w)}
}

// WriteHeader writes the BOM followed by the header row.
func (w *CSVWriter) WriteHeader() error {
	if _, err := w.out.Write(BOM); err != nil {
		return err
	}
	return w.csv.Write(ideaColumns)
}

// WriteRecords writes one row per extracted item.
func (w *CSVWriter) WriteRecords(records []domain.NamedRecord) error {
	for _, row := range ideaRows(records) {
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer and returns its error, if any.
func (w *CSVWriter) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}
