package application

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/twilman/twilman/internal/domain/model"
)

const exportTimeLayout = "2006-01-02 15:04:05"

var (
	callExportHeader    = []string{"Direction", "From", "To", "Start Time", "Duration (s)", "Status", "SID"}
	messageExportHeader = []string{"Direction", "From", "To", "Date Sent", "Message", "Status", "SID"}
)

// WriteCSV writes records to w as CSV with a header row matching kind.
// Rows follow the order of records, so callers export exactly what they
// display.
func WriteCSV(w io.Writer, kind model.RecordKind, records []model.ActivityRecord) error {
	cw := csv.NewWriter(w)

	var header []string
	switch kind {
	case model.KindCall:
		header = callExportHeader
	case model.KindMessage:
		header = messageExportHeader
	default:
		return &model.ValidationError{Field: "kind", Reason: "unsupported record kind"}
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing export header: %w", err)
	}

	for _, rec := range records {
		var row []string
		if kind == model.KindCall {
			row = []string{
				string(rec.Direction),
				rec.From,
				rec.To,
				rec.Timestamp.Format(exportTimeLayout),
				strconv.Itoa(rec.Duration),
				rec.Status,
				rec.SID,
			}
		} else {
			row = []string{
				string(rec.Direction),
				rec.From,
				rec.To,
				rec.Timestamp.Format(exportTimeLayout),
				rec.Body,
				rec.Status,
				rec.SID,
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing export row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing export: %w", err)
	}
	return nil
}
