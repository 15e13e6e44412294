package audit

import (
	"encoding/csv"
	"io"
	"time"
)

// WriteCSV exports events for SIEM ingestion or manual review.
func WriteCSV(w io.Writer, events []*SecurityEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "EventType", "Severity", "Description", "Source", "Timestamp"}); err != nil {
		return err
	}
	for _, e := range events {
		if err := cw.Write([]string{
			e.ID.String(),
			string(e.Type),
			string(e.Severity),
			e.Description,
			e.Source,
			e.Timestamp.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
