package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportFormat is an audit export file format
type ExportFormat string

const (
	ExportJSON   ExportFormat = "json"
	ExportNDJSON ExportFormat = "ndjson"
	ExportCSV    ExportFormat = "csv"
)

// Export writes entries to w in the requested format
func Export(w io.Writer, entries []*Entry, format ExportFormat) error {
	switch format {
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []*Entry{}
		}
		return enc.Encode(entries)
	case ExportNDJSON:
		enc := json.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return fmt.Errorf("failed to encode entry: %w", err)
			}
		}
		return nil
	case ExportCSV:
		return exportCSV(w, entries)
	}
	return fmt.Errorf("unsupported export format: %s", format)
}

func exportCSV(w io.Writer, entries []*Entry) error {
	writer := csv.NewWriter(w)

	header := []string{"ID", "Timestamp", "Action", "ActorID", "TargetID", "IPAddress", "UserAgent", "RequestID", "Details"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal details: %w", err)
		}
		row := []string{
			strconv.FormatInt(e.ID, 10),
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Action,
			formatInt64Ptr(e.ActorID),
			formatInt64Ptr(e.TargetID),
			e.IPAddress,
			e.UserAgent,
			e.RequestID,
			string(details),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

func formatInt64Ptr(val *int64) string {
	if val == nil {
		return ""
	}
	return strconv.FormatInt(*val, 10)
}
