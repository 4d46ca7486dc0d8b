package audit

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// CSVColumns adalah urutan kolom ekspor.
var CSVColumns = []string{"id", "at", "actor", "action", "entity", "entity_id", "meta"}

// WriteCSV menulis header lalu satu record per baris. Meta ditulis sebagai
// JSON; meta kosong menjadi sel kosong.
func WriteCSV(out io.Writer, rows []TimelineRow) error {
	w := csv.NewWriter(out)
	if err := w.Write(CSVColumns); err != nil {
		return err
	}
	for _, row := range rows {
		record, err := row.csvRecord()
		if err != nil {
			return err
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func (r TimelineRow) csvRecord() ([]string, error) {
	var meta string
	if len(r.Meta) > 0 {
		raw, err := json.Marshal(r.Meta)
		if err != nil {
			return nil, err
		}
		meta = string(raw)
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.At.UTC().Format(time.RFC3339),
		r.Actor,
		r.Action,
		r.Entity,
		r.EntityID,
		meta,
	}, nil
}
