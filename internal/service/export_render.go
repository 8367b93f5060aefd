package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/devfleet/iot-device-api/internal/model"
)

// exportRecord is the wire shape of a single exported log entry. Field
// order matters for CSV: id, device_id, event, value, timestamp.
type exportRecord struct {
	ID        uint64  `json:"id"`
	DeviceID  uint64  `json:"device_id"`
	Event     string  `json:"event"`
	Value     float64 `json:"value"`
	Timestamp string  `json:"timestamp"`
}

func toRecords(logs []model.DeviceLog) []exportRecord {
	out := make([]exportRecord, 0, len(logs))
	for _, l := range logs {
		out = append(out, exportRecord{
			ID:        l.ID,
			DeviceID:  l.DeviceID,
			Event:     l.Event,
			Value:     l.Value,
			Timestamp: l.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// RenderJSON serializes logs as a JSON array of export records.
func RenderJSON(logs []model.DeviceLog) ([]byte, error) {
	return json.Marshal(toRecords(logs))
}

// RenderCSV serializes logs as CSV with a fixed header row of
// id,device_id,event,value,timestamp.
func RenderCSV(logs []model.DeviceLog) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"id", "device_id", "event", "value", "timestamp"}); err != nil {
		return nil, err
	}
	for _, r := range toRecords(logs) {
		row := []string{
			strconv.FormatUint(r.ID, 10),
			strconv.FormatUint(r.DeviceID, 10),
			r.Event,
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			r.Timestamp,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Render picks the serializer for a format.
func Render(logs []model.DeviceLog, format string) ([]byte, error) {
	switch format {
	case model.ExportFormatCSV:
		return RenderCSV(logs)
	case model.ExportFormatJSON:
		return RenderJSON(logs)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// ContentTypeFor returns the response content type for a format.
func ContentTypeFor(format string) string {
	if format == model.ExportFormatCSV {
		return "text/csv"
	}
	return "application/json"
}

// ExportFilename is the attachment name for an export download.
func ExportFilename(deviceID uint64, startDate, endDate, format string) string {
	return fmt.Sprintf("device_logs_%d_%s_to_%s.%s", deviceID, startDate, endDate, format)
}
