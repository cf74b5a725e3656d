package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"devicemonitor/internal/models"
)

// TimestampLayout is the format of the Timestamp column.
const TimestampLayout = "2006-01-02 15:04:05.000000"

// timestampParseLayout also accepts rows without fractional seconds.
const timestampParseLayout = "2006-01-02 15:04:05.999999999"

// LogHeader is the first row of every availability log.
var LogHeader = []string{"device_id", "status", "Timestamp"}

// AvailabilityLog appends probe results to a CSV file.
//
// Appends from this process are serialised. Separate processes writing the
// same file rely only on O_APPEND and are not supported.
type AvailabilityLog struct {
	mu   sync.Mutex
	path string
}

// NewAvailabilityLog creates a log for the given file, creating its directory.
func NewAvailabilityLog(path string) (*AvailabilityLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	return &AvailabilityLog{path: path}, nil
}

// Path returns the log file location.
func (l *AvailabilityLog) Path() string {
	return l.path
}

// Append writes one row per record, in order, and syncs the file.
func (l *AvailabilityLog) Append(records []models.AvailabilityRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open availability log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat availability log: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(LogHeader); err != nil {
			return fmt.Errorf("write log header: %w", err)
		}
	}
	for _, rec := range records {
		row := []string{
			strconv.Itoa(rec.DeviceID),
			strconv.Itoa(int(rec.Status)),
			rec.Timestamp.Local().Format(TimestampLayout),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write log row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush availability log: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync availability log: %w", err)
	}
	return nil
}

// Records reads rows back from the log. A positive limit keeps only the
// most recent rows.
func (l *AvailabilityLog) Records(limit int) ([]models.AvailabilityRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open availability log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(LogHeader)

	var out []models.AvailabilityRecord
	for line := 1; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read availability log: %w", err)
		}
		if line == 1 && row[0] == LogHeader[0] {
			continue
		}

		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("availability log line %d: %w", line, err)
		}
		out = append(out, rec)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
	}
	return out, nil
}

func parseRow(row []string) (models.AvailabilityRecord, error) {
	id, err := strconv.Atoi(row[0])
	if err != nil {
		return models.AvailabilityRecord{}, fmt.Errorf("parse device_id: %w", err)
	}
	status, err := strconv.Atoi(row[1])
	if err != nil {
		return models.AvailabilityRecord{}, fmt.Errorf("parse status: %w", err)
	}
	ts, err := time.ParseInLocation(timestampParseLayout, row[2], time.Local)
	if err != nil {
		return models.AvailabilityRecord{}, fmt.Errorf("parse timestamp: %w", err)
	}
	return models.AvailabilityRecord{
		DeviceID:  id,
		Status:    models.Status(status),
		Timestamp: ts,
	}, nil
}
