package storage

import (
	"context"
	"encoding/csv"
	stderrors "errors"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"codeberg.org/mutker/benchlog/internal/errors"
)

const inProgress = "In Progress"

var columnHeader = []string{"Timestamp", "Device Name", "Parameter", "Value", "Unit"}

// ExportCSV writes session id to path in the session CSV format.
func (r *Repository) ExportCSV(ctx context.Context, id int64, path string) error {
	errFactory := errors.New()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, defaultFilePerm)
	if err != nil {
		return errFactory.Wrap(ErrExportFailed, err)
	}

	if err := r.WriteCSV(ctx, id, f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return errFactory.Wrap(ErrExportFailed, err)
	}

	r.logger.Info().Int64("session_id", id).Str("path", path).Msg("Session exported")

	return nil
}

// WriteCSV writes the header block, a blank line, the column header and one
// row per data point in ascending timestamp order.
func (r *Repository) WriteCSV(ctx context.Context, id int64, w io.Writer) error {
	errFactory := errors.New()

	session, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}

	rows, err := r.GetSessionData(ctx, id, "")
	if err != nil {
		return err
	}

	end := inProgress
	if session.EndTime != nil {
		end = formatTime(*session.EndTime)
	}

	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	records := [][]string{
		{"Session:", session.Name},
		{"Start Time:", formatTime(session.StartTime)},
		{"End Time:", end},
		{"Interval (seconds):", strconv.Itoa(session.IntervalSeconds)},
		{},
		columnHeader,
	}
	for _, row := range rows {
		records = append(records, []string{
			formatTime(row.Timestamp), row.DeviceName, row.Parameter, FormatValue(row.Value), row.Unit,
		})
	}

	if err := cw.WriteAll(records); err != nil {
		return errFactory.Wrap(ErrExportFailed, err)
	}

	return nil
}

// ImportCSV reads a session CSV from path into a new stopped session.
func (r *Repository) ImportCSV(ctx context.Context, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.New().Wrap(ErrImportFailed, err)
	}
	defer f.Close()

	id, err := r.ReadCSV(ctx, f)
	if err != nil {
		return 0, err
	}

	r.logger.Info().Int64("session_id", id).Str("path", path).Msg("Session imported")

	return id, nil
}

// ReadCSV parses the session CSV format. The four metadata lines are taken
// by position, the column header is skipped, and every remaining line is a
// data point. Name, start and end time, and interval are kept; device type
// becomes ImportedDeviceType and metadata is empty. A malformed line aborts
// the whole import.
func (r *Repository) ReadCSV(ctx context.Context, src io.Reader) (int64, error) {
	errFactory := errors.New()

	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1

	var meta [4]string
	for i := range meta {
		record, err := cr.Read()
		if err != nil {
			return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(i+1, "read_metadata", err))
		}
		if len(record) < 2 {
			return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(i+1, "metadata_fields", nil))
		}
		meta[i] = record[1]
	}

	// The reader drops the blank separator line, so the next record is the
	// column header.
	if _, err := cr.Read(); err != nil {
		return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(len(meta)+1, "read_column_header", err))
	}

	start, err := ParseTime(meta[1])
	if err != nil {
		return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(2, "start_time", err))
	}

	var end any
	if strings.TrimSpace(meta[2]) != inProgress {
		t, err := ParseTime(meta[2])
		if err != nil {
			return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(3, "end_time", err))
		}
		end = formatTime(t)
	}

	interval, err := strconv.Atoi(strings.TrimSpace(meta[3]))
	if err != nil {
		return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(4, "interval", err))
	}

	var points []DataPoint
	for n := len(meta) + 2; ; n++ {
		record, err := cr.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(n, "read_row", err))
		}
		if len(record) != len(columnHeader) {
			return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(n, "row_fields", nil))
		}

		ts, err := ParseTime(record[0])
		if err != nil {
			return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(n, "timestamp", err))
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
		if err != nil {
			return 0, errFactory.WithData(ErrInvalidCSV, csvProblem(n, "value", err))
		}

		points = append(points, DataPoint{
			Timestamp:  ts,
			DeviceName: record[1],
			DeviceType: ImportedDeviceType,
			Parameter:  record[2],
			Value:      value,
			Unit:       record[4],
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer r.rollback(tx)

	res, err := tx.ExecContext(ctx, insertSessionSQL,
		meta[0], formatTime(start), end, interval, string(StatusStopped), "{}")
	if err != nil {
		return 0, errFactory.Wrap(ErrImportFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errFactory.Wrap(ErrImportFailed, err)
	}

	for i := range points {
		points[i].SessionID = id
	}
	if err := r.insertDataPoints(ctx, tx, points); err != nil {
		return 0, errFactory.Wrap(ErrImportFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	return id, nil
}

// FormatValue renders v the way the CSV has always carried values: the
// shortest round-tripping decimal, always with a fractional part, switching
// to exponent form for very small or very large magnitudes.
func FormatValue(v float64) string {
	abs := math.Abs(v)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}

	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

type csvIssue struct {
	Phase  string
	Record int
	Error  string
}

func csvProblem(record int, phase string, err error) csvIssue {
	issue := csvIssue{Phase: phase, Record: record}
	if err != nil {
		issue.Error = err.Error()
	}
	return issue
}
