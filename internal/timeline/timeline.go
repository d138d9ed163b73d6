// Package timeline models the petition timeline and imports it from
// spreadsheets.
package timeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

const DateLayout = "2006-01-02"

const maxRows = 10000

type Event struct {
	Task  string `json:"task"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func Defaults() []Event {
	return []Event{
		{Task: "Submit I-130", Start: "2025-01-01", End: "2025-01-15"},
		{Task: "Biometrics", Start: "2025-02-01", End: "2025-02-02"},
		{Task: "Interview", Start: "2025-03-01", End: "2025-03-01"},
	}
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Task) == "" {
		return errors.New("task is required")
	}
	start, err := time.Parse(DateLayout, e.Start)
	if err != nil {
		return fmt.Errorf("start %q is not a YYYY-MM-DD date", e.Start)
	}
	end, err := time.Parse(DateLayout, e.End)
	if err != nil {
		return fmt.Errorf("end %q is not a YYYY-MM-DD date", e.End)
	}
	if end.Before(start) {
		return fmt.Errorf("end %s is before start %s", e.End, e.Start)
	}
	return nil
}

var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1/2/06",
	"01-02-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2-Jan-2006",
	"02-Jan-06",
	time.RFC3339,
}

// NormalizeDate accepts the date spellings spreadsheets commonly produce,
// including Excel serial day numbers, and returns YYYY-MM-DD.
func NormalizeDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(DateLayout), true
		}
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 && serial < 2958466 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format(DateLayout), true
		}
	}
	return "", false
}

var headerAliases = map[string]string{
	"task":       "task",
	"event":      "task",
	"step":       "task",
	"name":       "task",
	"start":      "start",
	"start date": "start",
	"begin":      "start",
	"from":       "start",
	"end":        "end",
	"end date":   "end",
	"finish":     "end",
	"to":         "end",
	"due":        "end",
}

// ParseSpreadsheet reads events from the first sheet of an xlsx or xls file.
// The first row is a header naming task, start and end columns; a blank end
// means the event lasts one day.
func ParseSpreadsheet(r io.Reader, filename string) ([]Event, error) {
	rows, err := readRows(r, filename)
	if err != nil {
		return nil, err
	}
	columns := map[string]int{}
	for idx, header := range rows[0] {
		if key, ok := headerAliases[normalizeHeader(header)]; ok {
			if _, seen := columns[key]; !seen {
				columns[key] = idx
			}
		}
	}
	for _, key := range []string{"task", "start"} {
		if _, ok := columns[key]; !ok {
			return nil, fmt.Errorf("header row is missing a %s column", key)
		}
	}
	endIdx, hasEnd := columns["end"]
	if !hasEnd {
		endIdx = -1
	}

	var events []Event
	var problems []error
	for i, row := range rows[1:] {
		task := cellValue(row, columns["task"])
		startRaw := cellValue(row, columns["start"])
		endRaw := cellValue(row, endIdx)
		if task == "" && startRaw == "" && endRaw == "" {
			continue
		}
		line := i + 2
		start, ok := NormalizeDate(startRaw)
		if !ok {
			problems = append(problems, fmt.Errorf("row %d: invalid start date %q", line, startRaw))
			continue
		}
		end := start
		if endRaw != "" {
			if end, ok = NormalizeDate(endRaw); !ok {
				problems = append(problems, fmt.Errorf("row %d: invalid end date %q", line, endRaw))
				continue
			}
		}
		ev := Event{Task: task, Start: start, End: end}
		if err := ev.Validate(); err != nil {
			problems = append(problems, fmt.Errorf("row %d: %w", line, err))
			continue
		}
		events = append(events, ev)
	}
	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}
	if len(events) == 0 {
		return nil, errors.New("spreadsheet has no events")
	}
	return events, nil
}

func readRows(reader io.Reader, filename string) ([][]string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xls":
		workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("open xls: %w", err)
		}
		if workbook.NumSheets() == 0 {
			return nil, errors.New("no worksheet found")
		}
		rows := workbook.ReadAllCells(maxRows)
		if len(rows) == 0 {
			return nil, errors.New("worksheet is empty")
		}
		return rows, nil
	case ".xlsx", ".xlsm":
		file, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open xlsx: %w", err)
		}
		defer func() { _ = file.Close() }()

		sheet := file.GetSheetName(0)
		if sheet == "" {
			return nil, errors.New("no worksheet found")
		}
		rows, err := file.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, errors.New("worksheet is empty")
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unsupported spreadsheet type %q", filepath.Ext(filename))
	}
}

func normalizeHeader(header string) string {
	return strings.Join(strings.Fields(strings.ToLower(header)), " ")
}

func cellValue(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
