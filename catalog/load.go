package catalog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/teranos/shopper/errors"
)

// maxLineBytes bounds a single JSONL line; generated artifacts with long descriptions stay well under it.
const maxLineBytes = 16 * 1024 * 1024

// Load resolves source (local path or go-getter URL) and reads it into records.
// The format is chosen from the file extension: .csv, .jsonl/.json, .xlsx.
func Load(ctx context.Context, source string) ([]Record, error) {
	path, cleanup, err := Resolve(ctx, source)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return LoadCSV(path)
	case ".jsonl", ".json":
		return ReadJSONL[Record](path)
	case ".xlsx":
		return LoadXLSX(path)
	default:
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("unsupported catalog format %q", ext),
			"use a .csv, .jsonl or .xlsx file",
		)
	}
}

// LoadCSV reads a CSV file whose first row is the header.
func LoadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open catalog %s", path)
	}
	defer f.Close()

	records, err := ReadCSV(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog %s", path)
	}
	return records, nil
}

// ReadCSV reads CSV rows keyed by the header row.
// A row with a different column count than the header is an error naming its line.
func ReadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	header = normalizeHeader(header)

	var records []Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ParseError already carries the line number
			return nil, errors.Wrap(err, "read row")
		}
		records = append(records, NewRecord(header, row))
	}
	return records, nil
}

// LoadXLSX reads the first sheet of a workbook; the first row is the header.
// Short rows are padded with empty values, since excelize trims trailing empty cells.
func LoadXLSX(path string) ([]Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open workbook %s", path)
	}

	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse workbook %s", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %q", sheets[0])
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := normalizeHeader(rows[0])
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		records = append(records, NewRecord(header, row))
	}
	return records, nil
}

// ReadJSONL decodes one JSON value per non-empty line.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	items, err := DecodeJSONL[T](f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return items, nil
}

// DecodeJSONL decodes one JSON value per non-empty line of r.
func DecodeJSONL[T any](r io.Reader) ([]T, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var items []T
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(text, &item); err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "after line %d", line)
	}
	return items, nil
}

// normalizeHeader trims whitespace and a UTF-8 BOM from header names.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
