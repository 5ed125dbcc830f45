package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// CSV schema
var (
	requiredHeaders = []string{"sku", "name"}
	allowedHeaders  = map[string]bool{"sku": true, "name": true, "description": true, "active": true}
)

const (
	sampleSize      = 100
	maxSampleErrors = 10
)

// ValidationResult is the outcome of pre-import CSV validation. The row
// count doubles as the job's total_rows hint.
type ValidationResult struct {
	Valid      bool
	Errors     []string
	TotalRows  int64
	SampleSize int
}

// ValidateCSVFile checks a CSV file before the import task is enqueued:
// extension, header presence, a sample of rows, and a full row count.
// Warnings (unknown headers) are collected but do not fail validation.
func ValidateCSVFile(path string) *ValidationResult {
	result := &ValidationResult{}

	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		result.Errors = append(result.Errors,
			fmt.Sprintf("invalid file extension %q, expected .csv", filepath.Ext(path)))
		return result
	}

	f, err := os.Open(path)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("cannot open file: %v", err))
		return result
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		result.Errors = append(result.Errors, "CSV file is empty or has no headers")
		return result
	}
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("CSV parsing error: %v", err))
		return result
	}

	columns := headerIndex(header)
	if missing := missingHeaders(columns); len(missing) > 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("missing required headers: %s", strings.Join(missing, ", ")))
		return result
	}
	if unknown := unknownHeaders(columns); len(unknown) > 0 {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Warning: unknown headers will be ignored: %s", strings.Join(unknown, ", ")))
	}

	sampleErrors := 0
	var rows int64
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: CSV parsing error: %v", rows+1, err))
			return result
		}
		rows++

		if rows <= sampleSize && sampleErrors < maxSampleErrors {
			if _, err := parseProductRow(rowMap(columns, record)); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Warning: row %d: %v", rows, err))
				sampleErrors++
			}
		}
	}

	result.TotalRows = rows
	if rows < sampleSize {
		result.SampleSize = int(rows)
	} else {
		result.SampleSize = sampleSize
	}

	result.Valid = true
	for _, e := range result.Errors {
		if !strings.HasPrefix(e, "Warning:") {
			result.Valid = false
			break
		}
	}
	return result
}

// headerIndex maps normalized column names to their positions.
func headerIndex(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return columns
}

func missingHeaders(columns map[string]int) []string {
	var missing []string
	for _, required := range requiredHeaders {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	sort.Strings(missing)
	return missing
}

func unknownHeaders(columns map[string]int) []string {
	var unknown []string
	for name := range columns {
		if !allowedHeaders[name] {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// rowMap projects a record onto the known columns.
func rowMap(columns map[string]int, record []string) map[string]string {
	row := make(map[string]string, len(columns))
	for name, idx := range columns {
		if idx < len(record) {
			row[name] = record[idx]
		}
	}
	return row
}

// parseActive coerces the recognized boolean token set, case-insensitively.
func parseActive(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1", "t", "y":
		return true, nil
	case "false", "no", "0", "f", "n":
		return false, nil
	}
	return false, fmt.Errorf("cannot parse %q as boolean", value)
}
