// Package ingest decodes bulk KPI sheets exported as JSON or CSV.
package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/kpi-ops-api/internal/dto"
)

// MaxRows bounds one upload.
const MaxRows = 1000

var (
	ErrEmpty       = errors.New("bulk payload contains no rows")
	ErrTooLarge    = fmt.Errorf("bulk payload exceeds %d rows", MaxRows)
	ErrUnsupported = errors.New("bulk payload must be a JSON array or CSV")
	ErrMissingKeys = errors.New("csv requires FE and Month columns")
)

type bulkColumn int

const (
	columnIdentifier bulkColumn = iota
	columnPeriod
	columnTotalCases
	columnTAT
	columnMajorNegativity
	columnNegativity
	columnQuality
	columnInsufficiency
	columnNeighborCheck
	columnAppUsage
)

// bulkHeaders maps normalised spreadsheet headers onto row columns.
var bulkHeaders = map[string]bulkColumn{
	"fe":                      columnIdentifier,
	"fe name":                 columnIdentifier,
	"employee id":             columnIdentifier,
	"email":                   columnIdentifier,
	"month":                   columnPeriod,
	"period":                  columnPeriod,
	"total case done":         columnTotalCases,
	"total cases":             columnTotalCases,
	"tat %":                   columnTAT,
	"tat":                     columnTAT,
	"major negative %":        columnMajorNegativity,
	"major negativity":        columnMajorNegativity,
	"negative %":              columnNegativity,
	"negativity":              columnNegativity,
	"quality concern % age":   columnQuality,
	"quality":                 columnQuality,
	"insuff %":                columnInsufficiency,
	"insufficiency":           columnInsufficiency,
	"neighbor check % age":    columnNeighborCheck,
	"neighbor check":          columnNeighborCheck,
	"online % age":            columnAppUsage,
	"app usage":               columnAppUsage,
}

// ParseRows sniffs the body and decodes it as a JSON array (bare or under "rows") or a
// CSV sheet with the spreadsheet export headers. contentType is a hint used when sniffing
// is inconclusive.
func ParseRows(body []byte, contentType string) ([]dto.KPIBulkRow, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrEmpty
	}

	detected := mimetype.Detect(trimmed)
	contentType = strings.ToLower(contentType)

	var (
		rows []dto.KPIBulkRow
		err  error
	)
	switch {
	case detected.Is("application/json") || strings.Contains(contentType, "json"):
		rows, err = decodeBulkJSON(trimmed)
	case detected.Is("text/csv") || detected.Is("text/plain") || strings.Contains(contentType, "csv"):
		rows, err = decodeBulkCSV(trimmed)
	default:
		return nil, fmt.Errorf("%w: detected %s", ErrUnsupported, detected.String())
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	if len(rows) > MaxRows {
		return nil, ErrTooLarge
	}
	return rows, nil
}

func decodeBulkJSON(body []byte) ([]dto.KPIBulkRow, error) {
	var rows []dto.KPIBulkRow
	if err := json.Unmarshal(body, &rows); err != nil {
		var envelope struct {
			Rows []dto.KPIBulkRow `json:"rows"`
		}
		if envErr := json.Unmarshal(body, &envelope); envErr != nil {
			return nil, fmt.Errorf("decode bulk json: %w", err)
		}
		rows = envelope.Rows
	}
	return rows, nil
}

func decodeBulkCSV(body []byte) ([]dto.KPIBulkRow, error) {
	reader := csv.NewReader(bytes.NewReader(body))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[int]bulkColumn, len(header))
	for idx, name := range header {
		if column, ok := bulkHeaders[normaliseHeader(name)]; ok {
			columns[idx] = column
		}
	}
	if !hasColumn(columns, columnIdentifier) || !hasColumn(columns, columnPeriod) {
		return nil, ErrMissingKeys
	}

	var rows []dto.KPIBulkRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		if blankRecord(record) {
			continue
		}

		var row dto.KPIBulkRow
		for idx, raw := range record {
			column, ok := columns[idx]
			if !ok {
				continue
			}
			if err := assignBulkColumn(&row, column, raw); err != nil {
				row.Warnings = append(row.Warnings, fmt.Sprintf("line %d column %q: %q is not a number", line, strings.TrimSpace(header[idx]), strings.TrimSpace(raw)))
			}
		}
		rows = append(rows, row)
		if len(rows) > MaxRows {
			return nil, ErrTooLarge
		}
	}
	return rows, nil
}

// assignBulkColumn leaves the field unset when the cell cannot be parsed.
func assignBulkColumn(row *dto.KPIBulkRow, column bulkColumn, raw string) error {
	value := strings.TrimSpace(raw)
	switch column {
	case columnIdentifier:
		row.Identifier = value
		return nil
	case columnPeriod:
		row.Period = value
		return nil
	case columnTotalCases:
		if value == "" {
			return nil
		}
		total, err := strconv.Atoi(strings.ReplaceAll(value, ",", ""))
		if err != nil {
			return err
		}
		row.TotalCases = total
		return nil
	}

	percent, err := parsePercent(value)
	if err != nil {
		return err
	}
	switch column {
	case columnTAT:
		row.TAT = percent
	case columnMajorNegativity:
		row.MajorNegativity = percent
	case columnNegativity:
		row.Negativity = percent
	case columnQuality:
		row.Quality = percent
	case columnInsufficiency:
		row.Insufficiency = percent
	case columnNeighborCheck:
		row.NeighborCheck = percent
	case columnAppUsage:
		row.AppUsage = percent
	}
	return nil
}

// parsePercent accepts "93.5", "93.5%" and blanks; blanks and dashes are missing values.
func parsePercent(value string) (*float64, error) {
	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "%"))
	if value == "" || value == "-" || strings.EqualFold(value, "n/a") {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func normaliseHeader(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func hasColumn(columns map[int]bulkColumn, want bulkColumn) bool {
	for _, column := range columns {
		if column == want {
			return true
		}
	}
	return false
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
