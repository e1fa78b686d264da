package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRowsCSVHeadersAndBlanks(t *testing.T) {
	sheet := "\ufeffFE , Month,Total Case Done,TAT %,Online % Age,Remarks\n" +
		"FE-001,Oct-25,\"1,204\",95%,-,late start\n" +
		"fe@example.com,2025-10,,88.5,77,\n"

	rows, err := ParseRows([]byte(sheet), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.Equal(t, "FE-001", rows[0].Identifier)
	require.Equal(t, 1204, rows[0].TotalCases)
	require.Equal(t, 95.0, *rows[0].TAT)
	require.Nil(t, rows[0].AppUsage)
	require.Nil(t, rows[0].Quality)

	require.Equal(t, "2025-10", rows[1].Period)
	require.Equal(t, 77.0, *rows[1].AppUsage)
}

func TestParseRowsJSONEnvelope(t *testing.T) {
	rows, err := ParseRows([]byte(`{"rows": [{"fe": "Ravi", "month": "Oct-25", "quality": 1.5}]}`), "application/json")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1.5, *rows[0].Quality)
}

func TestParseRowsRejects(t *testing.T) {
	_, err := ParseRows([]byte("  \n"), "text/csv")
	require.ErrorIs(t, err, ErrEmpty)

	_, err = ParseRows([]byte("Name,Score\nRavi,10\n"), "text/csv")
	require.ErrorIs(t, err, ErrMissingKeys)

	_, err = ParseRows([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d}, "")
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestParseRowsKeepsRowsWithUnreadableCells(t *testing.T) {
	sheet := "FE,Month,Total Case Done,TAT %,Quality Concern % Age\n" +
		"FE-001,Oct-25,120,95,0\n" +
		"FE-002,Oct-25,lots,fast,1.5\n" +
		"FE-003,Oct-25,80,91,0.2\n"

	rows, err := ParseRows([]byte(sheet), "text/csv")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.Empty(t, rows[0].Warnings)
	require.Empty(t, rows[2].Warnings)
	require.Equal(t, 91.0, *rows[2].TAT)

	bad := rows[1]
	require.Nil(t, bad.TAT)
	require.Equal(t, 0, bad.TotalCases)
	require.Equal(t, 1.5, *bad.Quality)
	require.Len(t, bad.Warnings, 2)
	require.Contains(t, bad.Warnings[1], `line 3 column "TAT %"`)
	require.Contains(t, bad.Warnings[1], `"fast"`)
}
