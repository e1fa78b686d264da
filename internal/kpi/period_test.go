package kpi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePeriod(t *testing.T) {
	for _, raw := range []string{"Oct-25", "Oct-2025", "October-2025", "Oct 2025", "2025-10", "10/2025", " Oct-25 "} {
		period, err := NormalizePeriod(raw)
		require.NoError(t, err, raw)
		require.Equal(t, "Oct-25", period, raw)
	}

	_, err := NormalizePeriod("sometime")
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestRowResultPartitionAndJSON(t *testing.T) {
	results := []RowResult[int]{Ok(1, 10), Fail[int](2, errors.New("bad row")), Ok(3, 30)}

	ok, failed := Partition(results)
	require.Equal(t, 2, ok)
	require.Equal(t, 1, failed)

	payload, err := results[1].MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"row":2,"ok":false,"error":"bad row"}`, string(payload))

	payload, err = results[0].MarshalJSON()
	require.NoError(t, err)
	require.JSONEq(t, `{"row":1,"ok":true,"value":10}`, string(payload))
}
