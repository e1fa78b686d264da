package kpi

import "encoding/json"

// RowResult is the outcome of processing one row of a batch: either a value or an error.
type RowResult[T any] struct {
	Row   int
	Value T
	Err   error
}

// Ok wraps a successful row.
func Ok[T any](row int, value T) RowResult[T] {
	return RowResult[T]{Row: row, Value: value}
}

// Fail wraps a failed row.
func Fail[T any](row int, err error) RowResult[T] {
	return RowResult[T]{Row: row, Err: err}
}

// IsOk reports whether the row succeeded.
func (r RowResult[T]) IsOk() bool {
	return r.Err == nil
}

// MarshalJSON renders the row as {"row", "ok", "value"|"error"}.
func (r RowResult[T]) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(struct {
			Row   int    `json:"row"`
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}{Row: r.Row, OK: false, Error: r.Err.Error()})
	}
	return json.Marshal(struct {
		Row   int  `json:"row"`
		OK    bool `json:"ok"`
		Value T    `json:"value"`
	}{Row: r.Row, OK: true, Value: r.Value})
}

// Partition counts succeeded and failed rows.
func Partition[T any](results []RowResult[T]) (succeeded, failed int) {
	for _, result := range results {
		if result.IsOk() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
