// Package results holds per-file entropy results and renders them as CSV.
package results

import (
	"bytes"
	"fmt"
)

// EntropyResult is the entropy measured for a single input file.
type EntropyResult struct {
	DisplayName string  `json:"display_name"`
	Entropy     float64 `json:"entropy"`
}

// Results holds the results of an entropy scan in input order.
type Results struct {
	Files     []EntropyResult
	csvSchema csvSchema
}

// NewResults creates a new [Results] struct with an empty slice of [EntropyResult] and the default [csvSchema].
func NewResults() *Results {
	return &Results{Files: make([]EntropyResult, 0), csvSchema: defCSVHeader}
}

// WithDelimiter sets the delimiter for the [Results] struct for purposes of CSV marshalling.
func (r *Results) WithDelimiter(delim string) *Results {
	r.csvSchema.delim = delim
	return r
}

// Add appends a result.
func (r *Results) Add(displayName string, entropy float64) {
	r.Files = append(r.Files, EntropyResult{DisplayName: displayName, Entropy: entropy})
}

// Len returns the number of results.
func (r *Results) Len() int {
	return len(r.Files)
}

// Flagged returns the results with an entropy greater than or equal to threshold, in input order.
func (r *Results) Flagged(threshold float64) []EntropyResult {
	flagged := make([]EntropyResult, 0)
	for _, res := range r.Files {
		if res.Entropy >= threshold {
			flagged = append(flagged, res)
		}
	}
	return flagged
}

// MarshalCSV marshals the [Results] struct to CSV format using the [r.csvSchema].
// The header row is always written, even when there are no results.
func (r *Results) MarshalCSV() ([]byte, error) {
	buf := new(bytes.Buffer)
	w, err := r.csvSchema.writer(buf)
	if err != nil {
		return nil, err
	}
	if err = w.Write(r.csvSchema.header()); err != nil {
		return nil, err
	}
	for i := range r.Files {
		rec, recErr := r.csvSchema.record(&r.Files[i])
		if recErr != nil {
			return nil, fmt.Errorf("row %d: %w", i, recErr)
		}
		if err = w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
