// Package table reads and writes the candidate and selection tables (CSV with header)
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/airbusgeo/geocube-s2chips/common"
)

// Columns
const (
	ColumnID          = "id"
	ColumnSceneID     = "s2_id"
	ColumnAbsDaysDiff = "abs_days_diff"
	ColumnCloudScore  = "cs_cdf"
	ColumnLon         = "lon"
	ColumnLat         = "lat"
	ColumnDownloadID  = "s2_download_id"
	ColumnCatalogPath = "s2_full_id"
)

// SelectionColumns are required to select the candidates
var SelectionColumns = []string{ColumnID, ColumnAbsDaysDiff, ColumnCloudScore}

// DispatchColumns are required to resolve and dispatch the selections
var DispatchColumns = []string{ColumnID, ColumnSceneID, ColumnLon, ColumnLat}

// ErrMissingColumn is returned when a required column is not in the header
type ErrMissingColumn struct {
	Column string
}

func (e ErrMissingColumn) Error() string {
	return fmt.Sprintf("missing column: %s", e.Column)
}

// Header is the list of the columns of a table
type Header []string

// Index returns the index of the column or -1
func (h Header) Index(column string) int {
	for i, c := range h {
		if c == column {
			return i
		}
	}
	return -1
}

// Has returns true if the column is in the header
func (h Header) Has(column string) bool {
	return h.Index(column) >= 0
}

// Check returns ErrMissingColumn for the first required column that is not in the header
func (h Header) Check(required ...string) error {
	for _, c := range required {
		if !h.Has(c) {
			return ErrMissingColumn{Column: c}
		}
	}
	return nil
}

// ParseFloat parses a cell. Empty or invalid cells are NaN
func ParseFloat(cell string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ReadCandidates reads a candidate table and checks that the required columns are present
// The columns of the model that are not in the header are left empty (NaN for numbers)
func ReadCandidates(r io.Reader, required ...string) (Header, []common.Candidate, error) {
	cr := csv.NewReader(r)
	record, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrMissingColumn{Column: ColumnID}
		}
		return nil, nil, fmt.Errorf("ReadCandidates.ReadHeader: %w", err)
	}
	header := Header(record)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if err := header.Check(required...); err != nil {
		return nil, nil, err
	}

	get := func(record []string, column string) string {
		if i := header.Index(column); i >= 0 && i < len(record) {
			return record[i]
		}
		return ""
	}
	var candidates []common.Candidate
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("ReadCandidates: %w", err)
		}
		candidates = append(candidates, common.Candidate{
			LocationID:  get(record, ColumnID),
			SceneID:     get(record, ColumnSceneID),
			AbsDaysDiff: ParseFloat(get(record, ColumnAbsDaysDiff)),
			CloudScore:  ParseFloat(get(record, ColumnCloudScore)),
			Lon:         ParseFloat(get(record, ColumnLon)),
			Lat:         ParseFloat(get(record, ColumnLat)),
			Record:      record,
		})
	}
	return header, candidates, nil
}

// SelectionsFromCandidates uses the s2_download_id column of the candidates
func SelectionsFromCandidates(header Header, candidates []common.Candidate) ([]common.Selection, error) {
	idx := header.Index(ColumnDownloadID)
	if idx < 0 {
		return nil, ErrMissingColumn{Column: ColumnDownloadID}
	}
	selections := make([]common.Selection, len(candidates))
	for i, c := range candidates {
		selections[i] = common.Selection{Candidate: c, DownloadID: c.Record[idx]}
	}
	return selections, nil
}

// OutputHeader returns the header of the selection table: id, the other columns in input order, s2_download_id
func OutputHeader(header Header) Header {
	out := Header{ColumnID}
	for _, c := range header {
		if c != ColumnID && c != ColumnDownloadID && c != ColumnCatalogPath {
			out = append(out, c)
		}
	}
	return append(out, ColumnDownloadID)
}

// OutputRecord returns the values of the selection for the columns of the output header
func OutputRecord(out, header Header, s common.Selection) []string {
	record := make([]string, len(out))
	for i, c := range out {
		switch c {
		case ColumnID:
			record[i] = s.LocationID
		case ColumnDownloadID:
			record[i] = s.DownloadID
		default:
			if j := header.Index(c); j >= 0 && j < len(s.Record) {
				record[i] = s.Record[j]
			}
		}
	}
	return record
}

// WriteSelections writes the selections with all the columns of the input table and the download id
func WriteSelections(w io.Writer, header Header, selections []common.Selection) error {
	out := OutputHeader(header)
	cw := csv.NewWriter(w)
	if err := cw.Write(out); err != nil {
		return fmt.Errorf("WriteSelections: %w", err)
	}
	for _, s := range selections {
		record := OutputRecord(out, header, s)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteSelections: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteSelections: %w", err)
	}
	return nil
}

// WriteResolved writes the selections as WriteSelections does, followed by the s2_full_id column
func WriteResolved(w io.Writer, header Header, resolved []common.Resolved) error {
	out := OutputHeader(header)
	cw := csv.NewWriter(w)
	if err := cw.Write(append(append(Header{}, out...), ColumnCatalogPath)); err != nil {
		return fmt.Errorf("WriteResolved: %w", err)
	}
	for _, r := range resolved {
		if err := cw.Write(append(OutputRecord(out, header, r.Selection), r.CatalogPath)); err != nil {
			return fmt.Errorf("WriteResolved: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteResolved: %w", err)
	}
	return nil
}
