// Package selector reduces a candidate table to the best observation of each location
package selector

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/airbusgeo/geocube-s2chips/common"
)

// ErrEmptyInput is returned when there is no candidate to select from
var ErrEmptyInput = errors.New("empty candidate table")

// Select keeps, for each location, the candidate with the smallest abs_days_diff,
// ties broken by the highest cloud score, and assigns download ids PREFIX_00000, PREFIX_00001...
// in ascending location order.
// Empty or non-numeric scores are sorted last.
// Location ids are trimmed and candidates without location id are skipped.
func Select(candidates []common.Candidate, prefix string) ([]common.Selection, error) {
	if prefix == "" {
		return nil, fmt.Errorf("Select: empty prefix")
	}

	sorted := make([]common.Candidate, 0, len(candidates))
	for _, c := range candidates {
		c.LocationID = strings.TrimSpace(c.LocationID)
		if c.LocationID == "" {
			continue
		}
		sorted = append(sorted, c)
	}
	if len(sorted) == 0 {
		return nil, ErrEmptyInput
	}

	cmpID := idComparator(sorted)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if c := cmpID(a.LocationID, b.LocationID); c != 0 {
			return c < 0
		}
		if c := compareNaNLast(a.AbsDaysDiff, b.AbsDaysDiff, false); c != 0 {
			return c < 0
		}
		return compareNaNLast(a.CloudScore, b.CloudScore, true) < 0
	})

	// Rows of a location are contiguous once sorted: the first one is the best
	selections := make([]common.Selection, 0, len(sorted))
	for i, c := range sorted {
		if i > 0 && c.LocationID == sorted[i-1].LocationID {
			continue
		}
		selections = append(selections, common.Selection{
			Candidate:  c,
			DownloadID: common.DownloadID(prefix, len(selections)),
		})
	}
	return selections, nil
}

// compareNaNLast compares two scores, NaN being greater than any number whatever the order
func compareNaNLast(a, b float64, descending bool) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	if descending {
		a, b = b, a
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// idComparator orders numeric location ids by value, before the other ids that are ordered lexicographically
func idComparator(candidates []common.Candidate) func(a, b string) int {
	values := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		if _, ok := values[c.LocationID]; ok {
			continue
		}
		v, err := strconv.ParseFloat(c.LocationID, 64)
		if err != nil {
			v = math.NaN()
		}
		values[c.LocationID] = v
	}
	return func(a, b string) int {
		if c := compareNaNLast(values[a], values[b], false); c != 0 {
			return c
		}
		// "1" and "1.0" are the same number but distinct locations
		return compareStrings(a, b)
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
