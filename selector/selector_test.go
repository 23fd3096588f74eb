package selector

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/airbusgeo/geocube-s2chips/common"
)

func candidate(loc, scene string, diff, score float64) common.Candidate {
	return common.Candidate{LocationID: loc, SceneID: scene, AbsDaysDiff: diff, CloudScore: score}
}

func checkSelection(t *testing.T, s common.Selection, loc, scene, downloadID string) {
	t.Helper()
	if s.LocationID != loc || s.SceneID != scene || s.DownloadID != downloadID {
		t.Errorf("expecting (%s, %s, %s), got (%s, %s, %s)", loc, scene, downloadID, s.LocationID, s.SceneID, s.DownloadID)
	}
}

func TestSelectBestScenes(t *testing.T) {
	selections, err := Select([]common.Candidate{
		candidate("1", "a", 5, 0.5),
		candidate("1", "b", 2, 0.9),
		candidate("2", "c", 1, 0.1),
	}, "PFX")
	if err != nil {
		t.Fatal(err)
	}
	if len(selections) != 2 {
		t.Fatalf("expecting 2 selections, got %d", len(selections))
	}
	checkSelection(t, selections[0], "1", "b", "PFX_00000")
	checkSelection(t, selections[1], "2", "c", "PFX_00001")
}

func TestSelectUniqueness(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	var candidates []common.Candidate
	locations := map[string]struct{}{}
	for i := 0; i < 500; i++ {
		loc := fmt.Sprintf("%d", r.Intn(80))
		locations[loc] = struct{}{}
		candidates = append(candidates, candidate(loc, fmt.Sprintf("scene%d", i), float64(r.Intn(30)), r.Float64()))
	}
	selections, err := Select(candidates, "S2")
	if err != nil {
		t.Fatal(err)
	}
	if len(selections) != len(locations) {
		t.Fatalf("expecting %d selections, got %d", len(locations), len(selections))
	}
	seen := map[string]struct{}{}
	for i, s := range selections {
		if _, ok := seen[s.LocationID]; ok {
			t.Errorf("location %s selected twice", s.LocationID)
		}
		seen[s.LocationID] = struct{}{}
		if s.DownloadID != common.DownloadID("S2", i) {
			t.Errorf("expecting %s, got %s", common.DownloadID("S2", i), s.DownloadID)
		}
		// No candidate of the location is strictly better
		for _, c := range candidates {
			if c.LocationID == s.LocationID && (c.AbsDaysDiff < s.AbsDaysDiff ||
				(c.AbsDaysDiff == s.AbsDaysDiff && c.CloudScore > s.CloudScore)) {
				t.Errorf("location %s: %s is better than %s", s.LocationID, c.SceneID, s.SceneID)
			}
		}
	}
}

func TestSelectTieBreak(t *testing.T) {
	for _, candidates := range [][]common.Candidate{
		{candidate("1", "far", 5, 0.9), candidate("1", "near", 3, 0.1)},
		{candidate("1", "near", 3, 0.1), candidate("1", "far", 5, 0.9)},
	} {
		selections, err := Select(candidates, "S2")
		if err != nil {
			t.Fatal(err)
		}
		checkSelection(t, selections[0], "1", "near", "S2_00000")
	}

	for _, candidates := range [][]common.Candidate{
		{candidate("1", "cloudy", 3, 0.6), candidate("1", "clear", 3, 0.8)},
		{candidate("1", "clear", 3, 0.8), candidate("1", "cloudy", 3, 0.6)},
	} {
		selections, err := Select(candidates, "S2")
		if err != nil {
			t.Fatal(err)
		}
		checkSelection(t, selections[0], "1", "clear", "S2_00000")
	}

	// Full tie: the first row of the input wins
	selections, _ := Select([]common.Candidate{candidate("1", "first", 3, 0.5), candidate("1", "second", 3, 0.5)}, "S2")
	checkSelection(t, selections[0], "1", "first", "S2_00000")
}

func TestSelectNaN(t *testing.T) {
	nan := math.NaN()
	selections, err := Select([]common.Candidate{
		candidate("1", "nodiff", nan, 0.9),
		candidate("1", "diff", 10, 0.1),
		candidate("2", "noscore", 1, nan),
		candidate("2", "score", 1, 0.2),
	}, "S2")
	if err != nil {
		t.Fatal(err)
	}
	checkSelection(t, selections[0], "1", "diff", "S2_00000")
	checkSelection(t, selections[1], "2", "score", "S2_00001")
}

func TestSelectLocationOrder(t *testing.T) {
	// Numeric ids
	selections, _ := Select([]common.Candidate{
		candidate("10", "c", 1, 1),
		candidate("9", "b", 1, 1),
		candidate("100", "d", 1, 1),
		candidate("-1", "a", 1, 1),
	}, "S2")
	for i, scene := range []string{"a", "b", "c", "d"} {
		if selections[i].SceneID != scene || selections[i].DownloadID != common.DownloadID("S2", i) {
			t.Errorf("numeric order: expecting %s at %d, got %s", scene, i, selections[i].SceneID)
		}
	}

	// Mixed ids
	selections, _ = Select([]common.Candidate{
		candidate("10", "b", 1, 1),
		candidate("9", "d", 1, 1),
		candidate("100", "c", 1, 1),
		candidate("1a", "a", 1, 1),
	}, "S2")
	for i, scene := range []string{"d", "b", "c", "a"} {
		if selections[i].SceneID != scene {
			t.Errorf("mixed order: expecting %s at %d, got %s", scene, i, selections[i].SceneID)
		}
	}
}

func TestSelectBlankLocationIDs(t *testing.T) {
	// Empty ids are skipped and do not change the order of the others
	selections, err := Select([]common.Candidate{
		candidate("9", "a", 1, 1),
		candidate("10", "b", 1, 1),
		candidate("", "c", 1, 1),
		candidate("  ", "d", 1, 1),
	}, "S2")
	if err != nil {
		t.Fatal(err)
	}
	if len(selections) != 2 {
		t.Fatalf("expecting 2 selections, got %d", len(selections))
	}
	checkSelection(t, selections[0], "9", "a", "S2_00000")
	checkSelection(t, selections[1], "10", "b", "S2_00001")

	// Padded ids are the same location as the trimmed ones
	selections, err = Select([]common.Candidate{
		candidate("9", "a", 1, 1),
		candidate(" 10", "b", 2, 1),
		candidate("10 ", "c", 1, 1),
	}, "S2")
	if err != nil {
		t.Fatal(err)
	}
	if len(selections) != 2 {
		t.Fatalf("expecting 2 selections, got %d", len(selections))
	}
	checkSelection(t, selections[0], "9", "a", "S2_00000")
	checkSelection(t, selections[1], "10", "c", "S2_00001")

	if _, err := Select([]common.Candidate{candidate("", "a", 1, 1)}, "S2"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expecting ErrEmptyInput, got %v", err)
	}
}

func TestSelectErrors(t *testing.T) {
	if _, err := Select(nil, "S2"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("expecting ErrEmptyInput, got %v", err)
	}
	if _, err := Select([]common.Candidate{candidate("1", "a", 1, 1)}, ""); err == nil {
		t.Error("expecting an error with an empty prefix")
	}
}

func TestSelectDoesNotModifyInput(t *testing.T) {
	candidates := []common.Candidate{candidate("2", "b", 1, 1), candidate("1", "a", 1, 1)}
	Select(candidates, "S2")
	if candidates[0].SceneID != "b" {
		t.Error("input must not be sorted in place")
	}
}
