package result

import "testing"

func TestSortStable(t *testing.T) {
	results := []Result{
		{ID: "c", Score: 0.5},
		{ID: "a", Score: 0.9},
		{ID: "z", Score: 0.5},
		{ID: "b", Score: 0.5},
	}

	SortStable(results)

	wantOrder := []string{"a", "b", "c", "z"}
	for i, want := range wantOrder {
		if results[i].ID != want {
			t.Fatalf("position %d: got %s, want %s (full: %v)", i, results[i].ID, want, ids(results))
		}
	}
}

func TestSortStableDescendingScores(t *testing.T) {
	results := []Result{
		{ID: "low", Score: 0.1},
		{ID: "high", Score: 0.99},
		{ID: "mid", Score: 0.5},
	}

	SortStable(results)

	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("scores not descending: %v", ids(results))
		}
	}
}

func TestSortStableEmpty(t *testing.T) {
	SortStable(nil)
	SortStable([]Result{})
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
