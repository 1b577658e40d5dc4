package knowledge

import (
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{1, 1}, []float32{3, 3}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("Cosine(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSortByScore_TieBreaksBySeq(t *testing.T) {
	entries := []Entry{
		{ID: "c", Seq: 2, Score: 0.5},
		{ID: "a", Seq: 0, Score: 0.5},
		{ID: "top", Seq: 3, Score: 0.9},
		{ID: "b", Seq: 1, Score: 0.5},
	}
	SortByScore(entries)

	want := []string{"top", "a", "b", "c"}
	for i, id := range want {
		if entries[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, entries[i].ID, id)
		}
	}
}

func TestRank(t *testing.T) {
	candidates := []Entry{
		{ID: "x", Seq: 0, Vector: []float32{1, 0}},
		{ID: "y", Seq: 1, Vector: []float32{0, 1}},
		{ID: "xy", Seq: 2, Vector: []float32{1, 1}},
	}
	query := []float32{1, 0}

	got := Rank(candidates, query, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != "x" || got[1].ID != "xy" {
		t.Errorf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
	if candidates[0].Score != 0 {
		t.Error("Rank must not modify candidates")
	}

	if got := Rank(candidates, query, 10); len(got) != 3 {
		t.Errorf("k above size: got %d results, want 3", len(got))
	}
	if got := Rank(candidates, query, 0); got != nil {
		t.Errorf("k=0: got %v, want nil", got)
	}
}
