package knowledge

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b. Zero vectors score 0.
func Cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// SortByScore orders entries by descending score, breaking ties by ascending Seq.
func SortByScore(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Seq < entries[j].Seq
	})
}

// Rank scores candidates against query and returns the top k copies.
func Rank(candidates []Entry, query []float32, k int) []Entry {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	scored := make([]Entry, len(candidates))
	for i, c := range candidates {
		c.Score = Cosine(c.Vector, query)
		scored[i] = c
	}
	SortByScore(scored)
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}
