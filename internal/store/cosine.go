package store

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// CosineDistance returns 1 - cos(a, b). Zero vectors or mismatched lengths
// are at distance 1.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	x, y := toFloat64(a), toFloat64(b)
	na, nb := floats.Norm(x, 2), floats.Norm(y, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(x, y)/(na*nb)
}

func rankByCosine(recs []Record, vec []float32, k int) []Record {
	dist := make(map[int]float64, len(recs))
	idx := make([]int, len(recs))
	for i, r := range recs {
		idx[i] = i
		dist[i] = CosineDistance(r.Vector, vec)
	}
	sort.SliceStable(idx, func(i, j int) bool { return dist[idx[i]] < dist[idx[j]] })

	if k > len(idx) {
		k = len(idx)
	}
	out := make([]Record, 0, k)
	for _, i := range idx[:k] {
		out = append(out, recs[i])
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
