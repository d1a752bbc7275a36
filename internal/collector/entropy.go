package collector

import (
	"math"

	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region entropy

// pathEntropy is the ratio of travelled distance to straight-line distance.
// Fewer than two points or a closed path yield 0.
func pathEntropy(path []pathPoint) float64 {
	if len(path) < 2 {
		return 0
	}
	var travelled float64
	for i := 1; i < len(path); i++ {
		travelled += math.Hypot(path[i].X-path[i-1].X, path[i].Y-path[i-1].Y)
	}
	first, last := path[0], path[len(path)-1]
	straight := math.Hypot(last.X-first.X, last.Y-first.Y)
	if straight == 0 {
		return 0
	}
	return travelled / straight
}

const gridBins = 10

// gridEntropy bins samples into a 10x10 grid over their bounding box and
// returns the Shannon entropy of the bin distribution in bits.
func gridEntropy(samples []snapshot.Point) float64 {
	if len(samples) == 0 {
		return 0
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, s := range samples {
		minX, maxX = math.Min(minX, s.X), math.Max(maxX, s.X)
		minY, maxY = math.Min(minY, s.Y), math.Max(maxY, s.Y)
	}
	w := math.Max(1, maxX-minX)
	h := math.Max(1, maxY-minY)

	bins := make(map[[2]int]int)
	for _, s := range samples {
		ix := min(gridBins-1, int(math.Floor((s.X-minX)/w*gridBins)))
		iy := min(gridBins-1, int(math.Floor((s.Y-minY)/h*gridBins)))
		bins[[2]int{ix, iy}]++
	}
	total := float64(len(samples))
	var entropy float64
	for _, n := range bins {
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// #endregion entropy
