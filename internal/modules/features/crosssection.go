package features

import "sort"

// Cross-sectional ranking. For each date, the ranked features are converted
// to percentile ranks over the symbols that have a value on that date.
// Symbols missing the feature are excluded from the pool, never imputed.

type rankedFeature struct {
	get func(*FeatureVector) *float64
	set func(*FeatureVector, float64)
}

var rankedFeatures = []rankedFeature{
	{
		get: func(v *FeatureVector) *float64 { return v.Volatility21 },
		set: func(v *FeatureVector, r float64) { v.Volatility21Rank = &r },
	},
	{
		get: func(v *FeatureVector) *float64 { return v.Return21 },
		set: func(v *FeatureVector, r float64) { v.Return21Rank = &r },
	},
	{
		get: func(v *FeatureVector) *float64 { return v.Beta63 },
		set: func(v *FeatureVector, r float64) { v.Beta63Rank = &r },
	},
	{
		get: func(v *FeatureVector) *float64 { return v.VolumeRatio },
		set: func(v *FeatureVector, r float64) { v.VolumeRatioRank = &r },
	},
}

// ApplyCrossSectionalRanks fills the *_rank fields in place. The percentile
// rank is the average ordinal rank of the value divided by the pool size, so
// ties share a rank and the top value maps to 1.0.
func ApplyCrossSectionalRanks(universe map[string][]FeatureVector) {
	type cell struct {
		vec   *FeatureVector
		value float64
	}

	for _, feat := range rankedFeatures {
		byDate := make(map[string][]cell)
		for sym := range universe {
			vectors := universe[sym]
			for i := range vectors {
				if p := feat.get(&vectors[i]); p != nil {
					byDate[vectors[i].Date] = append(byDate[vectors[i].Date], cell{vec: &vectors[i], value: *p})
				}
			}
		}

		for _, cells := range byDate {
			sort.Slice(cells, func(i, j int) bool { return cells[i].value < cells[j].value })
			n := len(cells)
			i := 0
			for i < n {
				j := i
				for j < n && cells[j].value == cells[i].value {
					j++
				}
				// Average 1-based rank of the tie group.
				avgRank := float64(i+j+1) / 2.0
				pct := avgRank / float64(n)
				for k := i; k < j; k++ {
					feat.set(cells[k].vec, pct)
				}
				i = j
			}
		}
	}
}
