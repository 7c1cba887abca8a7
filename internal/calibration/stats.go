package calibration

import (
	"math"
	"sort"
)

// #region rank-correlation

// spearman computes the Spearman rank correlation of two equal-length
// series: the Pearson correlation of their ranks, with ties assigned the
// average rank. Rank correlation asks the right question here: does a
// higher score mean higher retention, not whether the fit is linear.
func spearman(x, y []float64) (float64, bool) {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0, false
	}
	return pearson(ranks(x), ranks(y))
}

// ranks assigns 1-indexed ranks, averaging over ties.
func ranks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	out := make([]float64, len(values))
	i := 0
	for i < len(idx) {
		j := i
		for j < len(idx) && values[idx[j]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j-1)/2.0 + 1
		for k := i; k < j; k++ {
			out[idx[k]] = avg
		}
		i = j
	}
	return out
}

// #endregion

// #region pearson

// pearson returns the Pearson correlation coefficient. The second return
// is false when either series has no variance.
func pearson(x, y []float64) (float64, bool) {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0, false
	}
	meanX := mean(x)
	meanY := mean(y)

	var num, denX, denY float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		num += dx * dy
		denX += dx * dx
		denY += dy * dy
	}
	if denX == 0 || denY == 0 {
		return 0, false
	}
	return num / (math.Sqrt(denX) * math.Sqrt(denY)), true
}

// #endregion

// #region summary

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 0 {
		return (s[n/2-1] + s[n/2]) / 2
	}
	return s[n/2]
}

// #endregion
