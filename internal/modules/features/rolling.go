package features

import "math"

// Rolling-window primitives. All of them emit NaN until the window fills,
// and propagate NaN through any window that contains one. Indicator-shaped
// computations (RSI, MACD, Bollinger, ATR, SMA) go through go-talib instead;
// these cover the plain windowed statistics talib has no form for.

func rollingMean(vals []float64, window int) []float64 {
	out := nanSlice(len(vals))
	for i := window - 1; i < len(vals); i++ {
		sum, ok := windowSum(vals[i-window+1 : i+1])
		if ok {
			out[i] = sum / float64(window)
		}
	}
	return out
}

func rollingSum(vals []float64, window int) []float64 {
	out := nanSlice(len(vals))
	for i := window - 1; i < len(vals); i++ {
		if sum, ok := windowSum(vals[i-window+1 : i+1]); ok {
			out[i] = sum
		}
	}
	return out
}

// rollingStd is the sample standard deviation (n-1 denominator).
func rollingStd(vals []float64, window int) []float64 {
	out := nanSlice(len(vals))
	for i := window - 1; i < len(vals); i++ {
		w := vals[i-window+1 : i+1]
		sum, ok := windowSum(w)
		if !ok {
			continue
		}
		mean := sum / float64(window)
		var ss float64
		for _, v := range w {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// rollingMax uses minPeriods semantics: a value appears as soon as minPeriods
// observations are available, over a window capped at the full size.
func rollingMax(vals []float64, window, minPeriods int) []float64 {
	out := nanSlice(len(vals))
	for i := minPeriods - 1; i < len(vals); i++ {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		best := math.Inf(-1)
		valid := true
		for _, v := range vals[start : i+1] {
			if math.IsNaN(v) {
				valid = false
				break
			}
			if v > best {
				best = v
			}
		}
		if valid {
			out[i] = best
		}
	}
	return out
}

func rollingMin(vals []float64, window, minPeriods int) []float64 {
	out := nanSlice(len(vals))
	for i := minPeriods - 1; i < len(vals); i++ {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		best := math.Inf(1)
		valid := true
		for _, v := range vals[start : i+1] {
			if math.IsNaN(v) {
				valid = false
				break
			}
			if v < best {
				best = v
			}
		}
		if valid {
			out[i] = best
		}
	}
	return out
}

// rollingQuantile computes the linear-interpolation quantile over each full
// window, skipping windows that contain NaN.
func rollingQuantile(vals []float64, window int, q float64) []float64 {
	out := nanSlice(len(vals))
	buf := make([]float64, window)
	for i := window - 1; i < len(vals); i++ {
		copy(buf, vals[i-window+1:i+1])
		if hasNaN(buf) {
			continue
		}
		out[i] = quantileInPlace(buf, q)
	}
	return out
}

// rollingBeta computes cov(x, y)/var(y) over each full window. Windows
// containing NaN in either series stay NaN.
func rollingBeta(x, y []float64, window int) []float64 {
	out := nanSlice(len(x))
	for i := window - 1; i < len(x); i++ {
		wx := x[i-window+1 : i+1]
		wy := y[i-window+1 : i+1]
		if hasNaN(wx) || hasNaN(wy) {
			continue
		}
		var mx, my float64
		for j := range wx {
			mx += wx[j]
			my += wy[j]
		}
		mx /= float64(window)
		my /= float64(window)
		var cov, vy float64
		for j := range wx {
			cov += (wx[j] - mx) * (wy[j] - my)
			vy += (wy[j] - my) * (wy[j] - my)
		}
		cov /= float64(window - 1)
		vy /= float64(window - 1)
		if vy < 1e-18 {
			continue
		}
		out[i] = cov / vy
	}
	return out
}

// pctChange returns v[i]/v[i-periods] - 1, NaN for the first periods entries.
func pctChange(vals []float64, periods int) []float64 {
	out := nanSlice(len(vals))
	for i := periods; i < len(vals); i++ {
		prev := vals[i-periods]
		if math.IsNaN(prev) || math.IsNaN(vals[i]) || prev == 0 {
			continue
		}
		out[i] = vals[i]/prev - 1
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func windowSum(w []float64) (float64, bool) {
	var sum float64
	for _, v := range w {
		if math.IsNaN(v) {
			return 0, false
		}
		sum += v
	}
	return sum, true
}

func hasNaN(w []float64) bool {
	for _, v := range w {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// quantileInPlace sorts buf and interpolates linearly between order
// statistics, matching the empirical quantile rule used in the analytics
// module.
func quantileInPlace(buf []float64, q float64) float64 {
	insertionSort(buf)
	n := len(buf)
	if n == 1 {
		return buf[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return buf[lo]
	}
	frac := pos - float64(lo)
	return buf[lo]*(1-frac) + buf[hi]*frac
}

func insertionSort(buf []float64) {
	for i := 1; i < len(buf); i++ {
		for j := i; j > 0 && buf[j] < buf[j-1]; j-- {
			buf[j], buf[j-1] = buf[j-1], buf[j]
		}
	}
}
