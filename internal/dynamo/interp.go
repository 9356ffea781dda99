package dynamo

import "sort"

// Interpolator gives a continuous-in-time view of an input array so steppers
// can evaluate derivatives between declared time points.
type Interpolator struct {
	in    *Array
	times []float64
	mode  Interpolation
}

func NewInterpolator(in *Array, times []float64, mode Interpolation) *Interpolator {
	return &Interpolator{in: in, times: times, mode: mode}
}

// Fill writes variable v at time t into dst, one value per node. Times
// outside the declared range clamp to the nearest end point.
func (ip *Interpolator) Fill(v int, t float64, dst []float64) {
	n := len(ip.times)
	if n == 0 {
		return
	}
	if t <= ip.times[0] {
		copy(dst, ip.in.Lane(v, 0))
		return
	}
	if t >= ip.times[n-1] {
		copy(dst, ip.in.Lane(v, n-1))
		return
	}

	// first index with times[i] > t
	i := sort.Search(n, func(k int) bool { return ip.times[k] > t })
	lo, hi := i-1, i
	left := ip.in.Lane(v, lo)
	if ip.mode == Constant || ip.times[lo] == t {
		copy(dst, left)
		return
	}
	right := ip.in.Lane(v, hi)
	frac := (t - ip.times[lo]) / (ip.times[hi] - ip.times[lo])
	for k := range dst {
		dst[k] = left[k] + frac*(right[k]-left[k])
	}
}
