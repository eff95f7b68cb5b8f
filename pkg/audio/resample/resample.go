// Package resample converts mono float32 audio between sample rates using
// band-limited windowed-sinc interpolation.
//
// The interpolation kernel is a Blackman-Harris-squared windowed sinc of 256
// taps with its cutoff at 95% of the lower Nyquist frequency. The kernel is
// tabulated at 256x oversampling and linearly interpolated between table
// entries, so the cost per output sample is one pass over the taps.
//
// Signals shorter than the kernel are handled by treating samples outside the
// input as zero; no input length causes a panic.
package resample

import (
	"errors"
	"fmt"
	"math"
)

const (
	// SincLength is the number of kernel taps per output sample.
	SincLength = 256

	// Cutoff is the fraction of the lower Nyquist frequency kept in the pass band.
	Cutoff = 0.95

	// Oversampling is the number of kernel table entries per input sample.
	Oversampling = 256
)

// ErrInvalidRate is returned when a sample rate is zero or negative.
var ErrInvalidRate = errors.New("resample: invalid sample rate")

// Resampler converts between one fixed pair of sample rates. The kernel
// table is computed once in [New] and reused across calls. A Resampler is
// immutable after construction and safe for concurrent use.
type Resampler struct {
	from, to int
	ratio    float64 // to / from
	step     float64 // from / to, input samples per output sample

	// table holds the kernel for |x| in [0, SincLength/2] at 1/Oversampling
	// resolution. One trailing guard entry keeps interpolation in bounds.
	table []float64
}

// New returns a Resampler from fromRate to toRate Hz.
func New(fromRate, toRate int) (*Resampler, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: from=%d to=%d", ErrInvalidRate, fromRate, toRate)
	}
	r := &Resampler{
		from:  fromRate,
		to:    toRate,
		ratio: float64(toRate) / float64(fromRate),
		step:  float64(fromRate) / float64(toRate),
	}
	if fromRate != toRate {
		r.table = buildKernel(Cutoff * math.Min(1, r.ratio))
	}
	return r, nil
}

// Resample is a convenience wrapper around [New] and [Resampler.Process].
func Resample(samples []float32, fromRate, toRate int) ([]float32, error) {
	r, err := New(fromRate, toRate)
	if err != nil {
		return nil, err
	}
	return r.Process(samples), nil
}

// FromRate returns the input sample rate in Hz.
func (r *Resampler) FromRate() int { return r.from }

// ToRate returns the output sample rate in Hz.
func (r *Resampler) ToRate() int { return r.to }

// OutputLen returns the number of samples Process produces for n input samples.
func (r *Resampler) OutputLen(n int) int {
	if r.from == r.to {
		return n
	}
	return int(math.Round(float64(n) * r.ratio))
}

// Process resamples samples and returns a newly allocated slice. The input
// is never modified. Equal rates yield a copy.
func (r *Resampler) Process(samples []float32) []float32 {
	outLen := r.OutputLen(len(samples))
	out := make([]float32, outLen)
	if r.from == r.to {
		copy(out, samples)
		return out
	}
	if len(samples) == 0 {
		return out
	}

	half := SincLength / 2
	n := len(samples)
	for j := range outLen {
		t := float64(j) * r.step
		center := int(math.Floor(t))

		first := center - half + 1
		last := center + half
		if first < 0 {
			first = 0
		}
		if last > n-1 {
			last = n - 1
		}

		var acc float64
		for k := first; k <= last; k++ {
			acc += float64(samples[k]) * r.kernel(t-float64(k))
		}
		out[j] = float32(acc)
	}
	return out
}

// kernel evaluates the tabulated filter at offset x (in input samples).
func (r *Resampler) kernel(x float64) float64 {
	pos := math.Abs(x) * Oversampling
	idx := int(pos)
	if idx >= len(r.table)-1 {
		return 0
	}
	frac := pos - float64(idx)
	return r.table[idx]*(1-frac) + r.table[idx+1]*frac
}

// buildKernel tabulates fc*sinc(fc*x)*w(x) for x in [0, SincLength/2], where
// fc is the normalised cutoff and w the squared Blackman-Harris window.
func buildKernel(fc float64) []float64 {
	half := SincLength / 2
	size := half*Oversampling + 2
	table := make([]float64, size)
	for i := range size {
		x := float64(i) / Oversampling
		if x > float64(half) {
			break
		}
		table[i] = fc * sinc(fc*x) * blackmanHarris2(x)
	}
	return table
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackmanHarris2 returns the squared 4-term Blackman-Harris window for an
// offset x from the kernel centre. It is zero at |x| = SincLength/2.
func blackmanHarris2(x float64) float64 {
	const (
		a0 = 0.35875
		a1 = 0.48829
		a2 = 0.14128
		a3 = 0.01168
	)
	p := (x + SincLength/2) / SincLength // position in [0, 1]
	w := a0 -
		a1*math.Cos(2*math.Pi*p) +
		a2*math.Cos(4*math.Pi*p) -
		a3*math.Cos(6*math.Pi*p)
	return w * w
}
