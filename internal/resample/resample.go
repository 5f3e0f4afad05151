// Package resample implements a small persistent-state linear-interpolation
// resampler used by the format-aware ring buffer (C2) to convert between
// the working sample rate and the 48kHz canonical rate.
//
// It is intentionally a single-stage linear resampler rather than a full
// polyphase/windowed-sinc design: the ratios involved stay close to 1x when
// the working rate is near the 48kHz default, and the correlation detector
// downstream tolerates the resulting passband ripple. Ratio bounds mirror
// the sanity checks a production resampler enforces.
package resample

import "fmt"

const (
	minRatio = 1.0 / 256.0
	maxRatio = 256.0
)

// Resampler converts a mono float32 sample stream from inRate to outRate,
// carrying fractional phase between calls so repeated calls produce a
// phase-continuous output stream.
type Resampler struct {
	ratio    float64 // inRate / outRate
	phase    float64 // fractional input position of the next output sample
	lastTwo  [2]float32
	haveLast bool
}

// New creates a resampler for the given rate pair.
func New(inRate, outRate int) (*Resampler, error) {
	if inRate <= 0 || outRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rate pair %d->%d", inRate, outRate)
	}
	ratio := float64(inRate) / float64(outRate)
	if ratio < minRatio || ratio > maxRatio {
		return nil, fmt.Errorf("resample: ratio %f out of bounds [%f, %f]", ratio, minRatio, maxRatio)
	}
	return &Resampler{ratio: ratio, phase: 0}, nil
}

// Reset flushes the resampler's delay state (used by formatring.Clear()).
func (r *Resampler) Reset() {
	r.phase = 0
	r.lastTwo = [2]float32{}
	r.haveLast = false
}

// Process consumes in (mono float32 samples in source rate) and produces up
// to len(out) resampled samples, returning the number produced. Unused
// input is simply dropped between calls; the persistent phase/lastTwo state
// is what keeps successive calls continuous across the call boundary.
func (r *Resampler) Process(in []float32, out []float32) int {
	if len(in) == 0 {
		return 0
	}

	// Build a virtual sequence: [lastTwo[1], in...] so the first
	// output samples can still interpolate across the call boundary.
	ext := in
	if r.haveLast {
		ext = make([]float32, 0, len(in)+1)
		ext = append(ext, r.lastTwo[1])
		ext = append(ext, in...)
	}

	produced := 0
	pos := r.phase
	for produced < len(out) {
		idx := int(pos)
		frac := pos - float64(idx)
		i0 := idx
		i1 := idx + 1
		if i1 >= len(ext) {
			break
		}
		s0 := ext[i0]
		s1 := ext[i1]
		out[produced] = s0 + float32(frac)*(s1-s0)
		produced++
		pos += r.ratio
	}

	// The next call rebuilds ext with a *different* prefix (this call's last
	// sample), so the carried phase must be re-based onto ext's length
	// rather than the unprefixed input length.
	r.phase = pos - float64(len(ext)-1)
	if r.phase < 0 {
		r.phase = 0
	}

	n := len(in)
	if n >= 2 {
		r.lastTwo[0] = in[n-2]
		r.lastTwo[1] = in[n-1]
	} else if n == 1 {
		r.lastTwo[0] = r.lastTwo[1]
		r.lastTwo[1] = in[0]
	}
	r.haveLast = true

	return produced
}

// RequiredInputSamples estimates how many input-rate samples must be
// available to produce outFrames output-rate samples: ceil(out_frames *
// in_sr/out_sr) plus one sample of slack for the interpolation window.
func RequiredInputSamples(outFrames int, inRate, outRate int) int {
	needed := (outFrames*inRate + outRate - 1) / outRate
	return needed + 1
}
