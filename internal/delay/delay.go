// Package delay implements the delay detector (C8): energy-gated window
// selection, a coarse-then-fine normalized cross-correlation search per
// window, and weighted aggregation across the top-3 windows.
package delay

import (
	"encoding/binary"
	"math"
	"sort"
)

const (
	startOffsetSec = 0.1
	windowLenSec   = 0.7
	maxDelaySec    = 0.5
	energyWinSec   = 0.03
	energyStepSec  = 0.01
	silenceMS      = 1e-3 // mean-square threshold, ~-30 dBFS on a 1.0 full-scale float
	skipGapSec     = 0.7
	coarseStep     = 10 // samples
	fineRadius     = 10 // samples
	earlyStopCorr  = 0.5
	earlyStopCount = 3
	topN           = 3
	highStdDevMs   = 5.0
	// SilentResultMs is returned when capture contains no usable signal.
	SilentResultMs = -1.0
)

// Candidate is one scored window (s=start sample, delay in samples, NCC).
type Candidate struct {
	StartSample int
	DelaySamples int
	NCC         float64
}

// Result is the full detection output.
type Result struct {
	DelayMs       float64
	Top3          []Candidate
	StdDevMs      float64
	LowConfidence bool
	Silent        bool
}

// Detect runs the delay detector over equal-length mono float arrays sampled
// at workingSR.
func Detect(left, right []float32, workingSR int) Result {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	startOffset := int(float64(workingSR) * startOffsetSec)
	windowLen := int(float64(workingSR) * windowLenSec)
	maxDelay := int(float64(workingSR) * maxDelaySec)

	if n < startOffset+windowLen {
		return Result{DelayMs: SilentResultMs, Silent: true}
	}

	starts := findCandidateStarts(left, n, windowLen, startOffset, workingSR)

	var results []Candidate
	for _, s := range starts {
		if d, ncc, ok := searchWindow(left, right, s, windowLen, maxDelay, n); ok {
			results = append(results, Candidate{StartSample: s, DelaySamples: d, NCC: ncc})
			if countAbove(results, earlyStopCorr) >= earlyStopCount {
				break
			}
		}
	}

	if len(results) == 0 {
		return Result{DelayMs: SilentResultMs, Silent: true}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].NCC != results[j].NCC {
			return results[i].NCC > results[j].NCC
		}
		return results[i].DelaySamples < results[j].DelaySamples
	})
	top := results
	if len(top) > topN {
		top = top[:topN]
	}

	dHat, stdDev := aggregate(top)
	delayMs := 1000 * dHat / float64(workingSR)
	stdDevMs := 1000 * stdDev / float64(workingSR)

	return Result{
		DelayMs:       delayMs,
		Top3:          top,
		StdDevMs:      stdDevMs,
		LowConfidence: stdDevMs > highStdDevMs,
	}
}

// DetectInterleaved is a convenience wrapper that de-interleaves a stereo
// float buffer before running Detect.
func DetectInterleaved(interleaved []float32, workingSR int) Result {
	n := len(interleaved) / 2
	left := make([]float32, n)
	right := make([]float32, n)
	for i := 0; i < n; i++ {
		left[i] = interleaved[i*2]
		right[i] = interleaved[i*2+1]
	}
	return Detect(left, right, workingSR)
}

// DecodeInterleavedBytes converts interleaved stereo float32LE bytes (as
// written by the merger) into a float32 slice suitable for DetectInterleaved.
func DecodeInterleavedBytes(buf []byte) []float32 {
	n := len(buf) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func findCandidateStarts(left []float32, n, windowLen, startOffset, workingSR int) []int {
	energyWin := int(float64(workingSR) * energyWinSec)
	energyStep := int(float64(workingSR) * energyStepSec)
	if energyWin == 0 || energyStep == 0 {
		return nil
	}
	skipGap := int(float64(workingSR) * skipGapSec)

	var candidates []int
	s := startOffset
	for s+windowLen <= n {
		if s+energyWin > n {
			break
		}
		ms := meanSquare(left[s : s+energyWin])
		if ms >= silenceMS {
			candidates = append(candidates, s)
			s += skipGap
			continue
		}
		s += energyStep
	}

	if len(candidates) < 3 {
		candidates = candidates[:0]
		step := int(float64(workingSR) * 0.5)
		for s := startOffset; s+windowLen <= n; s += step {
			candidates = append(candidates, s)
		}
	}
	return candidates
}

func meanSquare(xs []float32) float64 {
	var sum float64
	for _, x := range xs {
		v := float64(x)
		sum += v * v
	}
	if len(xs) == 0 {
		return 0
	}
	return sum / float64(len(xs))
}

func searchWindow(left, right []float32, s, windowLen, maxDelay, n int) (int, float64, bool) {
	searchEnd := maxDelay
	if n-s-windowLen < searchEnd {
		searchEnd = n - s - windowLen
	}
	if searchEnd < 0 {
		return 0, 0, false
	}

	bestDelay, bestNCC, ok := coarseSearch(left, right, s, windowLen, searchEnd, n, 0, searchEnd, coarseStep)
	if !ok {
		return 0, 0, false
	}

	fineStart := bestDelay - fineRadius
	if fineStart < 0 {
		fineStart = 0
	}
	fineEnd := bestDelay + fineRadius
	if fineEnd > searchEnd {
		fineEnd = searchEnd
	}
	refinedDelay, refinedNCC, ok := coarseSearch(left, right, s, windowLen, searchEnd, n, fineStart, fineEnd, 1)
	if ok && refinedNCC > bestNCC {
		bestDelay, bestNCC = refinedDelay, refinedNCC
	}
	return bestDelay, bestNCC, true
}

func coarseSearch(left, right []float32, s, windowLen, searchEnd, n, from, to, step int) (int, float64, bool) {
	bestDelay := 0
	bestNCC := -2.0
	found := false
	for d := from; d <= to; d += step {
		if s+windowLen+d > n {
			break
		}
		ncc, ok := ncc(left, right, s, d, windowLen)
		if !ok {
			continue
		}
		if ncc > bestNCC {
			bestNCC = ncc
			bestDelay = d
			found = true
		}
	}
	return bestDelay, bestNCC, found
}

// ncc computes normalized cross-correlation between left[s:s+windowLen] and
// right[s+d:s+d+windowLen].
func ncc(left, right []float32, s, d, windowLen int) (float64, bool) {
	var num, sumL2, sumR2 float64
	for i := 0; i < windowLen; i++ {
		l := float64(left[s+i])
		r := float64(right[s+d+i])
		num += l * r
		sumL2 += l * l
		sumR2 += r * r
	}
	denom := math.Sqrt(sumL2 * sumR2)
	if denom == 0 {
		return 0, false
	}
	return num / denom, true
}

func countAbove(results []Candidate, threshold float64) int {
	count := 0
	for _, r := range results {
		if r.NCC > threshold {
			count++
		}
	}
	return count
}

func aggregate(top []Candidate) (weightedMean, stdDev float64) {
	var sumW, sumWD float64
	for _, c := range top {
		w := c.NCC * c.NCC
		sumW += w
		sumWD += w * float64(c.DelaySamples)
	}
	if sumW == 0 {
		return 0, 0
	}
	mean := sumWD / sumW

	var sumWVar float64
	for _, c := range top {
		w := c.NCC * c.NCC
		diff := float64(c.DelaySamples) - mean
		sumWVar += w * diff * diff
	}
	variance := sumWVar / sumW
	return mean, math.Sqrt(variance)
}
