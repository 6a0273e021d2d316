// Package perf computes detection error rates: the equal-error-rate threshold
// on the development split and FAR/FRR/HTER at that threshold for devel and test.
package perf

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/andresmejia3/spoofguard/internal/types"
)

// TableFile is the report written into the output directory.
const TableFile = "perf_table.txt"

// Rates holds the error rates of one split at a fixed threshold.
type Rates struct {
	FAR          float64
	FRR          float64
	FalseAccepts int // attacks scoring >= threshold
	Attacks      int
	FalseRejects int // genuine accesses scoring < threshold
	Genuine      int
}

// HTER is the half total error rate.
func (r Rates) HTER() float64 {
	return (r.FAR + r.FRR) / 2
}

func (r Rates) String() string {
	return fmt.Sprintf("FAR %.2f%% (%d/%d) | FRR %.2f%% (%d/%d) | HTER %.2f%%",
		100*r.FAR, r.FalseAccepts, r.Attacks,
		100*r.FRR, r.FalseRejects, r.Genuine,
		100*r.HTER())
}

// Report is the outcome of one evaluation.
type Report struct {
	Threshold float64
	Devel     Rates
	Test      Rates
	Notes     []string // extra heading lines, e.g. PCA energy or a sign flip
}

func (r *Report) String() string {
	var b strings.Builder
	b.WriteString(" \n")
	for _, n := range r.Notes {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, " threshold: %.4f\n", r.Threshold)
	fmt.Fprintf(&b, " dev:  %s\n", r.Devel)
	fmt.Fprintf(&b, " test: %s\n", r.Test)
	return b.String()
}

// WriteTable writes the report to <dir>/perf_table.txt.
func (r *Report) WriteTable(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, TableFile)
	return path, os.WriteFile(path, []byte(r.String()), 0o644)
}

// At computes the rates of one split at threshold t. An empty side yields a zero rate.
func At(negatives, positives []float64, t float64) Rates {
	r := Rates{Attacks: len(negatives), Genuine: len(positives)}
	for _, s := range negatives {
		if s >= t {
			r.FalseAccepts++
		}
	}
	for _, s := range positives {
		if s < t {
			r.FalseRejects++
		}
	}
	if r.Attacks > 0 {
		r.FAR = float64(r.FalseAccepts) / float64(r.Attacks)
	}
	if r.Genuine > 0 {
		r.FRR = float64(r.FalseRejects) / float64(r.Genuine)
	}
	return r
}

// FARFRR returns the false-accept and false-reject rates at threshold t.
func FARFRR(negatives, positives []float64, t float64) (far, frr float64) {
	r := At(negatives, positives, t)
	return r.FAR, r.FRR
}

// EERThreshold returns the threshold where FAR and FRR are closest.
//
// FAR and FRR only change at score values, so the candidates are one
// threshold per step: just below the lowest score, the midpoint between each
// pair of consecutive distinct scores, and just above the highest score.
// FRR-FAR is non-decreasing over the sorted candidates, so a binary search
// finds the crossing and the better of its two neighbours is returned.
func EERThreshold(negatives, positives []float64) (float64, error) {
	if len(negatives) == 0 || len(positives) == 0 {
		return 0, fmt.Errorf("%w: EER needs genuine and attack scores (got %d genuine, %d attack)", types.ErrEmptyDataset, len(positives), len(negatives))
	}
	if err := checkFinite("attack", negatives); err != nil {
		return 0, err
	}
	if err := checkFinite("genuine", positives); err != nil {
		return 0, err
	}

	neg := sortedCopy(negatives)
	pos := sortedCopy(positives)
	cands := candidates(neg, pos)

	diff := func(t float64) float64 {
		far, frr := ratesSorted(neg, pos, t)
		return frr - far
	}

	i := sort.Search(len(cands), func(i int) bool { return diff(cands[i]) >= 0 })
	if i == len(cands) {
		// FRR reaches 1 at the last candidate, so this cannot happen with
		// non-empty inputs; keep the search total anyway.
		i = len(cands) - 1
	}
	best := cands[i]
	if i > 0 {
		prev := cands[i-1]
		dPrev, dBest := math.Abs(diff(prev)), math.Abs(diff(best))
		if dPrev < dBest {
			best = prev
		} else if dPrev == dBest {
			farP, frrP := ratesSorted(neg, pos, prev)
			farB, frrB := ratesSorted(neg, pos, best)
			if farP+frrP < farB+frrB {
				best = prev
			}
		}
	}
	return best, nil
}

// Evaluate fits the EER threshold on the devel scores and applies the same
// threshold to devel and test. Test scores never influence the threshold.
func Evaluate(develReal, develAttack, testReal, testAttack []float64) (*Report, error) {
	thres, err := EERThreshold(develAttack, develReal)
	if err != nil {
		return nil, fmt.Errorf("devel: %w", err)
	}
	if err := checkFinite("test genuine", testReal); err != nil {
		return nil, err
	}
	if err := checkFinite("test attack", testAttack); err != nil {
		return nil, err
	}
	return &Report{
		Threshold: thres,
		Devel:     At(develAttack, develReal, thres),
		Test:      At(testAttack, testReal, thres),
	}, nil
}

func candidates(neg, pos []float64) []float64 {
	all := make([]float64, 0, len(neg)+len(pos))
	all = append(all, neg...)
	all = append(all, pos...)
	sort.Float64s(all)

	uniq := all[:0]
	for i, v := range all {
		if i == 0 || v != uniq[len(uniq)-1] {
			uniq = append(uniq, v)
		}
	}

	cands := make([]float64, 0, len(uniq)+1)
	cands = append(cands, math.Nextafter(uniq[0], math.Inf(-1)))
	for i := 0; i+1 < len(uniq); i++ {
		mid := uniq[i] + (uniq[i+1]-uniq[i])/2
		if mid <= uniq[i] {
			// Adjacent floats: the upper score is the only threshold that
			// rejects uniq[i] and accepts uniq[i+1].
			mid = math.Nextafter(uniq[i], uniq[i+1])
		}
		cands = append(cands, mid)
	}
	return append(cands, math.Nextafter(uniq[len(uniq)-1], math.Inf(1)))
}

// ratesSorted computes FAR and FRR on sorted inputs in O(log n).
func ratesSorted(neg, pos []float64, t float64) (far, frr float64) {
	accepted := len(neg) - sort.SearchFloat64s(neg, t) // neg >= t
	rejected := sort.SearchFloat64s(pos, t)            // pos < t
	return float64(accepted) / float64(len(neg)), float64(rejected) / float64(len(pos))
}

func sortedCopy(s []float64) []float64 {
	c := make([]float64, len(s))
	copy(c, s)
	sort.Float64s(c)
	return c
}

func checkFinite(name string, scores []float64) error {
	for i, s := range scores {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("%w: %s score %d is %v", types.ErrCorruptFrame, name, i, s)
		}
	}
	return nil
}
