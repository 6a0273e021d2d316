package scoring

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Classifier is a trained binary machine with a scalar decision function.
type Classifier interface {
	Decision(x []float64) float64
}

// ClassifierScores returns one decision value per row.
func ClassifierScores(c Classifier, rows [][]float64) []float64 {
	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = c.Decision(row)
	}
	return scores
}

// SignPolicy decides whether classifier scores may be negated after scoring.
type SignPolicy string

const (
	// SignAuto negates every split when genuine devel scores average below
	// attack devel scores, so reports read "higher is genuine" whatever the
	// classifier's internal polarity.
	SignAuto SignPolicy = "auto"
	// SignNone leaves scores exactly as the classifier produced them.
	SignNone SignPolicy = "none"
)

// ParseSignPolicy accepts the --sign-policy flag values.
func ParseSignPolicy(s string) (SignPolicy, error) {
	switch p := SignPolicy(s); p {
	case SignAuto, SignNone:
		return p, nil
	default:
		return "", fmt.Errorf("unknown sign policy %q (want %s or %s)", s, SignAuto, SignNone)
	}
}

// NormalizeSign applies policy using the devel splits and, when it flips,
// negates develReal, develAttack and every slice in rest in place. It reports
// whether a flip happened.
func NormalizeSign(policy SignPolicy, develReal, develAttack []float64, rest ...[]float64) bool {
	if policy != SignAuto {
		return false
	}
	if len(develReal) == 0 || len(develAttack) == 0 {
		return false
	}
	if mean(develReal) >= mean(develAttack) {
		return false
	}
	for _, s := range append([][]float64{develReal, develAttack}, rest...) {
		for i := range s {
			s[i] = -s[i]
		}
	}
	log.Info().Msg("genuine devel scores averaged below attack scores, all scores were negated")
	return true
}

func mean(s []float64) float64 {
	var sum float64
	for _, v := range s {
		sum += v
	}
	return sum / float64(len(s))
}
