// Package scoremap scatters a flat list of per-valid-frame scores back onto the
// frames of each video, NaN at invalid frames.
package scoremap

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/spoofguard/internal/arrayio"
	"github.com/andresmejia3/spoofguard/internal/features"
	"github.com/andresmejia3/spoofguard/internal/types"
)

// Request describes one mapping call. Videos must be in the exact order the
// flat Scores were produced in.
type Request struct {
	FeatureDir string
	ScoreDir   string
	Videos     []types.Video
	Scores     []float64
	Mode       features.Mode
}

// cursor hands out consecutive slices of the flat score list.
type cursor struct {
	scores []float64
	offset int
}

func (c *cursor) take(k int) []float64 {
	s := c.scores[c.offset : c.offset+k]
	c.offset += k
	return s
}

// Scatter maps scores onto frames. valid[v][i] tells whether frame i of video v
// received a score. The total number of valid frames must equal len(scores).
func Scatter(valid [][]bool, scores []float64) ([][]float64, error) {
	total := 0
	for _, mask := range valid {
		total += countValid(mask)
	}
	if total != len(scores) {
		return nil, fmt.Errorf("%w: %d valid frames across %d videos but %d scores", types.ErrAlignmentViolation, total, len(valid), len(scores))
	}

	c := &cursor{scores: scores}
	out := make([][]float64, len(valid))
	for v, mask := range valid {
		chunk := c.take(countValid(mask))
		frameScores := make([]float64, len(mask))
		j := 0
		for i, ok := range mask {
			if ok {
				frameScores[i] = chunk[j]
				j++
			} else {
				frameScores[i] = math.NaN()
			}
		}
		out[v] = frameScores
	}
	return out, nil
}

// Map derives the validity of every video from FeatureDir, scatters the scores
// and writes one [frames × 1] file per video under ScoreDir. Nothing is written
// when the score count does not line up.
func Map(ctx context.Context, req Request) error {
	if req.Mode == "" {
		req.Mode = features.MaskFiltered
	}

	valid := make([][]bool, len(req.Videos))
	for i, v := range req.Videos {
		if err := ctx.Err(); err != nil {
			return err
		}
		mask, err := features.ValidityForMode(req.FeatureDir, v.ID, req.Mode)
		if err != nil {
			return err
		}
		valid[i] = mask
	}

	perVideo, err := Scatter(valid, req.Scores)
	if err != nil {
		return err
	}

	for i, v := range req.Videos {
		if err := arrayio.WriteColumn(arrayio.FilePath(req.ScoreDir, v.ID), perVideo[i]); err != nil {
			return fmt.Errorf("video %s: %w", v.ID, err)
		}
	}
	log.Debug().Int("videos", len(req.Videos)).Int("scores", len(req.Scores)).Str("dir", req.ScoreDir).Msg("scores mapped to frames")
	return nil
}

func countValid(mask []bool) int {
	n := 0
	for _, ok := range mask {
		if ok {
			n++
		}
	}
	return n
}
